package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/arbiterhq/arbiter/classifier"
	"github.com/arbiterhq/arbiter/identity"
	"github.com/arbiterhq/arbiter/models"
	"github.com/arbiterhq/arbiter/moderation"
	"github.com/arbiterhq/arbiter/notifier"
	"github.com/arbiterhq/arbiter/queue"
	"github.com/arbiterhq/arbiter/store"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"
	"gorm.io/gorm"
)

type Config struct {
	Bind                string
	IDPHost             string
	IDPToken            string
	ClassifierHost      string
	ClassifierToken     string
	ClassifierThreshold float64
	ClassifierRateLimit int
	MailerHost          string
	MailerToken         string
	MailerFrom          string
	SlackWebhookURL     string
	WorkerConcurrency   int
	Logger              *slog.Logger
}

type Server struct {
	bind     string
	logger   *slog.Logger
	echo     *echo.Echo
	store    store.Store
	resolver *identity.Resolver
	intake   *moderation.Intake
	workers  []*queue.Worker
}

func NewServer(db *gorm.DB, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var ops queue.OpsSink
	if config.SlackWebhookURL != "" {
		ops = &notifier.SlackOpsSink{SlackWebhookURL: config.SlackWebhookURL}
	} else {
		ops = &notifier.LogOpsSink{Logger: logger}
	}

	st := store.NewGormStore(db)
	if err := st.MigrateModels(); err != nil {
		return nil, fmt.Errorf("migrating record models: %w", err)
	}
	q := queue.NewGormQueue(db, &queue.GormQueueOptions{Ops: ops, Logger: logger})
	if err := q.MigrateModels(); err != nil {
		return nil, fmt.Errorf("migrating queue models: %w", err)
	}

	base := identity.NewHTTPDirectory(config.IDPHost, config.IDPToken)
	dir := identity.NewCacheDirectory(base, 100_000, time.Hour, time.Minute)
	resolver := identity.NewResolver(st, dir, logger)

	var cl classifier.Classifier
	if config.ClassifierHost != "" {
		cl = classifier.NewHTTPClassifier(config.ClassifierHost, config.ClassifierToken, config.ClassifierThreshold)
	} else {
		logger.Warn("no classifier host configured, using local keyword fallback")
		cl = &classifier.KeywordClassifier{Reasons: moderation.DefaultKeywordReasons()}
	}

	mailer := notifier.NewMailerNotifier(config.MailerHost, config.MailerToken, config.MailerFrom)

	concurrency := config.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	modCfg := queue.DefaultWorkerConfig()
	modCfg.Concurrency = concurrency
	modCfg.ClaimsPerSecond = config.ClassifierRateLimit
	notifyCfg := queue.DefaultWorkerConfig()
	notifyCfg.Concurrency = concurrency
	adminCfg := queue.DefaultWorkerConfig()
	adminCfg.Concurrency = concurrency

	modWorker := moderation.NewModerationWorker(st, q, cl, logger)
	adminWorker := moderation.NewAdminActionWorker(st, q, logger)
	notifyWorker := moderation.NewNotificationWorker(st, mailer, logger)

	srv := &Server{
		bind:     config.Bind,
		logger:   logger,
		store:    st,
		resolver: resolver,
		intake:   moderation.NewIntake(st, q, logger),
		workers: []*queue.Worker{
			queue.NewWorker(queue.TopicModeration, q, modWorker.HandleJob, ops, logger, modCfg),
			queue.NewWorker(queue.TopicAdminAction, q, adminWorker.HandleJob, ops, logger, adminCfg),
			queue.NewWorker(queue.TopicNotification, q, notifyWorker.HandleJob, ops, logger, notifyCfg),
		},
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())

	e.GET("/_health", srv.handleHealthCheck)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.POST("/content", srv.handleCreateContent)
	e.GET("/admin/flags", srv.handleListFlags)
	e.POST("/admin/flags/:id/decision", srv.handleAdminDecision)
	srv.echo = e

	return srv, nil
}

// Run starts the workers and the HTTP surface, blocking until shutdown.
func (s *Server) Run(ctx context.Context) error {
	for _, w := range s.workers {
		go w.Start()
	}
	err := s.echo.Start(s.bind)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	for _, w := range s.workers {
		if err := w.Stop(ctx); err != nil {
			s.logger.Error("failed to stop worker", "topic", w.Topic, "err", err)
		}
	}
	if err := s.echo.Shutdown(ctx); err != nil {
		s.logger.Error("failed to shut down http server", "err", err)
	}
}

func (s *Server) handleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// resolveCaller maps the authenticated subject (established upstream by
// the identity provider) to a local user, provisioning on first
// contact.
func (s *Server) resolveCaller(c echo.Context) (*models.User, error) {
	subjectID := c.Request().Header.Get("X-Subject-ID")
	if subjectID == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing subject identity")
	}
	u, err := s.resolver.ResolveUser(c.Request().Context(), subjectID)
	if err != nil {
		if errors.Is(err, identity.ErrProfileIncomplete) || errors.Is(err, identity.ErrSubjectNotFound) {
			return nil, echo.NewHTTPError(http.StatusForbidden, err.Error())
		}
		return nil, err
	}
	return u, nil
}

type createContentRequest struct {
	Kind         models.ContentKind `json:"kind"`
	Body         string             `json:"body"`
	ParentPostID uint               `json:"parentPostId"`
}

func (s *Server) handleCreateContent(c echo.Context) error {
	caller, err := s.resolveCaller(c)
	if err != nil {
		return err
	}

	var req createContentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	content, err := s.intake.SubmitContent(c.Request().Context(), caller.ID, req.Kind, req.Body, req.ParentPostID)
	if err != nil {
		if errors.Is(err, moderation.ErrInvalidContentKind) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return err
	}
	return c.JSON(http.StatusCreated, content)
}

type adminDecisionRequest struct {
	Action moderation.AdminAction `json:"action"`
	Reason string                 `json:"reason,omitempty"`
}

func (s *Server) handleAdminDecision(c echo.Context) error {
	caller, err := s.resolveCaller(c)
	if err != nil {
		return err
	}

	flagID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid flag id")
	}

	var req adminDecisionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, err := req.Action.TargetStatus(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	err = s.intake.SubmitAdminAction(c.Request().Context(), caller.ID, uint(flagID), req.Action, req.Reason)
	if err != nil {
		if errors.Is(err, moderation.ErrNotAdmin) {
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		}
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleListFlags(c echo.Context) error {
	caller, err := s.resolveCaller(c)
	if err != nil {
		return err
	}
	if caller.Role != models.RoleAdmin {
		return echo.NewHTTPError(http.StatusForbidden, "admin role required")
	}

	status := models.FlagStatus(c.QueryParam("status"))
	limit := 100
	if l := c.QueryParam("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	flags, err := s.store.ListFlaggedContent(c.Request().Context(), status, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, flags)
}
