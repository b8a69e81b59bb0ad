package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arbiterhq/arbiter/util"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "arbiter",
		Usage:   "asynchronous content moderation daemon",
		Version: versioninfo.Short(),
	}

	app.Commands = []*cli.Command{
		runCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the moderation service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/arbiter/arbiter.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			Value:   40,
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":3999",
			EnvVars: []string{"ARBITER_BIND"},
		},
		&cli.StringFlag{
			Name:    "idp-host",
			Usage:   "base URL of the identity provider's subject profile API",
			Value:   "https://idp.example.com",
			EnvVars: []string{"ARBITER_IDP_HOST"},
		},
		&cli.StringFlag{
			Name:    "idp-token",
			EnvVars: []string{"ARBITER_IDP_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "classifier-host",
			Usage:   "base URL of the toxicity classifier API (empty for local keyword fallback)",
			EnvVars: []string{"ARBITER_CLASSIFIER_HOST"},
		},
		&cli.StringFlag{
			Name:    "classifier-token",
			EnvVars: []string{"ARBITER_CLASSIFIER_TOKEN"},
		},
		&cli.Float64Flag{
			Name:    "classifier-threshold",
			Value:   0.8,
			EnvVars: []string{"ARBITER_CLASSIFIER_THRESHOLD"},
		},
		&cli.IntFlag{
			Name:    "classifier-rate-limit",
			Usage:   "max classifier calls per second across the moderation worker pool",
			Value:   8,
			EnvVars: []string{"ARBITER_CLASSIFIER_RATE_LIMIT"},
		},
		&cli.StringFlag{
			Name:    "mailer-host",
			Usage:   "base URL of the outbound mail transport API",
			EnvVars: []string{"ARBITER_MAILER_HOST"},
		},
		&cli.StringFlag{
			Name:    "mailer-token",
			EnvVars: []string{"ARBITER_MAILER_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "mailer-from",
			Value:   "moderation@example.com",
			EnvVars: []string{"ARBITER_MAILER_FROM"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "incoming webhook for operational alerts (dead and poison jobs)",
			EnvVars: []string{"ARBITER_SLACK_WEBHOOK_URL"},
		},
		&cli.IntFlag{
			Name:    "worker-concurrency",
			Usage:   "jobs processed in parallel per topic",
			Value:   4,
			EnvVars: []string{"ARBITER_WORKER_CONCURRENCY"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		slog.SetDefault(logger)

		// Enable OTLP HTTP exporter
		// For relevant environment variables:
		// https://pkg.go.dev/go.opentelemetry.io/otel/exporters/otlp/otlptrace#readme-environment-variables
		// At a minimum, you need to set
		// OTEL_EXPORTER_OTLP_ENDPOINT=http://localhost:4318
		if ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); ep != "" {
			slog.Info("setting up trace exporter", "endpoint", ep)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			exp, err := otlptracehttp.New(ctx)
			if err != nil {
				return fmt.Errorf("failed to create trace exporter: %w", err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := exp.Shutdown(ctx); err != nil {
					slog.Error("failed to shutdown trace exporter", "error", err)
				}
			}()

			tp := tracesdk.NewTracerProvider(
				tracesdk.WithBatcher(exp),
				tracesdk.WithResource(resource.NewWithAttributes(
					semconv.SchemaURL,
					semconv.ServiceNameKey.String("arbiter"),
					attribute.String("env", os.Getenv("ENVIRONMENT")),         // DataDog
					attribute.String("environment", os.Getenv("ENVIRONMENT")), // Others
					attribute.Int64("ID", 1),
				)),
			)
			otel.SetTracerProvider(tp)
		}

		db, err := util.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"))
		if err != nil {
			return err
		}

		srv, err := NewServer(db, Config{
			Bind:                cctx.String("bind"),
			IDPHost:             cctx.String("idp-host"),
			IDPToken:            cctx.String("idp-token"),
			ClassifierHost:      cctx.String("classifier-host"),
			ClassifierToken:     cctx.String("classifier-token"),
			ClassifierThreshold: cctx.Float64("classifier-threshold"),
			ClassifierRateLimit: cctx.Int("classifier-rate-limit"),
			MailerHost:          cctx.String("mailer-host"),
			MailerToken:         cctx.String("mailer-token"),
			MailerFrom:          cctx.String("mailer-from"),
			SlackWebhookURL:     cctx.String("slack-webhook-url"),
			WorkerConcurrency:   cctx.Int("worker-concurrency"),
			Logger:              logger,
		})
		if err != nil {
			return err
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sig
			logger.Info("shutdown signal received")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		return srv.Run(ctx)
	},
}
