package moderation_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/arbiterhq/arbiter/classifier"
	"github.com/arbiterhq/arbiter/models"
	"github.com/arbiterhq/arbiter/moderation"
	"github.com/arbiterhq/arbiter/notifier"
	"github.com/arbiterhq/arbiter/queue"
	"github.com/arbiterhq/arbiter/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	Kind  notifier.Kind
	Email string
	Name  string
	Data  map[string]string
}

type fakeNotifier struct {
	lk   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *fakeNotifier) Send(ctx context.Context, kind notifier.Kind, email, name string, data map[string]string) error {
	n.lk.Lock()
	defer n.lk.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMessage{Kind: kind, Email: email, Name: name, Data: data})
	return nil
}

type countingClassifier struct {
	inner classifier.Classifier
	calls int
}

func (c *countingClassifier) Classify(ctx context.Context, text string) (*classifier.Verdict, error) {
	c.calls++
	return c.inner.Classify(ctx, text)
}

func testClassifier() *countingClassifier {
	return &countingClassifier{inner: &classifier.KeywordClassifier{
		Reasons: moderation.DefaultKeywordReasons(),
	}}
}

func seedUser(t *testing.T, st store.Store, extID, email, name string) *models.User {
	t.Helper()
	u, created, err := st.InsertUserIfAbsent(context.Background(), &models.User{
		ExternalSubjectID:  extID,
		Email:              email,
		DisplayName:        name,
		Role:               models.RoleUser,
		NotifyOnModeration: true,
	})
	require.NoError(t, err)
	require.True(t, created)
	return u
}

func moderationQueueJob(t *testing.T, payload moderation.ModerationJob) *queue.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &queue.Job{ID: "job-1", Topic: queue.TopicModeration, Payload: raw, MaxAttempts: 3}
}

func TestModerationWorkerFlagsViolation(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	st := store.NewMemStore()
	q := queue.NewMemQueue()
	cl := testClassifier()
	author := seedUser(t, st, "ext-1", "alice@example.com", "Alice")

	w := moderation.NewModerationWorker(st, q, cl, nil)
	job := moderationQueueJob(t, moderation.ModerationJob{
		ContentID:   42,
		ContentKind: models.ContentKindComment,
		Body:        "I will find and hurt you",
		AuthorID:    author.ID,
	})
	require.NoError(t, w.HandleJob(ctx, job))

	// exactly one PENDING flag with the classifier's reason
	flags, err := st.ListFlaggedContent(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(uint(42), flags[0].ContentID)
	assert.Equal(models.ContentKindComment, flags[0].ContentKind)
	assert.Equal(models.FlagStatusPending, flags[0].Status)
	assert.Equal("threat", flags[0].Reason)

	// exactly one content-flagged notification job with that reason
	jobs := q.Jobs(queue.TopicNotification)
	require.Len(t, jobs, 1)
	var np moderation.NotificationJob
	require.NoError(t, json.Unmarshal(jobs[0].Payload, &np))
	assert.Equal(notifier.KindContentFlagged, np.Kind)
	assert.Equal(author.ID, np.Recipient.ID)
	assert.Equal("alice@example.com", np.Recipient.Email)
	assert.Equal("threat", np.Reason)
}

func TestModerationWorkerRedeliveryIdempotent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	st := store.NewMemStore()
	q := queue.NewMemQueue()
	author := seedUser(t, st, "ext-1", "alice@example.com", "Alice")
	w := moderation.NewModerationWorker(st, q, testClassifier(), nil)

	payload := moderation.ModerationJob{
		ContentID:   42,
		ContentKind: models.ContentKindComment,
		Body:        "this is pure spam honestly",
		AuthorID:    author.ID,
	}
	require.NoError(t, w.HandleJob(ctx, moderationQueueJob(t, payload)))
	require.NoError(t, w.HandleJob(ctx, moderationQueueJob(t, payload)))

	flags, err := st.ListFlaggedContent(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(flags, 1)
	assert.Len(q.Jobs(queue.TopicNotification), 1)
}

func TestModerationWorkerSkipsShortBody(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	st := store.NewMemStore()
	q := queue.NewMemQueue()
	cl := testClassifier()
	author := seedUser(t, st, "ext-1", "a@example.com", "A")
	w := moderation.NewModerationWorker(st, q, cl, nil)

	for _, body := range []string{"ok", "  ok  ", "", "hurt"} {
		job := moderationQueueJob(t, moderation.ModerationJob{
			ContentID:   1,
			ContentKind: models.ContentKindComment,
			Body:        body,
			AuthorID:    author.ID,
		})
		require.NoError(t, w.HandleJob(ctx, job))
	}

	// never classified, never flagged
	assert.Equal(0, cl.calls)
	flags, err := st.ListFlaggedContent(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(flags)
}

func TestModerationWorkerCleanVerdict(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	st := store.NewMemStore()
	q := queue.NewMemQueue()
	author := seedUser(t, st, "ext-1", "a@example.com", "A")
	w := moderation.NewModerationWorker(st, q, testClassifier(), nil)

	job := moderationQueueJob(t, moderation.ModerationJob{
		ContentID:   1,
		ContentKind: models.ContentKindReview,
		Body:        "what a lovely product, five stars",
		AuthorID:    author.ID,
	})
	require.NoError(t, w.HandleJob(ctx, job))

	flags, err := st.ListFlaggedContent(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(flags)
	assert.Empty(q.Jobs(queue.TopicNotification))
}

type erroringClassifier struct {
	err     error
	verdict *classifier.Verdict
}

func (c *erroringClassifier) Classify(ctx context.Context, text string) (*classifier.Verdict, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.verdict, nil
}

func TestModerationWorkerTransientClassifierError(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	st := store.NewMemStore()
	q := queue.NewMemQueue()
	author := seedUser(t, st, "ext-1", "a@example.com", "A")
	cl := &erroringClassifier{err: errors.New("upstream timeout")}
	w := moderation.NewModerationWorker(st, q, cl, nil)

	job := moderationQueueJob(t, moderation.ModerationJob{
		ContentID:   1,
		ContentKind: models.ContentKindComment,
		Body:        "long enough body to classify",
		AuthorID:    author.ID,
	})
	err := w.HandleJob(ctx, job)
	// propagates so the queue retries with backoff, but is not poison
	assert.Error(err)
	assert.NotErrorIs(err, queue.ErrPoisonJob)
}

func TestModerationWorkerUnanalyzableIsSkip(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	st := store.NewMemStore()
	q := queue.NewMemQueue()
	author := seedUser(t, st, "ext-1", "a@example.com", "A")
	cl := &erroringClassifier{verdict: &classifier.Verdict{Unanalyzable: true}}
	w := moderation.NewModerationWorker(st, q, cl, nil)

	job := moderationQueueJob(t, moderation.ModerationJob{
		ContentID:   1,
		ContentKind: models.ContentKindComment,
		Body:        "zalgo text the provider rejects",
		AuthorID:    author.ID,
	})
	assert.NoError(w.HandleJob(ctx, job))

	flags, err := st.ListFlaggedContent(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(flags)
}

func TestModerationWorkerMalformedPayloadIsPoison(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	w := moderation.NewModerationWorker(store.NewMemStore(), queue.NewMemQueue(), testClassifier(), nil)

	for _, payload := range [][]byte{
		[]byte(`not json at all`),
		[]byte(`{"contentKind":"COMMENT","body":"missing ids"}`),
		[]byte(`{"contentId":1,"contentKind":"PODCAST","body":"bad kind","authorId":2}`),
	} {
		job := &queue.Job{ID: "p", Topic: queue.TopicModeration, Payload: payload, MaxAttempts: 3}
		err := w.HandleJob(ctx, job)
		assert.ErrorIs(err, queue.ErrPoisonJob)
	}
}

func TestModerationWorkerFlagCommitsWhenEnqueueFails(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	st := store.NewMemStore()
	author := seedUser(t, st, "ext-1", "alice@example.com", "Alice")
	w := moderation.NewModerationWorker(st, &brokenQueue{}, testClassifier(), nil)

	job := moderationQueueJob(t, moderation.ModerationJob{
		ContentID:   42,
		ContentKind: models.ContentKindComment,
		Body:        "this is pure spam honestly",
		AuthorID:    author.ID,
	})
	// the flag write committed; failing the job would only burn retries
	// that skip the notification anyway, so the job acks
	assert.NoError(w.HandleJob(ctx, job))

	flags, err := st.ListFlaggedContent(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(flags, 1)
}

func TestModerationWorkerAuthorDeleted(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	st := store.NewMemStore()
	q := queue.NewMemQueue()
	author := seedUser(t, st, "ext-1", "a@example.com", "A")
	st.DeleteUser(author.ID)

	w := moderation.NewModerationWorker(st, q, testClassifier(), nil)
	job := moderationQueueJob(t, moderation.ModerationJob{
		ContentID:   1,
		ContentKind: models.ContentKindComment,
		Body:        "this is pure spam honestly",
		AuthorID:    author.ID,
	})
	// flag still lands; the notification is dropped without error
	assert.NoError(w.HandleJob(ctx, job))

	flags, err := st.ListFlaggedContent(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(flags, 1)
	assert.Empty(q.Jobs(queue.TopicNotification))
}
