package moderation_test

import (
	"context"
	"errors"
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

// brokenQueue fails every Enqueue, simulating a queue outage.
type brokenQueue struct {
	queue.Queue
}

func (q *brokenQueue) Enqueue(ctx context.Context, topic string, payload []byte, opts *queue.EnqueueOptions) (string, error) {
	return "", errors.New("queue unavailable")
}

func TestIntakeSubmitContent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	st := store.NewMemStore()
	q := queue.NewMemQueue()
	author := seedUser(t, st, "ext-1", "alice@example.com", "Alice")

	in := moderation.NewIntake(st, q, nil)
	content, err := in.SubmitContent(ctx, author.ID, models.ContentKindComment, "hello there world", 0)
	require.NoError(t, err)
	require.NotZero(t, content.ID)

	stored, err := st.GetContent(ctx, content.ID, models.ContentKindComment)
	require.NoError(t, err)
	assert.Equal("hello there world", stored.Body)
	assert.Len(q.Jobs(queue.TopicModeration), 1)
}

func TestIntakeSubmitContentInvalidKind(t *testing.T) {
	in := moderation.NewIntake(store.NewMemStore(), queue.NewMemQueue(), nil)
	_, err := in.SubmitContent(context.Background(), 1, models.ContentKind("PODCAST"), "body", 0)
	assert.ErrorIs(t, err, moderation.ErrInvalidContentKind)
}

func TestIntakeSubmitContentSurvivesQueueOutage(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	st := store.NewMemStore()
	author := seedUser(t, st, "ext-1", "alice@example.com", "Alice")

	in := moderation.NewIntake(st, &brokenQueue{}, nil)
	content, err := in.SubmitContent(ctx, author.ID, models.ContentKindReview, "great product would buy again", 0)
	// content creation succeeds even though the moderation job was lost
	require.NoError(t, err)

	stored, err := st.GetContent(ctx, content.ID, models.ContentKindReview)
	require.NoError(t, err)
	assert.Equal(content.ID, stored.ID)
}

func TestIntakeSubmitAdminActionRequiresAdmin(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	st := store.NewMemStore()
	q := queue.NewMemQueue()
	user := seedUser(t, st, "ext-1", "alice@example.com", "Alice")

	in := moderation.NewIntake(st, q, nil)
	err := in.SubmitAdminAction(ctx, user.ID, 1, moderation.ActionApprove, "")
	assert.ErrorIs(err, moderation.ErrNotAdmin)
	assert.Empty(q.Jobs(queue.TopicAdminAction))

	require.NoError(t, st.UpdateUserRole(ctx, user.ID, models.RoleAdmin))
	require.NoError(t, in.SubmitAdminAction(ctx, user.ID, 1, moderation.ActionApprove, ""))
	assert.Len(q.Jobs(queue.TopicAdminAction), 1)
}

func TestIntakeSubmitAdminActionSurfacesQueueOutage(t *testing.T) {
	ctx := context.Background()

	st := store.NewMemStore()
	admin := seedUser(t, st, "ext-1", "root@example.com", "Root")
	require.NoError(t, st.UpdateUserRole(ctx, admin.ID, models.RoleAdmin))

	in := moderation.NewIntake(st, &brokenQueue{}, nil)
	err := in.SubmitAdminAction(ctx, admin.ID, 1, moderation.ActionReject, "spam")
	assert.Error(t, err)
}

// Drives the full pipeline through the real in-memory queue: content
// intake, classification, flagging, an admin rejection, and both
// notifications landing with the author.
func TestPipelineEndToEnd(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	st := store.NewMemStore()
	q := queue.NewMemQueue()
	sent := &fakeNotifier{}

	author := seedUser(t, st, "ext-author", "alice@example.com", "Alice")
	admin := seedUser(t, st, "ext-admin", "root@example.com", "Root")
	require.NoError(st.UpdateUserRole(ctx, admin.ID, models.RoleAdmin))

	in := moderation.NewIntake(st, q, nil)
	modWorker := moderation.NewModerationWorker(st, q, &classifier.KeywordClassifier{
		Reasons: moderation.DefaultKeywordReasons(),
	}, nil)
	adminWorker := moderation.NewAdminActionWorker(st, q, nil)
	notifyWorker := moderation.NewNotificationWorker(st, sent, nil)

	drain := func(topic string, h queue.Handler) int {
		n := 0
		for {
			job, err := q.Claim(ctx, topic)
			require.NoError(err)
			if job == nil {
				return n
			}
			require.NoError(h(ctx, job))
			require.NoError(q.Ack(ctx, job))
			n++
		}
	}

	_, err := in.SubmitContent(ctx, author.ID, models.ContentKindComment, "I will find and hurt you", 0)
	require.NoError(err)

	assert.Equal(1, drain(queue.TopicModeration, modWorker.HandleJob))

	flags, err := st.ListFlaggedContent(ctx, models.FlagStatusPending, 0)
	require.NoError(err)
	require.Len(flags, 1)
	assert.Equal("threat", flags[0].Reason)

	assert.Equal(1, drain(queue.TopicNotification, notifyWorker.HandleJob))
	require.Len(sent.sent, 1)
	assert.Equal(notifier.KindContentFlagged, sent.sent[0].Kind)

	require.NoError(in.SubmitAdminAction(ctx, admin.ID, flags[0].ID, moderation.ActionReject, ""))
	assert.Equal(1, drain(queue.TopicAdminAction, adminWorker.HandleJob))

	current, err := st.GetFlaggedContent(ctx, flags[0].ID)
	require.NoError(err)
	assert.Equal(models.FlagStatusRejected, current.Status)

	assert.Equal(1, drain(queue.TopicNotification, notifyWorker.HandleJob))
	require.Len(sent.sent, 2)
	assert.Equal(notifier.KindContentRejected, sent.sent[1].Kind)
	assert.Equal("alice@example.com", sent.sent[1].Email)
}
