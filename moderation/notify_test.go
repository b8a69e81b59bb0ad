package moderation_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/arbiterhq/arbiter/models"
	"github.com/arbiterhq/arbiter/moderation"
	"github.com/arbiterhq/arbiter/notifier"
	"github.com/arbiterhq/arbiter/queue"
	"github.com/arbiterhq/arbiter/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notificationQueueJob(t *testing.T, payload moderation.NotificationJob) *queue.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &queue.Job{ID: "nj-1", Topic: queue.TopicNotification, Payload: raw, MaxAttempts: 3}
}

func TestNotificationWorkerSends(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	st := store.NewMemStore()
	user := seedUser(t, st, "ext-1", "alice@example.com", "Alice")
	n := &fakeNotifier{}
	w := moderation.NewNotificationWorker(st, n, nil)

	job := notificationQueueJob(t, moderation.NotificationJob{
		Kind: notifier.KindContentFlagged,
		Recipient: moderation.Recipient{
			ID:          user.ID,
			Email:       user.Email,
			DisplayName: user.DisplayName,
		},
		ContentKind: models.ContentKindComment,
		Reason:      "threat",
	})
	require.NoError(t, w.HandleJob(ctx, job))

	require.Len(t, n.sent, 1)
	assert.Equal(notifier.KindContentFlagged, n.sent[0].Kind)
	assert.Equal("alice@example.com", n.sent[0].Email)
	assert.Equal("threat", n.sent[0].Data["reason"])
	assert.Equal(string(models.ContentKindComment), n.sent[0].Data["contentKind"])
}

func TestNotificationWorkerHonorsPreferenceAtSendTime(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	st := store.NewMemStore()
	user := seedUser(t, st, "ext-1", "alice@example.com", "Alice")
	n := &fakeNotifier{}
	w := moderation.NewNotificationWorker(st, n, nil)

	job := notificationQueueJob(t, moderation.NotificationJob{
		Kind: notifier.KindContentRejected,
		Recipient: moderation.Recipient{
			ID:          user.ID,
			Email:       user.Email,
			DisplayName: user.DisplayName,
		},
		ContentKind: models.ContentKindComment,
		Reason:      "spam",
	})

	// opt out after the job was enqueued but before delivery
	require.NoError(t, st.UpdateUserPreference(ctx, user.ID, false))
	require.NoError(t, w.HandleJob(ctx, job))
	assert.Empty(n.sent)

	// opting back in makes a later job deliverable again
	require.NoError(t, st.UpdateUserPreference(ctx, user.ID, true))
	require.NoError(t, w.HandleJob(ctx, job))
	assert.Len(n.sent, 1)
}

func TestNotificationWorkerRecipientDeleted(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	st := store.NewMemStore()
	user := seedUser(t, st, "ext-1", "alice@example.com", "Alice")
	st.DeleteUser(user.ID)
	n := &fakeNotifier{}
	w := moderation.NewNotificationWorker(st, n, nil)

	job := notificationQueueJob(t, moderation.NotificationJob{
		Kind: notifier.KindContentFlagged,
		Recipient: moderation.Recipient{
			ID:          user.ID,
			Email:       user.Email,
			DisplayName: user.DisplayName,
		},
		ContentKind: models.ContentKindComment,
	})
	assert.NoError(w.HandleJob(ctx, job))
	assert.Empty(n.sent)
}

func TestNotificationWorkerTransportFailureRetries(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	st := store.NewMemStore()
	user := seedUser(t, st, "ext-1", "alice@example.com", "Alice")
	n := &fakeNotifier{err: errors.New("smtp relay down")}
	w := moderation.NewNotificationWorker(st, n, nil)

	job := notificationQueueJob(t, moderation.NotificationJob{
		Kind: notifier.KindContentFlagged,
		Recipient: moderation.Recipient{
			ID:          user.ID,
			Email:       user.Email,
			DisplayName: user.DisplayName,
		},
		ContentKind: models.ContentKindComment,
	})
	err := w.HandleJob(ctx, job)
	assert.Error(err)
	assert.NotErrorIs(err, queue.ErrPoisonJob)
}

func TestNotificationWorkerMalformedPayloadIsPoison(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	w := moderation.NewNotificationWorker(store.NewMemStore(), &fakeNotifier{}, nil)
	for _, payload := range [][]byte{
		[]byte(`]`),
		[]byte(`{"kind":"content-vaporized","recipient":{"id":1,"email":"a@b.c"}}`),
		[]byte(`{"kind":"content-flagged","recipient":{"id":1}}`),
	} {
		job := &queue.Job{ID: "nj", Topic: queue.TopicNotification, Payload: payload, MaxAttempts: 3}
		assert.ErrorIs(w.HandleJob(ctx, job), queue.ErrPoisonJob)
	}
}
