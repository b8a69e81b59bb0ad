package notifier_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arbiterhq/arbiter/notifier"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderMessage(t *testing.T) {
	assert := assert.New(t)

	msg, err := notifier.RenderMessage(notifier.KindContentFlagged, "Alice", map[string]string{
		"contentKind": "COMMENT",
		"reason":      "threat",
	})
	require.NoError(t, err)
	assert.Contains(msg.Subject, "under review")
	assert.Contains(msg.Body, "Alice")
	assert.Contains(msg.Body, "comment")
	assert.Contains(msg.Body, "threat")

	msg, err = notifier.RenderMessage(notifier.KindContentRejected, "Bob", map[string]string{
		"contentKind": "REVIEW",
		"reason":      "spam",
	})
	require.NoError(t, err)
	assert.Contains(msg.Body, "review")
	assert.Contains(msg.Body, "spam")

	_, err = notifier.RenderMessage(notifier.Kind("content-exploded"), "X", nil)
	assert.Error(err)
}

func TestMailerNotifier(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("/v1/messages", r.URL.Path)
		assert.Equal("Bearer mail-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := notifier.NewMailerNotifier(srv.URL, "mail-token", "moderation@example.com")
	err := n.Send(ctx, notifier.KindContentApproved, "alice@example.com", "Alice", map[string]string{
		"contentKind": "COMMENT",
	})
	require.NoError(t, err)

	assert.Equal("moderation@example.com", got["from"])
	assert.Equal("alice@example.com", got["to"])
	assert.Equal("Alice", got["to_name"])
	assert.Contains(got["subject"], "approved")
}

func TestMailerNotifierTransportFailure(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := notifier.NewMailerNotifier(srv.URL, "", "moderation@example.com")
	n.Client = http.DefaultClient

	err := n.Send(ctx, notifier.KindContentApproved, "a@example.com", "A", nil)
	assert.Error(err)
}

func TestLogOpsSink(t *testing.T) {
	// the log sink never fails; it's the default destination for dead
	// and poison job reports
	sink := &notifier.LogOpsSink{}
	err := sink.Report(context.Background(), "job dead-lettered", map[string]string{"topic": "moderation"})
	assert.NoError(t, err)
}
