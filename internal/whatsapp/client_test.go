package whatsapp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reminder-service/internal/logging"
	"reminder-service/internal/ratelimit"
	"reminder-service/internal/retry"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	retrier := retry.NewManager(retry.Config{
		MaxRetries:        2,
		InitialDelay:      time.Millisecond,
		MaxDelay:          10 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}, logging.NewNop())
	limiter := ratelimit.New(1000, time.Second, 1000)
	return NewClient(srv.URL, "test-key", limiter, retrier, logging.NewNop())
}

func TestSendMessageSuccess(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/v1/messages", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, c.SendMessage(context.Background(), "bot-1", "contact-1", "hello"))
	assert.Equal(t, "Bearer test-key", gotAuth)
}

func TestSendMessageConversationWindowClosed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"code":"conversation_window_closed","message":"window closed"}`))
	})

	err := c.SendMessage(context.Background(), "bot-1", "contact-1", "hello")
	assert.ErrorIs(t, err, ErrConversationWindowClosed)
	assert.True(t, IsPermanent(err))
}

func TestSendTemplateNotApproved(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages/template", r.URL.Path)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"template_not_approved","message":"pending review"}`))
	})

	err := c.SendTemplate(context.Background(), "bot-1", "contact-1", "reminder", nil)
	assert.ErrorIs(t, err, ErrTemplateNotApproved)
	assert.True(t, IsPermanent(err))
}

func TestRateLimitedRequestRetriesWithHint(t *testing.T) {
	attempts := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, c.SendMessage(context.Background(), "bot-1", "contact-1", "hello"))
	assert.Equal(t, 2, attempts)
}

func TestServerErrorRetriesThenFails(t *testing.T) {
	attempts := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"code":"internal","message":"boom"}`))
	})

	err := c.SendMessage(context.Background(), "bot-1", "contact-1", "hello")
	require.Error(t, err)
	assert.Equal(t, 3, attempts, "initial attempt plus two retries")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 500, apiErr.StatusCode)
}

func TestClientErrorDoesNotRetry(t *testing.T) {
	attempts := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":"contact_not_found","message":"unknown contact"}`))
	})

	_, err := c.GetContactByPhone(context.Background(), "bot-1", "+84901234567")
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestGetContactByPhoneDecodesResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "+84901234567", r.URL.Query().Get("phone"))
		w.Write([]byte(`{"id":"contact-1","phone":"+84901234567","conversation_open":true}`))
	})

	contact, err := c.GetContactByPhone(context.Background(), "bot-1", "+84901234567")
	require.NoError(t, err)
	assert.Equal(t, "contact-1", contact.ID)
	assert.True(t, contact.ConversationOpen)
}

func TestListBotsAndTemplates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/bots":
			w.Write([]byte(`{"bots":[{"id":"bot-1","name":"main","default":true}]}`))
		case "/v1/bots/bot-1/templates":
			w.Write([]byte(`{"templates":[{"id":"t1","name":"reminder","status":"APPROVED"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	bots, err := c.ListBots(context.Background())
	require.NoError(t, err)
	require.Len(t, bots, 1)
	assert.True(t, bots[0].Default)

	templates, err := c.ListTemplates(context.Background(), "bot-1")
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "APPROVED", templates[0].Status)
}
