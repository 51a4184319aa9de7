package copilot

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"CopilotChat/internal/auth"
	"CopilotChat/internal/backend"
	"CopilotChat/internal/config"
	"CopilotChat/internal/notify"
	"CopilotChat/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

type notification struct {
	Title       string
	Description string
	Severity    notify.Severity
}

type recorder struct {
	mu    sync.Mutex
	notes []notification
}

func (r *recorder) Notify(title, description string, severity notify.Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, notification{title, description, severity})
}

func (r *recorder) all() []notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notification(nil), r.notes...)
}

// streamServer replies to every request with chunks, flushing after each
func streamServer(t *testing.T, requests chan<- backend.StreamRequest, chunks ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req backend.StreamRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if requests != nil {
			requests <- req
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for _, chunk := range chunks {
			io.WriteString(w, chunk)
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestController(srv *httptest.Server, n notify.Notifier) *Controller {
	return NewController(Options{
		Endpoint:   srv.URL + config.DefaultStreamPath,
		HTTPClient: srv.Client(),
		Notifier:   n,
	})
}

func roles(messages []session.Message) []session.Role {
	out := make([]session.Role, len(messages))
	for i, m := range messages {
		out[i] = m.Role
	}
	return out
}

func TestSendMessage_AccumulatesDeltas(t *testing.T) {
	requests := make(chan backend.StreamRequest, 1)
	srv := streamServer(t, requests,
		"data: {\"text\":\"Hel\"}\n",
		"\ndata: {\"te", "xt\":\"lo\"}\n",
		"event: done\n",
		"data: {\"text\":\"ignored after done\"}\n",
	)
	rec := &recorder{}
	c := newTestController(srv, rec)

	require.NoError(t, c.SendMessage(context.Background(), "hi", ""))

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, []session.Role{session.RoleUser, session.RoleAssistant}, roles(msgs))
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, "Hello", msgs[1].Content)
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)
	assert.False(t, c.IsStreaming())
	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, rec.all())

	req := <-requests
	assert.Equal(t, "hi", req.Prompt)
	assert.Equal(t, config.DefaultSystemPrompt, req.System)
	assert.Equal(t, config.DefaultModel, req.Model)
	assert.Empty(t, req.History)
}

func TestSendMessage_BlankTextIsIgnored(t *testing.T) {
	c := NewController(Options{Endpoint: "http://127.0.0.1:1/ai/stream"})
	require.NoError(t, c.SendMessage(context.Background(), "  \n\t", ""))
	assert.Empty(t, c.Messages())
}

func TestSendMessage_HistoryExcludesSeed(t *testing.T) {
	requests := make(chan backend.StreamRequest, 2)
	srv := streamServer(t, requests, "data: {\"text\":\"A\"}\nevent: done\n")
	c := newTestController(srv, &recorder{})
	c.InitializeChat([]session.Message{session.Welcome()})

	require.NoError(t, c.SendMessage(context.Background(), "first", "custom system"))
	require.NoError(t, c.SendMessage(context.Background(), "second", ""))

	first := <-requests
	assert.Empty(t, first.History)
	assert.Equal(t, "custom system", first.System)

	second := <-requests
	assert.Equal(t, []backend.HistoryEntry{
		{Role: backend.HistoryRoleUser, Parts: []backend.Part{{Text: "first"}}},
		{Role: backend.HistoryRoleModel, Parts: []backend.Part{{Text: "A"}}},
	}, second.History)

	assert.Len(t, c.Messages(), 5)
}

func TestSendMessage_ErrorEvent(t *testing.T) {
	srv := streamServer(t, nil,
		"data: {\"text\":\"par\"}\n",
		"event: error\n",
		"data: {\"message\":\"boom\"}\n\n",
	)
	rec := &recorder{}
	c := newTestController(srv, rec)

	err := c.SendMessage(context.Background(), "explain", "")

	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, "boom", streamErr.Message)
	assert.False(t, c.IsStreaming())

	msgs := c.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "par", msgs[1].Content)
	assert.Equal(t, session.RoleAssistant, msgs[2].Role)
	assert.Equal(t, FallbackReply, msgs[2].Content)

	notes := rec.all()
	require.Len(t, notes, 1)
	assert.Equal(t, ErrorTitle, notes[0].Title)
	assert.Contains(t, notes[0].Description, "boom")
	assert.Equal(t, notify.SeverityDestructive, notes[0].Severity)
}

func TestSendMessage_ErrorEventWithoutPayload(t *testing.T) {
	srv := streamServer(t, nil, "event: error\n")
	rec := &recorder{}
	c := newTestController(srv, rec)

	err := c.SendMessage(context.Background(), "q", "")
	require.Error(t, err)
	assert.Equal(t, "Unknown error", UserMessage(err))
	assert.Equal(t, "Unknown error", rec.all()[0].Description)
}

func TestSendMessage_MalformedDataIsSkipped(t *testing.T) {
	srv := streamServer(t, nil,
		"data: ping\n",
		"data: {\"text\":\"ok\"}\n",
		"data: {broken\n",
		"event: done\n",
	)
	rec := &recorder{}
	c := newTestController(srv, rec)

	require.NoError(t, c.SendMessage(context.Background(), "q", ""))
	assert.Equal(t, "ok", c.Messages()[1].Content)
	assert.Empty(t, rec.all())
}

func TestSendMessage_StreamEndsWithoutDone(t *testing.T) {
	srv := streamServer(t, nil, "data: {\"text\":\"a\"}\n", "data: {\"text\":\"b\"}")
	c := newTestController(srv, &recorder{})

	require.NoError(t, c.SendMessage(context.Background(), "q", ""))
	assert.Equal(t, "a", c.Messages()[1].Content)
}

func TestSendMessage_EmptyBodyEndsQuietly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	rec := &recorder{}
	c := newTestController(srv, rec)

	require.NoError(t, c.SendMessage(context.Background(), "hi", ""))

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, []session.Role{session.RoleUser, session.RoleAssistant}, roles(msgs))
	assert.Empty(t, msgs[1].Content)
	assert.Empty(t, rec.all())
	assert.Equal(t, StateIdle, c.State())
}

func TestSendMessage_HTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	defer srv.Close()
	rec := &recorder{}
	c := newTestController(srv, rec)

	err := c.SendMessage(context.Background(), "q", "")

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)

	msgs := c.Messages()
	assert.Equal(t, []session.Role{session.RoleUser, session.RoleAssistant}, roles(msgs))
	assert.Equal(t, FallbackReply, msgs[1].Content)
	assert.Equal(t, "HTTP error! status: 500", rec.all()[0].Description)
	assert.False(t, c.IsStreaming())
}

func TestSendMessage_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL + config.DefaultStreamPath
	srv.Close()

	rec := &recorder{}
	c := NewController(Options{Endpoint: endpoint, Notifier: rec})

	err := c.SendMessage(context.Background(), "q", "")
	require.Error(t, err)
	assert.Contains(t, rec.all()[0].Description, "failed to send request")
	assert.Equal(t, FallbackReply, c.Messages()[1].Content)
	assert.False(t, c.IsStreaming())
}

func TestSendMessage_RequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()
	rec := &recorder{}
	c := NewController(Options{
		Endpoint:       srv.URL,
		HTTPClient:     srv.Client(),
		Notifier:       rec,
		RequestTimeout: 50 * time.Millisecond,
	})

	err := c.SendMessage(context.Background(), "q", "")

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, TimeoutText, rec.all()[0].Description)
	assert.Equal(t, []session.Role{session.RoleUser, session.RoleAssistant}, roles(c.Messages()))
	assert.False(t, c.IsStreaming())
}

func TestSendMessage_RequestTimeoutDisarmedOnHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		time.Sleep(150 * time.Millisecond)
		io.WriteString(w, "data: {\"text\":\"slow\"}\nevent: done\n")
	}))
	defer srv.Close()
	c := NewController(Options{
		Endpoint:       srv.URL,
		HTTPClient:     srv.Client(),
		RequestTimeout: 50 * time.Millisecond,
	})

	require.NoError(t, c.SendMessage(context.Background(), "q", ""))
	assert.Equal(t, "slow", c.Messages()[1].Content)
}

func TestSendMessage_IdleTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "data: {\"text\":\"par\"}\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()
	rec := &recorder{}
	c := NewController(Options{
		Endpoint:    srv.URL,
		HTTPClient:  srv.Client(),
		Notifier:    rec,
		IdleTimeout: 50 * time.Millisecond,
	})

	err := c.SendMessage(context.Background(), "q", "")

	assert.ErrorIs(t, err, ErrTimeout)
	msgs := c.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "par", msgs[1].Content)
	assert.Equal(t, FallbackReply, msgs[2].Content)
	assert.Equal(t, TimeoutText, rec.all()[0].Description)
}

func TestSendMessage_BusyWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "data: {\"text\":\"answer\"}\nevent: done\n")
	}))
	defer srv.Close()
	rec := &recorder{}
	c := newTestController(srv, rec)

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.SendMessage(context.Background(), "first", "")
	}()

	require.Eventually(t, func() bool { return requests.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateSending, c.State())

	err := c.SendMessage(context.Background(), "second", "")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, []notification{{BusyTitle, BusyDescription, notify.SeverityDefault}}, rec.all())

	close(release)
	require.NoError(t, <-errCh)

	assert.EqualValues(t, 1, requests.Load())
	msgs := c.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
	assert.Equal(t, session.RoleAssistant, msgs[2].Role)
	assert.Equal(t, "answer", msgs[2].Content)
	assert.False(t, c.IsStreaming())
}

func TestSendMessage_StateStreamingWhileReading(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "data: {\"text\":\"x\"}\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		io.WriteString(w, "event: done\n")
	}))
	defer srv.Close()
	c := newTestController(srv, &recorder{})

	errCh := make(chan error, 1)
	go func() { errCh <- c.SendMessage(context.Background(), "q", "") }()

	require.Eventually(t, func() bool { return c.State() == StateStreaming }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		msgs := c.Messages()
		return len(msgs) == 2 && msgs[1].Content == "x"
	}, 2*time.Second, 5*time.Millisecond)

	close(release)
	require.NoError(t, <-errCh)
	assert.Equal(t, StateIdle, c.State())
}

func TestSendMessage_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()
	rec := &recorder{}
	c := newTestController(srv, rec)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := c.SendMessage(ctx, "q", "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, c.IsStreaming())
}

func TestSendMessage_BearerToken(t *testing.T) {
	auths := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auths <- r.Header.Get("Authorization")
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, http.MethodPost, r.Method)
		io.WriteString(w, "event: done\n")
	}))
	defer srv.Close()
	c := NewController(Options{Endpoint: srv.URL, HTTPClient: srv.Client(), Tokens: auth.Static("secret")})

	require.NoError(t, c.SendMessage(context.Background(), "q", ""))
	assert.Equal(t, "Bearer secret", <-auths)
}

func TestSendMessage_OnDeltaObserver(t *testing.T) {
	srv := streamServer(t, nil, "data: {\"text\":\"a\"}\ndata: {\"text\":\"b\"}\nevent: done\n")

	var mu sync.Mutex
	var seen []string
	c := NewController(Options{
		Endpoint:   srv.URL,
		HTTPClient: srv.Client(),
		OnDelta: func(_ string, text string) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, text)
		},
	})

	require.NoError(t, c.SendMessage(context.Background(), "q", ""))
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestClearThenInitialize(t *testing.T) {
	srv := streamServer(t, nil, "data: {\"text\":\"x\"}\nevent: done\n")
	c := newTestController(srv, &recorder{})
	require.NoError(t, c.SendMessage(context.Background(), "q", ""))
	require.Len(t, c.Messages(), 2)

	welcome := session.Welcome()
	c.ClearChat()
	assert.Empty(t, c.Messages())
	c.InitializeChat([]session.Message{welcome})
	c.InitializeChat([]session.Message{welcome})

	assert.Equal(t, []session.Message{welcome}, c.Messages())
}

func TestReplayIsDeterministic(t *testing.T) {
	chunks := []string{"data: {\"text\":\"Use an \"}\n", "data: {\"text\":\"index on \"}\n", "data: {\"text\":\"created_at\"}\nevent: done\n"}
	srv := streamServer(t, nil, chunks...)

	a := newTestController(srv, &recorder{})
	b := newTestController(srv, &recorder{})
	require.NoError(t, a.SendMessage(context.Background(), "q", ""))
	require.NoError(t, b.SendMessage(context.Background(), "q", ""))

	assert.Equal(t, "Use an index on created_at", a.Messages()[1].Content)
	assert.Equal(t, a.Messages()[1].Content, b.Messages()[1].Content)
}
