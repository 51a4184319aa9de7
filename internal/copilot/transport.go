package copilot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"CopilotChat/internal/auth"
	"CopilotChat/internal/backend"
	"CopilotChat/internal/stream"
)

// transport opens streaming exchanges against the copilot endpoint
type transport struct {
	endpoint       string
	client         *http.Client
	tokens         auth.TokenSource
	requestTimeout time.Duration
	idleTimeout    time.Duration
}

// exchange is one open response body. Close must be called on every path.
type exchange struct {
	body     io.ReadCloser
	cancel   context.CancelFunc
	timedOut *atomic.Bool
	idle     *time.Timer
	idleDur  time.Duration
}

// open dispatches the request. The request timeout is armed here and
// disarmed as soon as response headers arrive.
func (t *transport) open(ctx context.Context, payload backend.StreamRequest) (*exchange, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	timedOut := &atomic.Bool{}
	var deadline *time.Timer
	if t.requestTimeout > 0 {
		deadline = time.AfterFunc(t.requestTimeout, func() {
			timedOut.Store(true)
			cancel()
		})
	}
	disarm := func() {
		if deadline != nil {
			deadline.Stop()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(data))
	if err != nil {
		disarm()
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	if t.tokens != nil {
		token, err := t.tokens.Token()
		if err != nil {
			disarm()
			cancel()
			return nil, fmt.Errorf("failed to load credentials: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := t.client.Do(req)
	disarm()
	if err != nil {
		cancel()
		if timedOut.Load() {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		cancel()
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode}
	}

	// An empty 2xx body is http.NoBody; it is read like any other stream
	if resp.Body == nil {
		cancel()
		return nil, ErrNoBody
	}

	ex := &exchange{
		body:     resp.Body,
		cancel:   cancel,
		timedOut: timedOut,
	}
	if t.idleTimeout > 0 {
		ex.idleDur = t.idleTimeout
		ex.idle = time.AfterFunc(t.idleTimeout, func() {
			timedOut.Store(true)
			cancel()
		})
	}
	return ex, nil
}

// Read resets the inactivity timer whenever bytes arrive
func (ex *exchange) Read(p []byte) (int, error) {
	n, err := ex.body.Read(p)
	if n > 0 && ex.idle != nil && !ex.timedOut.Load() {
		ex.idle.Reset(ex.idleDur)
	}
	return n, err
}

// Close releases the response body and the request context
func (ex *exchange) Close() error {
	if ex.idle != nil {
		ex.idle.Stop()
	}
	err := ex.body.Close()
	ex.cancel()
	return err
}

// consume drives read -> frame -> parse until done, a declared error, or
// end of stream. Deltas are handed to onDelta in arrival order. done is
// true only when the stream was closed by a done event.
func (ex *exchange) consume(onDelta func(text string)) (done bool, err error) {
	var framer stream.Framer
	var parser stream.Parser

	for line, err := range framer.Lines(ex) {
		if err != nil {
			if ex.timedOut.Load() {
				return false, ErrTimeout
			}
			return false, fmt.Errorf("failed to read stream: %w", err)
		}

		ev, ok := parser.Feed(line)
		if !ok {
			continue
		}
		switch ev.Type {
		case stream.EventDelta:
			onDelta(ev.Text)
		case stream.EventDone:
			return true, nil
		case stream.EventError:
			return false, &StreamError{Message: ev.Message}
		}
	}

	if ev, ok := parser.Close(); ok {
		return false, &StreamError{Message: ev.Message}
	}
	return false, nil
}
