package devserver

import (
	"encoding/json"
	"fmt"
	"net/http"

	"CopilotChat/internal/stream"
)

// SSEWriter writes the copilot stream sub-protocol to a response
type SSEWriter struct {
	w http.ResponseWriter
}

// NewSSEWriter sets the streaming headers on w
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &SSEWriter{w: w}
}

// Write emits an optional event line followed by an optional data line,
// then flushes.
func (s *SSEWriter) Write(event, data string) error {
	if event != "" {
		if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
			return err
		}
	}

	if data != "" {
		if _, err := fmt.Fprintf(s.w, "data: %s\n", data); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprint(s.w, "\n"); err != nil {
		return err
	}

	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}

	return nil
}

// Delta sends one text fragment
func (s *SSEWriter) Delta(text string) error {
	data, err := json.Marshal(stream.DeltaPayload{Text: &text})
	if err != nil {
		return err
	}
	return s.Write("", string(data))
}

// Error ends the stream with an error event
func (s *SSEWriter) Error(message string) error {
	data, err := json.Marshal(stream.ErrorPayload{Message: &message})
	if err != nil {
		return err
	}
	return s.Write("error", string(data))
}

// Close ends the stream normally
func (s *SSEWriter) Close() error {
	return s.Write("done", "")
}
