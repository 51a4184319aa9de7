package copilot

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when a send arrives while a response is streaming
	ErrBusy = errors.New("a response is already in progress")
	// ErrTimeout is returned when the client-side time budget is exceeded
	ErrTimeout = errors.New("request timed out")
	// ErrNoBody is returned when a successful response carries no body
	ErrNoBody = errors.New("no response body")
)

// User-facing texts
const (
	BusyTitle       = "Please wait"
	BusyDescription = "Please wait for the current response to complete before asking another question."
	ErrorTitle      = "Error"
	TimeoutText     = "Request timed out. Please try again."
	GenericFailure  = "Failed to get AI response"
	FallbackReply   = "Sorry, I encountered an error. Please try again."
)

// HTTPStatusError reports a non-2xx response from the stream endpoint
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
}

// StreamError reports an error event declared by the backend mid-stream
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return e.Message
}

// UserMessage returns the text shown to the user for err
func UserMessage(err error) string {
	var streamErr *StreamError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return TimeoutText
	case errors.As(err, &streamErr):
		return streamErr.Message
	case err.Error() == "":
		return GenericFailure
	default:
		return err.Error()
	}
}

// errorKind classifies err for metrics
func errorKind(err error) string {
	var streamErr *StreamError
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.As(err, &streamErr):
		return "stream"
	default:
		return "transport"
	}
}
