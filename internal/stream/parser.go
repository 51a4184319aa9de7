package stream

import (
	"encoding/json"
	"strings"
)

// Line prefixes of the copilot stream sub-protocol
const (
	DataPrefix  = "data: "
	DoneEvent   = "event: done"
	ErrorEvent  = "event: error"
	UnknownText = "Unknown error"
)

// EventType identifies a stream event variant
type EventType int

const (
	EventDelta EventType = iota + 1
	EventDone
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventDelta:
		return "delta"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a parsed stream event. Text is set for deltas, Message for errors.
type Event struct {
	Type    EventType
	Text    string
	Message string
}

// Delta returns a text delta event
func Delta(text string) Event { return Event{Type: EventDelta, Text: text} }

// Done returns a completion event
func Done() Event { return Event{Type: EventDone} }

// Failure returns an error event
func Failure(message string) Event { return Event{Type: EventError, Message: message} }

// Terminal reports whether no further events follow e
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// DeltaPayload is the JSON carried on a "data: " line. A nil Text marks a
// payload without the field.
type DeltaPayload struct {
	Text *string `json:"text"`
}

// ErrorPayload is the JSON carried on the line after "event: error"
type ErrorPayload struct {
	Message *string `json:"message"`
}

// Parser classifies framed lines into events. It is stateful: an
// "event: error" line takes its payload from the next framed line, and
// after a terminal event all further lines are ignored.
type Parser struct {
	pendingError bool
	finished     bool
}

// Feed parses one framed line. ok is false when the line produces no event.
func (p *Parser) Feed(line string) (ev Event, ok bool) {
	if p.finished {
		return Event{}, false
	}

	if p.pendingError {
		p.pendingError = false
		p.finished = true
		return Failure(errorMessage(line)), true
	}

	switch {
	case strings.HasPrefix(line, DataPrefix):
		var payload DeltaPayload
		// Malformed data lines are keep-alives, not errors
		if err := json.Unmarshal([]byte(line[len(DataPrefix):]), &payload); err != nil {
			return Event{}, false
		}
		if payload.Text == nil || *payload.Text == "" {
			return Event{}, false
		}
		return Delta(*payload.Text), true

	case strings.HasPrefix(line, DoneEvent):
		p.finished = true
		return Done(), true

	case strings.HasPrefix(line, ErrorEvent):
		p.pendingError = true
		return Event{}, false
	}

	return Event{}, false
}

// Close flushes parser state at end of stream. An error event whose
// payload line never arrived yields the generic error.
func (p *Parser) Close() (Event, bool) {
	if p.pendingError && !p.finished {
		p.pendingError = false
		p.finished = true
		return Failure(UnknownText), true
	}
	return Event{}, false
}

// Finished reports whether a terminal event has been emitted
func (p *Parser) Finished() bool {
	return p.finished
}

func errorMessage(line string) string {
	if !strings.HasPrefix(line, DataPrefix) {
		return UnknownText
	}
	var payload ErrorPayload
	if err := json.Unmarshal([]byte(line[len(DataPrefix):]), &payload); err != nil {
		return UnknownText
	}
	if payload.Message == nil || *payload.Message == "" {
		return UnknownText
	}
	return *payload.Message
}
