package notify

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

// Severity of a notification
type Severity string

const (
	SeverityDefault     Severity = "default"
	SeverityDestructive Severity = "destructive"
)

// Notifier surfaces short user-visible notices
type Notifier interface {
	Notify(title, description string, severity Severity)
}

// Func adapts an ordinary function to Notifier
type Func func(title, description string, severity Severity)

// Notify calls f
func (f Func) Notify(title, description string, severity Severity) {
	f(title, description, severity)
}

// Discard drops every notification
var Discard Notifier = Func(func(string, string, Severity) {})

var (
	adviceColor = color.New(color.FgYellow, color.Bold)
	errorColor  = color.New(color.FgRed, color.Bold)
)

// Console prints notifications to a terminal
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole creates a Console writing to out, or stderr when out is nil
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = os.Stderr
	}
	return &Console{out: out}
}

// Notify prints one notification line
func (c *Console) Notify(title, description string, severity Severity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch severity {
	case SeverityDestructive:
		errorColor.Fprintf(c.out, "✗ %s: ", title)
	default:
		adviceColor.Fprintf(c.out, "⚠ %s: ", title)
	}
	fmt.Fprintln(c.out, description)
}
