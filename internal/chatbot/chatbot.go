package chatbot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"CopilotChat/internal/archive"
	"CopilotChat/internal/auth"
	"CopilotChat/internal/cache"
	"CopilotChat/internal/config"
	"CopilotChat/internal/copilot"
	"CopilotChat/internal/notify"
	"CopilotChat/internal/session"
)

var (
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 2)
	userStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	assistantStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	suggestionStyle = lipgloss.NewStyle().Faint(true)
)

// Options carries the collaborators a ChatBot is built from. Nil fields fall
// back to defaults: no archive, stdin/stdout, console notifications.
type Options struct {
	Logger     *slog.Logger
	Tracer     trace.Tracer
	Meter      metric.Meter
	Archive    *archive.Store
	Tokens     auth.TokenSource
	Notifier   notify.Notifier
	HTTPClient *http.Client
	In         io.Reader
	Out        io.Writer
}

// ChatBot is the interactive copilot REPL
type ChatBot struct {
	config       config.Config
	archive      *archive.Store
	logger       *slog.Logger
	chat         *copilot.Controller
	querier      *copilot.Querier
	in           io.Reader
	out          io.Writer
	systemPrompt string

	mu      sync.Mutex
	session *session.Session
}

// NewChatBot creates a new ChatBot. When cfg.SessionID names an archived
// transcript it is resumed, otherwise a new session starts with the welcome
// message.
func NewChatBot(cfg config.Config, opts Options) (*ChatBot, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewConsole(os.Stderr)
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	if cfg.Debug {
		opts.Logger.Info("Debug mode enabled")
	}

	cb := &ChatBot{
		config:  cfg,
		archive: opts.Archive,
		logger:  opts.Logger,
		in:      opts.In,
		out:     opts.Out,
	}

	copts := copilot.OptionsFromConfig(cfg.Backend)
	copts.HTTPClient = opts.HTTPClient
	copts.Notifier = opts.Notifier
	copts.Tokens = opts.Tokens
	copts.Logger = opts.Logger
	copts.Tracer = opts.Tracer
	copts.Meter = opts.Meter
	copts.OnDelta = cb.renderDelta

	cb.chat = copilot.NewController(copts)
	copts.OnDelta = nil
	cb.querier = copilot.NewQuerier(copts, cache.New(cfg.Cache.TTL))

	if cfg.SessionID != "" {
		sess, err := cb.loadSession(cfg.SessionID)
		if err != nil {
			cb.logger.Warn("failed to load session, creating new one", "session_id", cfg.SessionID, "error", err)
			cb.startSession()
		} else {
			cb.session = sess
			cb.chat.InitializeChat(sess.Messages)
			cb.logger.Info("loaded existing session", "session_id", sess.ID)
		}
	} else {
		cb.startSession()
	}

	return cb, nil
}

// SessionID returns the ID of the current transcript
func (cb *ChatBot) SessionID() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.session.ID
}

// startSession begins a fresh transcript seeded with the welcome message
func (cb *ChatBot) startSession() {
	sess := &session.Session{
		ID:        fmt.Sprintf("session_%d", time.Now().UnixNano()),
		StartTime: time.Now(),
		Endpoint:  cb.config.Backend.StreamURL(),
		Model:     cb.config.Backend.Model,
	}
	cb.chat.InitializeChat([]session.Message{session.Welcome()})

	cb.mu.Lock()
	cb.session = sess
	cb.mu.Unlock()

	cb.logger.Info("created new session", "session_id", sess.ID)
}

func (cb *ChatBot) loadSession(id string) (*session.Session, error) {
	if cb.archive == nil {
		return nil, fmt.Errorf("archive is disabled")
	}
	return cb.archive.Load(id)
}

// saveSession archives the current transcript
func (cb *ChatBot) saveSession() error {
	if cb.archive == nil {
		return nil
	}

	cb.mu.Lock()
	cb.session.Messages = cb.chat.Messages()
	snapshot := *cb.session
	cb.mu.Unlock()

	if err := cb.archive.Save(&snapshot); err != nil {
		return err
	}
	cb.logger.Info("session saved", "session_id", snapshot.ID, "message_count", len(snapshot.Messages))
	return nil
}

func (cb *ChatBot) renderDelta(_ string, text string) {
	fmt.Fprint(cb.out, text)
}

// send runs one exchange, streaming the reply to the terminal
func (cb *ChatBot) send(ctx context.Context, text string) error {
	fmt.Fprint(cb.out, assistantStyle.Render("Copilot:")+" ")
	err := cb.chat.SendMessage(ctx, text, cb.systemPrompt)
	if err != nil {
		// The notifier already reported the cause
		fmt.Fprint(cb.out, copilot.FallbackReply)
	}
	fmt.Fprint(cb.out, "\n\n")

	if saveErr := cb.saveSession(); saveErr != nil {
		cb.logger.Error("failed to save session", "error", saveErr)
	}
	return err
}

// lastSuggestions returns the suggestions of the most recent assistant message carrying any
func (cb *ChatBot) lastSuggestions() []string {
	msgs := cb.chat.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if len(msgs[i].Suggestions) > 0 {
			return msgs[i].Suggestions
		}
	}
	return nil
}

func (cb *ChatBot) printMessage(msg session.Message) {
	if msg.Role == session.RoleAssistant {
		fmt.Fprintln(cb.out, assistantStyle.Render("Copilot:"))
		fmt.Fprintln(cb.out, RenderMarkdown(msg.Content))
	} else {
		fmt.Fprintf(cb.out, "%s %s\n", userStyle.Render("You:"), msg.Content)
	}
	for i, s := range msg.Suggestions {
		fmt.Fprintln(cb.out, suggestionStyle.Render(fmt.Sprintf("  [%d] %s", i+1, s)))
	}
	fmt.Fprintln(cb.out)
}

// handleCommand handles slash commands. It reports whether the REPL should quit.
func (cb *ChatBot) handleCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(cmd), parts[0]))

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/clear":
		cb.chat.ClearChat()
		cb.chat.InitializeChat([]session.Message{session.Welcome()})
		fmt.Fprintln(cb.out, "Chat cleared.")
		return false, nil

	case "/new-session":
		if err := cb.saveSession(); err != nil {
			cb.logger.Error("failed to save current session", "error", err)
		}
		cb.startSession()
		fmt.Fprintln(cb.out, "Started new session:", cb.SessionID())
		return false, nil

	case "/system":
		switch rest {
		case "":
			current := cb.systemPrompt
			if current == "" {
				current = cb.config.Backend.SystemPrompt + " (default)"
			}
			fmt.Fprintln(cb.out, "System prompt:", current)
		case "reset":
			cb.systemPrompt = ""
			fmt.Fprintln(cb.out, "System prompt reset to default.")
		default:
			cb.systemPrompt = rest
			fmt.Fprintln(cb.out, "System prompt set.")
		}
		return false, nil

	case "/suggest":
		suggestions := cb.lastSuggestions()
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /suggest <n>")
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil || n < 1 || n > len(suggestions) {
			return false, fmt.Errorf("no suggestion %q (have %d)", parts[1], len(suggestions))
		}
		prompt := suggestions[n-1]
		fmt.Fprintf(cb.out, "%s %s\n", userStyle.Render("You:"), prompt)
		return false, cb.send(ctx, prompt)

	case "/optimize":
		if rest == "" {
			return false, fmt.Errorf("usage: /optimize <sql>")
		}
		answer, err := cb.querier.Optimize(ctx, rest, "")
		if err != nil {
			return false, fmt.Errorf("failed to optimize query: %s", copilot.UserMessage(err))
		}
		fmt.Fprintln(cb.out, assistantStyle.Render("Copilot:"))
		fmt.Fprintf(cb.out, "%s\n\n", RenderMarkdown(answer))
		return false, nil

	case "/history":
		for _, msg := range cb.chat.Messages() {
			cb.printMessage(msg)
		}
		return false, nil

	case "/sessions":
		if cb.archive == nil {
			fmt.Fprintln(cb.out, "Archive is disabled.")
			return false, nil
		}
		list, err := cb.archive.List()
		if err != nil {
			return false, err
		}
		current := cb.SessionID()
		for _, s := range list {
			marker := ""
			if s.ID == current {
				marker = " (current)"
			}
			fmt.Fprintf(cb.out, "%s  %s  %d messages%s\n", s.ID, s.StartTime.Local().Format(time.DateTime), s.MessageCount, marker)
		}
		return false, nil

	case "/help":
		fmt.Fprintln(cb.out, "Available commands:")
		fmt.Fprintln(cb.out, "  /quit, /exit           - Exit the copilot")
		fmt.Fprintln(cb.out, "  /clear                 - Clear the conversation")
		fmt.Fprintln(cb.out, "  /new-session           - Archive this chat and start a new one")
		fmt.Fprintln(cb.out, "  /system [prompt|reset] - Show or override the system prompt")
		fmt.Fprintln(cb.out, "  /suggest <n>           - Ask suggested question n")
		fmt.Fprintln(cb.out, "  /optimize <sql>        - Get optimization advice for a query")
		fmt.Fprintln(cb.out, "  /history               - Show the conversation")
		fmt.Fprintln(cb.out, "  /sessions              - List archived sessions")
		fmt.Fprintln(cb.out, "  /help                  - Show this help message")
		return false, nil

	default:
		return false, fmt.Errorf("unknown command: %s (try /help)", parts[0])
	}
}

// Run starts the REPL and blocks until the user quits, input ends or ctx is done
func (cb *ChatBot) Run(ctx context.Context) error {
	fmt.Fprintln(cb.out, bannerStyle.Render("Database Performance Copilot"))
	fmt.Fprintf(cb.out, "Session: %s\n", cb.SessionID())
	fmt.Fprintf(cb.out, "Model: %s\n", cb.config.Backend.Model)
	fmt.Fprintln(cb.out, "Type /help for commands, /quit to exit")
	fmt.Fprintln(cb.out)

	for _, msg := range cb.chat.Messages() {
		cb.printMessage(msg)
	}

	scanner := bufio.NewScanner(cb.in)
	for ctx.Err() == nil {
		fmt.Fprint(cb.out, userStyle.Render("You:")+" ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := cb.handleCommand(ctx, input)
			if err != nil {
				fmt.Fprintf(cb.out, "Error: %v\n", err)
				cb.logger.Error("command error", "error", err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		if err := cb.send(ctx, input); err != nil {
			cb.logger.Error("failed to send message", "error", err)
			if errors.Is(err, context.Canceled) {
				break
			}
		}
	}

	if err := cb.saveSession(); err != nil {
		cb.logger.Error("failed to save session on exit", "error", err)
		return err
	}

	fmt.Fprintln(cb.out, "Goodbye!")
	return scanner.Err()
}
