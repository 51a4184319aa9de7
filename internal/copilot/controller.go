package copilot

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"CopilotChat/internal/auth"
	"CopilotChat/internal/backend"
	"CopilotChat/internal/config"
	"CopilotChat/internal/notify"
	"CopilotChat/internal/session"
	"CopilotChat/internal/stream"
)

// State is the exchange state of a chat session
type State int

const (
	StateIdle      State = iota // No exchange in flight
	StateSending                // Request dispatched, no headers yet
	StateStreaming              // Receiving deltas
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Options configures a Controller. Zero values fall back to defaults.
type Options struct {
	Endpoint       string // Absolute URL of the stream endpoint
	Model          string
	SystemPrompt   string
	RequestTimeout time.Duration
	IdleTimeout    time.Duration

	HTTPClient *http.Client
	Notifier   notify.Notifier
	Tokens     auth.TokenSource
	Logger     *slog.Logger
	Tracer     trace.Tracer
	Meter      metric.Meter

	// OnDelta is called outside the session lock for every applied delta
	OnDelta func(messageID, text string)
}

// OptionsFromConfig maps backend configuration onto Options
func OptionsFromConfig(cfg config.BackendConfig) Options {
	return Options{
		Endpoint:       cfg.StreamURL(),
		Model:          cfg.Model,
		SystemPrompt:   cfg.SystemPrompt,
		RequestTimeout: cfg.RequestTimeout,
		IdleTimeout:    cfg.IdleTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.Endpoint == "" {
		o.Endpoint = config.BackendConfig{BaseURL: config.DefaultBaseURL, StreamPath: config.DefaultStreamPath}.StreamURL()
	}
	if o.Model == "" {
		o.Model = config.DefaultModel
	}
	if o.SystemPrompt == "" {
		o.SystemPrompt = config.DefaultSystemPrompt
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = config.DefaultRequestTimeout
	}
	if o.HTTPClient == nil {
		// No client-wide timeout: it would also cut long streams short
		o.HTTPClient = &http.Client{}
	}
	if o.Notifier == nil {
		o.Notifier = notify.Discard
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Tracer == nil {
		o.Tracer = tracenoop.NewTracerProvider().Tracer("copilot")
	}
	if o.Meter == nil {
		o.Meter = metricnoop.NewMeterProvider().Meter("copilot")
	}
	return o
}

type instruments struct {
	duration metric.Float64Histogram
	deltas   metric.Int64Counter
	errors   metric.Int64Counter
}

func newInstruments(meter metric.Meter, logger *slog.Logger) instruments {
	var ins instruments
	var err error

	ins.duration, err = meter.Float64Histogram(
		"copilot.stream.duration",
		metric.WithDescription("Copilot stream exchange duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		logger.Warn("failed to create histogram", "error", err)
		ins.duration, _ = metricnoop.Meter{}.Float64Histogram("copilot.stream.duration")
	}

	ins.deltas, err = meter.Int64Counter(
		"copilot.stream.deltas",
		metric.WithDescription("Text deltas received from the copilot stream"),
	)
	if err != nil {
		logger.Warn("failed to create counter", "error", err)
		ins.deltas, _ = metricnoop.Meter{}.Int64Counter("copilot.stream.deltas")
	}

	ins.errors, err = meter.Int64Counter(
		"copilot.stream.errors",
		metric.WithDescription("Failed copilot stream exchanges by kind"),
	)
	if err != nil {
		logger.Warn("failed to create counter", "error", err)
		ins.errors, _ = metricnoop.Meter{}.Int64Counter("copilot.stream.errors")
	}

	return ins
}

// Controller owns one chat session: its transcript, its streaming flag and
// the single exchange that may be in flight. It is safe for concurrent use.
type Controller struct {
	opts      Options
	transport *transport
	logger    *slog.Logger
	ins       instruments

	mu       sync.Mutex
	messages []session.Message
	state    State
}

// NewController creates an empty chat session
func NewController(opts Options) *Controller {
	opts = opts.withDefaults()
	return &Controller{
		opts: opts,
		transport: &transport{
			endpoint:       opts.Endpoint,
			client:         opts.HTTPClient,
			tokens:         opts.Tokens,
			requestTimeout: opts.RequestTimeout,
			idleTimeout:    opts.IdleTimeout,
		},
		logger: opts.Logger,
		ins:    newInstruments(opts.Meter, opts.Logger),
	}
}

// InitializeChat replaces the transcript wholesale
func (c *Controller) InitializeChat(seed []session.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = session.Clone(seed)
}

// ClearChat empties the transcript. The streaming flag is left alone.
func (c *Controller) ClearChat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

// Messages returns a snapshot of the transcript
func (c *Controller) Messages() []session.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return session.Clone(c.messages)
}

// IsStreaming reports whether an exchange is in flight
func (c *Controller) IsStreaming() bool {
	return c.State() != StateIdle
}

// State returns the current exchange state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SendMessage appends text as a user message and streams the assistant's
// reply into the transcript. It blocks until the exchange ends.
//
// Blank text is ignored. While another exchange is in flight the user
// message is still recorded but no request is made and ErrBusy is
// returned. Every other failure is reported through the Notifier, closed
// out with a fallback assistant message, and returned.
func (c *Controller) SendMessage(ctx context.Context, text, systemPrompt string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	user := session.NewUserMessage(text)

	c.mu.Lock()
	prior := session.Clone(c.messages)
	c.messages = append(c.messages, user)
	if c.state != StateIdle {
		c.mu.Unlock()
		c.logger.Warn("send rejected, response in progress", "message_id", user.ID)
		c.opts.Notifier.Notify(BusyTitle, BusyDescription, notify.SeverityDefault)
		return ErrBusy
	}
	c.state = StateSending
	c.mu.Unlock()

	defer c.setState(StateIdle)

	if systemPrompt == "" {
		systemPrompt = c.opts.SystemPrompt
	}
	payload := backend.StreamRequest{
		Prompt:  text,
		System:  systemPrompt,
		History: backend.BuildHistory(prior),
		Model:   c.opts.Model,
	}

	if err := c.runExchange(ctx, payload); err != nil {
		c.fail(err)
		return err
	}
	return nil
}

func (c *Controller) runExchange(ctx context.Context, payload backend.StreamRequest) (err error) {
	ctx, span := c.opts.Tracer.Start(ctx, "copilot.stream",
		trace.WithAttributes(
			attribute.String("copilot.model", payload.Model),
			attribute.Int("copilot.history_length", len(payload.History)),
		),
	)
	defer span.End()

	start := time.Now()
	deltas := 0
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = errorKind(err)
			c.ins.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", outcome)))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("copilot.outcome", outcome), attribute.Int("copilot.deltas", deltas))
		c.ins.duration.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("outcome", outcome)))
		c.logger.Info("copilot exchange finished",
			"outcome", outcome, "deltas", deltas, "duration_ms", time.Since(start).Milliseconds())
	}()

	c.logger.Debug("dispatching copilot request", "endpoint", c.opts.Endpoint, "history", len(payload.History))

	ex, err := c.transport.open(ctx, payload)
	if err != nil {
		return err
	}
	defer ex.Close()

	assistant := session.NewAssistantMessage("")
	c.mu.Lock()
	c.messages = append(c.messages, assistant)
	c.state = StateStreaming
	c.mu.Unlock()

	_, err = ex.consume(func(text string) {
		deltas++
		c.ins.deltas.Add(ctx, 1)

		c.mu.Lock()
		applied := session.Apply(c.messages, assistant.ID, stream.Delta(text))
		c.mu.Unlock()

		if applied && c.opts.OnDelta != nil {
			c.opts.OnDelta(assistant.ID, text)
		}
	})
	return err
}

// fail reports err and closes the turn with the fallback reply
func (c *Controller) fail(err error) {
	c.logger.Error("copilot exchange failed", "error", err)
	c.opts.Notifier.Notify(ErrorTitle, UserMessage(err), notify.SeverityDestructive)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, session.NewAssistantMessage(FallbackReply))
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}
