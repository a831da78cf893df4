package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/relay-core/internal/audit"
	"github.com/nerrad567/relay-core/internal/binding"
	"github.com/nerrad567/relay-core/internal/engine"
	"github.com/nerrad567/relay-core/internal/infrastructure/mqtt"
)

// Sources.
const (
	SourceAPI  = "api"
	SourceMQTT = "mqtt"
	SourceCLI  = "cli"
)

// Channels and event kinds.
const (
	ChannelTriggerCompleted = "trigger.completed"
	ChannelBindingsReloaded = "bindings.reloaded"

	eventTrigger = "trigger"
	eventReload  = "reload"
)

// Status values reported in events.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// VariableStore is the live variable map plus seeding from a fresh table.
type VariableStore interface {
	engine.VariableStore
	Seed(initial map[string]binding.Value)
}

// Reloader reloads the bindings table.
type Reloader interface {
	Reload(ctx context.Context) error
}

// AuditRecorder accepts audit entries without blocking.
type AuditRecorder interface {
	Record(e *audit.Entry)
}

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	Broadcast(channel string, payload any)
}

// EventPublisher announces activations on the message bus.
type EventPublisher interface {
	PublishJSON(topic string, v any) error
	PublishRetainedJSON(topic string, v any) error
	Topics() mqtt.Topics
}

// Metrics records activation and reload measurements.
type Metrics interface {
	WriteTrigger(bindingName, source, shape string, elapsed time.Duration, err error)
	WriteReload(bindings int, err error)
}

// Logger defines the logging interface used by the service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Deps holds the collaborators of a Service. Engine, Store and Client are
// required; the rest may be nil.
type Deps struct {
	Engine engine.Deps
	Store  VariableStore

	Reloader Reloader
	Audit    AuditRecorder
	Hub      WSHub
	Events   EventPublisher
	Metrics  Metrics
	Logger   Logger
}

// Event is what the service broadcasts after every activation.
type Event struct {
	ExecutionID string `json:"execution_id"`
	Binding     string `json:"binding"`
	ShortCut    string `json:"shortcut"`
	Shape       string `json:"shape"`
	Source      string `json:"source"`
	Subject     string `json:"subject,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	DurationMS  int64  `json:"duration_ms"`
	Timestamp   string `json:"timestamp"`
}

// Service runs bindings by name or shortcut and reports every activation
// to the audit log, websocket clients, the message bus and metrics.
//
// The engine is rebuilt on every table load and swapped atomically, so an
// activation in flight finishes on the table it started with. Rotation
// state lives in the shared Index and survives reloads.
//
// Thread Safety: all methods are safe for concurrent use.
type Service struct {
	deps      Deps
	logger    Logger
	processor atomic.Pointer[engine.Processor]
}

// New creates a service. Call Load (or register it with the binding
// registry's OnReload) before triggering.
func New(deps Deps) (*Service, error) {
	if deps.Engine.Index == nil {
		return nil, fmt.Errorf("circular index is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("variable store is required")
	}
	if deps.Engine.Client == nil {
		return nil, fmt.Errorf("remote client is required")
	}
	deps.Engine.Store = deps.Store

	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	if deps.Engine.Logger == nil {
		deps.Engine.Logger = logger
	}
	return &Service{deps: deps, logger: logger}, nil
}

// Load installs table: its initial variables seed the store and a fresh
// processor replaces the current one.
func (s *Service) Load(table *binding.Table) {
	s.deps.Store.Seed(table.Variables)
	s.processor.Store(engine.NewProcessor(table, s.deps.Engine))

	if s.deps.Metrics != nil {
		s.deps.Metrics.WriteReload(len(table.Bindings), nil)
	}
	status := map[string]any{
		"bindings":  len(table.Bindings),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if s.deps.Hub != nil {
		s.deps.Hub.Broadcast(ChannelBindingsReloaded, status)
	}
	if s.deps.Events != nil {
		if err := s.deps.Events.PublishRetainedJSON(s.deps.Events.Topics().BindingsStatus(), status); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
			s.logger.Warn("bindings status publish failed", "error", err)
		}
	}
}

// Ready reports whether a table has been loaded.
func (s *Service) Ready() bool {
	return s.processor.Load() != nil
}

// Table returns the table the current processor runs.
func (s *Service) Table() (*binding.Table, error) {
	p := s.processor.Load()
	if p == nil {
		return nil, ErrNotReady
	}
	return p.Table(), nil
}

// Trigger runs the binding called name and waits for it to finish.
//
// Parameters:
//   - ctx: Carries the trace subject; cancelling it does not stop a
//     started activation
//   - name: Binding name
//   - source: Where the trigger came from (api, mqtt, cli)
//
// Returns:
//   - string: Execution ID, also used as the trace id in logs and audit
//   - error: nil on success, or:
//   - ErrNotReady if no table is loaded
//   - binding.ErrBindingNotFound if the name is unknown
//   - the engine error that stopped the activation
func (s *Service) Trigger(ctx context.Context, name, source string) (string, error) {
	p := s.processor.Load()
	if p == nil {
		return "", ErrNotReady
	}
	b, ok := p.Table().Binding(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", binding.ErrBindingNotFound, name)
	}
	return s.run(ctx, p, b, source)
}

// TriggerShortCut runs the binding attached to a key combination.
func (s *Service) TriggerShortCut(ctx context.Context, shortCut, source string) (string, error) {
	p := s.processor.Load()
	if p == nil {
		return "", ErrNotReady
	}
	b, ok := p.Table().BindingByShortCut(shortCut)
	if !ok {
		return "", fmt.Errorf("%w: %s", binding.ErrBindingNotFound, shortCut)
	}
	return s.run(ctx, p, b, source)
}

func (s *Service) run(ctx context.Context, p *engine.Processor, b *binding.Binding, source string) (string, error) {
	// An activation runs to the end once started, whatever happens to the
	// request or listener that fired it. Remote calls keep their own timeout.
	ctx = context.WithoutCancel(ctx)

	id := uuid.NewString()
	ctx = engine.WithTrace(ctx, id)

	start := time.Now()
	err := p.Process(ctx, b)
	elapsed := time.Since(start)

	s.report(ctx, b, id, source, elapsed, err)
	return id, err
}

func (s *Service) report(ctx context.Context, b *binding.Binding, id, source string, elapsed time.Duration, err error) {
	shape := b.Shape().String()
	ev := Event{
		ExecutionID: id,
		Binding:     b.Name,
		ShortCut:    b.ShortCut,
		Shape:       shape,
		Source:      source,
		Subject:     SubjectFrom(ctx),
		Status:      StatusCompleted,
		DurationMS:  elapsed.Milliseconds(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	outcome := audit.OutcomeOK
	if err != nil {
		ev.Status = StatusFailed
		ev.Error = err.Error()
		outcome = audit.OutcomeError
		s.logger.Warn("binding failed", "trace", id, "binding", b.Name, "source", source, "error", err)
	} else {
		s.logger.Info("binding completed", "trace", id, "binding", b.Name, "source", source, "duration_ms", ev.DurationMS)
	}

	if s.deps.Audit != nil {
		s.deps.Audit.Record(&audit.Entry{
			Action:   audit.ActionTrigger,
			Binding:  b.Name,
			ShortCut: b.ShortCut,
			Source:   source,
			Subject:  ev.Subject,
			TraceID:  id,
			Outcome:  outcome,
			Error:    ev.Error,
			Duration: elapsed,
			Details:  map[string]any{"shape": shape},
		})
	}
	if s.deps.Hub != nil {
		s.deps.Hub.Broadcast(ChannelTriggerCompleted, ev)
	}
	if s.deps.Events != nil {
		if pubErr := s.deps.Events.PublishJSON(s.deps.Events.Topics().Event(eventTrigger), ev); pubErr != nil && !errors.Is(pubErr, mqtt.ErrNotConnected) {
			s.logger.Warn("trigger event publish failed", "trace", id, "error", pubErr)
		}
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.WriteTrigger(b.Name, source, shape, elapsed, err)
	}
}

// Reload asks the reloader for a fresh table. On success the table
// arrives through Load; either way the attempt is audited.
func (s *Service) Reload(ctx context.Context, source string) error {
	if s.deps.Reloader == nil {
		return ErrNoReloader
	}
	start := time.Now()
	err := s.deps.Reloader.Reload(ctx)
	elapsed := time.Since(start)

	entry := &audit.Entry{
		Action:   audit.ActionReload,
		Source:   source,
		Subject:  SubjectFrom(ctx),
		TraceID:  uuid.NewString(),
		Outcome:  audit.OutcomeOK,
		Duration: elapsed,
	}
	if err != nil {
		entry.Outcome = audit.OutcomeError
		entry.Error = err.Error()
		if s.deps.Metrics != nil {
			s.deps.Metrics.WriteReload(0, err)
		}
	}
	if s.deps.Audit != nil {
		s.deps.Audit.Record(entry)
	}
	if s.deps.Events != nil {
		payload := map[string]any{"outcome": entry.Outcome, "source": source}
		if pubErr := s.deps.Events.PublishJSON(s.deps.Events.Topics().Event(eventReload), payload); pubErr != nil && !errors.Is(pubErr, mqtt.ErrNotConnected) {
			s.logger.Warn("reload event publish failed", "error", pubErr)
		}
	}
	return err
}

type subjectKey struct{}

// WithSubject records who asked for an activation; it ends up in the audit
// entry and the event.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFrom returns the subject attached by WithSubject, or "".
func SubjectFrom(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}
