package trigger

import (
	"context"
	"errors"
	"sync"

	"github.com/nerrad567/relay-core/internal/binding"
	"github.com/nerrad567/relay-core/internal/infrastructure/mqtt"
)

// Subscriber is the message bus surface the listener needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Topics() mqtt.Topics
}

// Listener fires bindings when a message arrives on their trigger topic
// (<prefix>/trigger/<binding>). The payload is ignored.
//
// Each message runs on its own goroutine so a slow binding never holds up
// the client's message loop.
type Listener struct {
	svc    *Service
	sub    Subscriber
	logger Logger

	ctx     context.Context
	mu      sync.Mutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewListener creates a listener feeding svc from sub.
func NewListener(svc *Service, sub Subscriber, logger Logger) *Listener {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Listener{svc: svc, sub: sub, logger: logger}
}

// Start subscribes to every trigger topic. Values on ctx reach every
// activation the listener starts.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	l.ctx = ctx
	l.started = true
	l.mu.Unlock()

	topic := l.sub.Topics().AllTriggers()
	if err := l.sub.Subscribe(topic, 1, l.handle); err != nil {
		return err
	}
	l.logger.Info("listening for mqtt triggers", "topic", topic)
	return nil
}

func (l *Listener) handle(topic string, _ []byte) error {
	name, ok := l.sub.Topics().BindingFromTrigger(topic)
	if !ok {
		l.logger.Debug("ignoring trigger topic", "topic", topic)
		return nil
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.logger.Debug("listener closed, dropping trigger", "binding", name)
		return nil
	}
	l.wg.Add(1)
	ctx := l.ctx
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		if _, err := l.svc.Trigger(ctx, name, SourceMQTT); err != nil && errors.Is(err, binding.ErrBindingNotFound) {
			l.logger.Warn("mqtt trigger for unknown binding", "binding", name)
		}
	}()
	return nil
}

// Close unsubscribes and waits for running activations to finish. Messages
// delivered after Close are dropped.
func (l *Listener) Close() error {
	l.mu.Lock()
	if !l.started || l.closed {
		l.closed = true
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	err := l.sub.Unsubscribe(l.sub.Topics().AllTriggers())
	l.wg.Wait()
	if errors.Is(err, mqtt.ErrNotConnected) {
		return nil
	}
	return err
}
