// Package events carries the session completion notification from the
// conversation driver to passive subscribers such as the visualization panel.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"warehouse-wizard/internal/domain"
)

// Completion is published once per completed session. Attributes is nil when
// no structured record could be reconciled.
type Completion struct {
	SessionID  string             `json:"sessionId"`
	Attributes *domain.Attributes `json:"attributes"`
	OccurredAt time.Time          `json:"occurredAt"`
}

// Listener receives completion events.
type Listener func(ctx context.Context, c Completion)

type subscription struct {
	name     string
	listener Listener
}

// Bus delivers completion events synchronously, in subscription order.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Subscribe registers l under name. Names are used only for logging.
func (b *Bus) Subscribe(name string, l Listener) {
	if l == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{name: name, listener: l})
}

// Publish hands c to every listener. A panicking listener is logged and does
// not stop delivery to the others.
func (b *Bus) Publish(ctx context.Context, c Completion) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(ctx, s, c)
	}
}

func (b *Bus) deliver(ctx context.Context, s subscription, c Completion) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("completion listener panicked", "listener", s.name, "session_id", c.SessionID, "panic", r)
		}
	}()
	s.listener(ctx, c)
}
