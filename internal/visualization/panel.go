package visualization

import (
	"context"
	"log/slog"
	"sync"

	"warehouse-wizard/internal/events"
)

// Panel listens for completion events and keeps the latest view per session.
type Panel struct {
	mu     sync.RWMutex
	views  map[string]View
	logger *slog.Logger
}

func NewPanel(logger *slog.Logger) *Panel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Panel{views: map[string]View{}, logger: logger}
}

// Listen is an events.Listener.
func (p *Panel) Listen(_ context.Context, c events.Completion) {
	if c.Attributes == nil {
		p.logger.Warn("completion without configuration, nothing to render", "session_id", c.SessionID)
		return
	}
	v := Build(*c.Attributes)

	p.mu.Lock()
	p.views[c.SessionID] = v
	p.mu.Unlock()

	p.logger.Info("layout ready",
		"session_id", c.SessionID,
		"dimensions", v.Dimensions,
		"pallet_positions", v.PalletPositions,
	)
}

// View returns the rendered view of a completed session.
func (p *Panel) View(sessionID string) (View, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.views[sessionID]
	return v, ok
}
