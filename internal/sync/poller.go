package sync

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Poller is the low-frequency fallback for missed push events. The
// channel promises at-least-eventual consistency, not exactly-once
// delivery, so a periodic refresh while the UI is foregrounded is the
// recovery mechanism after disconnects.
type Poller struct {
	engine     *Engine
	interval   time.Duration
	foreground atomic.Bool
	logger     *zap.Logger
	cancel     context.CancelFunc
}

// NewPoller creates a poller. The UI starts foregrounded.
func NewPoller(e *Engine, interval time.Duration, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Poller{engine: e, interval: interval, logger: logger}
	p.foreground.Store(true)
	return p
}

// SetForeground records whether the UI tab is visible. Polls are skipped
// while it is not.
func (p *Poller) SetForeground(v bool) {
	p.foreground.Store(v)
}

// Foreground reports the current visibility flag.
func (p *Poller) Foreground() bool {
	return p.foreground.Load()
}

// Start begins the poll loop.
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)
}

// Stop stops the poll loop.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Poller) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !p.foreground.Load() {
				continue
			}
			p.poll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if err := p.engine.RefreshConversations(ctx); err != nil {
		return
	}
	_ = p.engine.RefreshActiveWindow(ctx)
}
