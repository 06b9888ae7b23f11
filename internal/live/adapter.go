// Package live bridges the backend's websocket push channel into bus
// events. It never touches the store: the sync engine subscribes to the
// published push.* events independently, which keeps push and poll
// funneling through the same entry points.
package live

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/hireloop/chatsync/internal/bus"
	"github.com/hireloop/chatsync/internal/status"
	"go.uber.org/zap"
)

// degradedAfter is the number of consecutive failed dials before the
// channel is declared degraded and the poller is the only update source.
const degradedAfter = 5

// Adapter maintains the push channel connection and room membership.
type Adapter struct {
	url     string
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	room   string
	cancel context.CancelFunc
}

// NewAdapter creates a push channel adapter. Call Start to connect.
func NewAdapter(url string, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{url: url, bus: b, machine: machine, logger: logger}
}

// Start connects in the background and keeps reconnecting with
// exponential backoff until Stop or context cancellation.
func (a *Adapter) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	_ = a.machine.Transition(status.Connecting)
	go a.run(ctx)
}

// Stop tears the connection down.
func (a *Adapter) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Lock()
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
	a.mu.Unlock()
	_ = a.machine.Transition(status.Stopped)
}

// Join makes conversationID the joined room, leaving the previous one.
// Repeated calls with the same id are no-ops; calls while disconnected
// just record the desired room, replayed on reconnect.
func (a *Adapter) Join(conversationID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.room == conversationID {
		return
	}
	if a.room != "" {
		a.sendControlLocked(evLeaveConversation, a.room)
	}
	a.room = conversationID
	if conversationID != "" {
		a.sendControlLocked(evJoinConversation, conversationID)
	}
}

// Leave leaves the room if it is the joined one; other ids are ignored.
func (a *Adapter) Leave(conversationID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.room != conversationID || a.room == "" {
		return
	}
	a.sendControlLocked(evLeaveConversation, a.room)
	a.room = ""
}

func (a *Adapter) run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0

	failures := 0
	for ctx.Err() == nil {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.url, nil)
		if err != nil {
			failures++
			if failures == degradedAfter {
				_ = a.machine.Transition(status.Degraded)
			}
			wait := bo.NextBackOff()
			a.logger.Warn("push channel dial failed",
				zap.Error(err), zap.Int("failures", failures), zap.Duration("retry_in", wait))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
			continue
		}

		failures = 0
		bo.Reset()
		a.onConnected(conn)
		a.readLoop(ctx, conn)
		a.onDisconnected(ctx)
	}
}

func (a *Adapter) onConnected(conn *websocket.Conn) {
	a.mu.Lock()
	a.conn = conn
	room := a.room
	if room != "" {
		// Re-join the open conversation's room after a reconnect.
		a.sendControlLocked(evJoinConversation, room)
	}
	a.mu.Unlock()

	_ = a.machine.Transition(status.Ready)
	a.logger.Info("push channel connected", zap.String("room", room))
	a.bus.Publish(bus.Event{Kind: bus.KindLiveConnected})
}

func (a *Adapter) onDisconnected(ctx context.Context) {
	a.mu.Lock()
	a.conn = nil
	a.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	_ = a.machine.Transition(status.Reconnecting)
	a.logger.Warn("push channel disconnected")
	a.bus.Publish(bus.Event{Kind: bus.KindLiveDisconnected})
}

func (a *Adapter) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				a.logger.Warn("push channel read error", zap.Error(err))
			}
			_ = conn.Close()
			return
		}
		evt, err := parseFrame(data)
		if err != nil {
			// Malformed payloads are dropped; they never reach the store.
			a.logger.Warn("dropping malformed push payload", zap.Error(err))
			continue
		}
		a.bus.Publish(evt)
	}
}

// sendControlLocked writes a join/leave frame if connected. Failures are
// tolerated: the poller and the reset fetch on conversation open cover
// missed room events.
func (a *Adapter) sendControlLocked(event, conversationID string) {
	if a.conn == nil {
		return
	}
	data, err := controlFrame(event, conversationID)
	if err != nil {
		return
	}
	if err := a.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		a.logger.Warn("push channel control write failed",
			zap.String("event", event), zap.Error(err))
	}
}
