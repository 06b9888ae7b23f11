// Package sync orchestrates every flow that mutates the message store:
// pushes off the live channel, window fetches, sends, deletes and status
// changes. Push and poll deliberately funnel through the same idempotent
// store entry points, so their races are safe in either arrival order.
package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/hireloop/chatsync/internal/backend"
	"github.com/hireloop/chatsync/internal/bus"
	"github.com/hireloop/chatsync/internal/exchange"
	"github.com/hireloop/chatsync/internal/live"
	"github.com/hireloop/chatsync/internal/model"
	"github.com/hireloop/chatsync/internal/pager"
	"github.com/hireloop/chatsync/internal/store"
	"go.uber.org/zap"
)

// ErrExchangePending blocks a second exchange request while the sender
// already has an unresolved one in the conversation.
var ErrExchangePending = errors.New("an exchange request is already pending in this conversation")

// Engine coordinates the store, backend, live channel and pager.
type Engine struct {
	store  *store.Store
	api    backend.API
	live   *live.Adapter
	pager  *pager.Controller
	bus    *bus.Bus
	logger *zap.Logger

	viewerID string
	role     string
	pageSize int

	cancel context.CancelFunc
}

// NewEngine creates the sync engine.
func NewEngine(st *store.Store, api backend.API, lv *live.Adapter, pg *pager.Controller, b *bus.Bus, logger *zap.Logger, role string, pageSize int) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:    st,
		api:      api,
		live:     lv,
		pager:    pg,
		bus:      b,
		logger:   logger,
		viewerID: st.ViewerID(),
		role:     role,
		pageSize: pageSize,
	}
}

// Start subscribes to inbound push events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("push.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handlePush(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) handlePush(evt bus.Event) {
	switch evt.Kind {
	case bus.KindPushMessage:
		msg, ok := evt.Payload.(*model.Message)
		if !ok {
			return
		}
		e.store.ApplyLive(*msg)
	case bus.KindPushMessageUpdated:
		patch, ok := evt.Payload.(model.MessagePatch)
		if !ok {
			return
		}
		e.store.ApplyMessagePatch(patch)
	case bus.KindPushConversationUpdated:
		patch, ok := evt.Payload.(model.ConversationPatch)
		if !ok {
			return
		}
		e.store.ApplyConversationPatch(patch)
	}
}

// RefreshConversations pulls the conversation list and merges the
// summaries into the store. Loaded windows are preserved.
func (e *Engine) RefreshConversations(ctx context.Context) error {
	list, err := e.api.FetchConversations(ctx, e.viewerID, e.role)
	if err != nil {
		e.logger.Warn("conversation list refresh failed", zap.Error(err))
		return err
	}
	e.store.UpsertConversations(list)
	return nil
}

// OpenConversation makes id the active conversation: zeroes its unread
// count, joins its push room, resets paging and fetches an authoritative
// latest window. On fetch failure the store keeps whatever window it had
// and the returned snapshot reflects that, with the error alongside.
func (e *Engine) OpenConversation(ctx context.Context, id string) (model.Conversation, error) {
	e.store.SetActive(id)
	e.live.Join(id)
	e.pager.Reset(id)

	page, err := e.api.FetchMessages(ctx, id, e.pageSize, 0)
	if err != nil {
		e.logger.Warn("latest window fetch failed",
			zap.String("conversation_id", id), zap.Error(err))
		conv, getErr := e.store.GetConversation(id)
		if getErr != nil {
			return model.Conversation{}, err
		}
		return conv, err
	}

	e.store.ReplaceMessageWindow(id, page.Messages, store.WindowReset, true, page.TotalCount)
	return e.store.GetConversation(id)
}

// CloseConversation leaves the conversation's room and clears the active
// marker if it still is the active one.
func (e *Engine) CloseConversation(id string) {
	if e.store.ActiveID() == id {
		e.store.ClearActive()
	}
	e.live.Leave(id)
}

// SendParams describes an outgoing message.
type SendParams struct {
	ConversationID string
	RecipientID    string
	Body           string
	Type           model.MessageType
	Quoted         *model.QuotedMessage
}

// SendMessage sends through the backend and inserts the confirmed result
// into the window. Insertion happens only after the server resolves, and
// dedupes by ID only: the later push echo for the same message drops as
// a duplicate in the reconciler, while a second deliberate send of the
// same text stays a distinct message.
func (e *Engine) SendMessage(ctx context.Context, p SendParams) (model.Message, error) {
	if p.Type == "" {
		p.Type = model.TypeText
	}
	if p.Type == model.TypeExchangeRequest && e.store.HasPendingExchange(p.ConversationID, e.viewerID) {
		return model.Message{}, ErrExchangePending
	}

	msg, err := e.api.SendMessage(ctx, backend.SendRequest{
		ConversationID: p.ConversationID,
		SenderID:       e.viewerID,
		RecipientID:    p.RecipientID,
		Body:           p.Body,
		Type:           p.Type,
		Quoted:         p.Quoted,
	})
	if err != nil {
		return model.Message{}, fmt.Errorf("send message: %w", err)
	}
	if msg.Exchange == "" && msg.Type == model.TypeExchangeRequest {
		msg.Exchange = exchange.Pending
	}

	e.store.InsertConfirmed(msg)
	return msg, nil
}

// DeleteMessage removes a message on the backend and from the window.
func (e *Engine) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	if err := e.api.DeleteMessage(ctx, messageID, e.viewerID); err != nil {
		return err
	}
	e.store.RemoveMessage(conversationID, messageID)
	return nil
}

// SetPinned pins or unpins a conversation for the viewer.
func (e *Engine) SetPinned(ctx context.Context, conversationID string, pinned bool) error {
	action := "pin"
	if !pinned {
		action = "unpin"
	}
	if err := e.api.UpdateConversationStatus(ctx, conversationID, e.role, action); err != nil {
		return err
	}
	return e.store.SetPinned(conversationID, pinned)
}

// Hide soft-deletes a conversation from the viewer's list.
func (e *Engine) Hide(ctx context.Context, conversationID string) error {
	if err := e.api.UpdateConversationStatus(ctx, conversationID, e.role, "hide"); err != nil {
		return err
	}
	return e.store.SetHidden(conversationID, true)
}

// ResolveExchange accepts or rejects an exchange request. The local copy
// is not forked ahead of the server: the new state arrives via push or
// the next refresh. Acting on an already-settled request is a no-op.
func (e *Engine) ResolveExchange(ctx context.Context, conversationID, messageID string, action exchange.Action) error {
	target, err := action.Target()
	if err != nil {
		return err
	}

	if conv, err := e.store.GetConversation(conversationID); err == nil {
		for _, m := range conv.Messages {
			if m.ID == messageID && m.Type == model.TypeExchangeRequest {
				if _, err := exchange.Transition(m.Exchange, target); errors.Is(err, exchange.ErrSettled) {
					e.logger.Info("exchange already settled, ignoring action",
						zap.String("message_id", messageID), zap.String("action", string(action)))
					return nil
				}
				break
			}
		}
	}

	return e.api.UpdateExchangeStatus(ctx, messageID, action, e.viewerID)
}

// MarkAllRead zeroes every unread count after the backend confirms.
func (e *Engine) MarkAllRead(ctx context.Context) error {
	if err := e.api.MarkAllRead(ctx, e.viewerID, e.role); err != nil {
		return err
	}
	e.store.ZeroAllUnread()
	return nil
}

// LoadOlder loads the next page of older history for a conversation.
func (e *Engine) LoadOlder(ctx context.Context, conversationID string) (bool, error) {
	return e.pager.LoadOlder(ctx, conversationID)
}

// RefreshActiveWindow re-fetches the latest window of the active
// conversation, the recovery path for events missed while disconnected.
func (e *Engine) RefreshActiveWindow(ctx context.Context) error {
	id := e.store.ActiveID()
	if id == "" {
		return nil
	}
	page, err := e.api.FetchMessages(ctx, id, e.pageSize, 0)
	if err != nil {
		e.logger.Warn("active window refresh failed",
			zap.String("conversation_id", id), zap.Error(err))
		return err
	}
	e.store.ReplaceMessageWindow(id, page.Messages, store.WindowReset, true, page.TotalCount)
	return nil
}
