// Package pager drives backward history loading for open conversations.
package pager

import (
	"context"
	"sync"

	"github.com/hireloop/chatsync/internal/backend"
	"github.com/hireloop/chatsync/internal/store"
	"go.uber.org/zap"
)

// Controller tracks per-conversation paging state: whether a page fetch
// is in flight and whether history is exhausted. Exhaustion is sticky
// until the conversation is re-entered (Reset).
type Controller struct {
	store    *store.Store
	api      backend.API
	pageSize int
	logger   *zap.Logger

	mu     sync.Mutex
	states map[string]*convState
}

type convState struct {
	loading   bool
	exhausted bool
}

// New creates a pagination controller.
func New(st *store.Store, api backend.API, pageSize int, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		store:    st,
		api:      api,
		pageSize: pageSize,
		logger:   logger,
		states:   make(map[string]*convState),
	}
}

// Reset clears paging state, typically when a conversation is re-opened.
func (c *Controller) Reset(conversationID string) {
	c.mu.Lock()
	delete(c.states, conversationID)
	c.mu.Unlock()
}

// HasMore reports whether older history may remain. The scroll trigger
// checks this before calling LoadOlder.
func (c *Controller) HasMore(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.states[conversationID]; ok {
		return !st.exhausted
	}
	return true
}

// LoadOlder fetches the next page of older history at offset = number of
// currently loaded messages and prepends it to the window. Returns
// whether any messages were loaded. Calls while a fetch is in flight or
// after exhaustion return (false, nil) without touching the backend.
func (c *Controller) LoadOlder(ctx context.Context, conversationID string) (bool, error) {
	c.mu.Lock()
	st, ok := c.states[conversationID]
	if !ok {
		st = &convState{}
		c.states[conversationID] = st
	}
	if st.loading || st.exhausted {
		c.mu.Unlock()
		return false, nil
	}
	st.loading = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		st.loading = false
		c.mu.Unlock()
	}()

	knownCount := 0
	if conv, err := c.store.GetConversation(conversationID); err == nil {
		knownCount = len(conv.Messages)
	}

	page, err := c.api.FetchMessages(ctx, conversationID, c.pageSize, knownCount)
	if err != nil {
		// Store untouched; the next scroll trigger retries.
		c.logger.Warn("older history fetch failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return false, err
	}

	if len(page.Messages) == 0 {
		c.mu.Lock()
		st.exhausted = true
		c.mu.Unlock()
		return false, nil
	}

	c.store.ReplaceMessageWindow(conversationID, page.Messages, store.WindowPrepend, false, page.TotalCount)

	if len(page.Messages) < c.pageSize {
		c.mu.Lock()
		st.exhausted = true
		c.mu.Unlock()
	}
	return true, nil
}
