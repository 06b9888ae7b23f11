// Package store holds the authoritative in-memory view of every loaded
// conversation. It is the single shared mutable resource of the engine:
// every other component reads through its accessors and mutates only
// through the entry points defined here, which funnel window changes
// through the reconciler and recompute derived fields on the way out.
package store

import (
	"errors"
	"sync"
	"unicode/utf8"

	"github.com/hireloop/chatsync/internal/bus"
	"github.com/hireloop/chatsync/internal/model"
	"github.com/hireloop/chatsync/internal/reconcile"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a conversation ID is not loaded.
var ErrNotFound = errors.New("conversation not found")

// WindowMode selects how ReplaceMessageWindow merges a fetched batch.
type WindowMode int

const (
	// WindowPrepend merges a page of older history below the current window.
	WindowPrepend WindowMode = iota
	// WindowReset merges a fresh most-recent window (first open, refresh).
	WindowReset
)

// Store is the in-memory conversation store.
type Store struct {
	mu       sync.RWMutex
	viewerID string
	convs    map[string]*model.Conversation
	activeID string
	seq      int64

	bus    *bus.Bus
	logger *zap.Logger
}

// New creates an empty store for the given viewer.
func New(viewerID string, b *bus.Bus, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		viewerID: viewerID,
		convs:    make(map[string]*model.Conversation),
		bus:      b,
		logger:   logger,
	}
}

// ViewerID returns the local viewer's user ID.
func (s *Store) ViewerID() string { return s.viewerID }

// ActiveID returns the currently open conversation ID, or "".
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// GetConversation returns a copy of the conversation, window included.
func (s *Store) GetConversation(id string) (model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok {
		return model.Conversation{}, ErrNotFound
	}
	return snapshot(c), nil
}

// UpsertConversations merges a batch of conversation summaries, typically
// from a list refresh. Unknown conversations are inserted; known ones take
// the incoming scalar fields but keep their loaded message window unless
// the batch explicitly carries one, so a refresh never blanks an open
// chat. The active conversation's unread count stays pinned at zero.
func (s *Store) UpsertConversations(list []model.Conversation) {
	s.mu.Lock()
	for _, in := range list {
		if in.ID == "" {
			s.logger.Warn("dropping conversation summary without id")
			continue
		}
		cur, ok := s.convs[in.ID]
		if !ok {
			c := in
			if !c.HasWindow {
				c.Messages = nil
			}
			s.assignSeqs(c.Messages)
			s.convs[c.ID] = &c
			continue
		}
		window := cur.Messages
		hasWindow := cur.HasWindow
		total := cur.TotalCount
		*cur = in
		if in.HasWindow {
			s.assignSeqs(cur.Messages)
		} else {
			cur.Messages = window
			cur.HasWindow = hasWindow
		}
		if in.TotalCount < total && !in.HasWindow {
			cur.TotalCount = total
		}
		if cur.ID == s.activeID {
			cur.UnreadCount = 0
		}
	}
	s.mu.Unlock()
	s.bus.Publish(bus.Event{Kind: bus.KindConversationUpdated})
}

// ReplaceMessageWindow merges a fetched message batch into the
// conversation's window. serverTotal is the total the fetch reported;
// it only lowers TotalCount when the fetch was authoritative (offset 0,
// latest window). An unknown conversation is created on the fly so a
// stale response for a no-longer-active conversation is still applied.
func (s *Store) ReplaceMessageWindow(id string, msgs []model.Message, mode WindowMode, authoritative bool, serverTotal int) {
	s.mu.Lock()
	c := s.ensureLocked(id)
	s.assignSeqs(msgs)
	switch mode {
	case WindowPrepend:
		c.Messages = reconcile.MergeOlder(c.Messages, msgs)
	case WindowReset:
		c.Messages = reconcile.MergeLatest(c.Messages, msgs, authoritative)
	}
	c.HasWindow = true
	if serverTotal > c.TotalCount || authoritative {
		c.TotalCount = serverTotal
	}
	if n := len(c.Messages); c.TotalCount < n {
		c.TotalCount = n
	}
	s.refreshDerivedLocked(c)
	s.mu.Unlock()

	s.bus.Publish(bus.Event{Kind: bus.KindMessageUpserted, ConversationID: id})
}

// ApplyLive folds one pushed (or freshly confirmed) message into its
// conversation. The unread count grows only for messages from the other
// party arriving while the conversation is not active.
func (s *Store) ApplyLive(msg model.Message) reconcile.LiveResult {
	s.mu.Lock()
	c := s.ensureLocked(msg.ConversationID)
	if msg.Seq == 0 {
		s.seq++
		msg.Seq = s.seq
	}
	var res reconcile.LiveResult
	c.Messages, res = reconcile.ApplyLive(c.Messages, msg, s.viewerID)
	if res == reconcile.LiveAppended {
		c.HasWindow = true
		c.TotalCount++
		if msg.SenderID != s.viewerID && c.ID != s.activeID {
			c.UnreadCount++
		}
	}
	s.refreshDerivedLocked(c)
	s.mu.Unlock()

	if res != reconcile.LiveDuplicate {
		s.bus.Publish(bus.Event{Kind: bus.KindMessageUpserted, ConversationID: msg.ConversationID})
	}
	return res
}

// InsertConfirmed adds a server-confirmed send to its conversation,
// deduplicating by ID only. The echo heuristic of ApplyLive is reserved
// for push arrivals; running it here would let a second identical send
// swallow the first. Never touches the unread count: the viewer sent it.
func (s *Store) InsertConfirmed(msg model.Message) bool {
	s.mu.Lock()
	c := s.ensureLocked(msg.ConversationID)
	if msg.Seq == 0 {
		s.seq++
		msg.Seq = s.seq
	}
	var inserted bool
	c.Messages, inserted = reconcile.Insert(c.Messages, msg)
	if inserted {
		c.HasWindow = true
		c.TotalCount++
	}
	s.refreshDerivedLocked(c)
	s.mu.Unlock()

	if inserted {
		s.bus.Publish(bus.Event{Kind: bus.KindMessageUpserted, ConversationID: msg.ConversationID})
	}
	return inserted
}

// ApplyMessagePatch merges updated fields onto a message in place,
// without reordering. Patches for messages outside the loaded window are
// dropped; the next reset fetch carries the new state.
func (s *Store) ApplyMessagePatch(p model.MessagePatch) bool {
	s.mu.Lock()
	c, ok := s.convs[p.ConversationID]
	var found bool
	if ok {
		c.Messages, found = reconcile.Patch(c.Messages, p)
		if found {
			s.refreshDerivedLocked(c)
		}
	}
	s.mu.Unlock()
	if !found {
		s.logger.Debug("message patch for unknown message",
			zap.String("conversation_id", p.ConversationID),
			zap.String("message_id", p.MessageID))
		return false
	}
	s.bus.Publish(bus.Event{Kind: bus.KindMessageUpserted, ConversationID: p.ConversationID})
	return true
}

// ApplyConversationPatch merges the unread-count and activity fields of a
// conversation_updated push, keeping existing values for absent fields.
func (s *Store) ApplyConversationPatch(p model.ConversationPatch) {
	s.mu.Lock()
	c, ok := s.convs[p.ConversationID]
	if ok {
		if p.UnreadCount != nil && c.ID != s.activeID {
			c.UnreadCount = *p.UnreadCount
		}
		if p.UpdatedAt != nil && *p.UpdatedAt > c.LastActivityAt {
			c.LastActivityAt = *p.UpdatedAt
		}
	}
	s.mu.Unlock()
	if ok {
		s.bus.Publish(bus.Event{Kind: bus.KindConversationUpdated, ConversationID: p.ConversationID})
	}
}

// RemoveMessage deletes a message from its window and recomputes the
// conversation preview from the new tail.
func (s *Store) RemoveMessage(conversationID, messageID string) bool {
	s.mu.Lock()
	c, ok := s.convs[conversationID]
	var removed bool
	if ok {
		for i, m := range c.Messages {
			if m.ID == messageID {
				c.Messages = append(c.Messages[:i:i], c.Messages[i+1:]...)
				if c.TotalCount > 0 {
					c.TotalCount--
				}
				removed = true
				break
			}
		}
		if removed {
			c.LastMessagePreview = previewOf(c.Messages)
		}
	}
	s.mu.Unlock()
	if removed {
		s.bus.Publish(bus.Event{Kind: bus.KindMessageDeleted, ConversationID: conversationID})
	}
	return removed
}

// SetActive marks a conversation as the open one and zeroes its unread
// count. Returns the previously active ID.
func (s *Store) SetActive(id string) string {
	s.mu.Lock()
	prev := s.activeID
	s.activeID = id
	if c, ok := s.convs[id]; ok {
		c.UnreadCount = 0
	}
	s.mu.Unlock()
	if id != "" {
		s.bus.Publish(bus.Event{Kind: bus.KindConversationUpdated, ConversationID: id})
	}
	return prev
}

// ClearActive marks no conversation as open.
func (s *Store) ClearActive() {
	s.mu.Lock()
	s.activeID = ""
	s.mu.Unlock()
}

// SetPinned updates the viewer-side pin flag.
func (s *Store) SetPinned(id string, pinned bool) error {
	return s.mutate(id, func(c *model.Conversation) { c.Pinned = pinned })
}

// SetHidden soft-deletes (or restores) a conversation from the list.
func (s *Store) SetHidden(id string, hidden bool) error {
	return s.mutate(id, func(c *model.Conversation) { c.Hidden = hidden })
}

// ZeroAllUnread clears every conversation's unread count, used after a
// successful mark-all-read call.
func (s *Store) ZeroAllUnread() {
	s.mu.Lock()
	for _, c := range s.convs {
		c.UnreadCount = 0
	}
	s.mu.Unlock()
	s.bus.Publish(bus.Event{Kind: bus.KindConversationUpdated})
}

// HasPendingExchange reports whether the sender already has an unresolved
// exchange request in the loaded window.
func (s *Store) HasPendingExchange(conversationID, senderID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return false
	}
	for _, m := range c.Messages {
		if m.Type == model.TypeExchangeRequest && m.SenderID == senderID && !m.Exchange.Terminal() {
			return true
		}
	}
	return false
}

func (s *Store) mutate(id string, fn func(*model.Conversation)) error {
	s.mu.Lock()
	c, ok := s.convs[id]
	if ok {
		fn(c)
	}
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.bus.Publish(bus.Event{Kind: bus.KindConversationUpdated, ConversationID: id})
	return nil
}

// ensureLocked returns the conversation, creating a bare record for IDs
// discovered through a push before any list refresh mentioned them.
func (s *Store) ensureLocked(id string) *model.Conversation {
	c, ok := s.convs[id]
	if !ok {
		c = &model.Conversation{ID: id}
		s.convs[id] = c
	}
	return c
}

// assignSeqs gives arrival sequence numbers to messages that don't have
// one yet. Seq only ever grows, so re-merged batches keep their order.
func (s *Store) assignSeqs(msgs []model.Message) {
	for i := range msgs {
		if msgs[i].Seq == 0 {
			s.seq++
			msgs[i].Seq = s.seq
		}
	}
}

func (s *Store) refreshDerivedLocked(c *model.Conversation) {
	c.LastMessagePreview = previewOf(c.Messages)
	if n := len(c.Messages); n > 0 {
		if ts := c.Messages[n-1].Timestamp; ts > c.LastActivityAt {
			c.LastActivityAt = ts
		}
	}
}

func snapshot(c *model.Conversation) model.Conversation {
	out := *c
	out.Messages = append([]model.Message(nil), c.Messages...)
	return out
}

func previewOf(msgs []model.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	tail := msgs[len(msgs)-1]
	switch tail.Type {
	case model.TypeText, model.TypeSystem:
		return truncate(tail.Body, 100)
	case model.TypeImage:
		return "[image]"
	case model.TypeFile:
		return "[file]"
	case model.TypeLocation:
		return "[location]"
	case model.TypeExchangeRequest:
		return "[contact exchange request]"
	case model.TypeInterviewInvite:
		return "[interview invitation]"
	}
	return truncate(tail.Body, 100)
}

// truncate cuts s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
