package store

import (
	"sort"

	"github.com/hireloop/chatsync/internal/model"
)

// ListConversations returns the visible conversations in display order:
// pinned first, then most recent activity; conversations without any
// activity timestamp sort last.
func (s *Store) ListConversations() []model.Conversation {
	s.mu.RLock()
	out := make([]model.Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		if c.Hidden {
			continue
		}
		out = append(out, snapshot(c))
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Pinned != out[j].Pinned {
			return out[i].Pinned
		}
		return out[i].LastActivityAt > out[j].LastActivityAt
	})
	return out
}

// TotalUnread is the aggregate unread badge across visible conversations.
func (s *Store) TotalUnread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, c := range s.convs {
		if !c.Hidden {
			total += c.UnreadCount
		}
	}
	return total
}
