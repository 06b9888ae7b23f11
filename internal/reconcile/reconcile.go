// Package reconcile holds the pure merge functions that combine message
// batches from fetches, pushes and confirmed sends into one consistent
// conversation window. All functions return a new slice sorted ascending
// by (Timestamp, Seq) with at most one entry per message ID; they never
// mutate their inputs.
package reconcile

import (
	"sort"

	"github.com/hireloop/chatsync/internal/model"
)

// confirmWindowMs is how far apart a confirmed send and its push echo may
// be and still be treated as the same message.
const confirmWindowMs = 5_000

// LiveResult describes what ApplyLive did with an incoming push message.
type LiveResult int

const (
	// LiveDuplicate: the message ID was already in the window; nothing changed.
	LiveDuplicate LiveResult = iota
	// LiveConfirmed: the push was recognized as the echo of a message the
	// viewer just sent; the existing entry took the authoritative fields.
	LiveConfirmed
	// LiveAppended: a genuinely new message was added to the window.
	LiveAppended
)

// MergeOlder merges a page of older history into an existing window
// (prepend mode). On an ID collision the existing entry wins, since the
// window always holds the more recently observed copy.
func MergeOlder(window, page []model.Message) []model.Message {
	if len(page) == 0 {
		return sortWindow(window)
	}
	seen := make(map[string]struct{}, len(window))
	for _, m := range window {
		seen[m.ID] = struct{}{}
	}
	merged := make([]model.Message, 0, len(window)+len(page))
	for _, m := range page {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, m)
	}
	merged = append(merged, window...)
	return sortWindow(merged)
}

// MergeLatest merges a freshly fetched most-recent window into the
// existing one (reset mode). IDs present in the fetch take the fetched
// fields but keep their original Seq so ties never reorder. IDs the fetch
// omits are kept defensively, unless the fetch is authoritative (a
// complete latest-N snapshot at offset 0), in which case only cached
// messages newer than everything fetched survive: those are pushes that
// raced the fetch; anything older the server no longer reports is gone.
func MergeLatest(window, fetched []model.Message, authoritative bool) []model.Message {
	existing := make(map[string]model.Message, len(window))
	for _, m := range window {
		existing[m.ID] = m
	}

	var maxFetchedTs int64
	merged := make([]model.Message, 0, len(fetched)+len(window))
	inFetch := make(map[string]struct{}, len(fetched))
	for _, m := range fetched {
		if _, dup := inFetch[m.ID]; dup {
			continue
		}
		inFetch[m.ID] = struct{}{}
		if old, ok := existing[m.ID]; ok {
			m.Seq = old.Seq
		}
		if m.Timestamp > maxFetchedTs {
			maxFetchedTs = m.Timestamp
		}
		merged = append(merged, m)
	}

	for _, m := range window {
		if _, ok := inFetch[m.ID]; ok {
			continue
		}
		if authoritative && m.Timestamp <= maxFetchedTs {
			continue
		}
		merged = append(merged, m)
	}
	return sortWindow(merged)
}

// Insert adds a server-confirmed send to the window. Only the message ID
// dedupes: two deliberate sends with identical text are distinct
// messages, so the echo heuristic must never run on this path. Reports
// whether the message was added.
func Insert(window []model.Message, msg model.Message) ([]model.Message, bool) {
	for _, m := range window {
		if m.ID == msg.ID {
			return sortWindow(window), false
		}
	}
	out := append([]model.Message(nil), window...)
	out = append(out, msg)
	return sortWindow(out), true
}

// ApplyLive folds a single pushed message into the window.
//
// Already-known IDs are ignored. A push from the viewer whose text matches
// a window entry sent within the last few seconds is the server echo of a
// confirmed send (possibly under a different ID, e.g. after a
// create-and-send) and replaces that entry's identity fields in place.
// Everything else is appended.
func ApplyLive(window []model.Message, incoming model.Message, viewerID string) ([]model.Message, LiveResult) {
	for _, m := range window {
		if m.ID == incoming.ID {
			return sortWindow(window), LiveDuplicate
		}
	}

	if incoming.SenderID == viewerID {
		if i, ok := matchRecentSend(window, incoming); ok {
			out := append([]model.Message(nil), window...)
			confirmed := out[i]
			confirmed.ID = incoming.ID
			confirmed.Timestamp = incoming.Timestamp
			out[i] = confirmed
			return sortWindow(out), LiveConfirmed
		}
	}

	out := append([]model.Message(nil), window...)
	out = append(out, incoming)
	return sortWindow(out), LiveAppended
}

// matchRecentSend scans backwards for a viewer-sent entry with identical
// body and type within the confirmation window of the incoming push.
func matchRecentSend(window []model.Message, incoming model.Message) (int, bool) {
	for i := len(window) - 1; i >= 0; i-- {
		m := window[i]
		if incoming.Timestamp-m.Timestamp > confirmWindowMs {
			return 0, false
		}
		if m.SenderID == incoming.SenderID && m.Type == incoming.Type && m.Body == incoming.Body {
			return i, true
		}
	}
	return 0, false
}

// Patch applies an in-place field merge to the matching message and
// reports whether it was found. Ordering is untouched: updates never
// change a message's position.
func Patch(window []model.Message, p model.MessagePatch) ([]model.Message, bool) {
	for i, m := range window {
		if m.ID != p.MessageID {
			continue
		}
		out := append([]model.Message(nil), window...)
		if p.Body != nil {
			out[i].Body = *p.Body
		}
		if p.MediaURL != nil {
			out[i].MediaURL = *p.MediaURL
		}
		if p.Exchange != nil {
			out[i].Exchange = *p.Exchange
		}
		return out, true
	}
	return window, false
}

// sortWindow returns window ordered ascending by (Timestamp, Seq).
// Seq carries original arrival order, so equal timestamps keep their
// first-observed ordering across any number of merges.
func sortWindow(window []model.Message) []model.Message {
	out := append([]model.Message(nil), window...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}
