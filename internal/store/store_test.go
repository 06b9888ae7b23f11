package store

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/hireloop/chatsync/internal/bus"
	"github.com/hireloop/chatsync/internal/exchange"
	"github.com/hireloop/chatsync/internal/model"
	"github.com/hireloop/chatsync/internal/reconcile"
)

const viewer = "rec-1"

func testStore(t *testing.T) *Store {
	t.Helper()
	return New(viewer, bus.New(), nil)
}

func textMsg(id, conv, sender string, ts int64) model.Message {
	return model.Message{ID: id, ConversationID: conv, SenderID: sender, Type: model.TypeText, Body: "msg " + id, Timestamp: ts}
}

func TestUpsertConversationsInsertAndUpdate(t *testing.T) {
	s := testStore(t)

	s.UpsertConversations([]model.Conversation{
		{ID: "c1", CandidateID: "cand-1", LastMessagePreview: "hi", LastActivityAt: 1000, UnreadCount: 2, TotalCount: 5},
	})

	c, err := s.GetConversation("c1")
	if err != nil {
		t.Fatal(err)
	}
	if c.UnreadCount != 2 || c.LastMessagePreview != "hi" {
		t.Errorf("got unread=%d preview=%q, want 2/hi", c.UnreadCount, c.LastMessagePreview)
	}

	s.UpsertConversations([]model.Conversation{
		{ID: "c1", CandidateID: "cand-1", LastMessagePreview: "newer", LastActivityAt: 2000, UnreadCount: 3, TotalCount: 6},
	})
	c, _ = s.GetConversation("c1")
	if c.UnreadCount != 3 || c.LastMessagePreview != "newer" {
		t.Errorf("scalars not replaced: unread=%d preview=%q", c.UnreadCount, c.LastMessagePreview)
	}
}

func TestUpsertConversationsPreservesOpenWindow(t *testing.T) {
	s := testStore(t)
	s.ReplaceMessageWindow("c1", []model.Message{textMsg("m1", "c1", "cand-1", 1000)}, WindowReset, true, 1)

	// A list refresh carries summaries only; it must not blank the window.
	s.UpsertConversations([]model.Conversation{{ID: "c1", LastMessagePreview: "from list", TotalCount: 4}})

	c, err := s.GetConversation("c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Messages) != 1 {
		t.Fatalf("window blanked by list refresh: %d messages, want 1", len(c.Messages))
	}
	if c.LastMessagePreview != "from list" {
		t.Errorf("preview = %q, want from list", c.LastMessagePreview)
	}
}

func TestUpsertConversationsActiveStaysRead(t *testing.T) {
	s := testStore(t)
	s.UpsertConversations([]model.Conversation{{ID: "c1"}})
	s.SetActive("c1")

	// Stale unread from a refresh must not resurface on the open chat.
	s.UpsertConversations([]model.Conversation{{ID: "c1", UnreadCount: 7}})

	c, _ := s.GetConversation("c1")
	if c.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0 while active", c.UnreadCount)
	}
}

func TestReplaceWindowNoDuplicates(t *testing.T) {
	s := testStore(t)
	batch := []model.Message{textMsg("m1", "c1", "cand-1", 1000), textMsg("m2", "c1", "cand-1", 2000)}

	s.ReplaceMessageWindow("c1", batch, WindowReset, true, 2)
	s.ReplaceMessageWindow("c1", batch, WindowReset, true, 2)

	c, _ := s.GetConversation("c1")
	if len(c.Messages) != 2 {
		t.Errorf("got %d messages, want 2 (idempotent reset)", len(c.Messages))
	}
}

func TestTotalCountNotLoweredByPartialFetch(t *testing.T) {
	s := testStore(t)
	s.ReplaceMessageWindow("c1", []model.Message{textMsg("m1", "c1", "cand-1", 1000)}, WindowReset, true, 50)

	// Non-authoritative page reporting a smaller total must not shrink it.
	s.ReplaceMessageWindow("c1", []model.Message{textMsg("m0", "c1", "cand-1", 500)}, WindowPrepend, false, 10)

	c, _ := s.GetConversation("c1")
	if c.TotalCount != 50 {
		t.Errorf("total = %d, want 50", c.TotalCount)
	}

	// Authoritative refresh may lower it.
	s.ReplaceMessageWindow("c1", []model.Message{textMsg("m1", "c1", "cand-1", 1000)}, WindowReset, true, 3)
	c, _ = s.GetConversation("c1")
	if c.TotalCount != 3 {
		t.Errorf("total = %d, want 3 after authoritative refresh", c.TotalCount)
	}
}

func TestApplyLiveUnreadAccounting(t *testing.T) {
	s := testStore(t)
	s.UpsertConversations([]model.Conversation{{ID: "a"}, {ID: "b"}})
	s.SetActive("b")

	for i, id := range []string{"m1", "m2", "m3"} {
		s.ApplyLive(textMsg(id, "a", "cand-1", int64(1000*(i+1))))
	}
	s.ApplyLive(textMsg("m4", "b", "cand-2", 5000))

	a, _ := s.GetConversation("a")
	b, _ := s.GetConversation("b")
	if a.UnreadCount != 3 {
		t.Errorf("a unread = %d, want 3", a.UnreadCount)
	}
	if b.UnreadCount != 0 {
		t.Errorf("b unread = %d, want 0 (active conversation)", b.UnreadCount)
	}

	s.SetActive("a")
	a, _ = s.GetConversation("a")
	if a.UnreadCount != 0 {
		t.Errorf("a unread = %d, want 0 after open", a.UnreadCount)
	}
}

func TestApplyLiveOwnMessagesNeverUnread(t *testing.T) {
	s := testStore(t)
	s.UpsertConversations([]model.Conversation{{ID: "a"}})

	s.ApplyLive(textMsg("m1", "a", viewer, 1000))

	a, _ := s.GetConversation("a")
	if a.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0 for own message", a.UnreadCount)
	}
}

func TestApplyLiveCreatesUnknownConversation(t *testing.T) {
	s := testStore(t)

	// A push can reference a conversation no list refresh mentioned yet;
	// it must still land in the store.
	s.ApplyLive(textMsg("m1", "new-conv", "cand-9", 1000))

	c, err := s.GetConversation("new-conv")
	if err != nil {
		t.Fatal("conversation not created from push")
	}
	if len(c.Messages) != 1 || c.TotalCount != 1 {
		t.Errorf("got %d messages total=%d, want 1/1", len(c.Messages), c.TotalCount)
	}
}

func TestApplyLiveDerivedFields(t *testing.T) {
	s := testStore(t)
	s.ApplyLive(textMsg("m1", "c1", "cand-1", 1000))
	s.ApplyLive(textMsg("m2", "c1", "cand-1", 2000))

	c, _ := s.GetConversation("c1")
	if c.LastMessagePreview != "msg m2" {
		t.Errorf("preview = %q, want msg m2", c.LastMessagePreview)
	}
	if c.LastActivityAt != 2000 {
		t.Errorf("last activity = %d, want 2000", c.LastActivityAt)
	}
}

func TestRemoveMessageUpdatesPreview(t *testing.T) {
	s := testStore(t)
	s.ApplyLive(textMsg("m1", "c1", "cand-1", 1000))
	s.ApplyLive(textMsg("m2", "c1", "cand-1", 2000))

	if !s.RemoveMessage("c1", "m2") {
		t.Fatal("remove failed")
	}

	c, _ := s.GetConversation("c1")
	if len(c.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(c.Messages))
	}
	if c.LastMessagePreview != "msg m1" {
		t.Errorf("preview = %q, want msg m1", c.LastMessagePreview)
	}
	if c.TotalCount != 1 {
		t.Errorf("total = %d, want 1", c.TotalCount)
	}
}

func TestApplyMessagePatchInPlace(t *testing.T) {
	s := testStore(t)
	s.ApplyLive(textMsg("m1", "c1", "cand-1", 1000))
	s.ApplyLive(textMsg("m2", "c1", "cand-1", 2000))

	body := "edited"
	if !s.ApplyMessagePatch(model.MessagePatch{ConversationID: "c1", MessageID: "m1", Body: &body}) {
		t.Fatal("patch not applied")
	}

	c, _ := s.GetConversation("c1")
	if c.Messages[0].Body != "edited" {
		t.Errorf("body = %q, want edited", c.Messages[0].Body)
	}
	if c.Messages[0].ID != "m1" || c.Messages[1].ID != "m2" {
		t.Error("patch reordered the window")
	}

	if s.ApplyMessagePatch(model.MessagePatch{ConversationID: "c1", MessageID: "ghost", Body: &body}) {
		t.Error("patch for unknown message should be dropped")
	}
}

func TestApplyConversationPatchPartialFields(t *testing.T) {
	s := testStore(t)
	s.UpsertConversations([]model.Conversation{{ID: "c1", UnreadCount: 1, LastActivityAt: 1000}})

	unread := 4
	s.ApplyConversationPatch(model.ConversationPatch{ConversationID: "c1", UnreadCount: &unread})

	c, _ := s.GetConversation("c1")
	if c.UnreadCount != 4 {
		t.Errorf("unread = %d, want 4", c.UnreadCount)
	}
	if c.LastActivityAt != 1000 {
		t.Errorf("activity = %d, want 1000 (absent field untouched)", c.LastActivityAt)
	}
}

func TestHasPendingExchange(t *testing.T) {
	s := testStore(t)
	req := model.Message{ID: "x1", ConversationID: "c1", SenderID: viewer, Type: model.TypeExchangeRequest, Body: "share contact?", Exchange: exchange.Pending, Timestamp: 1000}
	s.ApplyLive(req)

	if !s.HasPendingExchange("c1", viewer) {
		t.Error("pending exchange not detected")
	}
	if s.HasPendingExchange("c1", "cand-1") {
		t.Error("pending exchange attributed to wrong sender")
	}

	st := exchange.Accepted
	s.ApplyMessagePatch(model.MessagePatch{ConversationID: "c1", MessageID: "x1", Exchange: &st})
	if s.HasPendingExchange("c1", viewer) {
		t.Error("settled exchange still reported pending")
	}
}

// TestPushWhileInactiveThenOpenThenLoadOlder walks the end-to-end window
// scenario: push to an inactive conversation, open it, then page older
// history in underneath.
func TestPushWhileInactiveThenOpenThenLoadOlder(t *testing.T) {
	s := testStore(t)
	s.ReplaceMessageWindow("c", []model.Message{
		textMsg("1", "c", "cand-1", 60_000),
		textMsg("2", "c", "cand-1", 61_000),
	}, WindowReset, true, 2)

	s.ApplyLive(textMsg("3", "c", "cand-1", 62_000))

	c, _ := s.GetConversation("c")
	if len(c.Messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(c.Messages))
	}
	if c.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1", c.UnreadCount)
	}

	s.SetActive("c")
	c, _ = s.GetConversation("c")
	if c.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0 after open", c.UnreadCount)
	}

	s.ReplaceMessageWindow("c", []model.Message{textMsg("0", "c", "cand-1", 59_000)}, WindowPrepend, false, 4)
	c, _ = s.GetConversation("c")
	want := []string{"0", "1", "2", "3"}
	if len(c.Messages) != len(want) {
		t.Fatalf("got %d messages, want %d", len(c.Messages), len(want))
	}
	for i, id := range want {
		if c.Messages[i].ID != id {
			t.Errorf("messages[%d] = %q, want %q", i, c.Messages[i].ID, id)
		}
	}
}

func TestGetConversationNotFound(t *testing.T) {
	s := testStore(t)
	if _, err := s.GetConversation("missing"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetConversationReturnsCopy(t *testing.T) {
	s := testStore(t)
	s.ApplyLive(textMsg("m1", "c1", "cand-1", 1000))

	c, _ := s.GetConversation("c1")
	c.Messages[0].Body = "tampered"

	fresh, _ := s.GetConversation("c1")
	if fresh.Messages[0].Body == "tampered" {
		t.Error("GetConversation leaked internal state")
	}
}

func TestInsertConfirmedKeepsIdenticalSendsDistinct(t *testing.T) {
	s := testStore(t)

	first := textMsg("a", "c1", viewer, 1000)
	first.Body = "ok"
	second := textMsg("b", "c1", viewer, 4000)
	second.Body = "ok"

	if !s.InsertConfirmed(first) {
		t.Fatal("first confirmed send rejected")
	}
	if !s.InsertConfirmed(second) {
		t.Fatal("second confirmed send rejected")
	}

	c, err := s.GetConversation("c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Messages) != 2 {
		t.Fatalf("window has %d messages, want 2 distinct sends", len(c.Messages))
	}
	if c.Messages[0].ID != "a" || c.Messages[1].ID != "b" {
		t.Errorf("window ids = [%s %s], want [a b]", c.Messages[0].ID, c.Messages[1].ID)
	}
	if c.TotalCount != 2 {
		t.Errorf("total = %d, want 2", c.TotalCount)
	}
	if c.UnreadCount != 0 {
		t.Errorf("own sends produced unread = %d", c.UnreadCount)
	}

	// Push echoes for both sends arrive later and drop as duplicates.
	if res := s.ApplyLive(first); res != reconcile.LiveDuplicate {
		t.Errorf("echo of first send = %v, want duplicate", res)
	}
	if res := s.ApplyLive(second); res != reconcile.LiveDuplicate {
		t.Errorf("echo of second send = %v, want duplicate", res)
	}
	c, _ = s.GetConversation("c1")
	if len(c.Messages) != 2 {
		t.Errorf("echoes changed the window: %d messages", len(c.Messages))
	}
}

func TestInsertConfirmedDedupesByID(t *testing.T) {
	s := testStore(t)
	m := textMsg("m1", "c1", viewer, 1000)

	if !s.InsertConfirmed(m) {
		t.Fatal("insert rejected")
	}
	if s.InsertConfirmed(m) {
		t.Error("duplicate id reported as inserted")
	}
	c, _ := s.GetConversation("c1")
	if c.TotalCount != 1 {
		t.Errorf("total = %d, want 1", c.TotalCount)
	}
}

func TestPreviewTruncatesOnRuneBoundary(t *testing.T) {
	s := testStore(t)
	m := textMsg("m1", "c1", "cand-1", 1000)
	m.Body = strings.Repeat("ü", 60)

	s.ApplyLive(m)
	c, _ := s.GetConversation("c1")
	if !utf8.ValidString(c.LastMessagePreview) {
		t.Errorf("preview split a rune: %q", c.LastMessagePreview)
	}
	if len(c.LastMessagePreview) > 100 {
		t.Errorf("preview is %d bytes, want at most 100", len(c.LastMessagePreview))
	}
	if len(c.LastMessagePreview) == 0 {
		t.Error("preview empty")
	}
}
