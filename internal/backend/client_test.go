package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hireloop/chatsync/internal/exchange"
	"github.com/hireloop/chatsync/internal/model"
)

func TestFetchConversationsCanonicalizesIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/conversations" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("viewer_id"); got != "rec-1" {
			t.Errorf("viewer_id = %q", got)
		}
		w.Write([]byte(`[{
			"id": 123, "recruiter_id": "rec-1", "candidate_id": 456,
			"last_message": "see you", "last_activity_at": "2024-05-01T10:00:00Z",
			"total_messages": 12, "unread_count": 2, "pinned": true
		}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	convs, err := c.FetchConversations(context.Background(), "rec-1", "recruiter")
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 1 {
		t.Fatalf("got %d conversations", len(convs))
	}
	conv := convs[0]
	if conv.ID != "123" || conv.CandidateID != "456" {
		t.Errorf("ids not canonicalized: %+v", conv)
	}
	if conv.LastActivityAt == 0 {
		t.Error("RFC3339 activity timestamp not converted")
	}
	if conv.TotalCount != 12 || conv.UnreadCount != 2 || !conv.Pinned {
		t.Errorf("summary fields mismatch: %+v", conv)
	}
	if conv.HasWindow {
		t.Error("summary without messages should not claim a window")
	}
}

func TestFetchMessagesReversesToAscending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("order") != "desc" || q.Get("limit") != "2" || q.Get("offset") != "4" {
			t.Errorf("query = %v", q)
		}
		w.Write([]byte(`{"total_count": 9, "messages": [
			{"id": "m2", "sender_id": "cand", "body": "later", "created_at": 2000},
			{"id": "m1", "sender_id": "cand", "body": "earlier", "created_at": 1000}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	page, err := c.FetchMessages(context.Background(), "c1", 2, 4)
	if err != nil {
		t.Fatal(err)
	}
	if page.TotalCount != 9 {
		t.Errorf("total = %d, want 9", page.TotalCount)
	}
	if len(page.Messages) != 2 || page.Messages[0].ID != "m1" || page.Messages[1].ID != "m2" {
		t.Errorf("page order = %+v, want ascending", page.Messages)
	}
	if page.Messages[0].ConversationID != "c1" {
		t.Error("conversation id not filled from request")
	}
	if page.Messages[0].Type != model.TypeText {
		t.Errorf("type = %q, want text default", page.Messages[0].Type)
	}
}

func TestSendMessageDecodesConfirmedCopy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/conversations/c1/messages" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req["body"] != "hello" || req["sender_id"] != "rec-1" {
			t.Errorf("request = %v", req)
		}
		if req["quoted_message"] == nil {
			t.Error("quoted message not forwarded")
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": 77, "sender_id": "rec-1", "body": "hello",
			"type": "text", "created_at": 1700000000000,
			"exchange_status": ""}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	msg, err := c.SendMessage(context.Background(), SendRequest{
		ConversationID: "c1", SenderID: "rec-1", RecipientID: "cand", Body: "hello",
		Type:   model.TypeText,
		Quoted: &model.QuotedMessage{ID: "m1", Text: "orig", SenderName: "Sam", Type: model.TypeText},
	})
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID != "77" || msg.ConversationID != "c1" || msg.Timestamp != 1700000000000 {
		t.Errorf("confirmed copy mismatch: %+v", msg)
	}
}

func TestUpdateExchangeStatusPostsAction(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/messages/m1/exchange" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	if err := c.UpdateExchangeStatus(context.Background(), "m1", exchange.ActionAccept, "rec-1"); err != nil {
		t.Fatal(err)
	}
	if got["action"] != "accept" || got["actor_id"] != "rec-1" {
		t.Errorf("request = %v", got)
	}
}

func TestNon2xxIncludesBodySnippet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"not your conversation"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.FetchMessages(context.Background(), "c1", 20, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "not your conversation") {
		t.Errorf("error lacks status or body: %v", err)
	}
}

func TestWireIDRejectsObjects(t *testing.T) {
	var id wireID
	if err := json.Unmarshal([]byte(`{"v":1}`), &id); err == nil {
		t.Error("object id should be rejected")
	}
	if err := json.Unmarshal([]byte(`null`), &id); err != nil || id != "" {
		t.Errorf("null id: err=%v id=%q", err, id)
	}
}
