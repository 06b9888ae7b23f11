package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/hireloop/chatsync/internal/exchange"
	"github.com/hireloop/chatsync/internal/model"
	syncengine "github.com/hireloop/chatsync/internal/sync"
)

type conversationView struct {
	ID                 string        `json:"id"`
	RecruiterID        string        `json:"recruiter_id"`
	CandidateID        string        `json:"candidate_id"`
	JobID              string        `json:"job_id"`
	LastMessagePreview string        `json:"last_message_preview"`
	LastActivityAt     int64         `json:"last_activity_at"`
	Pinned             bool          `json:"pinned"`
	UnreadCount        int           `json:"unread_count"`
	TotalCount         int           `json:"total_count"`
	Messages           []messageView `json:"messages,omitempty"`
	HasMore            *bool         `json:"has_more,omitempty"`
}

type messageView struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	SenderID       string            `json:"sender_id"`
	RecipientID    string            `json:"recipient_id"`
	Type           string            `json:"type"`
	Body           string            `json:"body"`
	MediaURL       string            `json:"media_url,omitempty"`
	ExchangeStatus string            `json:"exchange_status,omitempty"`
	Quoted         *quotedView       `json:"quoted_message,omitempty"`
	Timestamp      int64             `json:"timestamp"`
}

type quotedView struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	SenderName string `json:"sender_name"`
	Type       string `json:"type"`
}

func (s *Server) handleListConversations(w http.ResponseWriter, _ *http.Request) {
	convs := s.store.ListConversations()
	views := make([]conversationView, 0, len(convs))
	for _, c := range convs {
		views = append(views, summaryView(c))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"conversations": views,
		"total_unread":  s.store.TotalUnread(),
	})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	conv, err := s.store.GetConversation(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, fullView(conv, s.pager.HasMore(id)))
}

func (s *Server) handleOpenConversation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	conv, err := s.engine.OpenConversation(r.Context(), id)
	if err != nil && conv.ID == "" {
		s.writeError(w, err)
		return
	}
	// A failed fetch with a previously loaded window still serves stale
	// data; the UI shows a transient notice.
	s.writeJSON(w, http.StatusOK, fullView(conv, s.pager.HasMore(id)))
}

func (s *Server) handleCloseConversation(w http.ResponseWriter, r *http.Request) {
	s.engine.CloseConversation(mux.Vars(r)["id"])
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleLoadOlder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	loaded, err := s.engine.LoadOlder(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"loaded":   loaded,
		"has_more": s.pager.HasMore(id),
	})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecipientID string      `json:"recipient_id"`
		Body        string      `json:"body"`
		Type        string      `json:"type"`
		Quoted      *quotedView `json:"quoted_message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	params := syncengine.SendParams{
		ConversationID: mux.Vars(r)["id"],
		RecipientID:    req.RecipientID,
		Body:           req.Body,
		Type:           model.MessageType(req.Type),
	}
	if req.Quoted != nil {
		params.Quoted = &model.QuotedMessage{
			ID:         req.Quoted.ID,
			Text:       req.Quoted.Text,
			SenderName: req.Quoted.SenderName,
			Type:       model.MessageType(req.Quoted.Type),
		}
	}
	msg, err := s.engine.SendMessage(r.Context(), params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, msgView(msg))
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.engine.DeleteMessage(r.Context(), vars["id"], vars["messageID"]); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handlePin(pinned bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.engine.SetPinned(r.Context(), mux.Vars(r)["id"], pinned); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusNoContent, nil)
	}
}

func (s *Server) handleHide(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Hide(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	vars := mux.Vars(r)
	err := s.engine.ResolveExchange(r.Context(), vars["id"], vars["messageID"], exchange.Action(req.Action))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.MarkAllRead(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Foreground bool `json:"foreground"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	s.poller.SetForeground(req.Foreground)
	s.writeJSON(w, http.StatusNoContent, nil)
}

func summaryView(c model.Conversation) conversationView {
	return conversationView{
		ID:                 c.ID,
		RecruiterID:        c.RecruiterID,
		CandidateID:        c.CandidateID,
		JobID:              c.JobID,
		LastMessagePreview: c.LastMessagePreview,
		LastActivityAt:     c.LastActivityAt,
		Pinned:             c.Pinned,
		UnreadCount:        c.UnreadCount,
		TotalCount:         c.TotalCount,
	}
}

func fullView(c model.Conversation, hasMore bool) conversationView {
	v := summaryView(c)
	v.HasMore = &hasMore
	v.Messages = make([]messageView, 0, len(c.Messages))
	for _, m := range c.Messages {
		v.Messages = append(v.Messages, msgView(m))
	}
	return v
}

func msgView(m model.Message) messageView {
	v := messageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		RecipientID:    m.RecipientID,
		Type:           string(m.Type),
		Body:           m.Body,
		MediaURL:       m.MediaURL,
		ExchangeStatus: string(m.Exchange),
		Timestamp:      m.Timestamp,
	}
	if m.Quoted != nil {
		v.Quoted = &quotedView{
			ID:         m.Quoted.ID,
			Text:       m.Quoted.Text,
			SenderName: m.Quoted.SenderName,
			Type:       string(m.Quoted.Type),
		}
	}
	return v
}
