package backend

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hireloop/chatsync/internal/exchange"
	"github.com/hireloop/chatsync/internal/model"
)

// wireID accepts either a JSON string or number and canonicalizes to a
// string. The backend is not consistent about which it emits, and ids
// must never be compared across representations past this boundary.
type wireID string

func (id *wireID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = wireID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*id = wireID(n.String())
		return nil
	}
	return fmt.Errorf("id is neither string nor number: %s", b)
}

// wireTime accepts an ISO-8601 string or Unix-millisecond number and
// canonicalizes to Unix milliseconds.
type wireTime int64

func (t *wireTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*t = 0
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*t = wireTime(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp is neither number nor string: %s", b)
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	*t = wireTime(parsed.UnixMilli())
	return nil
}

type conversationDTO struct {
	ID             wireID       `json:"id"`
	RecruiterID    wireID       `json:"recruiter_id"`
	CandidateID    wireID       `json:"candidate_id"`
	JobID          wireID       `json:"job_id"`
	LastMessage    string       `json:"last_message"`
	LastActivityAt wireTime     `json:"last_activity_at"`
	TotalMessages  int          `json:"total_messages"`
	UnreadCount    int          `json:"unread_count"`
	Pinned         bool         `json:"pinned"`
	Hidden         bool         `json:"hidden"`
	Messages       []messageDTO `json:"messages,omitempty"`
}

type messageDTO struct {
	ID             wireID     `json:"id"`
	ConversationID wireID     `json:"conversation_id"`
	SenderID       wireID     `json:"sender_id"`
	RecipientID    wireID     `json:"recipient_id"`
	Type           string     `json:"type"`
	Body           string     `json:"body"`
	MediaURL       string     `json:"media_url"`
	ExchangeStatus string     `json:"exchange_status"`
	Quoted         *quotedDTO `json:"quoted_message"`
	CreatedAt      wireTime   `json:"created_at"`
}

type quotedDTO struct {
	ID         wireID `json:"id"`
	Text       string `json:"text"`
	SenderName string `json:"sender_name"`
	Type       string `json:"type"`
}

type messagePageDTO struct {
	Messages   []messageDTO `json:"messages"`
	TotalCount int          `json:"total_count"`
}

func (d conversationDTO) toModel() model.Conversation {
	c := model.Conversation{
		ID:                 string(d.ID),
		RecruiterID:        string(d.RecruiterID),
		CandidateID:        string(d.CandidateID),
		JobID:              string(d.JobID),
		LastMessagePreview: d.LastMessage,
		LastActivityAt:     int64(d.LastActivityAt),
		TotalCount:         d.TotalMessages,
		UnreadCount:        d.UnreadCount,
		Pinned:             d.Pinned,
		Hidden:             d.Hidden,
	}
	if len(d.Messages) > 0 {
		c.HasWindow = true
		for _, m := range d.Messages {
			c.Messages = append(c.Messages, m.toModel(c.ID))
		}
	}
	return c
}

func (d messageDTO) toModel(conversationID string) model.Message {
	if cid := string(d.ConversationID); cid != "" {
		conversationID = cid
	}
	m := model.Message{
		ID:             string(d.ID),
		ConversationID: conversationID,
		SenderID:       string(d.SenderID),
		RecipientID:    string(d.RecipientID),
		Type:           model.MessageType(d.Type),
		Body:           d.Body,
		MediaURL:       d.MediaURL,
		Exchange:       exchange.State(d.ExchangeStatus),
		Timestamp:      int64(d.CreatedAt),
	}
	if m.Type == "" {
		m.Type = model.TypeText
	}
	if d.Quoted != nil {
		m.Quoted = &model.QuotedMessage{
			ID:         string(d.Quoted.ID),
			Text:       d.Quoted.Text,
			SenderName: d.Quoted.SenderName,
			Type:       model.MessageType(d.Quoted.Type),
		}
	}
	return m
}
