package model

import "github.com/hireloop/chatsync/internal/exchange"

// MessageType enumerates the message kinds the backend delivers.
type MessageType string

const (
	TypeText            MessageType = "text"
	TypeImage           MessageType = "image"
	TypeFile            MessageType = "file"
	TypeLocation        MessageType = "location"
	TypeExchangeRequest MessageType = "exchange_request"
	TypeInterviewInvite MessageType = "interview_invitation"
	TypeSystem          MessageType = "system"
)

// QuotedMessage is a display snapshot of a quoted message, never a live
// back-reference into the window.
type QuotedMessage struct {
	ID         string
	Text       string
	SenderName string
	Type       MessageType
}

// Message is a single confirmed message inside a conversation window.
// Timestamps are Unix milliseconds. Seq is the store-assigned arrival
// sequence used to break timestamp ties; it is stable across merges.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	RecipientID    string
	Type           MessageType
	Body           string
	MediaURL       string
	Exchange       exchange.State
	Quoted         *QuotedMessage
	Timestamp      int64
	Seq            int64
}

// Conversation holds a (possibly partial) window of messages plus the
// denormalized fields the conversation list renders from.
type Conversation struct {
	ID          string
	RecruiterID string
	CandidateID string
	JobID       string

	// Messages is the loaded window, ascending by (Timestamp, Seq),
	// unique by ID. It may be a strict subset of the full history.
	Messages []Message

	// TotalCount is the server-reported message total. It never decreases
	// except through an authoritative latest-window fetch.
	TotalCount int

	LastMessagePreview string
	LastActivityAt     int64
	Pinned             bool
	UnreadCount        int
	Hidden             bool

	// HasWindow distinguishes a summary (list refresh, no window) from a
	// conversation whose Messages slice is meaningful.
	HasWindow bool
}

// MessagePatch is an in-place field update for a single message
// (message_updated push). Nil fields are left untouched.
type MessagePatch struct {
	ConversationID string
	MessageID      string
	Body           *string
	MediaURL       *string
	Exchange       *exchange.State
}

// ConversationPatch carries the only conversation-level fields a
// conversation_updated push may merge.
type ConversationPatch struct {
	ConversationID string
	UnreadCount    *int
	UpdatedAt      *int64
}
