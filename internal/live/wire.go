package live

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hireloop/chatsync/internal/bus"
	"github.com/hireloop/chatsync/internal/exchange"
	"github.com/hireloop/chatsync/internal/model"
)

// frame is the push channel envelope: an event name plus a loosely-typed
// payload. The channel predates the backend's field-naming cleanup, so
// payload fields may arrive camelCase or snake_case and ids may be
// strings or numbers; everything is normalized here and nowhere else.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Push channel event names.
const (
	evNewMessage          = "new_message"
	evMessageUpdated      = "message_updated"
	evConversationUpdated = "conversation_updated"
	evJoinConversation    = "join_conversation"
	evLeaveConversation   = "leave_conversation"
)

// parseFrame decodes one inbound frame into a bus event. A payload
// without a conversation id is malformed and rejected.
func parseFrame(data []byte) (bus.Event, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return bus.Event{}, fmt.Errorf("decode frame: %w", err)
	}

	fields, err := decodeFields(f.Data)
	if err != nil {
		return bus.Event{}, fmt.Errorf("decode %s payload: %w", f.Event, err)
	}

	switch f.Event {
	case evNewMessage:
		return parseNewMessage(fields)
	case evMessageUpdated:
		return parseMessageUpdated(fields)
	case evConversationUpdated:
		return parseConversationUpdated(fields)
	}
	return bus.Event{}, fmt.Errorf("unknown event %q", f.Event)
}

func parseNewMessage(fields fieldSet) (bus.Event, error) {
	convID := fields.id("conversation_id", "conversationId")
	if convID == "" {
		return bus.Event{}, fmt.Errorf("new_message without conversation id")
	}
	msg := &model.Message{
		ID:             fields.id("id", "message_id", "messageId"),
		ConversationID: convID,
		SenderID:       fields.id("sender_id", "senderId"),
		RecipientID:    fields.id("recipient_id", "recipientId"),
		Type:           model.MessageType(fields.str("type", "message_type", "messageType")),
		Body:           fields.str("body", "content", "text"),
		MediaURL:       fields.str("media_url", "mediaUrl"),
		Exchange:       exchange.State(fields.str("exchange_status", "exchangeStatus")),
		Timestamp:      fields.ts("created_at", "createdAt", "timestamp"),
	}
	if msg.ID == "" {
		return bus.Event{}, fmt.Errorf("new_message without message id")
	}
	if msg.Type == "" {
		msg.Type = model.TypeText
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	return bus.Event{Kind: bus.KindPushMessage, ConversationID: convID, Payload: msg}, nil
}

func parseMessageUpdated(fields fieldSet) (bus.Event, error) {
	convID := fields.id("conversation_id", "conversationId")
	msgID := fields.id("id", "message_id", "messageId")
	if convID == "" || msgID == "" {
		return bus.Event{}, fmt.Errorf("message_updated without ids")
	}
	patch := model.MessagePatch{ConversationID: convID, MessageID: msgID}
	if s, ok := fields.optStr("body", "content", "text"); ok {
		patch.Body = &s
	}
	if s, ok := fields.optStr("media_url", "mediaUrl"); ok {
		patch.MediaURL = &s
	}
	if s, ok := fields.optStr("exchange_status", "exchangeStatus"); ok {
		st := exchange.State(s)
		patch.Exchange = &st
	}
	return bus.Event{Kind: bus.KindPushMessageUpdated, ConversationID: convID, Payload: patch}, nil
}

func parseConversationUpdated(fields fieldSet) (bus.Event, error) {
	convID := fields.id("conversation_id", "conversationId", "id")
	if convID == "" {
		return bus.Event{}, fmt.Errorf("conversation_updated without conversation id")
	}
	patch := model.ConversationPatch{ConversationID: convID}
	if n, ok := fields.optInt("unread_count", "unreadCount"); ok {
		patch.UnreadCount = &n
	}
	if ts := fields.ts("updated_at", "updatedAt"); ts != 0 {
		patch.UpdatedAt = &ts
	}
	return bus.Event{Kind: bus.KindPushConversationUpdated, ConversationID: convID, Payload: patch}, nil
}

// fieldSet is a decoded payload keyed by raw field name.
type fieldSet map[string]json.RawMessage

func decodeFields(data json.RawMessage) (fieldSet, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	var fields fieldSet
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// id returns the first present alias as a canonical string id,
// accepting string or numeric JSON values.
func (f fieldSet) id(names ...string) string {
	for _, name := range names {
		raw, ok := f[name]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

func (f fieldSet) str(names ...string) string {
	s, _ := f.optStr(names...)
	return s
}

func (f fieldSet) optStr(names ...string) (string, bool) {
	for _, name := range names {
		raw, ok := f[name]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, true
		}
	}
	return "", false
}

func (f fieldSet) optInt(names ...string) (int, bool) {
	for _, name := range names {
		raw, ok := f[name]
		if !ok {
			continue
		}
		var n int
		if err := json.Unmarshal(raw, &n); err == nil {
			return n, true
		}
	}
	return 0, false
}

// ts decodes a timestamp alias as Unix milliseconds or RFC 3339.
func (f fieldSet) ts(names ...string) int64 {
	for _, name := range names {
		raw, ok := f[name]
		if !ok {
			continue
		}
		var n int64
		if err := json.Unmarshal(raw, &n); err == nil {
			return n
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if parsed, err := time.Parse(time.RFC3339, s); err == nil {
				return parsed.UnixMilli()
			}
		}
	}
	return 0
}

// controlFrame builds a join/leave room control message.
func controlFrame(event, conversationID string) ([]byte, error) {
	return json.Marshal(frame{
		Event: event,
		Data:  json.RawMessage(fmt.Sprintf(`{"conversation_id":%q}`, conversationID)),
	})
}
