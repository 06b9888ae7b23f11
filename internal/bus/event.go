package bus

import "time"

// Event kinds published by the engine. Subscribers filter by prefix,
// e.g. "push." matches every event coming off the live channel.
const (
	KindPushMessage             = "push.message"
	KindPushMessageUpdated      = "push.message_updated"
	KindPushConversationUpdated = "push.conversation_updated"

	KindMessageUpserted     = "message.upserted"
	KindMessageDeleted      = "message.deleted"
	KindConversationUpdated = "conversation.updated"

	KindLiveConnected     = "live.connected"
	KindLiveDisconnected  = "live.disconnected"
	KindLiveStatusChanged = "live.status_changed"
)

// Event is a domain event flowing through the in-process bus.
// ConversationID is set for events scoped to a single conversation.
type Event struct {
	Kind           string
	ConversationID string
	At             time.Time
	Payload        any
}
