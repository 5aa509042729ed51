package broadcast

import (
	"encoding/json"
	"time"
)

// MessageKind enumerates the session-channel protocol messages.
type MessageKind string

const (
	KindSubscribeConfirmed     MessageKind = "subscribe_confirmed"
	KindUnsubscribeConfirmed   MessageKind = "unsubscribe_confirmed"
	KindUserPermissionsUpdated MessageKind = "user_permissions_updated"
	KindUserRoleChanged        MessageKind = "user_role_changed"
	KindRolePermissionsUpdated MessageKind = "role_permissions_updated"
	KindSecurityRoleUpdated    MessageKind = "security_role_updated"
	KindError                  MessageKind = "error"
)

// Message is one frame on a subscription channel.
type Message struct {
	Kind      MessageKind     `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	UserIDs   []string        `json:"user_ids,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func newMessage(kind MessageKind) Message {
	return Message{Kind: kind, Timestamp: time.Now().UTC()}
}

func errorMessage(reason string) Message {
	msg := newMessage(KindError)
	msg.Error = reason
	return msg
}
