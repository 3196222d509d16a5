package event

import (
	"encoding/json"
	"errors"

	"github.com/mahaj/realtime-core/pkg/model"
)

// Type tags every frame on the socket. Inbound types are the signals
// clients may send; outbound types are what the gateway emits.
type Type string

const (
	// Inbound
	TypeJoinRoom         Type = "join_room"
	TypeLeaveRoom        Type = "leave_room"
	TypeNewMessage       Type = "new_message"
	TypeMessageDelivered Type = "message_delivered"
	TypeMessageRead      Type = "message_read"
	TypeTypingStart      Type = "typing_start"
	TypeTypingStop       Type = "typing_stop"

	// Outbound
	TypeMessageStatusUpdate Type = "message_status_update"
	TypeUserTyping          Type = "user_typing"
	TypeUserStatusChanged   Type = "user_status_changed"
	TypeMessageDeleted      Type = "message_deleted"
	TypeChannelCreated      Type = "channel_created"
)

var ErrMissingType = errors.New("event: missing type")

// Envelope wraps every frame. ID is a server-assigned snowflake on
// outbound frames; clients may use it for dedup.
type Envelope struct {
	ID      int64           `json:"id,omitempty"`
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode parses a raw frame into an envelope. Payload stays raw; the
// router decodes it per type.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Type == "" {
		return nil, ErrMissingType
	}
	return &env, nil
}

// Marshal builds an outbound frame.
func Marshal(id int64, t Type, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{ID: id, Type: t, Payload: raw})
}

type RoomPayload struct {
	ChannelID string `json:"channel_id"`
}

type NewMessagePayload struct {
	ChannelID string        `json:"channel_id"`
	Message   model.Message `json:"message"`
}

type StatusSignalPayload struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	SenderID  string `json:"sender_id"`
}

type StatusUpdatePayload struct {
	MessageID string              `json:"message_id"`
	Status    model.MessageStatus `json:"status"`
	ReadBy    string              `json:"read_by,omitempty"`
}

type TypingPayload struct {
	ChannelID string `json:"channel_id"`
}

type UserTypingPayload struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	IsTyping  bool   `json:"is_typing"`
}

type UserStatusPayload struct {
	UserID   string `json:"user_id"`
	IsOnline bool   `json:"is_online"`
	LastSeen int64  `json:"last_seen_unix,omitempty"`
}

type MessageDeletedPayload struct {
	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id"`
}
