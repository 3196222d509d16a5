package model

import "time"

// MessageStatus is the delivery lifecycle of a message. Transitions only
// move forward: sent -> delivered -> read.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Rank orders statuses for monotonicity checks. Unknown statuses rank
// lowest so a garbage value can never block a legitimate advance.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// Message is owned by the durable store. The realtime core only relays it
// and advances its status field.
type Message struct {
	ID        string        `json:"id"`
	ChannelID string        `json:"channel_id"`
	SenderID  string        `json:"sender_id"`
	Content   string        `json:"content"`
	ReplyToID string        `json:"reply_to_id,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	Status    MessageStatus `json:"status"`
	DeletedAt *time.Time    `json:"deleted_at,omitempty"`
}

// ReadReceipt records that a user has read a message. At most one per
// (message, user) pair; writes are upserts.
type ReadReceipt struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

// Presence is the point-in-time snapshot written to the store on each
// online/offline boundary transition.
type Presence struct {
	UserID   string    `json:"user_id"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}
