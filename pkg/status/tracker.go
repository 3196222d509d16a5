package status

import (
	"context"
	"log"
	"time"

	"github.com/mahaj/realtime-core/pkg/event"
	"github.com/mahaj/realtime-core/pkg/hub"
	"github.com/mahaj/realtime-core/pkg/model"
	"github.com/mahaj/realtime-core/pkg/snowflake"
)

// Store is the durable collaborator for delivery state.
type Store interface {
	AdvanceMessageStatus(ctx context.Context, messageID string, to model.MessageStatus) (bool, error)
	UpsertReadReceipt(ctx context.Context, r model.ReadReceipt) error
}

// Notifier delivers a frame to one room.
type Notifier interface {
	Broadcast(room string, payload []byte)
}

// Publisher mirrors status updates onto the event bus. Optional.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Tracker advances messages through sent -> delivered -> read and tells
// the sender's personal room about it. Persistence failures are logged
// and the live update still goes out; the collaborator store reconciles
// durable state on its own read path.
type Tracker struct {
	store  Store
	fanout Notifier
	pub    Publisher
	ids    *snowflake.Node
}

func NewTracker(store Store, fanout Notifier, pub Publisher, ids *snowflake.Node) *Tracker {
	return &Tracker{store: store, fanout: fanout, pub: pub, ids: ids}
}

// MarkDelivered records that some device received the message. Idempotent:
// if the status already reached delivered or read, nothing happens.
func (t *Tracker) MarkDelivered(ctx context.Context, messageID, senderID string) {
	advanced, err := t.store.AdvanceMessageStatus(ctx, messageID, model.StatusDelivered)
	if err != nil {
		log.Printf("failed to persist delivered status for message %s: %v", messageID, err)
	} else if !advanced {
		// Already delivered or read; never regress what clients observed.
		return
	}

	t.notify(ctx, senderID, event.StatusUpdatePayload{
		MessageID: messageID,
		Status:    model.StatusDelivered,
	})
}

// MarkRead upserts the reader's receipt and advances the status to read.
// A read without a prior delivered ack is accepted: a client that read a
// message necessarily received it.
func (t *Tracker) MarkRead(ctx context.Context, messageID, senderID, readerID string) {
	receipt := model.ReadReceipt{
		MessageID: messageID,
		UserID:    readerID,
		ReadAt:    time.Now(),
	}
	if err := t.store.UpsertReadReceipt(ctx, receipt); err != nil {
		log.Printf("failed to upsert read receipt (%s, %s): %v", messageID, readerID, err)
	}

	if _, err := t.store.AdvanceMessageStatus(ctx, messageID, model.StatusRead); err != nil {
		log.Printf("failed to persist read status for message %s: %v", messageID, err)
	}

	// Read is terminal, so repeating the update cannot regress anything;
	// the sender always learns who read the message.
	t.notify(ctx, senderID, event.StatusUpdatePayload{
		MessageID: messageID,
		Status:    model.StatusRead,
		ReadBy:    readerID,
	})
}

func (t *Tracker) notify(ctx context.Context, senderID string, update event.StatusUpdatePayload) {
	payload, err := event.Marshal(t.ids.Generate(), event.TypeMessageStatusUpdate, update)
	if err != nil {
		log.Printf("failed to marshal status update for message %s: %v", update.MessageID, err)
		return
	}
	t.fanout.Broadcast(hub.PersonalRoom(senderID), payload)

	if t.pub != nil {
		go func() {
			if err := t.pub.Publish(context.Background(), payload); err != nil {
				log.Printf("failed to publish status update for message %s: %v", update.MessageID, err)
			}
		}()
	}
}
