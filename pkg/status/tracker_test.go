package status

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/mahaj/realtime-core/pkg/event"
	"github.com/mahaj/realtime-core/pkg/hub"
	"github.com/mahaj/realtime-core/pkg/model"
	"github.com/mahaj/realtime-core/pkg/snowflake"
)

type memStore struct {
	mu       sync.Mutex
	statuses map[string]model.MessageStatus
	receipts map[string]model.ReadReceipt // key: messageID + "/" + userID

	advanceErr error
	receiptErr error
}

func newMemStore() *memStore {
	return &memStore{
		statuses: make(map[string]model.MessageStatus),
		receipts: make(map[string]model.ReadReceipt),
	}
}

func (s *memStore) AdvanceMessageStatus(ctx context.Context, messageID string, to model.MessageStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.advanceErr != nil {
		return false, s.advanceErr
	}

	current, ok := s.statuses[messageID]
	if !ok {
		current = model.StatusSent
	}
	if current.Rank() >= to.Rank() {
		return false, nil
	}
	s.statuses[messageID] = to
	return true, nil
}

func (s *memStore) UpsertReadReceipt(ctx context.Context, r model.ReadReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.receiptErr != nil {
		return s.receiptErr
	}
	s.receipts[r.MessageID+"/"+r.UserID] = r
	return nil
}

func (s *memStore) status(messageID string) model.MessageStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.statuses[messageID]; ok {
		return st
	}
	return model.StatusSent
}

func (s *memStore) receiptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.receipts)
}

type roomFrame struct {
	room    string
	payload []byte
}

type fakeFanout struct {
	mu     sync.Mutex
	frames []roomFrame
}

func (f *fakeFanout) Broadcast(room string, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, roomFrame{room: room, payload: append([]byte(nil), payload...)})
}

func (f *fakeFanout) updates(t *testing.T) []event.StatusUpdatePayload {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []event.StatusUpdatePayload
	for _, fr := range f.frames {
		env, err := event.Decode(fr.payload)
		if err != nil {
			t.Fatalf("fanout frame does not decode: %v", err)
		}
		var p event.StatusUpdatePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			t.Fatalf("fanout payload does not decode: %v", err)
		}
		out = append(out, p)
	}
	return out
}

func newTestTracker(t *testing.T) (*Tracker, *memStore, *fakeFanout) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatal(err)
	}
	store := newMemStore()
	fanout := &fakeFanout{}
	return NewTracker(store, fanout, nil, node), store, fanout
}

func TestMarkDeliveredNotifiesSenderRoom(t *testing.T) {
	tracker, store, fanout := newTestTracker(t)

	tracker.MarkDelivered(context.Background(), "m1", "alice")

	if got := store.status("m1"); got != model.StatusDelivered {
		t.Errorf("status = %q, want %q", got, model.StatusDelivered)
	}

	fanout.mu.Lock()
	rooms := make([]string, 0, len(fanout.frames))
	for _, fr := range fanout.frames {
		rooms = append(rooms, fr.room)
	}
	fanout.mu.Unlock()
	if len(rooms) != 1 || rooms[0] != hub.PersonalRoom("alice") {
		t.Fatalf("fanout rooms = %v, want [%s]", rooms, hub.PersonalRoom("alice"))
	}

	updates := fanout.updates(t)
	if updates[0].MessageID != "m1" || updates[0].Status != model.StatusDelivered {
		t.Errorf("update = %+v", updates[0])
	}
}

func TestStatusNeverRegresses(t *testing.T) {
	tracker, store, fanout := newTestTracker(t)

	tracker.MarkRead(context.Background(), "m1", "alice", "bob")
	tracker.MarkDelivered(context.Background(), "m1", "alice")
	tracker.MarkDelivered(context.Background(), "m1", "alice")

	if got := store.status("m1"); got != model.StatusRead {
		t.Errorf("status = %q, want %q", got, model.StatusRead)
	}

	// Only the read update went out; the late delivered acks are no-ops.
	updates := fanout.updates(t)
	if len(updates) != 1 {
		t.Fatalf("update count = %d, want 1", len(updates))
	}
	if updates[0].Status != model.StatusRead {
		t.Errorf("update status = %q, want %q", updates[0].Status, model.StatusRead)
	}
}

func TestMarkDeliveredIdempotent(t *testing.T) {
	tracker, store, fanout := newTestTracker(t)

	tracker.MarkDelivered(context.Background(), "m1", "alice")
	tracker.MarkDelivered(context.Background(), "m1", "alice")

	if got := store.status("m1"); got != model.StatusDelivered {
		t.Errorf("status = %q, want %q", got, model.StatusDelivered)
	}
	if got := len(fanout.updates(t)); got != 1 {
		t.Errorf("update count = %d, want 1", got)
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	tracker, store, _ := newTestTracker(t)

	tracker.MarkRead(context.Background(), "m1", "alice", "bob")
	tracker.MarkRead(context.Background(), "m1", "alice", "bob")

	if got := store.receiptCount(); got != 1 {
		t.Errorf("receipt count = %d, want 1", got)
	}
	if got := store.status("m1"); got != model.StatusRead {
		t.Errorf("status = %q, want %q", got, model.StatusRead)
	}
}

func TestReadWithoutPriorDelivered(t *testing.T) {
	tracker, store, fanout := newTestTracker(t)

	// A client that read a message necessarily received it; no delivered
	// ack is required first.
	tracker.MarkRead(context.Background(), "m1", "alice", "bob")

	if got := store.status("m1"); got != model.StatusRead {
		t.Errorf("status = %q, want %q", got, model.StatusRead)
	}

	updates := fanout.updates(t)
	if len(updates) != 1 {
		t.Fatalf("update count = %d, want 1", len(updates))
	}
	if updates[0].ReadBy != "bob" {
		t.Errorf("update read_by = %q, want %q", updates[0].ReadBy, "bob")
	}
}

func TestPersistenceFailureStillNotifies(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	store := newMemStore()
	store.advanceErr = errors.New("scylla down")
	store.receiptErr = errors.New("scylla down")
	fanout := &fakeFanout{}
	tracker := NewTracker(store, fanout, nil, node)

	tracker.MarkDelivered(context.Background(), "m1", "alice")
	tracker.MarkRead(context.Background(), "m2", "alice", "bob")

	// The live view is authoritative for realtime UX; both updates go out.
	if got := len(fanout.updates(t)); got != 2 {
		t.Errorf("update count = %d, want 2", got)
	}
}
