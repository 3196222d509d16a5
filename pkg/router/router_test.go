package router

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/mahaj/realtime-core/pkg/event"
	"github.com/mahaj/realtime-core/pkg/hub"
	"github.com/mahaj/realtime-core/pkg/model"
	"github.com/mahaj/realtime-core/pkg/snowflake"
	"github.com/mahaj/realtime-core/pkg/status"
	"github.com/mahaj/realtime-core/pkg/typing"
)

type memStore struct {
	mu       sync.Mutex
	statuses map[string]model.MessageStatus
	receipts map[string]model.ReadReceipt
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
	s.receipts[r.MessageID+"/"+r.UserID] = r
	return nil
}

func (s *memStore) receiptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.receipts)
}

type fixture struct {
	hub    *hub.Hub
	router *Router
	store  *memStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatal(err)
	}
	h := hub.NewHub()
	store := newMemStore()
	tracker := status.NewTracker(store, h, nil, node)
	relay := typing.NewRelay(h, node)
	return &fixture{
		hub:    h,
		router: New(h, tracker, relay, node),
		store:  store,
	}
}

func (f *fixture) connect(t *testing.T, userID, connID string) *hub.Client {
	t.Helper()
	c := hub.NewClient(f.hub, nil, userID, connID, f.router)
	f.hub.Register(c)
	return c
}

func frame(t *testing.T, typ event.Type, payload interface{}) []byte {
	t.Helper()
	data, err := event.Marshal(0, typ, payload)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// recv drains every queued frame for a client.
func recv(t *testing.T, c *hub.Client) []*event.Envelope {
	t.Helper()
	var out []*event.Envelope
	for {
		select {
		case data := <-c.Outbound():
			env, err := event.Decode(data)
			if err != nil {
				t.Fatalf("outbound frame does not decode: %v", err)
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func payloadAs(t *testing.T, env *event.Envelope, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		t.Fatalf("payload does not decode: %v", err)
	}
}

func TestMessageLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	a := f.connect(t, "alice", "c1")
	b := f.connect(t, "bob", "c2")

	f.router.Dispatch(a, frame(t, event.TypeJoinRoom, event.RoomPayload{ChannelID: "chan1"}))
	f.router.Dispatch(b, frame(t, event.TypeJoinRoom, event.RoomPayload{ChannelID: "chan1"}))

	// Alice relays an already-persisted message.
	f.router.Dispatch(a, frame(t, event.TypeNewMessage, event.NewMessagePayload{
		ChannelID: "chan1",
		Message:   model.Message{ID: "m1", SenderID: "alice", Content: "hi"},
	}))

	if got := recv(t, a); len(got) != 0 {
		t.Fatalf("sender received %d frames, want 0", len(got))
	}
	bFrames := recv(t, b)
	if len(bFrames) != 1 || bFrames[0].Type != event.TypeNewMessage {
		t.Fatalf("bob frames = %+v, want one new_message", bFrames)
	}
	var nm event.NewMessagePayload
	payloadAs(t, bFrames[0], &nm)
	if nm.Message.ID != "m1" || nm.Message.Status != model.StatusSent {
		t.Errorf("relayed message = %+v, want id m1 status sent", nm.Message)
	}
	if nm.Message.CreatedAt.IsZero() {
		t.Error("relayed message should carry a timestamp")
	}

	// Bob acks delivery; Alice's personal room hears about it.
	f.router.Dispatch(b, frame(t, event.TypeMessageDelivered, event.StatusSignalPayload{
		ChannelID: "chan1", MessageID: "m1", SenderID: "alice",
	}))

	aFrames := recv(t, a)
	if len(aFrames) != 1 || aFrames[0].Type != event.TypeMessageStatusUpdate {
		t.Fatalf("alice frames = %+v, want one message_status_update", aFrames)
	}
	var up event.StatusUpdatePayload
	payloadAs(t, aFrames[0], &up)
	if up.MessageID != "m1" || up.Status != model.StatusDelivered {
		t.Errorf("update = %+v, want m1 delivered", up)
	}

	// Bob reads; Alice learns who read it and exactly one receipt exists.
	f.router.Dispatch(b, frame(t, event.TypeMessageRead, event.StatusSignalPayload{
		ChannelID: "chan1", MessageID: "m1", SenderID: "alice",
	}))

	aFrames = recv(t, a)
	if len(aFrames) != 1 {
		t.Fatalf("alice frames = %d, want 1", len(aFrames))
	}
	payloadAs(t, aFrames[0], &up)
	if up.Status != model.StatusRead || up.ReadBy != "bob" {
		t.Errorf("update = %+v, want read by bob", up)
	}
	if got := f.store.receiptCount(); got != 1 {
		t.Errorf("receipt count = %d, want 1", got)
	}
}

func TestTypingOrderPreserved(t *testing.T) {
	f := newFixture(t)
	a := f.connect(t, "alice", "c1")
	b := f.connect(t, "bob", "c2")

	f.router.Dispatch(a, frame(t, event.TypeJoinRoom, event.RoomPayload{ChannelID: "chan1"}))
	f.router.Dispatch(b, frame(t, event.TypeJoinRoom, event.RoomPayload{ChannelID: "chan1"}))

	f.router.Dispatch(a, frame(t, event.TypeTypingStart, event.TypingPayload{ChannelID: "chan1"}))
	f.router.Dispatch(a, frame(t, event.TypeTypingStop, event.TypingPayload{ChannelID: "chan1"}))

	if got := recv(t, a); len(got) != 0 {
		t.Fatalf("origin received %d typing frames, want 0", len(got))
	}

	bFrames := recv(t, b)
	if len(bFrames) != 2 {
		t.Fatalf("bob frames = %d, want 2", len(bFrames))
	}
	var first, second event.UserTypingPayload
	payloadAs(t, bFrames[0], &first)
	payloadAs(t, bFrames[1], &second)
	if !first.IsTyping || second.IsTyping {
		t.Errorf("typing order = (%v, %v), want (true, false)", first.IsTyping, second.IsTyping)
	}
	if first.UserID != "alice" || first.ChannelID != "chan1" {
		t.Errorf("typing payload = %+v", first)
	}
}

func TestSpoofedSenderDropped(t *testing.T) {
	f := newFixture(t)
	a := f.connect(t, "alice", "c1")
	b := f.connect(t, "bob", "c2")
	f.router.Dispatch(a, frame(t, event.TypeJoinRoom, event.RoomPayload{ChannelID: "chan1"}))
	f.router.Dispatch(b, frame(t, event.TypeJoinRoom, event.RoomPayload{ChannelID: "chan1"}))

	// Bob claims to be alice; the relay is dropped.
	f.router.Dispatch(b, frame(t, event.TypeNewMessage, event.NewMessagePayload{
		ChannelID: "chan1",
		Message:   model.Message{ID: "m1", SenderID: "alice", Content: "forged"},
	}))

	if got := recv(t, a); len(got) != 0 {
		t.Errorf("alice received %d frames from forged relay, want 0", len(got))
	}
}

func TestNotAMemberDropped(t *testing.T) {
	f := newFixture(t)
	a := f.connect(t, "alice", "c1")
	b := f.connect(t, "bob", "c2")
	f.router.Dispatch(b, frame(t, event.TypeJoinRoom, event.RoomPayload{ChannelID: "chan1"}))

	// Alice never joined chan1: both relay and typing are dropped.
	f.router.Dispatch(a, frame(t, event.TypeNewMessage, event.NewMessagePayload{
		ChannelID: "chan1",
		Message:   model.Message{ID: "m1", SenderID: "alice"},
	}))
	f.router.Dispatch(a, frame(t, event.TypeTypingStart, event.TypingPayload{ChannelID: "chan1"}))

	if got := recv(t, b); len(got) != 0 {
		t.Errorf("bob received %d frames, want 0", len(got))
	}
}

func TestMalformedFramesAreContained(t *testing.T) {
	f := newFixture(t)
	a := f.connect(t, "alice", "c1")

	tests := []struct {
		name string
		data []byte
	}{
		{name: "not json", data: []byte("garbage")},
		{name: "missing type", data: []byte(`{"payload":{}}`)},
		{name: "unknown type", data: []byte(`{"type":"reboot_server","payload":{}}`)},
		{name: "bad payload shape", data: []byte(`{"type":"join_room","payload":"nope"}`)},
		{name: "empty channel", data: []byte(`{"type":"join_room","payload":{"channel_id":""}}`)},
		{name: "delivered without ids", data: []byte(`{"type":"message_delivered","payload":{}}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Must not panic and must not emit anything.
			f.router.Dispatch(a, tt.data)
			if got := recv(t, a); len(got) != 0 {
				t.Errorf("received %d frames, want 0", len(got))
			}
		})
	}

	// The connection is still usable afterwards.
	f.router.Dispatch(a, frame(t, event.TypeJoinRoom, event.RoomPayload{ChannelID: "chan1"}))
	if !f.hub.InRoom(a, "chan1") {
		t.Error("connection should survive malformed frames")
	}
}

func TestLeaveRoomStopsDelivery(t *testing.T) {
	f := newFixture(t)
	a := f.connect(t, "alice", "c1")
	b := f.connect(t, "bob", "c2")
	f.router.Dispatch(a, frame(t, event.TypeJoinRoom, event.RoomPayload{ChannelID: "chan1"}))
	f.router.Dispatch(b, frame(t, event.TypeJoinRoom, event.RoomPayload{ChannelID: "chan1"}))

	f.router.Dispatch(b, frame(t, event.TypeLeaveRoom, event.RoomPayload{ChannelID: "chan1"}))
	f.router.Dispatch(a, frame(t, event.TypeNewMessage, event.NewMessagePayload{
		ChannelID: "chan1",
		Message:   model.Message{ID: "m1", SenderID: "alice"},
	}))

	if got := recv(t, b); len(got) != 0 {
		t.Errorf("bob received %d frames after leaving, want 0", len(got))
	}
}

func TestRelayExternalReachesPersonalRoom(t *testing.T) {
	f := newFixture(t)
	a := f.connect(t, "alice", "c1")

	payload, _ := json.Marshal(event.NewMessagePayload{
		ChannelID: "chan1",
		Message:   model.Message{ID: "m9", SenderID: "bob", Status: model.StatusSent},
	})
	f.router.RelayExternal(hub.PersonalRoom("alice"), event.TypeNewMessage, payload)

	frames := recv(t, a)
	if len(frames) != 1 || frames[0].Type != event.TypeNewMessage {
		t.Fatalf("frames = %+v, want one new_message", frames)
	}
	if frames[0].ID == 0 {
		t.Error("external relay should carry a server-assigned id")
	}

	var nm event.NewMessagePayload
	payloadAs(t, frames[0], &nm)
	if nm.Message.ID != "m9" {
		t.Errorf("message id = %q, want m9", nm.Message.ID)
	}
}

func TestRelayExternalMessageDeleted(t *testing.T) {
	f := newFixture(t)
	a := f.connect(t, "alice", "c1")
	b := f.connect(t, "bob", "c2")
	f.router.Dispatch(a, frame(t, event.TypeJoinRoom, event.RoomPayload{ChannelID: "chan1"}))
	f.router.Dispatch(b, frame(t, event.TypeJoinRoom, event.RoomPayload{ChannelID: "chan1"}))

	payload, _ := json.Marshal(event.MessageDeletedPayload{MessageID: "m1", ChannelID: "chan1"})
	f.router.RelayExternal("chan1", event.TypeMessageDeleted, payload)

	for _, c := range []*hub.Client{a, b} {
		frames := recv(t, c)
		if len(frames) != 1 || frames[0].Type != event.TypeMessageDeleted {
			t.Errorf("%s frames = %+v, want one message_deleted", c.UserID, frames)
		}
	}
}
