package presence

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mahaj/realtime-core/pkg/event"
	"github.com/mahaj/realtime-core/pkg/snowflake"
)

// Broadcaster delivers a frame to every live connection on this gateway.
type Broadcaster interface {
	BroadcastAll(payload []byte)
}

// Store persists point-in-time presence snapshots. Consumed by value,
// never owned; failures are logged and dropped.
type Store interface {
	SetUserOnlineState(ctx context.Context, userID string, online bool, lastSeen time.Time) error
}

// Publisher mirrors boundary transitions onto the event bus for sibling
// gateways and platform consumers. Optional.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Registry counts live connections per user. A user is online iff their
// count is non-zero; only the 0->1 and 1->0 boundaries are announced.
type Registry struct {
	// mu serializes the count transition with the broadcast decision so
	// two near-simultaneous events for one user cannot reorder the
	// online/offline announcements.
	mu       sync.Mutex
	conns    map[string]int
	lastSeen map[string]time.Time

	bus   Broadcaster
	store Store
	pub   Publisher
	ids   *snowflake.Node
}

func NewRegistry(bus Broadcaster, store Store, pub Publisher, ids *snowflake.Node) *Registry {
	r := &Registry{
		conns:    make(map[string]int),
		lastSeen: make(map[string]time.Time),
		bus:      bus,
		store:    store,
		pub:      pub,
		ids:      ids,
	}
	return r
}

// Connect records one more live connection for the user. On the 0->1
// boundary it broadcasts user_status_changed globally and snapshots the
// state to the store off the hot path.
func (r *Registry) Connect(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[userID]++
	if r.conns[userID] != 1 {
		return
	}
	r.transition(userID, true)
}

// Disconnect records one fewer live connection. On the 1->0 boundary it
// broadcasts offline and snapshots lastSeen.
func (r *Registry) Disconnect(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.conns[userID]
	if !ok {
		return
	}
	if n > 1 {
		r.conns[userID] = n - 1
		return
	}
	delete(r.conns, userID)
	r.transition(userID, false)
}

// transition runs with the registry locked: the broadcast is enqueued
// before another event for the same user can be evaluated.
func (r *Registry) transition(userID string, online bool) {
	now := time.Now()
	r.lastSeen[userID] = now

	payload, err := event.Marshal(r.ids.Generate(), event.TypeUserStatusChanged, event.UserStatusPayload{
		UserID:   userID,
		IsOnline: online,
		LastSeen: now.Unix(),
	})
	if err != nil {
		log.Printf("failed to marshal presence event for %s: %v", userID, err)
		return
	}
	r.bus.BroadcastAll(payload)

	// Snapshot and bus mirror are fire-and-forget: the live broadcast
	// already happened and must not wait on storage.
	go func() {
		ctx := context.Background()
		if err := r.store.SetUserOnlineState(ctx, userID, online, now); err != nil {
			log.Printf("failed to persist presence for %s: %v", userID, err)
		}
		if r.pub != nil {
			if err := r.pub.Publish(ctx, payload); err != nil {
				log.Printf("failed to publish presence for %s: %v", userID, err)
			}
		}
	}()
}

// Online reports whether the user has at least one live connection here.
func (r *Registry) Online(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[userID] > 0
}

// Connections reports the live-connection count for a user.
func (r *Registry) Connections(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[userID]
}

// LastSeen reports the timestamp of the user's latest boundary transition.
func (r *Registry) LastSeen(userID string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.lastSeen[userID]
	return t, ok
}
