package router

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/mahaj/realtime-core/pkg/event"
	"github.com/mahaj/realtime-core/pkg/hub"
	"github.com/mahaj/realtime-core/pkg/model"
	"github.com/mahaj/realtime-core/pkg/snowflake"
	"github.com/mahaj/realtime-core/pkg/status"
	"github.com/mahaj/realtime-core/pkg/typing"
)

// Router maps inbound signal kinds to handlers and fanout targets. No
// error in handling one signal terminates the connection: malformed or
// unauthorized frames are logged and dropped.
type Router struct {
	hub     *hub.Hub
	tracker *status.Tracker
	typing  *typing.Relay
	ids     *snowflake.Node
}

func New(h *hub.Hub, tracker *status.Tracker, relay *typing.Relay, ids *snowflake.Node) *Router {
	return &Router{hub: h, tracker: tracker, typing: relay, ids: ids}
}

// Dispatch handles one inbound frame from a live connection. Implements
// hub.Dispatcher; frames from one connection arrive here in order.
func (r *Router) Dispatch(c *hub.Client, data []byte) {
	env, err := event.Decode(data)
	if err != nil {
		log.Printf("dropping malformed frame from user %s: %v", c.UserID, err)
		return
	}

	switch env.Type {
	case event.TypeJoinRoom:
		var p event.RoomPayload
		if !r.decode(c, env, &p) || p.ChannelID == "" {
			return
		}
		r.hub.Join(c, p.ChannelID)

	case event.TypeLeaveRoom:
		var p event.RoomPayload
		if !r.decode(c, env, &p) || p.ChannelID == "" {
			return
		}
		r.hub.Leave(c, p.ChannelID)

	case event.TypeNewMessage:
		r.relayMessage(c, env)

	case event.TypeMessageDelivered:
		var p event.StatusSignalPayload
		if !r.decode(c, env, &p) || p.MessageID == "" || p.SenderID == "" {
			return
		}
		r.tracker.MarkDelivered(context.Background(), p.MessageID, p.SenderID)

	case event.TypeMessageRead:
		var p event.StatusSignalPayload
		if !r.decode(c, env, &p) || p.MessageID == "" || p.SenderID == "" {
			return
		}
		r.tracker.MarkRead(context.Background(), p.MessageID, p.SenderID, c.UserID)

	case event.TypeTypingStart, event.TypeTypingStop:
		var p event.TypingPayload
		if !r.decode(c, env, &p) || p.ChannelID == "" {
			return
		}
		if !r.hub.InRoom(c, p.ChannelID) {
			log.Printf("dropping typing signal from user %s for unjoined room %s", c.UserID, p.ChannelID)
			return
		}
		r.typing.Signal(c, p.ChannelID, env.Type == event.TypeTypingStart)

	default:
		log.Printf("dropping frame with unknown type %q from user %s", env.Type, c.UserID)
	}
}

// relayMessage forwards an already-persisted message to the other live
// connections in its channel room. Pure relay: the sending API owns the
// content; nothing is written here.
func (r *Router) relayMessage(c *hub.Client, env *event.Envelope) {
	var p event.NewMessagePayload
	if !r.decode(c, env, &p) || p.ChannelID == "" {
		return
	}
	if p.Message.SenderID != c.UserID {
		log.Printf("dropping relay from user %s claiming sender %s", c.UserID, p.Message.SenderID)
		return
	}
	if !r.hub.InRoom(c, p.ChannelID) {
		log.Printf("dropping relay from user %s for unjoined room %s", c.UserID, p.ChannelID)
		return
	}

	p.Message.ChannelID = p.ChannelID
	if p.Message.Status == "" {
		p.Message.Status = model.StatusSent
	}
	if p.Message.CreatedAt.IsZero() {
		p.Message.CreatedAt = time.Now()
	}

	payload, err := event.Marshal(r.ids.Generate(), event.TypeNewMessage, p)
	if err != nil {
		log.Printf("failed to marshal relayed message %s: %v", p.Message.ID, err)
		return
	}
	r.hub.BroadcastExcept(p.ChannelID, c, payload)
}

// RelayExternal fans a collaborator-originated event out to one room.
// This is the primitive the request-handling layer calls after it has
// persisted a message, a friend request, or a channel creation.
func (r *Router) RelayExternal(room string, t event.Type, payload json.RawMessage) {
	if room == "" || t == "" {
		log.Printf("dropping external relay with empty room or type")
		return
	}
	frame, err := event.Marshal(r.ids.Generate(), t, payload)
	if err != nil {
		log.Printf("failed to marshal external relay for room %s: %v", room, err)
		return
	}
	r.hub.Broadcast(room, frame)
}

func (r *Router) decode(c *hub.Client, env *event.Envelope, dst interface{}) bool {
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		log.Printf("dropping %s frame with bad payload from user %s: %v", env.Type, c.UserID, err)
		return false
	}
	return true
}
