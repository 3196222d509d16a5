package typing

import (
	"log"

	"github.com/mahaj/realtime-core/pkg/event"
	"github.com/mahaj/realtime-core/pkg/hub"
	"github.com/mahaj/realtime-core/pkg/snowflake"
)

// Fanout delivers a frame to everyone in a room except the origin.
type Fanout interface {
	BroadcastExcept(room string, origin *hub.Client, payload []byte)
}

// Relay broadcasts typing indicators. Nothing is persisted and nothing
// is retried; a dropped signal is simply gone.
type Relay struct {
	fanout Fanout
	ids    *snowflake.Node
}

func NewRelay(fanout Fanout, ids *snowflake.Node) *Relay {
	return &Relay{fanout: fanout, ids: ids}
}

// Signal tells the other members of the channel room that the origin's
// user started or stopped typing.
func (r *Relay) Signal(origin *hub.Client, channelID string, typing bool) {
	payload, err := event.Marshal(r.ids.Generate(), event.TypeUserTyping, event.UserTypingPayload{
		UserID:    origin.UserID,
		ChannelID: channelID,
		IsTyping:  typing,
	})
	if err != nil {
		log.Printf("failed to marshal typing event for channel %s: %v", channelID, err)
		return
	}
	r.fanout.BroadcastExcept(channelID, origin, payload)
}
