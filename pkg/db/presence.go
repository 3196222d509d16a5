package db

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceStore keeps point-in-time presence snapshots in Redis so the
// HTTP collaborators can answer "who is online" without touching the
// gateway's in-memory registry.
type PresenceStore struct {
	redis *redis.Client
}

func NewPresenceStore(redisAddr string) *PresenceStore {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	return &PresenceStore{redis: rdb}
}

// SetUserOnlineState writes the snapshot for one boundary transition.
func (p *PresenceStore) SetUserOnlineState(ctx context.Context, userID string, online bool, lastSeen time.Time) error {
	pipe := p.redis.TxPipeline()
	pipe.HSet(ctx, "presence:"+userID,
		"online", online,
		"last_seen", lastSeen.UnixMilli(),
	)
	if online {
		pipe.SAdd(ctx, "online_users", userID)
	} else {
		pipe.SRem(ctx, "online_users", userID)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// OnlineUsers lists users with at least one live connection anywhere.
func (p *PresenceStore) OnlineUsers(ctx context.Context) ([]string, error) {
	return p.redis.SMembers(ctx, "online_users").Result()
}

func (p *PresenceStore) Close() error {
	return p.redis.Close()
}
