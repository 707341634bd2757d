package arbitration

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const snapshotTTL = 24 * time.Hour

// Store keeps per-session arbitration snapshots in redis so a restarted
// node restores live sessions instead of electing a fresh controller.
type Store struct {
	redis *redis.Client
}

func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

func snapshotKey(sessionID string) string {
	return "arb:" + sessionID + ":state"
}

func (s *Store) Save(ctx context.Context, sessionID string, st *State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, snapshotKey(sessionID), data, snapshotTTL).Err()
}

func (s *Store) Load(ctx context.Context, sessionID string) (*State, error) {
	data, err := s.redis.Get(ctx, snapshotKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	return s.redis.Del(ctx, snapshotKey(sessionID)).Err()
}
