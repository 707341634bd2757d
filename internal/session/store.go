package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/shared"
)

const sessionTTL = 24 * time.Hour

type Store struct {
	redis *redis.Client
}

func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

func (s *Store) Create(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = shared.NewID("sess_")
	}
	sess.Status = StatusActive
	sess.StartedAt = time.Now()
	sess.LastActiveAt = time.Now()

	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	return s.redis.Set(ctx, sess.RedisKey(), data, sessionTTL).Err()
}

func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.redis.Get(ctx, "session:"+id).Bytes()
	if err == redis.Nil {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) Update(ctx context.Context, sess *Session) error {
	sess.LastActiveAt = time.Now()
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, sess.RedisKey(), data, sessionTTL).Err()
}

func (s *Store) End(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.Status = StatusEnded
	return s.Update(ctx, sess)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	pipe := s.redis.Pipeline()
	pipe.Del(ctx, "session:"+id)
	pipe.Del(ctx, MembersRedisKey(id))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.redis.Exists(ctx, "session:"+id).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) AddMember(ctx context.Context, sessionID string, clientID shared.ClientID) error {
	pipe := s.redis.Pipeline()
	pipe.SAdd(ctx, MembersRedisKey(sessionID), string(clientID))
	pipe.Expire(ctx, MembersRedisKey(sessionID), sessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) RemoveMember(ctx context.Context, sessionID string, clientID shared.ClientID) error {
	return s.redis.SRem(ctx, MembersRedisKey(sessionID), string(clientID)).Err()
}

func (s *Store) Members(ctx context.Context, sessionID string) ([]shared.ClientID, error) {
	ids, err := s.redis.SMembers(ctx, MembersRedisKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	members := make([]shared.ClientID, 0, len(ids))
	for _, id := range ids {
		members = append(members, shared.ClientID(id))
	}
	return members, nil
}

func (s *Store) IsMember(ctx context.Context, sessionID string, clientID shared.ClientID) (bool, error) {
	return s.redis.SIsMember(ctx, MembersRedisKey(sessionID), string(clientID)).Result()
}

func (s *Store) MemberCount(ctx context.Context, sessionID string) (int64, error) {
	return s.redis.SCard(ctx, MembersRedisKey(sessionID)).Result()
}

func (s *Store) Touch(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	return s.Update(ctx, sess)
}
