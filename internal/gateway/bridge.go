package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/arbitration"
	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/shared"
)

const (
	sessionEventChannel = "arb:session:%s:events"
	sessionPresenceKey  = "arb:session:%s:peers"

	presenceTTL = 24 * time.Hour
)

// envelope is the cross-node wire form. TargetClientID is empty for
// broadcasts; NodeID lets the publishing node skip its own copy.
type envelope struct {
	NodeID         string               `json:"node_id"`
	TargetClientID shared.ClientID      `json:"target_client_id,omitempty"`
	Message        *arbitration.Message `json:"message"`
}

type DeliveryHandler func(sessionID string, to shared.ClientID, msg *arbitration.Message)

// Bridge fans session events out across nodes over redis pub/sub and
// keeps a shared presence set per session so any node can tell whether
// a client is attached somewhere.
type Bridge struct {
	redis  *redis.Client
	nodeID string
	logger *slog.Logger

	mu          sync.RWMutex
	sessionSubs map[string]context.CancelFunc
	deliver     DeliveryHandler

	ctx    context.Context
	cancel context.CancelFunc
}

func NewBridge(redisClient *redis.Client, logger *slog.Logger) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())

	return &Bridge{
		redis:       redisClient,
		nodeID:      "node_" + uuid.NewString(),
		logger:      logger.With("component", "bridge"),
		sessionSubs: make(map[string]context.CancelFunc),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (b *Bridge) NodeID() string {
	return b.nodeID
}

func (b *Bridge) SetDeliveryHandler(h DeliveryHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliver = h
}

// JoinSession marks the client present and ensures this node is
// subscribed to the session's event channel.
func (b *Bridge) JoinSession(ctx context.Context, sessionID string, clientID shared.ClientID) error {
	key := fmt.Sprintf(sessionPresenceKey, sessionID)
	pipe := b.redis.Pipeline()
	pipe.SAdd(ctx, key, string(clientID))
	pipe.Expire(ctx, key, presenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mark presence: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.sessionSubs[sessionID]; exists {
		return nil
	}

	subCtx, cancel := context.WithCancel(b.ctx)
	b.sessionSubs[sessionID] = cancel
	go b.subscribeToSession(subCtx, sessionID)
	return nil
}

// LeaveSession clears the client's presence. When the last local member
// is gone the session subscription is dropped too.
func (b *Bridge) LeaveSession(ctx context.Context, sessionID string, clientID shared.ClientID, lastLocal bool) {
	key := fmt.Sprintf(sessionPresenceKey, sessionID)
	if err := b.redis.SRem(ctx, key, string(clientID)).Err(); err != nil {
		b.logger.Error("clear presence failed", "error", err, "session_id", sessionID)
	}

	if !lastLocal {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if cancel, ok := b.sessionSubs[sessionID]; ok {
		cancel()
		delete(b.sessionSubs, sessionID)
	}
}

func (b *Bridge) IsPresent(ctx context.Context, sessionID string, clientID shared.ClientID) (bool, error) {
	key := fmt.Sprintf(sessionPresenceKey, sessionID)
	ok, err := b.redis.SIsMember(ctx, key, string(clientID)).Result()
	if err != nil {
		return false, fmt.Errorf("presence check: %w", err)
	}
	return ok, nil
}

func (b *Bridge) PublishBroadcast(ctx context.Context, sessionID string, msg *arbitration.Message) error {
	return b.publish(ctx, sessionID, envelope{NodeID: b.nodeID, Message: msg})
}

func (b *Bridge) PublishUnicast(ctx context.Context, sessionID string, to shared.ClientID, msg *arbitration.Message) error {
	return b.publish(ctx, sessionID, envelope{NodeID: b.nodeID, TargetClientID: to, Message: msg})
}

func (b *Bridge) publish(ctx context.Context, sessionID string, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	channel := fmt.Sprintf(sessionEventChannel, sessionID)
	if err := b.redis.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (b *Bridge) subscribeToSession(ctx context.Context, sessionID string) {
	channel := fmt.Sprintf(sessionEventChannel, sessionID)

	pubsub := b.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	b.logger.Debug("subscribed to session events", "session_id", sessionID, "channel", channel)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				b.logger.Error("receive session event", "error", err, "session_id", sessionID)
				return
			}

			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Error("unmarshal session event", "error", err, "session_id", sessionID)
				continue
			}

			if env.NodeID == b.nodeID || env.Message == nil {
				continue
			}

			b.mu.RLock()
			deliver := b.deliver
			b.mu.RUnlock()

			if deliver != nil {
				deliver(sessionID, env.TargetClientID, env.Message)
			}
		}
	}
}

func (b *Bridge) SessionSubCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessionSubs)
}

func (b *Bridge) Close() error {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()
	for sessionID, cancel := range b.sessionSubs {
		cancel()
		delete(b.sessionSubs, sessionID)
	}
	return nil
}
