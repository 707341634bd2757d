package gateway

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/arbitration"
	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/shared"
)

// Hub tracks the peer connections attached to this node, grouped by
// session. It is the local half of the arbitration.Broadcaster: messages
// for peers on other nodes go through the Bridge.
type Hub struct {
	bridge *Bridge
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]map[shared.ClientID]PeerConnection
}

func NewHub(bridge *Bridge, logger *slog.Logger) *Hub {
	h := &Hub{
		bridge:   bridge,
		logger:   logger.With("component", "hub"),
		sessions: make(map[string]map[shared.ClientID]PeerConnection),
	}
	if bridge != nil {
		bridge.SetDeliveryHandler(h.deliverLocal)
	}
	return h
}

// Register attaches a peer connection to its session. A reconnecting
// client replaces its previous connection, which is closed.
func (h *Hub) Register(ctx context.Context, conn PeerConnection) {
	sessionID := conn.SessionID()
	clientID := conn.ClientID()

	h.mu.Lock()
	peers, ok := h.sessions[sessionID]
	if !ok {
		peers = make(map[shared.ClientID]PeerConnection)
		h.sessions[sessionID] = peers
	}
	prev := peers[clientID]
	peers[clientID] = conn
	h.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}

	if h.bridge != nil {
		if err := h.bridge.JoinSession(ctx, sessionID, clientID); err != nil {
			h.logger.Error("bridge join failed", "error", err, "session_id", sessionID)
		}
	}

	h.logger.Info("peer registered", "session_id", sessionID, "client_id", clientID)
}

// Unregister detaches a connection. It is a no-op if a newer connection
// for the same client has already replaced it.
func (h *Hub) Unregister(ctx context.Context, conn PeerConnection) {
	sessionID := conn.SessionID()
	clientID := conn.ClientID()

	h.mu.Lock()
	peers, ok := h.sessions[sessionID]
	if !ok || peers[clientID] != conn {
		h.mu.Unlock()
		return
	}
	delete(peers, clientID)
	empty := len(peers) == 0
	if empty {
		delete(h.sessions, sessionID)
	}
	h.mu.Unlock()

	if h.bridge != nil {
		h.bridge.LeaveSession(ctx, sessionID, clientID, empty)
	}

	h.logger.Info("peer unregistered", "session_id", sessionID, "client_id", clientID)
}

func (h *Hub) Peer(sessionID string, clientID shared.ClientID) (PeerConnection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conn, ok := h.sessions[sessionID][clientID]
	if !ok || !conn.IsOnline() {
		return nil, false
	}
	return conn, true
}

func (h *Hub) Peers(sessionID string) []PeerInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	peers := make([]PeerInfo, 0, len(h.sessions[sessionID]))
	for _, conn := range h.sessions[sessionID] {
		peers = append(peers, PeerInfo{
			ClientID:    conn.ClientID(),
			DisplayName: conn.DisplayName(),
			Online:      conn.IsOnline(),
		})
	}
	return peers
}

func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st := HubStats{Sessions: len(h.sessions)}
	for _, peers := range h.sessions {
		st.Peers += len(peers)
	}
	return st
}

// Broadcast delivers to every local member of the session and hands the
// message to the bridge for members attached to other nodes.
func (h *Hub) Broadcast(ctx context.Context, sessionID string, msg *arbitration.Message) {
	h.mu.RLock()
	conns := make([]PeerConnection, 0, len(h.sessions[sessionID]))
	for _, conn := range h.sessions[sessionID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.Send(ctx, msg); err != nil {
			h.logger.Warn("broadcast send failed",
				"session_id", sessionID,
				"client_id", conn.ClientID(),
				"error", err)
		}
	}

	if h.bridge != nil {
		if err := h.bridge.PublishBroadcast(ctx, sessionID, msg); err != nil {
			h.logger.Error("bridge broadcast failed", "error", err, "session_id", sessionID)
		}
	}
}

// Unicast delivers to a single member. A target on another node is
// reached through the bridge after a presence check; an unknown target
// is an error so callers can refuse operations aimed at absent peers.
func (h *Hub) Unicast(ctx context.Context, sessionID string, to shared.ClientID, msg *arbitration.Message) error {
	h.mu.RLock()
	conn, local := h.sessions[sessionID][to]
	h.mu.RUnlock()

	if local && conn.IsOnline() {
		return conn.Send(ctx, msg)
	}

	if h.bridge == nil {
		return shared.ErrNotFound
	}

	present, err := h.bridge.IsPresent(ctx, sessionID, to)
	if err != nil {
		return err
	}
	if !present {
		return shared.ErrNotFound
	}
	return h.bridge.PublishUnicast(ctx, sessionID, to, msg)
}

// deliverLocal handles messages arriving from other nodes via the bridge.
func (h *Hub) deliverLocal(sessionID string, to shared.ClientID, msg *arbitration.Message) {
	ctx := context.Background()

	if to != "" {
		h.mu.RLock()
		conn, ok := h.sessions[sessionID][to]
		h.mu.RUnlock()
		if ok {
			if err := conn.Send(ctx, msg); err != nil {
				h.logger.Warn("bridged unicast failed", "session_id", sessionID, "client_id", to, "error", err)
			}
		}
		return
	}

	h.mu.RLock()
	conns := make([]PeerConnection, 0, len(h.sessions[sessionID]))
	for _, conn := range h.sessions[sessionID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.Send(ctx, msg); err != nil {
			h.logger.Warn("bridged broadcast failed", "session_id", sessionID, "client_id", conn.ClientID(), "error", err)
		}
	}
}
