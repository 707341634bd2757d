package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/arbitration"
	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/shared"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SessionRoster is the slice of the session store the gateway needs:
// existence checks and membership upkeep as peers attach and detach.
type SessionRoster interface {
	Exists(ctx context.Context, sessionID string) (bool, error)
	AddMember(ctx context.Context, sessionID string, clientID shared.ClientID) error
	RemoveMember(ctx context.Context, sessionID string, clientID shared.ClientID) error
}

// PeerRegistry records the display name a peer connected with.
type PeerRegistry interface {
	Upsert(ctx context.Context, clientID shared.ClientID, displayName string) error
}

type WSServer struct {
	hub         *Hub
	coordinator *arbitration.Coordinator
	roster      SessionRoster
	peers       PeerRegistry
	logger      *slog.Logger
}

func NewWSServer(hub *Hub, coordinator *arbitration.Coordinator, roster SessionRoster, peers PeerRegistry, logger *slog.Logger) *WSServer {
	return &WSServer{
		hub:         hub,
		coordinator: coordinator,
		roster:      roster,
		peers:       peers,
		logger:      logger.With("component", "ws_server"),
	}
}

// HandleConnection godoc
// @Summary Attach to a session over WebSocket
// @Description Upgrades to a WebSocket carrying arbitration intents and broadcasts.
// @Tags gateway
// @Param id path string true "Session ID"
// @Param client_id query string false "Client ID, generated when omitted"
// @Param name query string false "Display name"
// @Success 101 "Switching Protocols"
// @Failure 404 {object} shared.APIError
// @Router /sessions/{id}/ws [get]
func (s *WSServer) HandleConnection(c echo.Context) error {
	sessionID := c.Param("id")
	ctx := c.Request().Context()

	exists, err := s.roster.Exists(ctx, sessionID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !exists {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}

	clientID := shared.ClientID(c.QueryParam("client_id"))
	if clientID == "" {
		clientID = shared.ClientID(shared.NewID("client_"))
	}
	name := c.QueryParam("name")
	if name == "" {
		name = "Guest"
	}

	if err := s.peers.Upsert(ctx, clientID, name); err != nil {
		s.logger.Error("peer upsert failed", "error", err, "client_id", clientID)
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return err
	}

	// Roster membership only after the upgrade succeeds; a failed handshake
	// has no disconnect path that would remove the member again.
	if err := s.roster.AddMember(ctx, sessionID, clientID); err != nil {
		s.logger.Error("add member failed", "error", err, "session_id", sessionID, "client_id", clientID)
		ws.Close()
		return nil
	}

	conn := newPeerConn(ws, sessionID, clientID, name, s.logger)
	s.hub.Register(ctx, conn)

	// A session with no controller seats the first arrival.
	if err := s.coordinator.ClaimVacant(context.Background(), sessionID, clientID); err != nil &&
		!errors.Is(err, arbitration.ErrNotController) {
		s.logger.Error("vacant claim failed", "session_id", sessionID, "client_id", clientID, "error", err)
	}

	s.sendSnapshot(context.Background(), conn)

	s.logger.Info("peer connected", "session_id", sessionID, "client_id", clientID)

	go conn.writePump()
	conn.readPump(s)

	bg := context.Background()
	s.coordinator.PeerLeft(bg, sessionID, clientID)
	if err := s.roster.RemoveMember(bg, sessionID, clientID); err != nil {
		s.logger.Error("remove member failed", "error", err, "session_id", sessionID)
	}
	s.hub.Unregister(bg, conn)

	s.logger.Info("peer disconnected", "session_id", sessionID, "client_id", clientID)
	return nil
}

// sendSnapshot seeds a freshly attached peer with the current controller
// and pending queue so its local mirror starts in sync.
func (s *WSServer) sendSnapshot(ctx context.Context, conn *peerConn) {
	st := s.coordinator.Snapshot(ctx, conn.SessionID())
	now := time.Now()

	change := &arbitration.Message{
		Type:      arbitration.MessageTypeControllerChange,
		SessionID: conn.SessionID(),
		Epoch:     st.Epoch,
		Timestamp: now,
		Payload:   arbitration.ControllerChangePayload{ControllerClientID: st.ControllerClientID},
	}
	queue := &arbitration.Message{
		Type:      arbitration.MessageTypeRequestsUpdate,
		SessionID: conn.SessionID(),
		Epoch:     st.Epoch,
		Timestamp: now,
		Payload:   arbitration.RequestsUpdatePayload{PendingRequests: st.PendingRequests},
	}

	if err := conn.Send(ctx, change); err != nil {
		s.logger.Warn("snapshot send failed", "client_id", conn.ClientID(), "error", err)
	}
	if err := conn.Send(ctx, queue); err != nil {
		s.logger.Warn("snapshot send failed", "client_id", conn.ClientID(), "error", err)
	}
}

func (s *WSServer) handleIntent(ctx context.Context, conn *peerConn, frame *arbitration.Frame) {
	payload, err := frame.Intent()
	if err != nil {
		conn.ack(ctx, frame.RequestID, err)
		return
	}

	sessionID := conn.SessionID()
	callerID := conn.ClientID()

	switch frame.Type {
	case arbitration.MessageTypeRequestController:
		err = s.coordinator.RequestController(ctx, sessionID, callerID)
	case arbitration.MessageTypeCancelRequest:
		err = s.coordinator.CancelRequest(ctx, sessionID, callerID)
	case arbitration.MessageTypeApproveRequest:
		err = s.coordinator.ApproveRequest(ctx, sessionID, callerID, payload.RequesterClientID)
	case arbitration.MessageTypeDenyRequest:
		err = s.coordinator.DenyRequest(ctx, sessionID, callerID, payload.RequesterClientID)
	case arbitration.MessageTypeOfferController:
		err = s.coordinator.OfferController(ctx, sessionID, callerID, payload.TargetClientID)
	case arbitration.MessageTypeAcceptOffer:
		err = s.coordinator.AcceptOffer(ctx, sessionID, callerID, payload.OffererClientID)
	case arbitration.MessageTypeDeclineOffer:
		err = s.coordinator.DeclineOffer(ctx, sessionID, callerID, payload.OffererClientID)
	default:
		err = shared.ErrNotFound
	}

	conn.ack(ctx, frame.RequestID, err)
}

func ackCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, arbitration.ErrNotController):
		return "not_controller"
	case errors.Is(err, arbitration.ErrAlreadyController):
		return "already_controller"
	case errors.Is(err, arbitration.ErrNotQueued):
		return "not_queued"
	case errors.Is(err, arbitration.ErrNoOffer):
		return "no_offer"
	case errors.Is(err, arbitration.ErrSelfOffer):
		return "self_offer"
	case errors.Is(err, arbitration.ErrTargetUnavailable):
		return "target_unavailable"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	default:
		return "internal_error"
	}
}

type peerConn struct {
	ws        *websocket.Conn
	sessionID string
	clientID  shared.ClientID
	name      string
	logger    *slog.Logger
	send      chan *arbitration.Message
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

func newPeerConn(ws *websocket.Conn, sessionID string, clientID shared.ClientID, name string, logger *slog.Logger) *peerConn {
	return &peerConn{
		ws:        ws,
		sessionID: sessionID,
		clientID:  clientID,
		name:      name,
		logger:    logger.With("client_id", clientID),
		send:      make(chan *arbitration.Message, 256),
		done:      make(chan struct{}),
	}
}

func (c *peerConn) ClientID() shared.ClientID {
	return c.clientID
}

func (c *peerConn) SessionID() string {
	return c.sessionID
}

func (c *peerConn) DisplayName() string {
	return c.name
}

func (c *peerConn) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

func (c *peerConn) Send(ctx context.Context, msg *arbitration.Message) error {
	select {
	case <-c.done:
		return shared.ErrConnectionUnavailable
	case <-ctx.Done():
		return ctx.Err()
	case c.send <- msg:
		return nil
	default:
		c.logger.Warn("send buffer full, dropping message", "type", msg.Type)
		return nil
	}
}

func (c *peerConn) ack(ctx context.Context, requestID string, result error) {
	payload := arbitration.AckPayload{Success: result == nil}
	if result != nil {
		payload.Code = ackCode(result)
		payload.Message = result.Error()
	}

	msg := &arbitration.Message{
		Type:      arbitration.MessageTypeAck,
		RequestID: requestID,
		SessionID: c.sessionID,
		Timestamp: time.Now(),
		Payload:   payload,
	}
	if err := c.Send(ctx, msg); err != nil {
		c.logger.Warn("ack send failed", "request_id", requestID, "error", err)
	}
}

func (c *peerConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	return c.ws.Close()
}

func (c *peerConn) readPump(server *WSServer) {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("read error", "error", err)
			}
			return
		}

		frame, err := arbitration.DecodeFrame(message)
		if err != nil {
			c.logger.Error("bad frame", "error", err)
			continue
		}

		if !frame.Type.IsIntent() {
			c.logger.Debug("ignoring non-intent frame", "type", frame.Type)
			continue
		}

		server.handleIntent(context.Background(), c, frame)
	}
}

func (c *peerConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))

			data, err := json.Marshal(msg)
			if err != nil {
				c.logger.Error("marshal error", "error", err)
				continue
			}

			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error("write error", "error", err)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
