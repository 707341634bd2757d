package arbitration

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/shared"
	"github.com/benbjohnson/clock"
)

var (
	ErrNotController     = errors.New("caller is not the controller")
	ErrAlreadyController = errors.New("caller is already the controller")
	ErrNotQueued         = errors.New("no pending request for that client")
	ErrNoOffer           = errors.New("no matching offer in flight")
	ErrSelfOffer         = errors.New("cannot offer controller to self")
	ErrTargetUnavailable = errors.New("target peer unavailable")
)

// Broadcaster delivers coordinator output to peers. Broadcast reaches every
// session member; Unicast reaches exactly one and reports whether the peer
// was deliverable.
type Broadcaster interface {
	Broadcast(ctx context.Context, sessionID string, msg *Message)
	Unicast(ctx context.Context, sessionID string, to shared.ClientID, msg *Message) error
}

// NameResolver maps a client id to its display name.
type NameResolver interface {
	DisplayName(ctx context.Context, id shared.ClientID) string
}

// Snapshotter persists per-session arbitration state so a restarted node can
// restore sessions that are still live.
type Snapshotter interface {
	Save(ctx context.Context, sessionID string, st *State) error
	Load(ctx context.Context, sessionID string) (*State, error)
	Delete(ctx context.Context, sessionID string) error
}

type sessionState struct {
	state  State
	offers map[shared.ClientID]ControllerOffer // keyed by offerer
}

// Coordinator owns the single controller identity and the pending-request
// queue for every session on this node. All intents serialize under one
// mutex; every state transition bumps the session epoch and stamps the
// broadcasts that announce it.
type Coordinator struct {
	mu       sync.Mutex
	sessions map[string]*sessionState

	bus   Broadcaster
	names NameResolver
	snaps Snapshotter
	clock clock.Clock
	log   *slog.Logger
}

func NewCoordinator(bus Broadcaster, names NameResolver, snaps Snapshotter, clk clock.Clock, log *slog.Logger) *Coordinator {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		sessions: make(map[string]*sessionState),
		bus:      bus,
		names:    names,
		snaps:    snaps,
		clock:    clk,
		log:      log.With("component", "coordinator"),
	}
}

func (c *Coordinator) session(ctx context.Context, sessionID string) *sessionState {
	if ss, ok := c.sessions[sessionID]; ok {
		return ss
	}
	ss := &sessionState{offers: make(map[shared.ClientID]ControllerOffer)}
	if c.snaps != nil {
		if st, err := c.snaps.Load(ctx, sessionID); err == nil && st != nil {
			ss.state = *st
		}
	}
	c.sessions[sessionID] = ss
	return ss
}

// Snapshot returns a copy of the current arbitration state for a session.
func (c *Coordinator) Snapshot(ctx context.Context, sessionID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session(ctx, sessionID).state.clone()
}

// RequestController queues the caller. A second request from an already
// queued caller succeeds without creating a duplicate entry.
func (c *Coordinator) RequestController(ctx context.Context, sessionID string, callerID shared.ClientID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ss := c.session(ctx, sessionID)
	if ss.state.ControllerClientID == callerID {
		return ErrAlreadyController
	}
	if ss.state.HasRequest(callerID) {
		return nil
	}

	ss.state.addRequest(ControllerRequest{
		ClientID:      callerID,
		RequesterName: c.displayName(ctx, callerID),
		RequestTime:   c.clock.Now(),
	})
	ss.state.Epoch++

	c.log.Info("controller requested", "session_id", sessionID, "client_id", callerID, "epoch", ss.state.Epoch)
	c.broadcastQueue(ctx, sessionID, ss)
	c.persist(ctx, sessionID, ss)
	return nil
}

// CancelRequest removes the caller's own pending entry. Cancelling an entry
// that no longer exists fails: once an approval consumed it there is nothing
// left to cancel.
func (c *Coordinator) CancelRequest(ctx context.Context, sessionID string, callerID shared.ClientID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ss := c.session(ctx, sessionID)
	if !ss.state.removeRequest(callerID) {
		return ErrNotQueued
	}
	ss.state.Epoch++

	c.log.Info("controller request cancelled", "session_id", sessionID, "client_id", callerID, "epoch", ss.state.Epoch)
	c.broadcastQueue(ctx, sessionID, ss)
	c.persist(ctx, sessionID, ss)
	return nil
}

// ApproveRequest transfers the controller role to a queued requester.
// Approval order is the controller's free choice; the queue imposes none.
func (c *Coordinator) ApproveRequest(ctx context.Context, sessionID string, callerID, requesterID shared.ClientID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ss := c.session(ctx, sessionID)
	if err := c.requireController(ss, callerID); err != nil {
		return err
	}
	if !ss.state.removeRequest(requesterID) {
		return ErrNotQueued
	}

	ss.state.ControllerClientID = requesterID
	ss.state.Epoch++
	ss.offers = make(map[shared.ClientID]ControllerOffer)

	c.log.Info("controller request approved",
		"session_id", sessionID, "controller_id", requesterID, "epoch", ss.state.Epoch)
	c.broadcastControllerChange(ctx, sessionID, ss)
	c.broadcastQueue(ctx, sessionID, ss)
	c.persist(ctx, sessionID, ss)
	return nil
}

// DenyRequest removes a queued requester and tells everyone explicitly.
// Peers no longer have to infer denial from queue absence, though the local
// state machine still can.
func (c *Coordinator) DenyRequest(ctx context.Context, sessionID string, callerID, requesterID shared.ClientID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ss := c.session(ctx, sessionID)
	if err := c.requireController(ss, callerID); err != nil {
		return err
	}
	if !ss.state.removeRequest(requesterID) {
		return ErrNotQueued
	}
	ss.state.Epoch++

	c.log.Info("controller request denied",
		"session_id", sessionID, "requester_id", requesterID, "epoch", ss.state.Epoch)
	c.stamp(ctx, sessionID, ss, &Message{
		Type:    MessageTypeRequestDenied,
		Payload: RequestDeniedPayload{RequesterClientID: requesterID},
	})
	c.broadcastQueue(ctx, sessionID, ss)
	c.persist(ctx, sessionID, ss)
	return nil
}

// OfferController proposes delegation to a specific peer. The offer is not
// queued anywhere; it lives until the target answers or drops.
func (c *Coordinator) OfferController(ctx context.Context, sessionID string, callerID, targetID shared.ClientID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ss := c.session(ctx, sessionID)
	if err := c.requireController(ss, callerID); err != nil {
		return err
	}
	if targetID == callerID {
		return ErrSelfOffer
	}

	offer := ControllerOffer{
		OffererClientID: callerID,
		OffererName:     c.displayName(ctx, callerID),
		TargetClientID:  targetID,
		TargetName:      c.displayName(ctx, targetID),
	}

	received := &Message{
		Type: MessageTypeOfferReceived,
		Payload: OfferReceivedPayload{
			OffererClientID: offer.OffererClientID,
			OffererName:     offer.OffererName,
		},
	}
	c.stampFields(sessionID, ss, received)
	if err := c.bus.Unicast(ctx, sessionID, targetID, received); err != nil {
		return ErrTargetUnavailable
	}
	ss.offers[callerID] = offer

	sent := &Message{
		Type: MessageTypeOfferSent,
		Payload: OfferSentPayload{
			TargetClientID: offer.TargetClientID,
			TargetName:     offer.TargetName,
		},
	}
	c.stampFields(sessionID, ss, sent)
	if err := c.bus.Unicast(ctx, sessionID, callerID, sent); err != nil {
		c.log.Warn("offer_sent delivery failed", "session_id", sessionID, "client_id", callerID, "error", err)
	}

	c.log.Info("controller offered",
		"session_id", sessionID, "offerer_id", callerID, "target_id", targetID)
	return nil
}

// AcceptOffer completes a delegation: the target becomes controller. Any
// pending request the new controller had is consumed by the transfer.
func (c *Coordinator) AcceptOffer(ctx context.Context, sessionID string, callerID, offererID shared.ClientID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ss := c.session(ctx, sessionID)
	offer, ok := ss.offers[offererID]
	if !ok || offer.TargetClientID != callerID {
		return ErrNoOffer
	}
	if ss.state.ControllerClientID != offererID {
		// The offerer lost the role after offering; the offer is dead.
		delete(ss.offers, offererID)
		return ErrNoOffer
	}

	delete(ss.offers, offererID)
	queueChanged := ss.state.removeRequest(callerID)
	ss.state.ControllerClientID = callerID
	ss.state.Epoch++

	c.log.Info("controller offer accepted",
		"session_id", sessionID, "controller_id", callerID, "epoch", ss.state.Epoch)
	c.broadcastControllerChange(ctx, sessionID, ss)
	if queueChanged {
		c.broadcastQueue(ctx, sessionID, ss)
	}
	accepted := &Message{
		Type:    MessageTypeOfferAccepted,
		Payload: OfferAcceptedPayload{AccepterName: c.displayName(ctx, callerID)},
	}
	c.stampFields(sessionID, ss, accepted)
	if err := c.bus.Unicast(ctx, sessionID, offererID, accepted); err != nil {
		c.log.Warn("offer_accepted delivery failed", "session_id", sessionID, "client_id", offererID, "error", err)
	}
	c.persist(ctx, sessionID, ss)
	return nil
}

// DeclineOffer drops an in-flight offer; controller identity is untouched
// and no queue entry exists for this exchange.
func (c *Coordinator) DeclineOffer(ctx context.Context, sessionID string, callerID, offererID shared.ClientID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ss := c.session(ctx, sessionID)
	offer, ok := ss.offers[offererID]
	if !ok || offer.TargetClientID != callerID {
		return ErrNoOffer
	}
	delete(ss.offers, offererID)

	c.log.Info("controller offer declined",
		"session_id", sessionID, "decliner_id", callerID, "offerer_id", offererID)
	declined := &Message{
		Type:    MessageTypeOfferDeclined,
		Payload: OfferDeclinedPayload{DeclinerName: c.displayName(ctx, callerID)},
	}
	c.stampFields(sessionID, ss, declined)
	if err := c.bus.Unicast(ctx, sessionID, offererID, declined); err != nil {
		c.log.Warn("offer_declined delivery failed", "session_id", sessionID, "client_id", offererID, "error", err)
	}
	return nil
}

// PeerLeft reconciles state when a peer disconnects: its pending request and
// in-flight offers are dropped, and a departing controller vacates the role.
func (c *Coordinator) PeerLeft(ctx context.Context, sessionID string, clientID shared.ClientID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ss, ok := c.sessions[sessionID]
	if !ok {
		return
	}

	changed := ss.state.removeRequest(clientID)
	delete(ss.offers, clientID)
	for offerer, offer := range ss.offers {
		if offer.TargetClientID == clientID {
			delete(ss.offers, offerer)
		}
	}

	vacated := ss.state.ControllerClientID == clientID
	if vacated {
		ss.state.ControllerClientID = ""
	}
	if !changed && !vacated {
		return
	}

	ss.state.Epoch++
	c.log.Info("peer left session",
		"session_id", sessionID, "client_id", clientID, "vacated_controller", vacated, "epoch", ss.state.Epoch)
	if vacated {
		c.broadcastControllerChange(ctx, sessionID, ss)
	}
	c.broadcastQueue(ctx, sessionID, ss)
	c.persist(ctx, sessionID, ss)
}

// DropSession forgets a session entirely, e.g. after the last member left.
func (c *Coordinator) DropSession(ctx context.Context, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
	if c.snaps != nil {
		if err := c.snaps.Delete(ctx, sessionID); err != nil {
			c.log.Warn("failed to drop arbitration snapshot", "session_id", sessionID, "error", err)
		}
	}
}

func (c *Coordinator) SessionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

func (c *Coordinator) requireController(ss *sessionState, callerID shared.ClientID) error {
	if ss.state.ControllerClientID != callerID {
		return ErrNotController
	}
	return nil
}

// ClaimVacant installs the caller as controller when the seat is empty.
// Used for the session creator and after a controller disconnect.
func (c *Coordinator) ClaimVacant(ctx context.Context, sessionID string, callerID shared.ClientID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ss := c.session(ctx, sessionID)
	if ss.state.ControllerClientID == callerID {
		return nil
	}
	if ss.state.ControllerClientID != "" {
		return ErrNotController
	}

	ss.state.removeRequest(callerID)
	ss.state.ControllerClientID = callerID
	ss.state.Epoch++

	c.log.Info("vacant controller claimed", "session_id", sessionID, "controller_id", callerID, "epoch", ss.state.Epoch)
	c.broadcastControllerChange(ctx, sessionID, ss)
	c.broadcastQueue(ctx, sessionID, ss)
	c.persist(ctx, sessionID, ss)
	return nil
}

func (c *Coordinator) displayName(ctx context.Context, id shared.ClientID) string {
	if c.names == nil {
		return string(id)
	}
	if name := c.names.DisplayName(ctx, id); name != "" {
		return name
	}
	return string(id)
}

func (c *Coordinator) stampFields(sessionID string, ss *sessionState, msg *Message) {
	msg.SessionID = sessionID
	msg.Epoch = ss.state.Epoch
	msg.Timestamp = c.clock.Now()
}

func (c *Coordinator) stamp(ctx context.Context, sessionID string, ss *sessionState, msg *Message) {
	c.stampFields(sessionID, ss, msg)
	c.bus.Broadcast(ctx, sessionID, msg)
}

func (c *Coordinator) broadcastControllerChange(ctx context.Context, sessionID string, ss *sessionState) {
	c.stamp(ctx, sessionID, ss, &Message{
		Type:    MessageTypeControllerChange,
		Payload: ControllerChangePayload{ControllerClientID: ss.state.ControllerClientID},
	})
}

func (c *Coordinator) broadcastQueue(ctx context.Context, sessionID string, ss *sessionState) {
	st := ss.state.clone()
	pending := st.PendingRequests
	if pending == nil {
		pending = []ControllerRequest{}
	}
	c.stamp(ctx, sessionID, ss, &Message{
		Type:    MessageTypeRequestsUpdate,
		Payload: RequestsUpdatePayload{PendingRequests: pending},
	})
}

func (c *Coordinator) persist(ctx context.Context, sessionID string, ss *sessionState) {
	if c.snaps == nil {
		return
	}
	st := ss.state.clone()
	if err := c.snaps.Save(ctx, sessionID, &st); err != nil {
		c.log.Error("persist arbitration state", "session_id", sessionID, "error", err)
	}
}
