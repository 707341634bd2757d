package arbitration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/shared"
)

type sentMessage struct {
	to  shared.ClientID // empty for broadcasts
	msg *Message
}

type fakeBus struct {
	mu          sync.Mutex
	sent        []sentMessage
	unreachable map[shared.ClientID]bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{unreachable: make(map[shared.ClientID]bool)}
}

func (b *fakeBus) Broadcast(_ context.Context, _ string, msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sentMessage{msg: msg})
}

func (b *fakeBus) Unicast(_ context.Context, _ string, to shared.ClientID, msg *Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unreachable[to] {
		return errors.New("peer offline")
	}
	b.sent = append(b.sent, sentMessage{to: to, msg: msg})
	return nil
}

func (b *fakeBus) ofType(t MessageType) []sentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []sentMessage
	for _, m := range b.sent {
		if m.msg.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func newTestCoordinator() (*Coordinator, *fakeBus) {
	bus := newFakeBus()
	return NewCoordinator(bus, nil, nil, nil, nil), bus
}

func TestCoordinator_RequestIdempotent(t *testing.T) {
	c, bus := newTestCoordinator()
	ctx := context.Background()

	if err := c.RequestController(ctx, "s1", "a1"); err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	if err := c.RequestController(ctx, "s1", "a1"); err != nil {
		t.Fatalf("duplicate request should ack success, got %v", err)
	}

	st := c.Snapshot(ctx, "s1")
	if len(st.PendingRequests) != 1 {
		t.Errorf("expected exactly 1 queue entry, got %d", len(st.PendingRequests))
	}
	if got := len(bus.ofType(MessageTypeRequestsUpdate)); got != 1 {
		t.Errorf("duplicate request must not re-broadcast, got %d updates", got)
	}
}

func TestCoordinator_RequestWhileController(t *testing.T) {
	c, _ := newTestCoordinator()
	ctx := context.Background()
	if err := c.ClaimVacant(ctx, "s1", "c1"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := c.RequestController(ctx, "s1", "c1"); err != ErrAlreadyController {
		t.Errorf("expected ErrAlreadyController, got %v", err)
	}
}

func TestCoordinator_ApproveRoundTrip(t *testing.T) {
	c, bus := newTestCoordinator()
	ctx := context.Background()
	c.ClaimVacant(ctx, "s1", "c1")
	c.RequestController(ctx, "s1", "r1")

	if err := c.ApproveRequest(ctx, "s1", "c1", "r1"); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	st := c.Snapshot(ctx, "s1")
	if st.ControllerClientID != "r1" {
		t.Errorf("expected controller r1, got %s", st.ControllerClientID)
	}
	if st.HasRequest("r1") {
		t.Error("approved requester must leave the queue")
	}

	changes := bus.ofType(MessageTypeControllerChange)
	if len(changes) == 0 {
		t.Fatal("approve must broadcast controller_client_change")
	}
	last := changes[len(changes)-1].msg
	if got := last.Payload.(ControllerChangePayload).ControllerClientID; got != "r1" {
		t.Errorf("expected change payload r1, got %s", got)
	}

	// The paired queue update must carry the same epoch as the change.
	updates := bus.ofType(MessageTypeRequestsUpdate)
	pair := updates[len(updates)-1].msg
	if pair.Epoch != last.Epoch {
		t.Errorf("controller change epoch %d and queue update epoch %d must match", last.Epoch, pair.Epoch)
	}
}

func TestCoordinator_ApproveRequiresController(t *testing.T) {
	c, _ := newTestCoordinator()
	ctx := context.Background()
	c.ClaimVacant(ctx, "s1", "c1")
	c.RequestController(ctx, "s1", "r1")

	if err := c.ApproveRequest(ctx, "s1", "r1", "r1"); err != ErrNotController {
		t.Errorf("expected ErrNotController, got %v", err)
	}
}

func TestCoordinator_ApproveUnknownRequester(t *testing.T) {
	c, _ := newTestCoordinator()
	ctx := context.Background()
	c.ClaimVacant(ctx, "s1", "c1")
	if err := c.ApproveRequest(ctx, "s1", "c1", "ghost"); err != ErrNotQueued {
		t.Errorf("expected ErrNotQueued, got %v", err)
	}
}

func TestCoordinator_DenyBroadcastsExplicitly(t *testing.T) {
	c, bus := newTestCoordinator()
	ctx := context.Background()
	c.ClaimVacant(ctx, "s1", "c1")
	c.RequestController(ctx, "s1", "r1")

	if err := c.DenyRequest(ctx, "s1", "c1", "r1"); err != nil {
		t.Fatalf("deny failed: %v", err)
	}

	denied := bus.ofType(MessageTypeRequestDenied)
	if len(denied) != 1 {
		t.Fatalf("expected 1 denied broadcast, got %d", len(denied))
	}
	if got := denied[0].msg.Payload.(RequestDeniedPayload).RequesterClientID; got != "r1" {
		t.Errorf("expected denied payload r1, got %s", got)
	}
	if st := c.Snapshot(ctx, "s1"); st.HasRequest("r1") {
		t.Error("denied requester must leave the queue")
	}
	if got := c.Snapshot(ctx, "s1").ControllerClientID; got != "c1" {
		t.Errorf("deny must not change the controller, got %s", got)
	}
}

func TestCoordinator_CancelAbsentFails(t *testing.T) {
	c, _ := newTestCoordinator()
	if err := c.CancelRequest(context.Background(), "s1", "a1"); err != ErrNotQueued {
		t.Errorf("expected ErrNotQueued, got %v", err)
	}
}

func TestCoordinator_CancelRemovesEntry(t *testing.T) {
	c, _ := newTestCoordinator()
	ctx := context.Background()
	c.RequestController(ctx, "s1", "a1")
	if err := c.CancelRequest(ctx, "s1", "a1"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if st := c.Snapshot(ctx, "s1"); st.HasRequest("a1") {
		t.Error("cancelled entry must leave the queue")
	}
}

func TestCoordinator_ScenarioC_OfferDeclined(t *testing.T) {
	c, bus := newTestCoordinator()
	ctx := context.Background()
	c.ClaimVacant(ctx, "s1", "c1")

	if err := c.OfferController(ctx, "s1", "c1", "d1"); err != nil {
		t.Fatalf("offer failed: %v", err)
	}

	received := bus.ofType(MessageTypeOfferReceived)
	if len(received) != 1 || received[0].to != "d1" {
		t.Fatalf("offer_received must go to the target only, got %+v", received)
	}
	sent := bus.ofType(MessageTypeOfferSent)
	if len(sent) != 1 || sent[0].to != "c1" {
		t.Fatalf("offer_sent must go back to the offerer, got %+v", sent)
	}

	if err := c.DeclineOffer(ctx, "s1", "d1", "c1"); err != nil {
		t.Fatalf("decline failed: %v", err)
	}
	declined := bus.ofType(MessageTypeOfferDeclined)
	if len(declined) != 1 || declined[0].to != "c1" {
		t.Fatalf("offer_declined must reach the offerer, got %+v", declined)
	}

	st := c.Snapshot(ctx, "s1")
	if st.ControllerClientID != "c1" {
		t.Errorf("declined offer must leave controller unchanged, got %s", st.ControllerClientID)
	}
	if len(st.PendingRequests) != 0 {
		t.Error("an offer exchange must never create a queue entry")
	}
}

func TestCoordinator_AcceptOfferTransfers(t *testing.T) {
	c, bus := newTestCoordinator()
	ctx := context.Background()
	c.ClaimVacant(ctx, "s1", "c1")
	c.OfferController(ctx, "s1", "c1", "d1")

	if err := c.AcceptOffer(ctx, "s1", "d1", "c1"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if got := c.Snapshot(ctx, "s1").ControllerClientID; got != "d1" {
		t.Errorf("expected controller d1, got %s", got)
	}
	accepted := bus.ofType(MessageTypeOfferAccepted)
	if len(accepted) != 1 || accepted[0].to != "c1" {
		t.Fatalf("offer_accepted must reach the offerer, got %+v", accepted)
	}
}

func TestCoordinator_AcceptConsumesOwnPendingRequest(t *testing.T) {
	c, _ := newTestCoordinator()
	ctx := context.Background()
	c.ClaimVacant(ctx, "s1", "c1")
	c.RequestController(ctx, "s1", "d1")
	c.OfferController(ctx, "s1", "c1", "d1")

	if err := c.AcceptOffer(ctx, "s1", "d1", "c1"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	st := c.Snapshot(ctx, "s1")
	if st.HasRequest("d1") {
		t.Error("accepting an offer must consume the accepter's pending request")
	}
}

func TestCoordinator_AcceptWithoutOffer(t *testing.T) {
	c, _ := newTestCoordinator()
	ctx := context.Background()
	c.ClaimVacant(ctx, "s1", "c1")
	if err := c.AcceptOffer(ctx, "s1", "d1", "c1"); err != ErrNoOffer {
		t.Errorf("expected ErrNoOffer, got %v", err)
	}
}

func TestCoordinator_OfferRequiresController(t *testing.T) {
	c, _ := newTestCoordinator()
	ctx := context.Background()
	c.ClaimVacant(ctx, "s1", "c1")
	if err := c.OfferController(ctx, "s1", "x1", "d1"); err != ErrNotController {
		t.Errorf("expected ErrNotController, got %v", err)
	}
}

func TestCoordinator_OfferToSelf(t *testing.T) {
	c, _ := newTestCoordinator()
	ctx := context.Background()
	c.ClaimVacant(ctx, "s1", "c1")
	if err := c.OfferController(ctx, "s1", "c1", "c1"); err != ErrSelfOffer {
		t.Errorf("expected ErrSelfOffer, got %v", err)
	}
}

func TestCoordinator_OfferTargetUnavailable(t *testing.T) {
	c, bus := newTestCoordinator()
	ctx := context.Background()
	c.ClaimVacant(ctx, "s1", "c1")
	bus.unreachable["d1"] = true

	if err := c.OfferController(ctx, "s1", "c1", "d1"); err != ErrTargetUnavailable {
		t.Fatalf("expected ErrTargetUnavailable, got %v", err)
	}
	// A failed offer leaves nothing to accept.
	if err := c.AcceptOffer(ctx, "s1", "d1", "c1"); err != ErrNoOffer {
		t.Errorf("expected ErrNoOffer after failed delivery, got %v", err)
	}
}

func TestCoordinator_SingleControllerInvariant(t *testing.T) {
	c, bus := newTestCoordinator()
	ctx := context.Background()
	c.ClaimVacant(ctx, "s1", "c1")
	for _, id := range []shared.ClientID{"p1", "p2", "p3", "p4"} {
		c.RequestController(ctx, "s1", id)
	}
	c.ApproveRequest(ctx, "s1", "c1", "p2")

	// Only the new controller may approve now.
	if err := c.ApproveRequest(ctx, "s1", "c1", "p1"); err != ErrNotController {
		t.Errorf("old controller must lose authority, got %v", err)
	}
	c.ApproveRequest(ctx, "s1", "p2", "p3")

	// Every broadcast names at most one controller, and epochs never repeat
	// across state transitions.
	seen := make(map[uint64]shared.ClientID)
	for _, m := range bus.ofType(MessageTypeControllerChange) {
		id := m.msg.Payload.(ControllerChangePayload).ControllerClientID
		if prev, ok := seen[m.msg.Epoch]; ok && prev != id {
			t.Errorf("epoch %d names two controllers: %s and %s", m.msg.Epoch, prev, id)
		}
		seen[m.msg.Epoch] = id
	}
	if got := c.Snapshot(ctx, "s1").ControllerClientID; got != "p3" {
		t.Errorf("expected controller p3, got %s", got)
	}
}

func TestCoordinator_PeerLeftVacatesController(t *testing.T) {
	c, bus := newTestCoordinator()
	ctx := context.Background()
	c.ClaimVacant(ctx, "s1", "c1")
	c.RequestController(ctx, "s1", "r1")

	c.PeerLeft(ctx, "s1", "c1")

	st := c.Snapshot(ctx, "s1")
	if st.ControllerClientID != "" {
		t.Errorf("departed controller must vacate the role, got %s", st.ControllerClientID)
	}
	changes := bus.ofType(MessageTypeControllerChange)
	last := changes[len(changes)-1].msg
	if got := last.Payload.(ControllerChangePayload).ControllerClientID; got != "" {
		t.Errorf("vacating change must name no controller, got %s", got)
	}
	if !st.HasRequest("r1") {
		t.Error("other peers' requests must survive a departure")
	}
}

func TestCoordinator_PeerLeftDropsRequest(t *testing.T) {
	c, _ := newTestCoordinator()
	ctx := context.Background()
	c.RequestController(ctx, "s1", "r1")
	c.PeerLeft(ctx, "s1", "r1")
	if st := c.Snapshot(ctx, "s1"); st.HasRequest("r1") {
		t.Error("departed peer's request must be dropped")
	}
}

func TestCoordinator_ClaimVacantOnlyWhenEmpty(t *testing.T) {
	c, _ := newTestCoordinator()
	ctx := context.Background()
	c.ClaimVacant(ctx, "s1", "c1")
	if err := c.ClaimVacant(ctx, "s1", "c2"); err != ErrNotController {
		t.Errorf("occupied seat must reject a claim, got %v", err)
	}
	if err := c.ClaimVacant(ctx, "s1", "c1"); err != nil {
		t.Errorf("re-claim by the holder should be idempotent, got %v", err)
	}
}
