package arbitration

import (
	"context"
	"log/slog"

	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/shared"
)

// AckFunc receives the asynchronous acknowledgement of one intent.
type AckFunc func(ack AckPayload)

// SessionHandle is the explicit arbitration-session handle the dispatcher
// and machine are constructed with; there is no ambient transport access.
type SessionHandle interface {
	Connected() bool
	SessionID() string
	// Dispatch sends one intent and invokes ack exactly once when the
	// coordinator answers or the call times out.
	Dispatch(ctx context.Context, msg *Message, ack AckFunc) error
}

// Dispatcher translates user intents into acknowledged coordinator calls.
// Preconditions are checked locally before any network call; a violation
// surfaces immediately and nothing is dispatched. Only RequestController
// mutates local state optimistically; no other intent has a meaningful
// optimistic interpretation.
type Dispatcher struct {
	handle  SessionHandle
	machine *Machine
	log     *slog.Logger

	// OnAckFailure surfaces coordinator rejections for intents that have no
	// local state projection of their own. May be nil.
	OnAckFailure func(intent MessageType, ack AckPayload)
}

func NewDispatcher(handle SessionHandle, machine *Machine, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		handle:  handle,
		machine: machine,
		log:     log.With("component", "dispatcher"),
	}
}

func (d *Dispatcher) precheck() error {
	if d.handle == nil || !d.handle.Connected() {
		return shared.ErrConnectionUnavailable
	}
	if d.handle.SessionID() == "" {
		return shared.ErrSessionNotInitialized
	}
	return nil
}

// RequestController asks for the controller role. Local state moves to
// Pending before the ack; a duplicate request while one is queued or in
// flight is an idempotent no-op.
func (d *Dispatcher) RequestController(ctx context.Context) error {
	if err := d.precheck(); err != nil {
		return err
	}
	if !d.machine.BeginRequest() {
		return nil
	}
	err := d.dispatch(ctx, MessageTypeRequestController, nil, func(ack AckPayload) {
		d.machine.OnRequestAck(ack.Success)
	})
	if err != nil {
		d.machine.OnRequestAck(false)
	}
	return err
}

// CancelRequest withdraws a Sent request. Cancellation is always explicit
// and acknowledged; local state changes only on ack success.
func (d *Dispatcher) CancelRequest(ctx context.Context) error {
	if err := d.precheck(); err != nil {
		return err
	}
	return d.dispatch(ctx, MessageTypeCancelRequest, nil, func(ack AckPayload) {
		d.machine.OnCancelAck(ack.Success)
	})
}

func (d *Dispatcher) ApproveRequest(ctx context.Context, requesterID shared.ClientID) error {
	return d.plainIntent(ctx, MessageTypeApproveRequest, IntentPayload{RequesterClientID: requesterID})
}

func (d *Dispatcher) DenyRequest(ctx context.Context, requesterID shared.ClientID) error {
	return d.plainIntent(ctx, MessageTypeDenyRequest, IntentPayload{RequesterClientID: requesterID})
}

func (d *Dispatcher) OfferController(ctx context.Context, targetID shared.ClientID) error {
	return d.plainIntent(ctx, MessageTypeOfferController, IntentPayload{TargetClientID: targetID})
}

func (d *Dispatcher) AcceptOffer(ctx context.Context, offererID shared.ClientID) error {
	return d.plainIntent(ctx, MessageTypeAcceptOffer, IntentPayload{OffererClientID: offererID})
}

func (d *Dispatcher) DeclineOffer(ctx context.Context, offererID shared.ClientID) error {
	return d.plainIntent(ctx, MessageTypeDeclineOffer, IntentPayload{OffererClientID: offererID})
}

// plainIntent covers the intents whose success is only ever observed through
// a later broadcast: approving someone else's request does not change the
// approver's own role locally.
func (d *Dispatcher) plainIntent(ctx context.Context, intent MessageType, payload IntentPayload) error {
	if err := d.precheck(); err != nil {
		return err
	}
	return d.dispatch(ctx, intent, payload, func(ack AckPayload) {
		if !ack.Success {
			d.log.Warn("intent rejected", "intent", intent, "code", ack.Code, "message", ack.Message)
			if d.OnAckFailure != nil {
				d.OnAckFailure(intent, ack)
			}
		}
	})
}

func (d *Dispatcher) dispatch(ctx context.Context, intent MessageType, payload any, ack AckFunc) error {
	msg := &Message{
		Type:      intent,
		RequestID: shared.NewID("req_"),
		SessionID: d.handle.SessionID(),
		Payload:   payload,
	}
	if err := d.handle.Dispatch(ctx, msg, ack); err != nil {
		d.log.Error("dispatch failed", "intent", intent, "error", err)
		return err
	}
	return nil
}
