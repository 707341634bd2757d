package arbitration

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/shared"
)

// Frame is the inbound form of Message: the payload stays raw until the
// frame type tells us what to decode it into.
type Frame struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	ClientID  shared.ClientID `json:"client_id,omitempty"`
	Epoch     uint64          `json:"epoch,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return &f, nil
}

func (f *Frame) decodePayload(v any) error {
	if len(f.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(f.Payload, v)
}

func (f *Frame) Intent() (IntentPayload, error) {
	var p IntentPayload
	err := f.decodePayload(&p)
	return p, err
}

func (f *Frame) Ack() (AckPayload, error) {
	var p AckPayload
	err := f.decodePayload(&p)
	return p, err
}

// Event decodes a broadcast frame into the form the machine consumes.
func (f *Frame) Event() (Event, error) {
	ev := Event{Type: f.Type, Epoch: f.Epoch}

	switch f.Type {
	case MessageTypeControllerChange:
		var p ControllerChangePayload
		if err := f.decodePayload(&p); err != nil {
			return ev, err
		}
		ev.ControllerClientID = p.ControllerClientID

	case MessageTypeRequestsUpdate:
		var p RequestsUpdatePayload
		if err := f.decodePayload(&p); err != nil {
			return ev, err
		}
		ev.PendingRequests = p.PendingRequests

	case MessageTypeRequestDenied:
		var p RequestDeniedPayload
		if err := f.decodePayload(&p); err != nil {
			return ev, err
		}
		ev.RequesterClientID = p.RequesterClientID

	case MessageTypeOfferReceived:
		var p OfferReceivedPayload
		if err := f.decodePayload(&p); err != nil {
			return ev, err
		}
		ev.OffererClientID = p.OffererClientID
		ev.PeerName = p.OffererName

	case MessageTypeOfferSent:
		var p OfferSentPayload
		if err := f.decodePayload(&p); err != nil {
			return ev, err
		}
		ev.TargetClientID = p.TargetClientID
		ev.PeerName = p.TargetName

	case MessageTypeOfferAccepted:
		var p OfferAcceptedPayload
		if err := f.decodePayload(&p); err != nil {
			return ev, err
		}
		ev.PeerName = p.AccepterName

	case MessageTypeOfferDeclined:
		var p OfferDeclinedPayload
		if err := f.decodePayload(&p); err != nil {
			return ev, err
		}
		ev.PeerName = p.DeclinerName

	default:
		return ev, fmt.Errorf("not a broadcast frame: %s", f.Type)
	}

	return ev, nil
}
