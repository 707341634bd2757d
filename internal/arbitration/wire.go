package arbitration

import (
	"time"

	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/shared"
)

type MessageType string

const (
	// Intents: peer -> coordinator, each acknowledged with an ack frame
	// carrying the same request_id.
	MessageTypeRequestController MessageType = "request_controller"
	MessageTypeCancelRequest     MessageType = "cancel_controller_request"
	MessageTypeApproveRequest    MessageType = "approve_controller_request"
	MessageTypeDenyRequest       MessageType = "deny_controller_request"
	MessageTypeOfferController   MessageType = "offer_controller"
	MessageTypeAcceptOffer       MessageType = "accept_controller_offer"
	MessageTypeDeclineOffer      MessageType = "decline_controller_offer"

	MessageTypeAck MessageType = "ack"

	// Broadcasts: coordinator -> peers, unacknowledged. Offer events are
	// delivered only to the peer they concern; their payloads carry no
	// target field, so the recipient is always the addressee.
	MessageTypeControllerChange MessageType = "controller_client_change"
	MessageTypeRequestsUpdate   MessageType = "controller_requests_update"
	MessageTypeRequestDenied    MessageType = "controller_request_denied"
	MessageTypeOfferReceived    MessageType = "controller_offer_received"
	MessageTypeOfferSent        MessageType = "controller_offer_sent"
	MessageTypeOfferAccepted    MessageType = "controller_offer_accepted"
	MessageTypeOfferDeclined    MessageType = "controller_offer_declined"
)

func (t MessageType) IsIntent() bool {
	switch t {
	case MessageTypeRequestController, MessageTypeCancelRequest,
		MessageTypeApproveRequest, MessageTypeDenyRequest,
		MessageTypeOfferController, MessageTypeAcceptOffer,
		MessageTypeDeclineOffer:
		return true
	}
	return false
}

type Message struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	ClientID  shared.ClientID `json:"client_id,omitempty"`
	Epoch     uint64          `json:"epoch,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   any             `json:"payload,omitempty"`
}

type AckPayload struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// IntentPayload carries the optional peer argument of an intent: the
// requester being approved or denied, the target of an offer, or the
// offerer being answered.
type IntentPayload struct {
	RequesterClientID shared.ClientID `json:"requester_client_id,omitempty"`
	TargetClientID    shared.ClientID `json:"target_client_id,omitempty"`
	OffererClientID   shared.ClientID `json:"offerer_client_id,omitempty"`
}

type ControllerChangePayload struct {
	ControllerClientID shared.ClientID `json:"controller_client_id"`
}

type RequestsUpdatePayload struct {
	PendingRequests []ControllerRequest `json:"pending_requests"`
}

type RequestDeniedPayload struct {
	RequesterClientID shared.ClientID `json:"requester_client_id"`
}

type OfferReceivedPayload struct {
	OffererClientID shared.ClientID `json:"offerer_client_id"`
	OffererName     string          `json:"offerer_name"`
}

type OfferSentPayload struct {
	TargetClientID shared.ClientID `json:"target_client_id"`
	TargetName     string          `json:"target_name"`
}

type OfferAcceptedPayload struct {
	AccepterName string `json:"accepter_name"`
}

type OfferDeclinedPayload struct {
	DeclinerName string `json:"decliner_name"`
}

// Event is a decoded broadcast, the form the local state machine consumes.
// Only the fields relevant to the event type are populated.
type Event struct {
	Type               MessageType
	Epoch              uint64
	ControllerClientID shared.ClientID
	PendingRequests    []ControllerRequest
	RequesterClientID  shared.ClientID
	OffererClientID    shared.ClientID
	TargetClientID     shared.ClientID
	PeerName           string
}
