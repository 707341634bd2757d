package dto

import "time"

type PendingRequestResponse struct {
	ClientID      string    `json:"client_id" example:"client_abc123"`
	RequesterName string    `json:"requester_name" example:"Anna"`
	RequestTime   time.Time `json:"request_time"`
}

// ArbitrationResponse is the REST view of a session's controller state.
// The live view arrives over the websocket; this exists for late joiners
// and dashboards.
type ArbitrationResponse struct {
	SessionID          string                   `json:"session_id"`
	ControllerClientID string                   `json:"controller_client_id,omitempty"`
	PendingRequests    []PendingRequestResponse `json:"pending_requests"`
	Epoch              uint64                   `json:"epoch"`
}
