package arbitration

import (
	"time"

	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/shared"
)

// ControllerRequest is one pending entry in a session's request queue.
// At most one entry per client id.
type ControllerRequest struct {
	ClientID      shared.ClientID `json:"client_id"`
	RequesterName string          `json:"requester_name"`
	RequestTime   time.Time       `json:"request_time"`
}

// ControllerOffer is an in-flight delegation proposal. It is never queued;
// it exists only between offer_controller and accept/decline.
type ControllerOffer struct {
	OffererClientID shared.ClientID `json:"offerer_client_id"`
	OffererName     string          `json:"offerer_name"`
	TargetClientID  shared.ClientID `json:"target_client_id"`
	TargetName      string          `json:"target_name"`
}

// State is the arbitration truth for one session. The coordinator owns and
// mutates it; every peer holds a read-only mirror updated by broadcast.
// Queue order is arrival order and is display-only: approval is the
// controller's free choice, not FIFO.
type State struct {
	ControllerClientID shared.ClientID     `json:"controller_client_id"`
	PendingRequests    []ControllerRequest `json:"pending_requests"`
	Epoch              uint64              `json:"epoch"`
}

func (s *State) HasRequest(id shared.ClientID) bool {
	return s.requestIndex(id) >= 0
}

func (s *State) requestIndex(id shared.ClientID) int {
	for i, r := range s.PendingRequests {
		if r.ClientID == id {
			return i
		}
	}
	return -1
}

func (s *State) addRequest(r ControllerRequest) bool {
	if s.HasRequest(r.ClientID) {
		return false
	}
	s.PendingRequests = append(s.PendingRequests, r)
	return true
}

func (s *State) removeRequest(id shared.ClientID) bool {
	i := s.requestIndex(id)
	if i < 0 {
		return false
	}
	s.PendingRequests = append(s.PendingRequests[:i], s.PendingRequests[i+1:]...)
	return true
}

func (s *State) clone() State {
	out := State{
		ControllerClientID: s.ControllerClientID,
		Epoch:              s.Epoch,
	}
	if len(s.PendingRequests) > 0 {
		out.PendingRequests = make([]ControllerRequest, len(s.PendingRequests))
		copy(out.PendingRequests, s.PendingRequests)
	}
	return out
}
