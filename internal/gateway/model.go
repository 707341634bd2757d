package gateway

import (
	"context"

	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/arbitration"
	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/shared"
)

// PeerConnection is a live link to one peer in one session. The hub
// holds these and fans broadcasts out over them.
type PeerConnection interface {
	ClientID() shared.ClientID
	SessionID() string
	DisplayName() string
	Send(ctx context.Context, msg *arbitration.Message) error
	IsOnline() bool
	Close() error
}

type HubStats struct {
	Sessions int `json:"sessions"`
	Peers    int `json:"peers"`
}

type PeerInfo struct {
	ClientID    shared.ClientID `json:"client_id"`
	DisplayName string          `json:"display_name"`
	Online      bool            `json:"online"`
}
