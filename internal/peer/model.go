package peer

import (
	"time"

	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/shared"
)

// Peer is a durable identity for a client device. The id is chosen by
// the client and survives reconnects, so display names and seen times
// outlive any single websocket.
type Peer struct {
	ClientID    shared.ClientID `gorm:"primaryKey" json:"client_id"`
	DisplayName string          `gorm:"not null" json:"display_name"`
	LastSeenAt  time.Time       `json:"last_seen_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
