package peer

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/shared"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Peer{})
}

// Upsert records the name a client connected with, refreshing it when
// the client reconnects under a different one.
func (s *Store) Upsert(ctx context.Context, clientID shared.ClientID, displayName string) error {
	p := Peer{
		ClientID:    clientID,
		DisplayName: displayName,
		LastSeenAt:  time.Now(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "client_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "last_seen_at", "updated_at"}),
	}).Create(&p).Error
}

func (s *Store) GetByID(ctx context.Context, clientID shared.ClientID) (*Peer, error) {
	var p Peer
	err := s.db.WithContext(ctx).Where("client_id = ?", clientID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	return &p, err
}

func (s *Store) TouchSeen(ctx context.Context, clientID shared.ClientID) error {
	return s.db.WithContext(ctx).Model(&Peer{}).
		Where("client_id = ?", clientID).
		Update("last_seen_at", time.Now()).Error
}

// DisplayName satisfies the name lookup the coordinator stamps into
// offer broadcasts. An unknown peer resolves to the empty string and
// the caller falls back to the raw id.
func (s *Store) DisplayName(ctx context.Context, clientID shared.ClientID) string {
	p, err := s.GetByID(ctx, clientID)
	if err != nil {
		return ""
	}
	return p.DisplayName
}
