package turnstore

import (
	"context"
	"fmt"

	"github.com/cadencevoice/cadence/internal/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store persists committed turns. The decision path never blocks on it; a
// nil Store keeps the core fully in-memory.
type Store interface {
	SaveTurn(ctx context.Context, st types.UserState, preReply string) error
	RecentTurns(ctx context.Context, sessionID uuid.UUID, n int) ([]types.UserState, error)
}

type gormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// SaveTurn implements Store.
func (s *gormStore) SaveTurn(ctx context.Context, st types.UserState, preReply string) error {
	var entity TurnEntity
	entity.FromDomain(st, preReply)

	if err := s.db.WithContext(ctx).Create(&entity).Error; err != nil {
		return fmt.Errorf("failed to persist turn %d for session %s: %w", st.TurnID, st.SessionID, err)
	}
	return nil
}

// RecentTurns implements Store, most-recent last.
func (s *gormStore) RecentTurns(ctx context.Context, sessionID uuid.UUID, n int) ([]types.UserState, error) {
	var entities []TurnEntity
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("turn_id DESC").
		Limit(n).
		Find(&entities).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch turns for session %s: %w", sessionID, err)
	}

	out := make([]types.UserState, 0, len(entities))
	for i := len(entities) - 1; i >= 0; i-- {
		out = append(out, entities[i].ToDomain())
	}
	return out, nil
}
