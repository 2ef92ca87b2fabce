package generation

import (
	"context"
	"sync"
	"time"

	"github.com/Conceptual-Machines/variation-explorer/internal/models"
)

// MemoryStore keeps generation settings in process, used when no database is configured
type MemoryStore struct {
	mu         sync.RWMutex
	current    *models.GenerationSettings
	promotions []models.Promotion
	nextID     uint
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewMemoryStoreWith creates a store seeded with params
func NewMemoryStoreWith(params models.ParameterSet) *MemoryStore {
	s := &MemoryStore{}
	now := time.Now()
	s.current = &models.GenerationSettings{
		ID:        1,
		CreatedAt: now,
		UpdatedAt: now,
		Profile:   DefaultProfile,
	}
	s.current.SetParams(params)
	return s
}

func (s *MemoryStore) Current(_ context.Context) (*models.GenerationSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, ErrNotFound
	}
	cur := *s.current
	return &cur, nil
}

func (s *MemoryStore) Save(_ context.Context, params models.ParameterSet, imageURL *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if s.current == nil {
		s.current = &models.GenerationSettings{ID: 1, CreatedAt: now, Profile: DefaultProfile}
	}
	s.current.SetParams(params)
	if imageURL != nil {
		s.current.ImageURL = *imageURL
	}
	s.current.UpdatedAt = now
	return nil
}

func (s *MemoryStore) RecordPromotion(_ context.Context, promotion *models.Promotion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	promotion.ID = s.nextID
	if promotion.CreatedAt.IsZero() {
		promotion.CreatedAt = time.Now()
	}
	s.promotions = append(s.promotions, *promotion)
	return nil
}

func (s *MemoryStore) Promotions(_ context.Context, sessionID string, limit int) ([]models.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Promotion
	for i := len(s.promotions) - 1; i >= 0; i-- {
		if s.promotions[i].SessionID != sessionID {
			continue
		}
		out = append(out, s.promotions[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
