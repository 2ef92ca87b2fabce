package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/Conceptual-Machines/variation-explorer/internal/models"
	"gorm.io/gorm"
)

// GormStore keeps generation settings in the database, one row per profile
type GormStore struct {
	db      *gorm.DB
	profile string
}

// NewGormStore creates a store on the default profile
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, profile: DefaultProfile}
}

func (s *GormStore) Current(ctx context.Context) (*models.GenerationSettings, error) {
	var settings models.GenerationSettings
	err := s.db.WithContext(ctx).Where("profile = ?", s.profile).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load generation settings: %w", err)
	}
	return &settings, nil
}

func (s *GormStore) Save(ctx context.Context, params models.ParameterSet, imageURL *string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var settings models.GenerationSettings
		err := tx.Where("profile = ?", s.profile).First(&settings).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			settings = models.GenerationSettings{Profile: s.profile}
		} else if err != nil {
			return fmt.Errorf("failed to load generation settings: %w", err)
		}

		settings.SetParams(params)
		if imageURL != nil {
			settings.ImageURL = *imageURL
		}
		if err := tx.Save(&settings).Error; err != nil {
			return fmt.Errorf("failed to save generation settings: %w", err)
		}
		return nil
	})
}

func (s *GormStore) RecordPromotion(ctx context.Context, promotion *models.Promotion) error {
	if err := s.db.WithContext(ctx).Create(promotion).Error; err != nil {
		return fmt.Errorf("failed to record promotion: %w", err)
	}
	return nil
}

func (s *GormStore) Promotions(ctx context.Context, sessionID string, limit int) ([]models.Promotion, error) {
	var promotions []models.Promotion
	q := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&promotions).Error; err != nil {
		return nil, fmt.Errorf("failed to list promotions: %w", err)
	}
	return promotions, nil
}
