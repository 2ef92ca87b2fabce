// Package generation holds the "current generation parameters" record that
// the explorer reads on sync and writes on promotion.
package generation

import (
	"context"
	"errors"

	"github.com/Conceptual-Machines/variation-explorer/internal/models"
)

// DefaultProfile is the settings row the explorer works against
const DefaultProfile = "default"

// ErrNotFound means no generation settings have been stored yet
var ErrNotFound = errors.New("generation settings not found")

// Store persists the current generation parameters and the promotion history
type Store interface {
	Current(ctx context.Context) (*models.GenerationSettings, error)
	// Save overwrites the parameters; a nil imageURL keeps the stored image
	Save(ctx context.Context, params models.ParameterSet, imageURL *string) error
	RecordPromotion(ctx context.Context, promotion *models.Promotion) error
	// Promotions lists the newest promotions of a session first
	Promotions(ctx context.Context, sessionID string, limit int) ([]models.Promotion, error)
}
