package generation

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/Conceptual-Machines/variation-explorer/internal/database"
	"github.com/Conceptual-Machines/variation-explorer/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the same contract checks against any Store
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	params := models.DefaultParameterSet()
	params.Prompt = "a lighthouse"
	image := "/outputs/lighthouse.png"
	require.NoError(t, store.Save(ctx, params, &image))

	current, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, params, current.Params())
	assert.Equal(t, image, current.ImageURL)

	params.Steps = 9
	require.NoError(t, store.Save(ctx, params, nil))
	current, err = store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, current.Steps)
	assert.Equal(t, image, current.ImageURL, "nil image keeps the stored one")

	session := uuid.NewString()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.RecordPromotion(ctx, &models.Promotion{
			SessionID: session,
			Label:     fmt.Sprintf("Steps +%d", i+1),
		}))
	}
	require.NoError(t, store.RecordPromotion(ctx, &models.Promotion{SessionID: "other", Label: "Random Seed"}))

	promotions, err := store.Promotions(ctx, session, 2)
	require.NoError(t, err)
	require.Len(t, promotions, 2)
	assert.Equal(t, "Steps +3", promotions[0].Label, "newest first")
	assert.Equal(t, "Steps +2", promotions[1].Label)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_EmptyCurrent(t *testing.T) {
	_, err := NewMemoryStore().Current(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Seeded(t *testing.T) {
	params := models.DefaultParameterSet()
	current, err := NewMemoryStoreWith(params).Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, params, current.Params())
	assert.Empty(t, current.ImageURL)
	assert.Equal(t, DefaultProfile, current.Profile)
}

func TestMemoryStore_CurrentIsCopy(t *testing.T) {
	store := NewMemoryStoreWith(models.DefaultParameterSet())
	current, err := store.Current(context.Background())
	require.NoError(t, err)
	current.Prompt = "changed"

	again, err := store.Current(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, "changed", again.Prompt)
}

func TestGormStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	db, err := database.Connect(url)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	store := &GormStore{db: db, profile: "test-" + uuid.NewString()}
	_, err = store.Current(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)

	exerciseStore(t, store)
}
