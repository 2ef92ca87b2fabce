package explore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Conceptual-Machines/variation-explorer/internal/models"
	"github.com/Conceptual-Machines/variation-explorer/internal/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRenderer records every call and delegates to RenderFunc when set.
type fakeRenderer struct {
	mu         sync.Mutex
	calls      []models.ParameterSet
	RenderFunc func(ctx context.Context, call int, p models.ParameterSet) (render.Result, error)
}

func assetFor(p models.ParameterSet) string {
	return fmt.Sprintf("/outputs/%s-%d-%d.png", p.Sampler, p.Seed, p.Steps)
}

func (f *fakeRenderer) Render(ctx context.Context, p models.ParameterSet) (render.Result, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, p)
	f.mu.Unlock()

	if f.RenderFunc != nil {
		return f.RenderFunc(ctx, call, p)
	}
	if ctx.Err() != nil {
		return render.Result{}, render.ErrCancelled
	}
	return render.Result{AssetRefs: []string{assetFor(p)}, ResolvedSeed: p.Seed}, nil
}

func (f *fakeRenderer) Calls() []models.ParameterSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ParameterSet(nil), f.calls...)
}

type fakeRewriter struct {
	mu      sync.Mutex
	prompts []string
	pool    []string
}

func (f *fakeRewriter) Variants(_ context.Context, prompt string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.pool
}

type fakeGenerations struct {
	mu         sync.Mutex
	current    *models.GenerationSettings
	saved      []models.ParameterSet
	savedURLs  []*string
	promotions []*models.Promotion
	saveErr    error
}

func (f *fakeGenerations) Current(context.Context) (*models.GenerationSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return nil, errors.New("no generation settings")
	}
	cur := *f.current
	return &cur, nil
}

func (f *fakeGenerations) Save(_ context.Context, p models.ParameterSet, url *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, p)
	f.savedURLs = append(f.savedURLs, url)
	return f.saveErr
}

func (f *fakeGenerations) RecordPromotion(_ context.Context, p *models.Promotion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.promotions = append(f.promotions, p)
	return nil
}

func newTestController(r Renderer, opts ...func(*Deps)) *Controller {
	deps := Deps{
		Renderer:  r,
		Rand:      seeded(1),
		SessionID: "test-session",
		Center:    catCenter(),
		Locks:     models.DefaultLockSet(),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	return New(deps)
}

func TestNew_DefaultsCenter(t *testing.T) {
	c := New(Deps{Renderer: &fakeRenderer{}})
	snap := c.Snapshot()

	assert.Equal(t, models.DefaultParameterSet(), snap.Center)
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.Cells)
	assert.Nil(t, snap.CenterAsset)
}

func TestNew_PanicsWithoutRenderer(t *testing.T) {
	assert.Panics(t, func() { New(Deps{}) })
}

func TestRefreshVariations_ResolvesCenterThenNeighborsInOrder(t *testing.T) {
	r := &fakeRenderer{}
	c := newTestController(r)

	require.NoError(t, c.RefreshVariations(context.Background()))

	snap := c.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	require.Len(t, snap.Cells, models.BatchSize)
	require.NotNil(t, snap.CenterAsset)
	assert.Equal(t, assetFor(catCenter()), *snap.CenterAsset)
	assert.False(t, snap.CenterInFlight)

	calls := r.Calls()
	require.Len(t, calls, 1+models.BatchSize)
	assert.Equal(t, catCenter(), calls[0], "center renders first")
	for i, cell := range snap.Cells {
		assert.Equal(t, cell.Params, calls[i+1], "neighbors render in batch order")
		require.NotNil(t, cell.Asset)
		assert.Equal(t, assetFor(cell.Params), *cell.Asset)
		assert.Equal(t, cell.Params.Seed, cell.ResolvedSeed)
		assert.False(t, cell.InFlight)
	}
}

func TestRefreshVariations_SkipsResolvedCenter(t *testing.T) {
	r := &fakeRenderer{}
	c := newTestController(r)

	require.NoError(t, c.RefreshVariations(context.Background()))
	require.NoError(t, c.RefreshVariations(context.Background()))

	calls := r.Calls()
	assert.Len(t, calls, 1+2*models.BatchSize)
	assert.Equal(t, uint64(2), c.Snapshot().Epoch)
}

func TestRefreshVariations_ContainsFailures(t *testing.T) {
	r := &fakeRenderer{
		RenderFunc: func(_ context.Context, call int, p models.ParameterSet) (render.Result, error) {
			switch call {
			case 0:
				return render.Result{}, &render.StatusError{StatusCode: 500, Message: "boom"}
			case 3:
				return render.Result{}, render.ErrEmptyResult
			case 5:
				// success without assets is an empty result
				return render.Result{}, nil
			}
			return render.Result{AssetRefs: []string{assetFor(p)}}, nil
		},
	}
	c := newTestController(r)

	require.NoError(t, c.RefreshVariations(context.Background()))

	snap := c.Snapshot()
	assert.Nil(t, snap.CenterAsset, "failed center stays unresolved")
	assert.Len(t, r.Calls(), 1+models.BatchSize, "failures do not abort the batch")
	for i, cell := range snap.Cells {
		if i == 2 || i == 4 {
			assert.Nil(t, cell.Asset, "cell %d", i)
			continue
		}
		assert.NotNil(t, cell.Asset, "cell %d", i)
	}
}

func TestRefreshVariations_CancelledMidBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeRenderer{
		RenderFunc: func(ctx context.Context, call int, p models.ParameterSet) (render.Result, error) {
			if call == 3 {
				cancel()
				return render.Result{}, render.ErrCancelled
			}
			return render.Result{AssetRefs: []string{assetFor(p)}}, nil
		},
	}
	c := newTestController(r)

	require.NoError(t, c.RefreshVariations(ctx), "cancellation is not an error")

	snap := c.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.NotNil(t, snap.CenterAsset)
	assert.NotNil(t, snap.Cells[0].Asset)
	assert.NotNil(t, snap.Cells[1].Asset)
	for _, cell := range snap.Cells[2:] {
		assert.Nil(t, cell.Asset, "cells after the cancellation stay pending")
		assert.False(t, cell.InFlight)
	}
	assert.Len(t, r.Calls(), 4, "no render starts after cancellation")
}

func TestRefreshVariations_SecondCallSupersedesFirst(t *testing.T) {
	started := make(chan struct{})
	const stale = "/outputs/stale.png"

	r := &fakeRenderer{
		RenderFunc: func(ctx context.Context, call int, p models.ParameterSet) (render.Result, error) {
			if call == 0 {
				close(started)
				<-ctx.Done()
				// a late success from the superseded scope must not be written
				return render.Result{AssetRefs: []string{stale}}, nil
			}
			return render.Result{AssetRefs: []string{assetFor(p)}}, nil
		},
	}
	var mu sync.Mutex
	var snapshots []Snapshot
	c := newTestController(r, func(d *Deps) {
		d.Hooks.OnChange = func(s Snapshot) {
			mu.Lock()
			snapshots = append(snapshots, s)
			mu.Unlock()
		}
	})

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- c.RefreshVariations(context.Background())
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first batch never started rendering")
	}

	require.NoError(t, c.RefreshVariations(context.Background()))

	select {
	case err := <-firstDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("first batch did not return after being superseded")
	}

	snap := c.Snapshot()
	assert.Equal(t, uint64(2), snap.Epoch)
	assert.Equal(t, StateIdle, snap.State)
	require.NotNil(t, snap.CenterAsset)
	assert.NotEqual(t, stale, *snap.CenterAsset)
	for _, cell := range snap.Cells {
		require.NotNil(t, cell.Asset)
		assert.NotEqual(t, stale, *cell.Asset)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, s := range snapshots {
		if s.CenterAsset != nil {
			assert.NotEqual(t, stale, *s.CenterAsset, "no snapshot ever carries the stale write")
		}
	}
}

func TestRefreshVariations_CenterEditDuringRenderIsNotOverwritten(t *testing.T) {
	var c *Controller
	r := &fakeRenderer{
		RenderFunc: func(_ context.Context, call int, p models.ParameterSet) (render.Result, error) {
			if call == 0 {
				c.UpdateCenter(func(p *models.ParameterSet) { p.Steps = 30 })
			}
			return render.Result{AssetRefs: []string{assetFor(p)}}, nil
		},
	}
	c = newTestController(r)

	require.NoError(t, c.RefreshVariations(context.Background()))

	snap := c.Snapshot()
	assert.Equal(t, 30, snap.Center.Steps)
	assert.Nil(t, snap.CenterAsset, "asset rendered for the old center is dropped")
}

func TestRefreshVariations_UsesRewriterOnlyWhenPromptUnlocked(t *testing.T) {
	rw := &fakeRewriter{pool: []string{"a tiny cat", "a striped cat"}}

	locked := newTestController(&fakeRenderer{}, func(d *Deps) { d.Rewriter = rw })
	require.NoError(t, locked.RefreshVariations(context.Background()))
	assert.Empty(t, rw.prompts)

	unlocked := newTestController(&fakeRenderer{}, func(d *Deps) {
		d.Rewriter = rw
		d.Locks = models.LockSet{Steps: true, Guidance: true, Scheduler: true, Seed: true}
	})
	require.NoError(t, unlocked.RefreshVariations(context.Background()))
	assert.Equal(t, []string{"a cat"}, rw.prompts)

	snap := unlocked.Snapshot()
	for _, cell := range snap.Cells[:models.BatchSize-snap.Padded] {
		assert.Contains(t, rw.pool, cell.Params.Prompt)
	}
	assert.Equal(t, models.BatchSize-len(rw.pool), snap.Padded)
}

func TestCancel_StopsRunningBatch(t *testing.T) {
	started := make(chan struct{})
	r := &fakeRenderer{
		RenderFunc: func(ctx context.Context, call int, p models.ParameterSet) (render.Result, error) {
			if call == 1 {
				close(started)
				<-ctx.Done()
				return render.Result{}, render.ErrCancelled
			}
			return render.Result{AssetRefs: []string{assetFor(p)}}, nil
		},
	}
	c := newTestController(r)

	done := make(chan error, 1)
	go func() { done <- c.RefreshVariations(context.Background()) }()

	<-started
	assert.Equal(t, StateBatchRunning, c.Snapshot().State)
	c.Cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("batch did not stop")
	}

	snap := c.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.NotNil(t, snap.CenterAsset, "already resolved work is kept")
	for _, cell := range snap.Cells {
		assert.Nil(t, cell.Asset)
		assert.False(t, cell.InFlight)
	}
}

func TestPromote_ReadBackMatchesCell(t *testing.T) {
	gens := &fakeGenerations{}
	c := newTestController(&fakeRenderer{}, func(d *Deps) { d.Generations = gens })
	require.NoError(t, c.RefreshVariations(context.Background()))

	cell := c.Snapshot().Cells[3]
	promoted, err := c.Promote(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, cell, promoted)

	snap := c.Snapshot()
	assert.Equal(t, cell.Params, snap.Center)
	require.NotNil(t, snap.CenterAsset)
	assert.Equal(t, *cell.Asset, *snap.CenterAsset)

	require.Len(t, gens.saved, 1)
	assert.Equal(t, cell.Params, gens.saved[0])
	require.NotNil(t, gens.savedURLs[0])
	assert.Equal(t, *cell.Asset, *gens.savedURLs[0])

	require.Len(t, gens.promotions, 1)
	assert.Equal(t, "test-session", gens.promotions[0].SessionID)
	assert.Equal(t, cell.Label, gens.promotions[0].Label)
	assert.Equal(t, *cell.Asset, gens.promotions[0].ImageURL)
}

func TestPromote_StoreFailureIsContained(t *testing.T) {
	gens := &fakeGenerations{saveErr: errors.New("db down")}
	c := newTestController(&fakeRenderer{}, func(d *Deps) { d.Generations = gens })
	require.NoError(t, c.RefreshVariations(context.Background()))

	cell, err := c.Promote(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, cell.Params, c.Snapshot().Center)
}

func TestPromote_OutOfRange(t *testing.T) {
	c := newTestController(&fakeRenderer{})

	_, err := c.Promote(context.Background(), 0)
	assert.ErrorIs(t, err, ErrCellOutOfRange)

	require.NoError(t, c.RefreshVariations(context.Background()))
	for _, idx := range []int{-1, models.BatchSize} {
		_, err := c.Promote(context.Background(), idx)
		assert.ErrorIs(t, err, ErrCellOutOfRange)
	}
}

func TestPromoteToCenter_StartsFreshBatchAroundCell(t *testing.T) {
	r := &fakeRenderer{}
	c := newTestController(r)
	require.NoError(t, c.RefreshVariations(context.Background()))

	cell := c.Snapshot().Cells[5]
	require.NoError(t, c.PromoteToCenter(context.Background(), 5))

	snap := c.Snapshot()
	assert.Equal(t, cell.Params, snap.Center)
	require.NotNil(t, snap.CenterAsset)
	assert.Equal(t, *cell.Asset, *snap.CenterAsset, "promoted asset survives the rebase")

	// the promoted center already has an asset, so only neighbors render
	assert.Len(t, r.Calls(), 1+2*models.BatchSize)

	first := snap.Cells[0].Params
	first.Seed = cell.Params.Seed
	assert.Equal(t, cell.Params, first, "new batch mutates around the promoted cell")
}

func TestUpdateCenter_InvalidatesAssetOnChange(t *testing.T) {
	r := &fakeRenderer{}
	c := newTestController(r)
	require.NoError(t, c.RefreshVariations(context.Background()))
	require.NotNil(t, c.Snapshot().CenterAsset)
	calls := len(r.Calls())

	c.UpdateCenter(func(p *models.ParameterSet) { p.Steps = 20 })
	assert.NotNil(t, c.Snapshot().CenterAsset, "a no-op edit keeps the asset")

	center := c.UpdateCenter(func(p *models.ParameterSet) { p.Prompt = "a dog" })
	assert.Equal(t, "a dog", center.Prompt)

	snap := c.Snapshot()
	assert.Nil(t, snap.CenterAsset)
	assert.Equal(t, StateIdle, snap.State, "editing never starts a batch")
	assert.Len(t, r.Calls(), calls)
}

func TestToggleLock(t *testing.T) {
	r := &fakeRenderer{}
	c := newTestController(r)

	locks := c.ToggleLock(models.LockSteps)
	assert.False(t, locks.Steps)
	assert.False(t, c.Snapshot().Locks.Steps)

	locks = c.ToggleLock(models.LockSteps)
	assert.True(t, locks.Steps)
	assert.Empty(t, r.Calls(), "toggling never regenerates")
}

func TestSyncFromGeneration(t *testing.T) {
	stored := models.GenerationSettings{Profile: "default", ImageURL: "/outputs/current.png"}
	want := catCenter()
	want.Prompt = "a lighthouse"
	stored.SetParams(want)

	gens := &fakeGenerations{current: &stored}
	c := newTestController(&fakeRenderer{}, func(d *Deps) { d.Generations = gens })

	require.NoError(t, c.SyncFromGeneration(context.Background()))

	snap := c.Snapshot()
	assert.Equal(t, want, snap.Center)
	require.NotNil(t, snap.CenterAsset)
	assert.Equal(t, "/outputs/current.png", *snap.CenterAsset)
}

func TestSyncFromGeneration_Errors(t *testing.T) {
	c := newTestController(&fakeRenderer{}, func(d *Deps) { d.Generations = &fakeGenerations{} })
	assert.Error(t, c.SyncFromGeneration(context.Background()))

	noStore := newTestController(&fakeRenderer{})
	assert.NoError(t, noStore.SyncFromGeneration(context.Background()))
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	c := newTestController(&fakeRenderer{})
	require.NoError(t, c.RefreshVariations(context.Background()))

	snap := c.Snapshot()
	*snap.Cells[0].Asset = "mutated"
	*snap.CenterAsset = "mutated"

	fresh := c.Snapshot()
	assert.NotEqual(t, "mutated", *fresh.Cells[0].Asset)
	assert.NotEqual(t, "mutated", *fresh.CenterAsset)
}

func TestHooks_OnRenderAndOnBatch(t *testing.T) {
	var mu sync.Mutex
	outcomes := map[string]int{}
	batches := 0

	r := &fakeRenderer{
		RenderFunc: func(_ context.Context, call int, p models.ParameterSet) (render.Result, error) {
			if call == 2 {
				return render.Result{}, render.ErrNetworkFailure
			}
			return render.Result{AssetRefs: []string{assetFor(p)}}, nil
		},
	}
	c := newTestController(r, func(d *Deps) {
		d.Hooks.OnRender = func(role string, _ time.Duration, outcome string) {
			mu.Lock()
			outcomes[role+"/"+outcome]++
			mu.Unlock()
		}
		d.Hooks.OnBatch = func(b models.Batch) {
			mu.Lock()
			batches++
			mu.Unlock()
		}
	})

	require.NoError(t, c.RefreshVariations(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, batches)
	assert.Equal(t, 1, outcomes[RoleCenter+"/"+OutcomeOK])
	assert.Equal(t, 7, outcomes[RoleNeighbor+"/"+OutcomeOK])
	assert.Equal(t, 1, outcomes[RoleNeighbor+"/"+OutcomeFailed])
}
