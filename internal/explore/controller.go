package explore

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Conceptual-Machines/variation-explorer/internal/logger"
	"github.com/Conceptual-Machines/variation-explorer/internal/models"
	"github.com/Conceptual-Machines/variation-explorer/internal/render"
)

// State is the controller's batch state.
type State string

const (
	StateIdle         State = "idle"
	StateBatchRunning State = "batch_running"
)

// Render roles, used for logs and metrics.
const (
	RoleCenter   = "center"
	RoleNeighbor = "neighbor"
)

// Render outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// ErrCellOutOfRange is returned when promoting an index outside the current batch.
var ErrCellOutOfRange = errors.New("cell index out of range")

// Renderer resolves one parameter set into assets.
type Renderer interface {
	Render(ctx context.Context, params models.ParameterSet) (render.Result, error)
}

// Rewriter supplies the prompt variant pool. Implementations never fail:
// an empty pool simply disables the prompt operator.
type Rewriter interface {
	Variants(ctx context.Context, prompt string) []string
}

// Generations is the externally observed "current generation parameters" record.
type Generations interface {
	Current(ctx context.Context) (*models.GenerationSettings, error)
	Save(ctx context.Context, params models.ParameterSet, imageURL *string) error
	RecordPromotion(ctx context.Context, promotion *models.Promotion) error
}

// Hooks are optional observers. They are called outside the controller lock.
type Hooks struct {
	OnChange func(Snapshot)
	OnRender func(role string, d time.Duration, outcome string)
	OnBatch  func(b models.Batch)
}

// Deps are the collaborators a Controller is built from. Renderer is required.
type Deps struct {
	Renderer    Renderer
	Rewriter    Rewriter
	Generations Generations
	Rand        *rand.Rand
	Samplers    []string
	Clock       func() time.Time
	SessionID   string
	Center      models.ParameterSet
	Locks       models.LockSet
	Hooks       Hooks
}

// Snapshot is a deep copy of the controller state for the UI.
type Snapshot struct {
	SessionID          string              `json:"session_id"`
	Version            uint64              `json:"version"`
	State              State               `json:"state"`
	Epoch              uint64              `json:"epoch"`
	Center             models.ParameterSet `json:"center"`
	CenterAsset        *string             `json:"center_asset,omitempty"`
	CenterResolvedSeed int64               `json:"center_resolved_seed,omitempty"`
	CenterInFlight     bool                `json:"center_in_flight"`
	Locks              models.LockSet      `json:"locks"`
	Cells              []models.Cell       `json:"cells"`
	Padded             int                 `json:"padded"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// Controller owns one exploration session: the center, its locks and the current batch.
type Controller struct {
	mu sync.Mutex

	renderer    Renderer
	rewriter    Rewriter
	generations Generations
	gen         *Generator
	clock       func() time.Time
	sessionID   string
	hooks       Hooks

	center             models.ParameterSet
	centerAsset        *string
	centerResolvedSeed int64
	centerInFlight     bool
	locks              models.LockSet
	cells              []models.Cell
	padded             int

	state     State
	epoch     uint64
	version   uint64
	updatedAt time.Time
	active    *scope
}

// New creates a controller. A zero Deps.Center falls back to the default parameter set.
func New(deps Deps) *Controller {
	if deps.Renderer == nil {
		panic("explore: Renderer is required")
	}
	samplers := deps.Samplers
	if len(samplers) == 0 {
		samplers = models.Samplers
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	center := deps.Center
	if center == (models.ParameterSet{}) {
		center = models.DefaultParameterSet()
	}

	return &Controller{
		renderer:    deps.Renderer,
		rewriter:    deps.Rewriter,
		generations: deps.Generations,
		gen:         NewGeneratorWithSamplers(deps.Rand, samplers),
		clock:       clock,
		sessionID:   deps.SessionID,
		hooks:       deps.Hooks,
		center:      center,
		locks:       deps.Locks,
		state:       StateIdle,
		updatedAt:   clock(),
	}
}

// SessionID returns the id this controller was created with.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// Snapshot returns a deep copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	cells := make([]models.Cell, len(c.cells))
	for i, cell := range c.cells {
		cells[i] = cell.Clone()
	}
	return Snapshot{
		SessionID:          c.sessionID,
		Version:            c.version,
		State:              c.state,
		Epoch:              c.epoch,
		Center:             c.center,
		CenterAsset:        copyRef(c.centerAsset),
		CenterResolvedSeed: c.centerResolvedSeed,
		CenterInFlight:     c.centerInFlight,
		Locks:              c.locks,
		Cells:              cells,
		Padded:             c.padded,
		UpdatedAt:          c.updatedAt,
	}
}

// touch must be called with c.mu held after every state change.
func (c *Controller) touch() {
	c.version++
	c.updatedAt = c.clock()
}

func (c *Controller) notify() {
	if c.hooks.OnChange == nil {
		return
	}
	c.hooks.OnChange(c.Snapshot())
}

// RefreshVariations cancels any running batch, generates a fresh one and
// resolves the center followed by each neighbor, one render at a time.
//
// It returns nil when superseded or cancelled; remaining cells stay pending.
// Render failures are logged per cell and never abort the batch.
func (c *Controller) RefreshVariations(ctx context.Context) error {
	s := c.install(ctx)
	defer c.release(s)

	c.mu.Lock()
	prompt := c.center.Prompt
	promptLocked := c.locks.Prompt
	c.mu.Unlock()

	var pool []string
	if !promptLocked && c.rewriter != nil {
		pool = c.rewriter.Variants(s.ctx, prompt)
	}
	if s.cancelled() {
		return nil
	}

	c.mu.Lock()
	if !c.owns(s) {
		c.mu.Unlock()
		return nil
	}
	batch := c.gen.Generate(c.center, c.locks, pool)
	c.cells = batch.Cells
	c.padded = batch.Padded
	c.touch()
	c.mu.Unlock()
	c.notify()

	if c.hooks.OnBatch != nil {
		c.hooks.OnBatch(batch)
	}

	if !c.resolveCenter(s) {
		return nil
	}
	for i := 0; i < models.BatchSize; i++ {
		if !c.resolveCell(s, i) {
			return nil
		}
	}
	return nil
}

// resolveCenter renders the center when it has no asset. It returns false
// once the scope no longer owns the controller.
func (c *Controller) resolveCenter(s *scope) bool {
	if s.cancelled() {
		return false
	}

	c.mu.Lock()
	if !c.owns(s) {
		c.mu.Unlock()
		return false
	}
	if c.centerAsset != nil {
		c.mu.Unlock()
		return true
	}
	params := c.center
	c.centerInFlight = true
	c.touch()
	c.mu.Unlock()
	c.notify()

	res, err := c.renderOne(s, RoleCenter, "Center", params)

	c.mu.Lock()
	if !c.owns(s) {
		c.mu.Unlock()
		return false
	}
	c.centerInFlight = false
	// the center may have been edited while the render was in flight
	if err == nil && c.center == params {
		ref := res.AssetRefs[0]
		c.centerAsset = &ref
		c.centerResolvedSeed = res.ResolvedSeed
	}
	c.touch()
	c.mu.Unlock()
	c.notify()

	return !render.IsCancelled(err)
}

// resolveCell renders neighbor i unless it already has an asset.
func (c *Controller) resolveCell(s *scope, i int) bool {
	if s.cancelled() {
		return false
	}

	c.mu.Lock()
	if !c.owns(s) {
		c.mu.Unlock()
		return false
	}
	if i >= len(c.cells) || c.cells[i].Asset != nil {
		c.mu.Unlock()
		return true
	}
	cell := c.cells[i]
	c.cells[i].InFlight = true
	c.touch()
	c.mu.Unlock()
	c.notify()

	res, err := c.renderOne(s, RoleNeighbor, cell.Label, cell.Params)

	c.mu.Lock()
	if !c.owns(s) {
		c.mu.Unlock()
		return false
	}
	c.cells[i].InFlight = false
	if err == nil {
		ref := res.AssetRefs[0]
		c.cells[i].Asset = &ref
		c.cells[i].ResolvedSeed = res.ResolvedSeed
	}
	c.touch()
	c.mu.Unlock()
	c.notify()

	return !render.IsCancelled(err)
}

func (c *Controller) renderOne(s *scope, role, label string, params models.ParameterSet) (render.Result, error) {
	start := c.clock()
	res, err := c.renderer.Render(s.ctx, params)
	if err == nil && len(res.AssetRefs) == 0 {
		err = render.ErrEmptyResult
	}
	duration := c.clock().Sub(start)

	fields := logger.Fields{
		"session_id": c.sessionID,
		"epoch":      s.epoch,
		"sampler":    params.Sampler,
		"seed":       params.Seed,
		"steps":      params.Steps,
	}

	outcome := OutcomeOK
	switch {
	case err == nil:
	case render.IsCancelled(err) || s.cancelled():
		outcome = OutcomeCancelled
		err = render.ErrCancelled
	default:
		outcome = OutcomeFailed
		logger.Error(fmt.Sprintf("Failed to render %s cell", role), err, logger.Fields{
			"session_id": c.sessionID,
			"label":      label,
			"role":       role,
		})
	}

	logger.LogRender(s.ctx, role, label, duration, outcome, fields)
	if c.hooks.OnRender != nil {
		c.hooks.OnRender(role, duration, outcome)
	}
	return res, err
}

// UpdateCenter applies an external edit to the center. Any actual change
// clears the resolved center asset; it neither cancels nor starts a batch.
func (c *Controller) UpdateCenter(edit func(p *models.ParameterSet)) models.ParameterSet {
	c.mu.Lock()
	next := c.center
	edit(&next)
	changed := next != c.center
	if changed {
		c.center = next
		c.centerAsset = nil
		c.centerResolvedSeed = 0
		c.touch()
	}
	center := c.center
	c.mu.Unlock()

	if changed {
		c.notify()
	}
	return center
}

// rebase replaces center and asset without the invalidation UpdateCenter applies.
func (c *Controller) rebase(params models.ParameterSet, asset *string, resolvedSeed int64) {
	c.mu.Lock()
	c.center = params
	c.centerAsset = copyRef(asset)
	c.centerResolvedSeed = resolvedSeed
	c.touch()
	c.mu.Unlock()
	c.notify()
}

// Promote makes cell index the new center, cancelling the running batch and
// pushing the values to the generation store. It does not start a new batch.
func (c *Controller) Promote(ctx context.Context, index int) (models.Cell, error) {
	c.mu.Lock()
	if index < 0 || index >= len(c.cells) {
		n := len(c.cells)
		c.mu.Unlock()
		return models.Cell{}, fmt.Errorf("%w: %d (batch has %d cells)", ErrCellOutOfRange, index, n)
	}
	cell := c.cells[index].Clone()
	c.mu.Unlock()

	c.supersede()
	c.rebase(cell.Params, cell.Asset, cell.ResolvedSeed)
	c.persistPromotion(ctx, cell)

	return cell, nil
}

// PromoteToCenter promotes cell index and then runs RefreshVariations.
func (c *Controller) PromoteToCenter(ctx context.Context, index int) error {
	if _, err := c.Promote(ctx, index); err != nil {
		return err
	}
	return c.RefreshVariations(ctx)
}

func (c *Controller) persistPromotion(ctx context.Context, cell models.Cell) {
	if c.generations == nil {
		return
	}
	if err := c.generations.Save(ctx, cell.Params, cell.Asset); err != nil {
		logger.Error("Failed to store promoted parameters", err, logger.Fields{
			"session_id": c.sessionID,
			"label":      cell.Label,
		})
	}

	promotion := &models.Promotion{
		SessionID:     c.sessionID,
		Label:         cell.Label,
		Prompt:        cell.Params.Prompt,
		Seed:          cell.Params.Seed,
		Steps:         cell.Params.Steps,
		GuidanceScale: cell.Params.GuidanceScale,
		Sampler:       cell.Params.Sampler,
	}
	if cell.Asset != nil {
		promotion.ImageURL = *cell.Asset
	}
	if err := c.generations.RecordPromotion(ctx, promotion); err != nil {
		logger.Error("Failed to record promotion", err, logger.Fields{
			"session_id": c.sessionID,
		})
	}
}

// SyncFromGeneration loads the center and its image from the generation store.
// The load counts as an internal change, so a stored image is kept.
func (c *Controller) SyncFromGeneration(ctx context.Context) error {
	if c.generations == nil {
		return nil
	}
	current, err := c.generations.Current(ctx)
	if err != nil {
		return fmt.Errorf("failed to load current generation: %w", err)
	}

	var asset *string
	if current.ImageURL != "" {
		url := current.ImageURL
		asset = &url
	}
	c.rebase(current.Params(), asset, 0)
	return nil
}

// ToggleLock flips one lock and returns the new set. It never regenerates.
func (c *Controller) ToggleLock(field models.LockField) models.LockSet {
	c.mu.Lock()
	c.locks = c.locks.Toggle(field)
	locks := c.locks
	c.touch()
	c.mu.Unlock()
	c.notify()
	return locks
}

// SetLocks replaces the whole lock set.
func (c *Controller) SetLocks(locks models.LockSet) {
	c.mu.Lock()
	c.locks = locks
	c.touch()
	c.mu.Unlock()
	c.notify()
}

// Cancel stops the running batch, if any. Resolved cells are kept.
func (c *Controller) Cancel() {
	c.supersede()
}

func copyRef(ref *string) *string {
	if ref == nil {
		return nil
	}
	v := *ref
	return &v
}
