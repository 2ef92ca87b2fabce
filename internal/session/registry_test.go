package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Conceptual-Machines/variation-explorer/internal/explore"
	"github.com/Conceptual-Machines/variation-explorer/internal/models"
	"github.com/Conceptual-Machines/variation-explorer/internal/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRenderer struct {
	calls  atomic.Int32
	render func(ctx context.Context, p models.ParameterSet) (render.Result, error)
}

func (s *stubRenderer) Render(ctx context.Context, p models.ParameterSet) (render.Result, error) {
	s.calls.Add(1)
	if s.render != nil {
		return s.render(ctx, p)
	}
	return render.Result{AssetRefs: []string{"/outputs/x.png"}, ResolvedSeed: 7}, nil
}

// blockingRenderer parks every render until its context is cancelled.
func blockingRenderer(started chan<- struct{}) *stubRenderer {
	return &stubRenderer{render: func(ctx context.Context, _ models.ParameterSet) (render.Result, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return render.Result{}, render.ErrCancelled
	}}
}

type recordingObserver struct {
	mu      sync.Mutex
	renders []string
	batches []int
	opened  int
	closed  int
}

func (o *recordingObserver) ObserveRender(role string, _ time.Duration, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.renders = append(o.renders, role+":"+outcome)
}

func (o *recordingObserver) ObserveBatch(_ context.Context, _ string, _, padded int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.batches = append(o.batches, padded)
}

func (o *recordingObserver) SessionOpened() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened++
}

func (o *recordingObserver) SessionClosed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed++
}

func TestNewRegistry_RequiresRenderer(t *testing.T) {
	_, err := NewRegistry(Options{})
	assert.Error(t, err)
}

func TestRegistry_CreateGetDelete(t *testing.T) {
	obs := &recordingObserver{}
	r, err := NewRegistry(Options{Renderer: &stubRenderer{}, Observer: obs})
	require.NoError(t, err)

	s := r.Create(nil)
	require.NotEmpty(t, s.ID)
	assert.Equal(t, models.DefaultParameterSet(), s.Controller.Snapshot().Center)

	got, err := r.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, r.Delete(s.ID))
	_, err = r.Get(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, r.Delete(s.ID), ErrNotFound)

	select {
	case <-s.Done():
	default:
		t.Fatal("deleted session context should be cancelled")
	}
	assert.Equal(t, 1, obs.opened)
	assert.Equal(t, 1, obs.closed)
}

func TestRegistry_CreateWithCenter(t *testing.T) {
	r, err := NewRegistry(Options{Renderer: &stubRenderer{}})
	require.NoError(t, err)

	center := models.DefaultParameterSet()
	center.Prompt = "a lighthouse"
	center.Sampler = "Euler a"

	s := r.Create(&center)
	got := s.Controller.Snapshot().Center
	assert.Equal(t, "a lighthouse", got.Prompt)
	assert.Equal(t, "euler_a", got.Sampler)
}

func TestRegistry_EvictionCancelsRunningBatch(t *testing.T) {
	started := make(chan struct{}, 1)
	r, err := NewRegistry(Options{MaxSessions: 1, Renderer: blockingRenderer(started)})
	require.NoError(t, err)

	first := r.Create(nil)
	first.Go("refresh", first.Controller.RefreshVariations)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("render never started")
	}

	second := r.Create(nil)
	assert.Equal(t, 1, r.Len())

	first.Wait()
	assert.Equal(t, explore.StateIdle, first.Controller.Snapshot().State)
	_, err = r.Get(first.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Get(second.ID)
	assert.NoError(t, err)
}

func TestRegistry_HooksFeedObserverAndHub(t *testing.T) {
	obs := &recordingObserver{}
	r, err := NewRegistry(Options{Renderer: &stubRenderer{}, Observer: obs})
	require.NoError(t, err)

	s := r.Create(nil)
	updates, unsubscribe := s.Hub.Subscribe()
	defer unsubscribe()

	s.Go("refresh", s.Controller.RefreshVariations)
	s.Wait()

	obs.mu.Lock()
	assert.Len(t, obs.renders, 1+models.BatchSize)
	assert.Equal(t, "center:ok", obs.renders[0])
	assert.Len(t, obs.batches, 1)
	obs.mu.Unlock()

	var last explore.Snapshot
	for {
		select {
		case snap := <-updates:
			assert.Greater(t, snap.Version, last.Version)
			last = snap
			continue
		default:
		}
		break
	}
	assert.NotZero(t, last.Version)
}

func TestRegistry_CloseClosesEverySession(t *testing.T) {
	obs := &recordingObserver{}
	r, err := NewRegistry(Options{Renderer: &stubRenderer{}, Observer: obs})
	require.NoError(t, err)

	a := r.Create(nil)
	b := r.Create(nil)
	r.Close()

	assert.Equal(t, 0, r.Len())
	for _, s := range []*Session{a, b} {
		select {
		case <-s.Done():
		default:
			t.Fatalf("session %s still open", s.ID)
		}
	}
	assert.Equal(t, 2, obs.closed)
}

func TestRegistry_CloseWaitsForSessionTasks(t *testing.T) {
	started := make(chan struct{}, 1)
	r, err := NewRegistry(Options{Renderer: blockingRenderer(started)})
	require.NoError(t, err)

	s := r.Create(nil)
	var finished atomic.Bool
	s.Go("refresh", func(ctx context.Context) error {
		defer finished.Store(true)
		return s.Controller.RefreshVariations(ctx)
	})

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("render never started")
	}

	r.Close()
	assert.True(t, finished.Load(), "Close returned before the running batch stopped")
	assert.Equal(t, explore.StateIdle, s.Controller.Snapshot().State)
}
