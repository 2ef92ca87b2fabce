package session

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Conceptual-Machines/variation-explorer/internal/explore"
	"github.com/Conceptual-Machines/variation-explorer/internal/logger"
	"github.com/Conceptual-Machines/variation-explorer/internal/models"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMaxSessions = 64

// ErrNotFound is returned for unknown or evicted session ids.
var ErrNotFound = errors.New("session not found")

// Observer receives session lifecycle and controller activity. metrics.Recorder implements it.
type Observer interface {
	ObserveRender(role string, d time.Duration, outcome string)
	ObserveBatch(ctx context.Context, sessionID string, cells, padded int)
	SessionOpened()
	SessionClosed()
}

// Options are shared by every session the registry creates.
type Options struct {
	MaxSessions int
	Renderer    explore.Renderer
	Rewriter    explore.Rewriter
	Generations explore.Generations
	Samplers    []string
	Center      models.ParameterSet
	Locks       models.LockSet
	Observer    Observer
}

// Session is one live exploration: a controller, the background context its
// batches run on, and the hub streaming its snapshots.
type Session struct {
	ID         string
	Controller *explore.Controller
	Hub        *Hub
	CreatedAt  time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Go runs fn on the session's background context. It is how refreshes
// outlive the HTTP request that started them.
func (s *Session) Go(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(s.ctx); err != nil {
			logger.Error("Session task failed", err, logger.Fields{
				"session_id": s.ID,
				"task":       name,
			})
		}
	}()
}

// Wait blocks until every task started with Go has returned.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Context is cancelled once the session is deleted or evicted.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Done is closed once the session is deleted or evicted.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *Session) close() {
	s.cancel()
	s.Controller.Cancel()
	s.Hub.Close()
}

// Registry is a bounded set of sessions. When full, the least recently used
// session is evicted and its running batch cancelled.
type Registry struct {
	opts  Options
	cache *lru.Cache[string, *Session]
}

// NewRegistry creates a registry. A Renderer is required.
func NewRegistry(opts Options) (*Registry, error) {
	if opts.Renderer == nil {
		return nil, errors.New("session registry requires a renderer")
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = defaultMaxSessions
	}
	if opts.Center == (models.ParameterSet{}) {
		opts.Center = models.DefaultParameterSet()
	}

	r := &Registry{opts: opts}
	cache, err := lru.NewWithEvict(opts.MaxSessions, r.onEvict)
	if err != nil {
		return nil, err
	}
	r.cache = cache
	return r, nil
}

func (r *Registry) onEvict(id string, s *Session) {
	s.close()
	if r.opts.Observer != nil {
		r.opts.Observer.SessionClosed()
	}
	logger.Info("Session closed", logger.Fields{"session_id": id})
}

// DefaultCenter returns the center new sessions start from.
func (r *Registry) DefaultCenter() models.ParameterSet {
	return r.opts.Center
}

// Create opens a session. A nil center uses the registry default.
func (r *Registry) Create(center *models.ParameterSet) *Session {
	id := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		ID:        id,
		Hub:       NewHub(),
		CreatedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}

	initial := r.opts.Center
	if center != nil {
		initial = *center
		initial.Sampler = models.NormalizeSampler(initial.Sampler)
	}

	s.Controller = explore.New(explore.Deps{
		Renderer:    r.opts.Renderer,
		Rewriter:    r.opts.Rewriter,
		Generations: r.opts.Generations,
		Rand:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		Samplers:    r.opts.Samplers,
		SessionID:   id,
		Center:      initial,
		Locks:       r.opts.Locks,
		Hooks:       r.hooks(s),
	})

	r.cache.Add(id, s)
	if r.opts.Observer != nil {
		r.opts.Observer.SessionOpened()
	}
	logger.Info("Session created", logger.Fields{
		"session_id": id,
		"prompt":     initial.Prompt,
		"sessions":   r.cache.Len(),
	})
	return s
}

func (r *Registry) hooks(s *Session) explore.Hooks {
	hooks := explore.Hooks{OnChange: s.Hub.Publish}
	if obs := r.opts.Observer; obs != nil {
		hooks.OnRender = obs.ObserveRender
		hooks.OnBatch = func(b models.Batch) {
			obs.ObserveBatch(s.ctx, s.ID, len(b.Cells), b.Padded)
		}
	}
	return hooks
}

// Get returns a session and marks it recently used.
func (r *Registry) Get(id string) (*Session, error) {
	s, ok := r.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete closes and removes a session.
func (r *Registry) Delete(id string) error {
	if !r.cache.Remove(id) {
		return ErrNotFound
	}
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Close closes every session and waits for their background tasks to return.
func (r *Registry) Close() {
	sessions := r.cache.Values()
	r.cache.Purge()
	for _, s := range sessions {
		s.Wait()
	}
}
