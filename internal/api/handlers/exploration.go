package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Conceptual-Machines/variation-explorer/internal/explore"
	"github.com/Conceptual-Machines/variation-explorer/internal/generation"
	"github.com/Conceptual-Machines/variation-explorer/internal/logger"
	"github.com/Conceptual-Machines/variation-explorer/internal/models"
	"github.com/Conceptual-Machines/variation-explorer/internal/session"
	"github.com/gin-gonic/gin"
)

// ExplorationHandler exposes sessions and their three operations:
// refresh, promote and lock toggling.
type ExplorationHandler struct {
	sessions *session.Registry
	store    generation.Store
}

func NewExplorationHandler(sessions *session.Registry, store generation.Store) *ExplorationHandler {
	return &ExplorationHandler{sessions: sessions, store: store}
}

// CreateSessionRequest is the optional body of POST /sessions
type CreateSessionRequest struct {
	// Center is merged over the default center
	Center *CenterPatch    `json:"center"`
	Locks  *models.LockSet `json:"locks"`
	// Sync loads the center from the generation store
	Sync bool `json:"sync"`
}

// CenterPatch is a partial center edit. Absent fields are left unchanged.
type CenterPatch struct {
	Prompt         *string  `json:"prompt"`
	NegativePrompt *string  `json:"negative_prompt"`
	Seed           *int64   `json:"seed"`
	Steps          *int     `json:"steps"`
	GuidanceScale  *float64 `json:"guidance_scale"`
	Sampler        *string  `json:"sampler"`
	Width          *int     `json:"width"`
	Height         *int     `json:"height"`
}

// Validate rejects values the backend cannot render
func (p CenterPatch) Validate() error {
	switch {
	case p.Steps != nil && (*p.Steps < 1 || *p.Steps > maxSteps):
		return errors.New("steps must be between 1 and 150")
	case p.GuidanceScale != nil && *p.GuidanceScale <= 0:
		return errors.New("guidance_scale must be positive")
	case p.Width != nil && (*p.Width <= 0 || *p.Width > maxDimension):
		return errors.New("width must be between 1 and 4096")
	case p.Height != nil && (*p.Height <= 0 || *p.Height > maxDimension):
		return errors.New("height must be between 1 and 4096")
	case p.Sampler != nil && models.SamplerIndex(models.NormalizeSampler(*p.Sampler)) < 0:
		return errors.New("unknown sampler: " + *p.Sampler)
	case p.Prompt != nil && strings.TrimSpace(*p.Prompt) == "":
		return errors.New("prompt must not be empty")
	}
	return nil
}

// Apply writes the present fields into params
func (p CenterPatch) Apply(params *models.ParameterSet) {
	if p.Prompt != nil {
		params.Prompt = *p.Prompt
	}
	if p.NegativePrompt != nil {
		params.NegativePrompt = *p.NegativePrompt
	}
	if p.Seed != nil {
		params.Seed = *p.Seed
	}
	if p.Steps != nil {
		params.Steps = *p.Steps
	}
	if p.GuidanceScale != nil {
		params.GuidanceScale = *p.GuidanceScale
	}
	if p.Sampler != nil {
		params.Sampler = models.NormalizeSampler(*p.Sampler)
	}
	if p.Width != nil {
		params.Width = *p.Width
	}
	if p.Height != nil {
		params.Height = *p.Height
	}
}

// session resolves :id or writes a 404
func (h *ExplorationHandler) session(c *gin.Context) (*session.Session, bool) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return nil, false
	}
	return s, true
}

// CreateSession opens a new exploration session
func (h *ExplorationHandler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "message": err.Error()})
			return
		}
	}

	var center *models.ParameterSet
	if req.Center != nil {
		if err := req.Center.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		merged := h.sessions.DefaultCenter()
		req.Center.Apply(&merged)
		center = &merged
	}

	s := h.sessions.Create(center)
	if req.Locks != nil {
		s.Controller.SetLocks(*req.Locks)
	}
	if req.Sync {
		if err := s.Controller.SyncFromGeneration(c.Request.Context()); err != nil {
			logger.Error("Failed to sync new session from generation store", err, logger.WithContext(c))
		}
	}

	c.JSON(http.StatusCreated, s.Controller.Snapshot())
}

// GetSession returns the session snapshot
func (h *ExplorationHandler) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Controller.Snapshot())
}

// DeleteSession cancels any running batch and forgets the session
func (h *ExplorationHandler) DeleteSession(c *gin.Context) {
	if err := h.sessions.Delete(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateCenter applies a partial center edit. A real change clears the
// center asset; it never starts or cancels a batch.
func (h *ExplorationHandler) UpdateCenter(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var patch CenterPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "message": err.Error()})
		return
	}
	if err := patch.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.Controller.UpdateCenter(patch.Apply)
	c.JSON(http.StatusOK, s.Controller.Snapshot())
}

// ToggleLock flips one lock
func (h *ExplorationHandler) ToggleLock(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	field, err := models.ParseLockField(c.Param("field"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	locks := s.Controller.ToggleLock(field)
	c.JSON(http.StatusOK, gin.H{"locks": locks})
}

// Refresh starts a new batch on the session's background context and
// returns immediately. Progress is streamed over the websocket.
func (h *ExplorationHandler) Refresh(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	s.Go("refresh", s.Controller.RefreshVariations)
	c.JSON(http.StatusAccepted, gin.H{"status": "started", "session_id": s.ID})
}

// Cancel stops the running batch. Resolved cells are kept.
func (h *ExplorationHandler) Cancel(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.Controller.Cancel()
	c.JSON(http.StatusOK, s.Controller.Snapshot())
}

// Promote makes a cell the new center and starts a fresh batch
func (h *ExplorationHandler) Promote(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cell index must be an integer"})
		return
	}

	cell, err := s.Controller.Promote(c.Request.Context(), index)
	if err != nil {
		if errors.Is(err, explore.ErrCellOutOfRange) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Error("Failed to promote cell", err, logger.WithContext(c))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to promote cell"})
		return
	}

	s.Go("refresh", s.Controller.RefreshVariations)
	c.JSON(http.StatusAccepted, gin.H{"status": "started", "promoted": cell})
}

// Sync loads the center from the generation store
func (h *ExplorationHandler) Sync(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	if err := s.Controller.SyncFromGeneration(c.Request.Context()); err != nil {
		if errors.Is(err, generation.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No stored generation settings"})
			return
		}
		logger.Error("Failed to sync from generation store", err, logger.WithContext(c))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load generation settings"})
		return
	}
	c.JSON(http.StatusOK, s.Controller.Snapshot())
}

// Promotions lists the session's promotion history, newest first
func (h *ExplorationHandler) Promotions(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryPageSize)
	}

	promotions, err := h.store.Promotions(c.Request.Context(), s.ID, limit)
	if err != nil {
		logger.Error("Failed to list promotions", err, logger.WithContext(c))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list promotions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"promotions": promotions})
}
