package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports liveness and the configured backend
type HealthHandler struct {
	backendURL string
	sessions   SessionCounter
	store      string
}

// SessionCounter reports the live session count
type SessionCounter interface {
	Len() int
}

func NewHealthHandler(backendURL string, sessions SessionCounter, store string) *HealthHandler {
	return &HealthHandler{backendURL: backendURL, sessions: sessions, store: store}
}

// HealthCheck returns the health status of the API. It does not probe the
// backend: a render can take minutes and the UI reports backend errors per cell.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"backend": gin.H{
			"url": h.backendURL,
		},
		"sessions":         h.sessions.Len(),
		"generation_store": h.store,
	})
}
