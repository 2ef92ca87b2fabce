package handlers

import (
	"net/http"

	"github.com/Conceptual-Machines/variation-explorer/internal/logger"
	"github.com/Conceptual-Machines/variation-explorer/internal/session"
	"github.com/Conceptual-Machines/variation-explorer/internal/web/templates"
	"github.com/a-h/templ"
	"github.com/gin-gonic/gin"
)

type WebHandler struct {
	sessions *session.Registry
}

func NewWebHandler(sessions *session.Registry) *WebHandler {
	return &WebHandler{sessions: sessions}
}

// Home renders the landing page
func (h *WebHandler) Home(c *gin.Context) {
	h.render(c, http.StatusOK, templates.Home())
}

// Session renders the exploration grid of one session
func (h *WebHandler) Session(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		c.Redirect(http.StatusTemporaryRedirect, "/")
		return
	}
	h.render(c, http.StatusOK, templates.Explorer(s.Controller.Snapshot()))
}

func (h *WebHandler) render(c *gin.Context, status int, component templ.Component) {
	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := component.Render(c.Request.Context(), c.Writer); err != nil {
		logger.Error("Failed to render template", err, logger.WithContext(c))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render template"})
	}
}
