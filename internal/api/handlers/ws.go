package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Conceptual-Machines/variation-explorer/internal/explore"
	"github.com/Conceptual-Machines/variation-explorer/internal/logger"
	"github.com/Conceptual-Machines/variation-explorer/internal/models"
	"github.com/Conceptual-Machines/variation-explorer/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsReadLimit  = 4096
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
}

// WSAction is a client command sent over the socket
type WSAction struct {
	Action string `json:"action"` // refresh, cancel, promote, toggle_lock
	Index  int    `json:"index,omitempty"`
	Field  string `json:"field,omitempty"`
}

// WSMessage is every server frame: a snapshot or an error
type WSMessage struct {
	Type     string            `json:"type"` // snapshot, error
	Snapshot *explore.Snapshot `json:"snapshot,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Stream upgrades to a websocket, pushes every snapshot of the session and
// accepts actions from the client. The socket closes with the session.
func (h *ExplorationHandler) Stream(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("Failed to upgrade websocket", logger.Fields{
			"session_id": s.ID,
			"error":      err.Error(),
		})
		return
	}
	defer ws.Close()

	updates, unsubscribe := s.Hub.Subscribe()
	defer unsubscribe()

	fields := logger.WithContext(c)
	logger.Info("Websocket client connected", fields)

	errs := make(chan string, 1)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		h.readActions(ws, s, errs)
	}()

	initial := s.Controller.Snapshot()
	if err := writeMessage(ws, WSMessage{Type: "snapshot", Snapshot: &initial}); err != nil {
		return
	}
	sent := initial.Version

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case snap, open := <-updates:
			if !open {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(wsWriteWait))
				return
			}
			if snap.Version <= sent {
				continue
			}
			sent = snap.Version
			if err := writeMessage(ws, WSMessage{Type: "snapshot", Snapshot: &snap}); err != nil {
				return
			}
		case msg := <-errs:
			if err := writeMessage(ws, WSMessage{Type: "error", Error: msg}); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			logger.Info("Websocket client disconnected", fields)
			return
		}
	}
}

// readActions runs until the client goes away. It is the only reader.
func (h *ExplorationHandler) readActions(ws *websocket.Conn, s *session.Session, errs chan<- string) {
	ws.SetReadLimit(wsReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var action WSAction
		if err := ws.ReadJSON(&action); err != nil {
			return
		}
		if err := applyAction(s, action); err != nil {
			select {
			case errs <- err.Error():
			default:
			}
		}
	}
}

func applyAction(s *session.Session, action WSAction) error {
	switch action.Action {
	case "refresh":
		s.Go("refresh", s.Controller.RefreshVariations)
	case "cancel":
		s.Controller.Cancel()
	case "promote":
		if _, err := s.Controller.Promote(s.Context(), action.Index); err != nil {
			return err
		}
		s.Go("refresh", s.Controller.RefreshVariations)
	case "toggle_lock":
		field, err := models.ParseLockField(action.Field)
		if err != nil {
			return err
		}
		s.Controller.ToggleLock(field)
	default:
		return fmt.Errorf("unknown action: %q", action.Action)
	}
	return nil
}

func writeMessage(ws *websocket.Conn, msg WSMessage) error {
	_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	err := ws.WriteJSON(msg)
	if err != nil {
		logger.Debug("Failed to write websocket message", logger.Fields{"error": err.Error()})
	}
	return err
}
