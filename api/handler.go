// Package api exposes the dialogue engine over HTTP.
package api

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/voyago/concierge/engine"
	"github.com/voyago/concierge/hub"
	"github.com/voyago/concierge/speech"
	"github.com/voyago/concierge/store"
)

// Handler handles concierge HTTP requests.
type Handler struct {
	store    store.Store
	engine   *engine.Engine
	hub      *hub.Hub
	synth    speech.Synthesizer
	voice    string
	upgrader websocket.Upgrader
}

// NewHandler creates a new handler. h and synth may be nil when the
// corresponding feature is disabled.
func NewHandler(st store.Store, eng *engine.Engine, h *hub.Hub, synth speech.Synthesizer, voice string) *Handler {
	return &Handler{
		store:  st,
		engine: eng,
		hub:    h,
		synth:  synth,
		voice:  voice,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RegisterRoutes registers the concierge routes.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/sessions", h.StartSession)
	e.GET("/v1/sessions/:session_id", h.GetSession)
	e.GET("/v1/sessions/:session_id/messages", h.GetSessionMessages)
	e.POST("/v1/sessions/:session_id/input", h.SubmitInput)
	e.POST("/v1/sessions/:session_id/messages/:message_id/toggle", h.ToggleOption)
	e.POST("/v1/sessions/:session_id/messages/:message_id/selections", h.SubmitSelections)
	e.GET("/v1/sessions/:session_id/events", h.SessionEvents)
	e.POST("/v1/chat", h.Chat)
	e.POST("/v1/speech/synthesize", h.Synthesize)
}

// engineStatus maps an engine error to an HTTP response. Validation errors
// are acknowledged, not surfaced: the transcript stays untouched and the
// client simply keeps its current prompt.
func engineStatus(c echo.Context, err error) error {
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, map[string]interface{}{"accepted": true})
	case engine.IsValidationError(err):
		return c.JSON(http.StatusOK, map[string]interface{}{"accepted": false})
	case err == engine.ErrBusy:
		return c.JSON(http.StatusConflict, map[string]string{"error": "a turn is already in flight"})
	case err == engine.ErrSessionNotFound:
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	case err == engine.ErrSessionComplete, err == engine.ErrWrongKind, err == engine.ErrUnknownMessage:
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case err == engine.ErrClosed:
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "shutting down"})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
