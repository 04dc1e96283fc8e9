package api

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/voyago/concierge/engine"
)

// Chat answers a free-form assistant turn.
// POST /v1/chat
func (h *Handler) Chat(c echo.Context) error {
	ctx := c.Request().Context()

	var req struct {
		SessionID   string `json:"session_id"`
		Message     string `json:"message"`
		Personality string `json:"personality"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "session_id is required"})
	}

	reply, err := h.engine.Chat(ctx, req.SessionID, req.Message, req.Personality)
	if err != nil {
		if err == engine.ErrEmptyInput {
			return c.JSON(http.StatusOK, map[string]interface{}{"accepted": false})
		}
		if err == engine.ErrBusy {
			return c.JSON(http.StatusConflict, map[string]string{"error": "a turn is already in flight"})
		}
		log.Printf("ERROR: chat turn failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}

	return c.JSON(http.StatusOK, map[string]string{"message": reply})
}
