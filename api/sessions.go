package api

import (
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// StartSession creates or resumes an onboarding session.
// POST /v1/sessions
func (h *Handler) StartSession(c echo.Context) error {
	ctx := c.Request().Context()

	var req struct {
		SessionID string `json:"session_id"`
	}
	// Body is optional; ignore bind errors for an empty body.
	_ = c.Bind(&req)

	session, messages, err := h.engine.StartSession(ctx, req.SessionID)
	if err != nil {
		log.Printf("ERROR: failed to start session: %v", err)
		return engineStatus(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"session":  session,
		"messages": messages,
	})
}

// GetSession returns the durable session state.
// GET /v1/sessions/:session_id
func (h *Handler) GetSession(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	session, err := h.store.GetSession(ctx, sessionID)
	if err != nil {
		log.Printf("ERROR: failed to get session: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get session"})
	}
	if session == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}

	return c.JSON(http.StatusOK, session)
}

// GetSessionMessages returns transcript messages for a session.
// GET /v1/sessions/:session_id/messages
func (h *Handler) GetSessionMessages(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = 50
	}
	afterSeq, _ := strconv.ParseInt(c.QueryParam("after_seq"), 10, 64)

	messages, err := h.store.GetMessages(ctx, sessionID, limit+1, afterSeq)
	if err != nil {
		log.Printf("ERROR: failed to get messages: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get messages"})
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"messages": messages,
		"has_more": hasMore,
	})
}

// SubmitInput handles a typed or spoken free-text reply.
// POST /v1/sessions/:session_id/input
func (h *Handler) SubmitInput(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	var req struct {
		Text string `json:"text"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	err := h.engine.SubmitFreeText(ctx, sessionID, req.Text)
	if err != nil {
		log.Printf("WARN: input rejected for session %s: %v", sessionID, err)
	}
	return engineStatus(c, err)
}

// ToggleOption toggles a selection on the current prompt.
// POST /v1/sessions/:session_id/messages/:message_id/toggle
func (h *Handler) ToggleOption(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")
	messageID := c.Param("message_id")

	var req struct {
		OptionID string `json:"option_id"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	return engineStatus(c, h.engine.ToggleOption(ctx, sessionID, messageID, req.OptionID))
}

// SubmitSelections commits the toggled options of the current prompt.
// POST /v1/sessions/:session_id/messages/:message_id/selections
func (h *Handler) SubmitSelections(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")
	messageID := c.Param("message_id")

	return engineStatus(c, h.engine.SubmitSelections(ctx, sessionID, messageID))
}
