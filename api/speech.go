package api

import (
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/voyago/concierge/speech"
)

// Synthesize returns audio for the given text, stripped of markdown
// formatting. With no networked provider configured the feature is
// reported unavailable; the client keeps its local engine.
// POST /v1/speech/synthesize
func (h *Handler) Synthesize(c echo.Context) error {
	ctx := c.Request().Context()

	var req struct {
		Text  string `json:"text"`
		Voice string `json:"voice"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	text := speech.Flatten(req.Text)
	if text == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "text is required"})
	}

	if h.synth == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "speech synthesis not configured"})
	}

	voice := req.Voice
	if voice == "" {
		voice = h.voice
	}

	audio, err := h.synth.Synthesize(ctx, text, voice)
	if err != nil {
		log.Printf("WARN: speech synthesis failed: %v", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "synthesis failed"})
	}

	contentType := http.DetectContentType(audio)
	if strings.HasPrefix(contentType, "text/") {
		contentType = "application/octet-stream"
	}
	return c.Blob(http.StatusOK, contentType, audio)
}
