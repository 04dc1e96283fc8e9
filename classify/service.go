package classify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/voyago/concierge/domain"
)

// Outcome is the result of finalizing a session. It is always produced: the
// fallback path guarantees a non-empty code even when every backend call
// fails.
type Outcome struct {
	Code     string `json:"code"`
	Category string `json:"category"`
	Summary  string `json:"summary,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// Service runs the finalization chain: classification with local fallback,
// the optional QR asset, and the fire-and-forget welcome notification.
type Service struct {
	client *Client

	// welcomeTimeout bounds the detached welcome call.
	welcomeTimeout time.Duration
}

// NewService creates a new classify service. client may be nil, in which
// case every finalization uses the local code generator.
func NewService(client *Client) *Service {
	return &Service{client: client, welcomeTimeout: 10 * time.Second}
}

// Finalize classifies the session's answers and issues its code.
func (s *Service) Finalize(ctx context.Context, session *domain.Session) Outcome {
	out := Outcome{
		Code:     LocalCode(session.Name, session.Answers),
		Category: DefaultCategory,
		Summary:  localSummary(session),
	}

	if s.client != nil {
		resp, err := s.client.Classify(ctx, &ClassifyRequest{
			Name:        session.Name,
			Email:       session.Email,
			Preferences: session.Answers,
		})
		if err != nil {
			log.Printf("WARN: classification backend failed, using local code: %v", err)
		} else {
			out.Code = resp.Code
			out.Category = resp.Category
			out.Summary = resp.Summary
		}

		imageURL, err := s.client.GetCodeImage(ctx, out.Code)
		if err != nil {
			// Non-fatal: code issuance proceeds without a QR asset.
			log.Printf("WARN: failed to fetch code image: %v", err)
		} else {
			out.ImageURL = imageURL
		}

		s.sendWelcome(session, out)
	}

	return out
}

// sendWelcome fires the welcome notification without blocking finalization.
func (s *Service) sendWelcome(session *domain.Session, out Outcome) {
	req := &WelcomeRequest{
		Email:       session.Email,
		Name:        session.Name,
		Code:        out.Code,
		Category:    out.Category,
		Preferences: session.Answers,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.welcomeTimeout)
		defer cancel()
		if err := s.client.SendWelcome(ctx, req); err != nil {
			log.Printf("WARN: welcome notification failed: %v", err)
		}
	}()
}

func localSummary(session *domain.Session) string {
	return fmt.Sprintf("%s's travel profile with %d recorded preferences.", session.Name, len(session.Answers))
}
