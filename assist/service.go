package assist

import (
	"context"
	"log"

	"github.com/voyago/concierge/domain"
	"github.com/voyago/concierge/policy"
)

// Service resolves a chat turn through the primary backend and degrades to
// the local responder on any failure. It never returns an error to the
// dialogue.
type Service struct {
	client *Client
	policy *policy.Engine
}

// NewService creates a new assist service. client may be nil, in which case
// every turn is answered locally. policyEngine may be nil to skip policy
// evaluation.
func NewService(client *Client, policyEngine *policy.Engine) *Service {
	return &Service{client: client, policy: policyEngine}
}

// Reply answers a single chat turn. history is the prior transcript; only
// role/content pairs are forwarded to the backend.
func (s *Service) Reply(ctx context.Context, input string, history []domain.Message, personality string) string {
	if s.client == nil {
		return LocalReply(input)
	}

	if s.policy != nil {
		decision := s.policy.Evaluate(ctx, policy.Input{Message: input, Personality: personality})
		if decision != policy.DecisionAllow {
			return LocalReply(input)
		}
	}

	req := &ChatRequest{
		Message:     input,
		Personality: personality,
		History:     make([]Turn, 0, len(history)),
	}
	for _, m := range history {
		req.History = append(req.History, Turn{Role: string(m.Role), Content: m.Content})
	}

	resp, err := s.client.CreateReply(ctx, req)
	if err != nil {
		log.Printf("WARN: assistant backend failed, using local responder: %v", err)
		return LocalReply(input)
	}
	return resp.Message
}
