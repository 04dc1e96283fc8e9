// Package policy decides how a chat turn may be answered.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decisions returned by the chat policy.
const (
	DecisionAllow     = "allow"
	DecisionLocalOnly = "local_only"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.chat_policy.decision"),
		rego.Module("chat_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Input is the evaluation input for a chat turn.
type Input struct {
	Message     string `json:"message"`
	Personality string `json:"personality"`
	SessionID   string `json:"session_id"`
}

// Evaluate returns the decision for a chat turn. Evaluation failures default
// to allow: the policy is a routing hint, never a dead end for the dialogue.
func (e *Engine) Evaluate(ctx context.Context, input Input) string {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return DecisionAllow
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow
	}
	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s
	}
	return DecisionAllow
}

// DefaultPolicy is the default chat policy content.
const DefaultPolicy = `
package chat_policy

default decision = "allow"

# Offline personality keeps every turn on the local responder.
decision = "local_only" {
	input.personality == "offline"
}
`
