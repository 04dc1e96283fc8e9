// Package domain defines the core domain models for the concierge engine.
package domain

// Phase represents the onboarding dialogue phase.
type Phase string

const (
	PhaseName       Phase = "NAME"
	PhaseEmail      Phase = "EMAIL"
	PhaseSteps      Phase = "STEPS"
	PhaseFinalizing Phase = "FINALIZING"
	PhaseComplete   Phase = "COMPLETE"
	// PhaseChat marks free-form assistant sessions that never enter the
	// onboarding flow.
	PhaseChat Phase = "CHAT"
)

// Role represents the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ResponseKind represents the input a message expects from the user.
type ResponseKind string

const (
	ResponseNone            ResponseKind = "none"
	ResponseFreeText        ResponseKind = "free_text"
	ResponseEmail           ResponseKind = "email"
	ResponseSingleSelect    ResponseKind = "single_select"
	ResponseMultiSelect     ResponseKind = "multi_select"
	ResponseDestinationList ResponseKind = "destination_list"
)

// SelectionBased reports whether the kind is answered by toggling options.
func (k ResponseKind) SelectionBased() bool {
	return k == ResponseSingleSelect || k == ResponseMultiSelect
}

// TextBased reports whether the kind is answered by typed or spoken text.
func (k ResponseKind) TextBased() bool {
	return k == ResponseFreeText || k == ResponseEmail || k == ResponseDestinationList
}

// EventType represents the type of a transcript event pushed to clients.
type EventType string

const (
	EventTypeMessageAppended  EventType = "message_appended"
	EventTypeMessageUpdated   EventType = "message_updated"
	EventTypeSessionFinalized EventType = "session_finalized"
)
