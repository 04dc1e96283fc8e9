package domain

import "time"

// Option is one selectable choice attached to an assistant message.
type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Message represents a single transcript entry.
type Message struct {
	MessageID string    `json:"message_id"`
	SessionID string    `json:"session_id"`
	Seq       int64     `json:"seq"` // monotonically increasing per session
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`

	// ExpectsResponse is true on at most one message per session: the most
	// recent assistant message still awaiting a reply.
	ExpectsResponse bool         `json:"expects_response"`
	ResponseKind    ResponseKind `json:"response_kind"`
	Options         []Option     `json:"options,omitempty"`
	Selections      []string     `json:"selections,omitempty"`

	// Pending is true while an async operation for this message is in flight.
	Pending bool `json:"pending"`

	// Structured payload set on the finalization message.
	Code     string `json:"code,omitempty"`
	Category string `json:"category,omitempty"`
}

// Selected reports whether optionID is currently toggled on.
func (m *Message) Selected(optionID string) bool {
	for _, id := range m.Selections {
		if id == optionID {
			return true
		}
	}
	return false
}

// HasOption reports whether optionID is one of the message's options.
func (m *Message) HasOption(optionID string) bool {
	for _, o := range m.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

// OptionLabel returns the label for optionID, or the id itself when unknown.
func (m *Message) OptionLabel(optionID string) string {
	for _, o := range m.Options {
		if o.ID == optionID {
			return o.Label
		}
	}
	return optionID
}

// Session represents the durable onboarding record.
type Session struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phase     Phase  `json:"phase"`

	// Cursor indexes the next unanswered catalog step. It only grows.
	Cursor  int                 `json:"cursor"`
	Answers map[string][]string `json:"answers"`

	// Set once during finalization, absent beforehand.
	IssuedCode   string `json:"issued_code,omitempty"`
	Category     string `json:"category,omitempty"`
	Summary      string `json:"summary,omitempty"`
	CodeImageURL string `json:"code_image_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Finalized reports whether the session has been handed its travel code.
func (s *Session) Finalized() bool {
	return s.Phase == PhaseComplete
}

// Event is a transcript update pushed to subscribed clients.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Message   *Message  `json:"message,omitempty"`
	Session   *Session  `json:"session,omitempty"`
	Ts        int64     `json:"ts"` // Unix milliseconds
}
