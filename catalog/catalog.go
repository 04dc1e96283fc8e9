// Package catalog holds the static, ordered definition of onboarding steps.
// The catalog is fixed at build time; the engine never mutates it.
package catalog

import "github.com/voyago/concierge/domain"

// Step is one immutable onboarding question.
type Step struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Kind        domain.ResponseKind `json:"kind"`
	Options     []domain.Option     `json:"options,omitempty"`
}

// Steps is the ordered onboarding questionnaire, asked after name and email.
var Steps = []Step{
	{
		ID:    "interests",
		Title: "What are you most excited about when you travel?",
		Kind:  domain.ResponseMultiSelect,
		Options: []domain.Option{
			{ID: "food", Label: "Food"},
			{ID: "history", Label: "History"},
			{ID: "adventure", Label: "Adventure"},
			{ID: "relaxation", Label: "Relaxation"},
			{ID: "culture", Label: "Culture"},
			{ID: "nature", Label: "Nature"},
			{ID: "nightlife", Label: "Nightlife"},
			{ID: "shopping", Label: "Shopping"},
		},
	},
	{
		ID:    "travel_style",
		Title: "Which travel style fits you best?",
		Kind:  domain.ResponseSingleSelect,
		Options: []domain.Option{
			{ID: "luxury", Label: "Luxury"},
			{ID: "comfort", Label: "Comfort"},
			{ID: "budget", Label: "Budget"},
			{ID: "backpacker", Label: "Backpacker"},
		},
	},
	{
		ID:    "budget",
		Title: "What's your usual budget per trip?",
		Kind:  domain.ResponseSingleSelect,
		Options: []domain.Option{
			{ID: "under_1000", Label: "Under $1,000"},
			{ID: "1000_3000", Label: "$1,000 - $3,000"},
			{ID: "3000_5000", Label: "$3,000 - $5,000"},
			{ID: "above_5000", Label: "Above $5,000"},
		},
	},
	{
		ID:          "destinations",
		Title:       "Which destinations are on your wishlist?",
		Description: "Type a few places separated by commas.",
		Kind:        domain.ResponseDestinationList,
	},
	{
		ID:    "trip_length",
		Title: "How long do you usually travel for?",
		Kind:  domain.ResponseSingleSelect,
		Options: []domain.Option{
			{ID: "weekend", Label: "A weekend"},
			{ID: "one_week", Label: "About a week"},
			{ID: "two_weeks", Label: "Two weeks"},
			{ID: "month_plus", Label: "A month or more"},
		},
	},
}

// Len returns the number of catalog steps.
func Len() int {
	return len(Steps)
}

// At returns the step at index i.
func At(i int) (Step, bool) {
	if i < 0 || i >= len(Steps) {
		return Step{}, false
	}
	return Steps[i], true
}

// ByID returns the step with the given id.
func ByID(id string) (Step, bool) {
	for _, s := range Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}
