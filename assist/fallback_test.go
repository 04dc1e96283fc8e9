package assist

import (
	"strings"
	"testing"
)

func TestLocalReplyKeywordMatch(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Tell me about PARIS please", "Paris"},
		{"is tokyo expensive in spring", "Tokyo"},
		{"thinking about a bali trip", "Bali"},
		{"how many days for rome", "Rome"},
		{"how can I afford this trip", "budget"},
		{"help me plan my days", "itinerary"},
		{"where should we eat", "eating"},
		{"do I need a visa", "passport"},
		{"what should I pack", "Packing"},
	}
	for _, tt := range tests {
		got := LocalReply(tt.input)
		if !strings.Contains(got, tt.want) {
			t.Errorf("LocalReply(%q) = %q, want mention of %q", tt.input, got, tt.want)
		}
	}
}

func TestLocalReplyDefault(t *testing.T) {
	got := LocalReply("xyzzy")
	if got != fallbackDefault {
		t.Fatalf("unexpected default reply: %q", got)
	}
}

func TestLocalReplyDeterministic(t *testing.T) {
	a := LocalReply("weekend in paris")
	b := LocalReply("weekend in paris")
	if a != b {
		t.Fatal("fallback replies must be deterministic")
	}
	if a == "" {
		t.Fatal("fallback reply must be non-empty")
	}
}
