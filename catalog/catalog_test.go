package catalog

import (
	"testing"

	"github.com/voyago/concierge/domain"
)

func TestStepsWellFormed(t *testing.T) {
	if Len() == 0 {
		t.Fatal("expected at least one step")
	}
	seen := map[string]bool{}
	for i := 0; i < Len(); i++ {
		step, ok := At(i)
		if !ok {
			t.Fatalf("At(%d) failed", i)
		}
		if step.ID == "" || step.Title == "" {
			t.Fatalf("step %d missing id or title: %+v", i, step)
		}
		if seen[step.ID] {
			t.Fatalf("duplicate step id %q", step.ID)
		}
		seen[step.ID] = true
		if step.Kind.SelectionBased() && len(step.Options) == 0 {
			t.Fatalf("selection step %q has no options", step.ID)
		}
		if step.Kind.TextBased() && len(step.Options) != 0 {
			t.Fatalf("text step %q should not carry options", step.ID)
		}
	}
}

func TestStepsOutOfRange(t *testing.T) {
	if _, ok := At(-1); ok {
		t.Fatal("expected no step for negative index")
	}
	if _, ok := At(Len()); ok {
		t.Fatal("expected no step past the last index")
	}
}

func TestByID(t *testing.T) {
	step, ok := ByID("interests")
	if !ok {
		t.Fatal("expected interests step")
	}
	if step.Kind != domain.ResponseMultiSelect {
		t.Fatalf("interests should be multi-select, got %s", step.Kind)
	}
	if _, ok := ByID("nope"); ok {
		t.Fatal("expected no step for unknown id")
	}
}

func TestOptionIDsUnique(t *testing.T) {
	for _, step := range Steps {
		seen := map[string]bool{}
		for _, opt := range step.Options {
			if opt.ID == "" || opt.Label == "" {
				t.Fatalf("step %q has blank option: %+v", step.ID, opt)
			}
			if seen[opt.ID] {
				t.Fatalf("step %q has duplicate option %q", step.ID, opt.ID)
			}
			seen[opt.ID] = true
		}
	}
}
