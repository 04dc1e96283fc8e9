package janitor

import (
	"context"
	"testing"
	"time"

	"github.com/voyago/concierge/domain"
	"github.com/voyago/concierge/tests/helpers"
)

func TestSweep(t *testing.T) {
	ctx := context.Background()
	st := helpers.NewTestSQLiteStore(t)

	old := time.Now().Add(-48 * time.Hour)
	sessions := []*domain.Session{
		{SessionID: "abandoned", Phase: domain.PhaseSteps, CreatedAt: old, UpdatedAt: old},
		{SessionID: "finished", Phase: domain.PhaseComplete, CreatedAt: old, UpdatedAt: old},
		{SessionID: "active", Phase: domain.PhaseSteps, CreatedAt: time.Now(), UpdatedAt: time.Now()},
	}
	for _, s := range sessions {
		if err := st.CreateSession(ctx, s); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
	}

	j := New(st, "@hourly", 24*time.Hour)
	j.sweep()

	if got, _ := st.GetSession(ctx, "abandoned"); got != nil {
		t.Fatal("abandoned session should be pruned")
	}
	if got, _ := st.GetSession(ctx, "finished"); got == nil {
		t.Fatal("completed session must never be pruned")
	}
	if got, _ := st.GetSession(ctx, "active"); got == nil {
		t.Fatal("recently active session must not be pruned")
	}
}

func TestStartInvalidSchedule(t *testing.T) {
	st := helpers.NewTestSQLiteStore(t)
	j := New(st, "not a schedule", time.Hour)
	if err := j.Start(); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestStartStop(t *testing.T) {
	st := helpers.NewTestSQLiteStore(t)
	j := New(st, "@hourly", time.Hour)
	if err := j.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	j.Stop()
}
