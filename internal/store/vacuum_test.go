package store

import (
	"context"
	"testing"
	"time"
)

func TestVacuumIfNeeded(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	s := openTestStore(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	ran, err := s.VacuumIfNeeded(ctx)
	if err != nil {
		t.Fatalf("first VacuumIfNeeded: %v", err)
	}
	if !ran {
		t.Error("first call should vacuum")
	}

	ran, err = s.VacuumIfNeeded(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ran {
		t.Error("second call within interval should skip")
	}

	now = now.Add(VacuumInterval + time.Hour)
	ran, err = s.VacuumIfNeeded(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Error("call after interval should vacuum")
	}
}
