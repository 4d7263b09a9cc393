package monitor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduler_Add(t *testing.T) {
	s := NewScheduler(nil)

	if err := s.Add("probe", "@every 30s", func() {}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := s.Add("probe", "@every 30s", func() {}); err == nil {
		t.Error("expected error for duplicate job")
	}
	if err := s.Add("bad", "61 * * * *", func() {}); err == nil {
		t.Error("expected error for invalid schedule")
	}
	if err := s.Add("seconds", "*/5 * * * * *", func() {}); err == nil {
		t.Error("six-field expressions should be rejected")
	}
}

func TestScheduler_Lifecycle(t *testing.T) {
	s := NewScheduler(nil)

	var runs atomic.Int32
	if err := s.Add("tick", "@every 1s", func() { runs.Add(1) }); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if !s.NextRun("missing").IsZero() {
		t.Error("NextRun(missing) should be zero")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	if !s.IsRunning() {
		t.Fatal("IsRunning() = false after Start")
	}
	if s.NextRun("tick").IsZero() {
		t.Error("NextRun(tick) is zero")
	}

	deadline := time.Now().Add(3 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if runs.Load() == 0 {
		t.Error("job did not run")
	}

	cancel()
	deadline = time.Now().Add(2 * time.Second)
	for s.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.IsRunning() {
		t.Error("scheduler still running after cancel")
	}
}

func TestScheduler_RecoversPanics(t *testing.T) {
	s := NewScheduler(nil)

	var runs atomic.Int32
	if err := s.Add("panics", "@every 1s", func() {
		runs.Add(1)
		panic("boom")
	}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	s.Start(context.Background())
	defer s.Stop()

	deadline := time.Now().Add(4 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if runs.Load() < 2 {
		t.Errorf("runs = %d, want the job to keep running after a panic", runs.Load())
	}
}
