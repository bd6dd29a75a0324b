package cron

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubJob struct {
	name string
	runs int
	err  error
}

func (s *stubJob) Name() string { return s.name }
func (s *stubJob) Run(context.Context) error {
	s.runs++
	return s.err
}

func TestRegistryStoresJobs(t *testing.T) {
	registry := NewRegistry()
	jobA := &stubJob{name: "a"}
	jobB := &stubJob{name: "b"}
	registry.Register(jobA)
	registry.Register(jobB)
	registry.Register(nil)
	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0] != jobA || jobs[1] != jobB {
		t.Fatalf("jobs returned out of order")
	}
	// ensure caller cannot mutate internal slice
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestEveryThrottlesRuns(t *testing.T) {
	inner := &stubJob{name: "daily"}
	job := Every(24*time.Hour, inner).(*throttledJob)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); !errors.Is(err, ErrNotDue) {
			t.Fatalf("expected ErrNotDue inside the interval, got %v", err)
		}
	}
	if inner.runs != 1 {
		t.Fatalf("expected 1 run inside the interval, got %d", inner.runs)
	}
	now = now.Add(25 * time.Hour)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if inner.runs != 2 {
		t.Fatalf("expected second run after interval, got %d", inner.runs)
	}
	if job.Name() != "daily" {
		t.Fatalf("unexpected name %q", job.Name())
	}
}

func TestEveryRetriesFailedRuns(t *testing.T) {
	inner := &stubJob{name: "flaky", err: errors.New("boom")}
	job := Every(time.Hour, inner)
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	inner.err = nil
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if inner.runs != 2 {
		t.Fatalf("expected retry on next cycle, got %d runs", inner.runs)
	}
}
