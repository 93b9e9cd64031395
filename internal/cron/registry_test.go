package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

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

func TestRegistryReplacesJobWithSameName(t *testing.T) {
	first := &stubJob{name: "order-sync"}
	second := &stubJob{name: "order-sync"}
	registry := NewRegistry(first, &stubJob{name: "other"}, second)

	if n := len(registry.Jobs()); n != 2 {
		t.Fatalf("expected 2 jobs, got %d", n)
	}
	job, ok := registry.Lookup("order-sync")
	if !ok || job != second {
		t.Fatalf("expected replacement job, got %v", job)
	}
	if _, ok := registry.Lookup("missing"); ok {
		t.Fatal("unexpected job for missing name")
	}
}
