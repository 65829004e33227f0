/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package metrics

import (
	"sync"
	"testing"
	"time"
)

type event struct {
	name   string
	value  float64
	labels Labels
}

type recorder struct {
	mu         sync.Mutex
	counters   []event
	histograms []event
}

func (r *recorder) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = append(r.counters, event{name, delta, labels})
}

func (r *recorder) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histograms = append(r.histograms, event{name, value, labels})
}

func (r *recorder) Flush() error { return nil }
func (r *recorder) Close() error { return nil }

func TestObserveStage(t *testing.T) {
	rec := &recorder{}
	prev := SetBackend(rec)
	t.Cleanup(func() { SetBackend(prev) })

	ObserveStage("executing", StatusOK, 1500*time.Millisecond)
	ObserveStage("rendering", StatusSkipped, 0)
	ObserveAsk("done")

	if len(rec.counters) != 3 {
		t.Fatalf("counters = %d, want 3", len(rec.counters))
	}
	if got := rec.counters[0]; got.name != StageTotal || got.labels["stage"] != "executing" || got.labels["status"] != StatusOK {
		t.Errorf("first counter = %+v", got)
	}
	if got := rec.counters[2]; got.name != AskTotal || got.labels["state"] != "done" {
		t.Errorf("ask counter = %+v", got)
	}
	if len(rec.histograms) != 1 {
		t.Fatalf("histograms = %d, want 1 (skipped stages have no duration)", len(rec.histograms))
	}
	if got := rec.histograms[0].value; got != 1.5 {
		t.Errorf("duration = %v, want 1.5", got)
	}
}

func TestSetBackendNil(t *testing.T) {
	prev := SetBackend(nil)
	t.Cleanup(func() { SetBackend(prev) })

	// must not panic
	ObserveStage("sanitizing", StatusError, time.Millisecond)
	if err := backend().Flush(); err != nil {
		t.Errorf("Flush() error = %v", err)
	}
}
