/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package metrics records pipeline stage counters and durations through a
// pluggable backend. The default backend discards everything.
package metrics

import (
	"sync"
	"time"
)

const (
	// StageTotal counts stage outcomes, labelled by stage and status
	StageTotal = "pipeline_stage_total"
	// StageDuration observes stage latency in seconds
	StageDuration = "pipeline_stage_duration_seconds"
	// AskTotal counts finished asks, labelled by final state
	AskTotal = "pipeline_ask_total"
)

// Stage statuses
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Labels are metric dimensions
type Labels map[string]string

// Backend receives metric events
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
	Close() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }
func (nopBackend) Close() error                             { return nil }

// Nop returns a backend that discards all events
func Nop() Backend {
	return nopBackend{}
}

var (
	mu      sync.RWMutex
	current Backend = nopBackend{}
)

// SetBackend installs b as the process backend and returns the previous one
func SetBackend(b Backend) Backend {
	if b == nil {
		b = nopBackend{}
	}
	mu.Lock()
	defer mu.Unlock()
	prev := current
	current = b
	return prev
}

func backend() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// ObserveStage records one stage outcome and its duration
func ObserveStage(stage, status string, d time.Duration) {
	b := backend()
	labels := Labels{"stage": stage, "status": status}
	b.IncCounter(StageTotal, 1, labels)
	if status != StatusSkipped {
		b.ObserveHistogram(StageDuration, d.Seconds(), labels)
	}
}

// ObserveAsk records the final state of an ask
func ObserveAsk(state string) {
	backend().IncCounter(AskTotal, 1, Labels{"state": state})
}
