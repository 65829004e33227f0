/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package pipeline answers questions about an uploaded dataset. A Session
// owns the dataset, its schema, the relational store and the retrieval
// index, and runs each question through query generation, sanitizing,
// execution, insight generation and chart rendering.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"pgedge-dataset-agent/internal/config"
	"pgedge-dataset-agent/internal/dataset"
	"pgedge-dataset-agent/internal/embedding"
	"pgedge-dataset-agent/internal/history"
	"pgedge-dataset-agent/internal/llm"
	"pgedge-dataset-agent/internal/logging"
	"pgedge-dataset-agent/internal/render"
	"pgedge-dataset-agent/internal/retrieval"
	"pgedge-dataset-agent/internal/schema"
	"pgedge-dataset-agent/internal/store"
)

// Renderer draws a chart from generated code
type Renderer interface {
	Render(ctx context.Context, code string, rs *store.ResultSet) (string, error)
}

// StoreOpener opens an empty store for a session
type StoreOpener func(ctx context.Context, cfg config.StoreConfig, id string) (store.Store, error)

// HistoryRecorder persists finished asks
type HistoryRecorder interface {
	Record(e history.Entry) (history.Entry, error)
	List(sessionID string, limit int) ([]history.Entry, error)
	DeleteSession(sessionID string) (int64, error)
}

// Options are the collaborators shared by sessions
type Options struct {
	// Config returns the current configuration. It is read at the start of
	// every ask so reloaded settings apply to the next question.
	Config func() *config.Config

	Completer llm.Completer

	// Embeddings ranks the retrieval corpus; nil selects BM25
	Embeddings embedding.Provider

	// Renderer defaults to a sandbox built from the render configuration
	Renderer Renderer

	// OpenStore defaults to store.New
	OpenStore StoreOpener

	// History is optional
	History HistoryRecorder
}

// StaticConfig adapts a fixed configuration to Options.Config
func StaticConfig(cfg *config.Config) func() *config.Config {
	return func() *config.Config { return cfg }
}

// Session holds the state of one uploaded dataset
type Session struct {
	ID      string
	Created time.Time

	opts Options

	mu         sync.Mutex
	generation int
	ds         *dataset.Dataset
	schema     schema.Schema
	store      store.Store
	table      string
	index      *retrieval.Index
	last       Artifact
}

// NewSession creates a session with no dataset
func NewSession(opts Options) *Session {
	if opts.OpenStore == nil {
		opts.OpenStore = store.New
	}
	return &Session{
		ID:      uuid.NewString(),
		Created: time.Now().UTC(),
		opts:    opts,
	}
}

// Upload replaces the session dataset. The schema is introspected, a new
// store is loaded and the retrieval index rebuilt before the previous ones
// are released. On error the previous state is kept.
func (s *Session) Upload(ctx context.Context, ds *dataset.Dataset) (schema.Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ds == nil || len(ds.Columns) == 0 {
		return schema.Schema{}, fmt.Errorf("dataset has no columns")
	}

	cfg := s.opts.Config()
	start := time.Now()

	sch := schema.Introspect(ds, schema.Options{DateColumn: cfg.Dataset.DateColumn})

	generation := s.generation + 1
	st, err := s.opts.OpenStore(ctx, cfg.Store, fmt.Sprintf("%sg%d", s.ID, generation))
	if err != nil {
		return schema.Schema{}, fmt.Errorf("failed to open store: %w", err)
	}
	if err := st.Load(ctx, cfg.Dataset.TableName, ds, sch); err != nil {
		st.Close()
		return schema.Schema{}, fmt.Errorf("failed to load dataset: %w", err)
	}

	var index *retrieval.Index
	if cfg.Retrieval.Enabled {
		index, err = retrieval.Open(ctx, retrieval.OptionsFrom(cfg.Retrieval), s.opts.Embeddings)
		if err != nil {
			// Questions are answered without reference notes
			logging.Warn("retrieval_index_failed", "session", s.ID, "error", err)
			index = nil
		}
	}

	prevStore, prevIndex := s.store, s.index
	s.generation = generation
	s.ds = ds
	s.schema = sch
	s.store = st
	s.table = cfg.Dataset.TableName
	s.index = index
	s.last = Artifact{}

	if prevStore != nil {
		if err := prevStore.Close(); err != nil {
			logging.Warn("store_close_failed", "session", s.ID, "error", err)
		}
	}
	if err := prevIndex.Close(); err != nil {
		logging.Warn("retrieval_close_failed", "session", s.ID, "error", err)
	}

	logging.Info("dataset_uploaded",
		"session", s.ID,
		"dataset", ds.Name,
		"rows", ds.NumRows(),
		"columns", len(ds.Columns),
		"backend", st.Dialect(),
		"chunks", index.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return sch, nil
}

// Schema returns the schema of the current dataset
func (s *Session) Schema() (schema.Schema, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schema, s.store != nil
}

// Dataset returns the current dataset, nil before the first upload
func (s *Session) Dataset() *dataset.Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ds
}

// Last returns the artifact of the previous ask
func (s *Session) Last() Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// History lists the session's recorded asks, newest first
func (s *Session) History(limit int) ([]history.Entry, error) {
	if s.opts.History == nil {
		return []history.Entry{}, nil
	}
	return s.opts.History.List(s.ID, limit)
}

// ClearHistory removes the session's recorded asks and returns how many
// were deleted
func (s *Session) ClearHistory() (int64, error) {
	if s.opts.History == nil {
		return 0, nil
	}
	return s.opts.History.DeleteSession(s.ID)
}

// Close releases the store and the retrieval index
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if s.store != nil {
		firstErr = s.store.Close()
		s.store = nil
	}
	if err := s.index.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	s.index = nil
	return firstErr
}

// Ask answers one question. It never returns an error; failures are
// reported through the artifact state and a fixed message.
func (s *Session) Ask(ctx context.Context, question string) Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	r := &run{session: s, cfg: s.opts.Config(), art: Artifact{Question: question, State: Idle}}
	r.execute(ctx)

	s.last = r.art
	s.record(r.art, time.Since(start))
	return r.art
}

func (s *Session) record(art Artifact, d time.Duration) {
	if s.opts.History == nil {
		return
	}
	_, err := s.opts.History.Record(history.Entry{
		SessionID:  s.ID,
		Question:   art.Question,
		SQL:        art.SQL,
		State:      art.State.String(),
		Text:       art.Text,
		Notice:     art.Notice,
		Rows:       len(art.Rows),
		HasImage:   art.HasImage(),
		DurationMS: d.Milliseconds(),
	})
	if err != nil {
		logging.Warn("history_record_failed", "session", s.ID, "error", err)
	}
}

// renderer picks the injected renderer or builds one from configuration
func (s *Session) renderer(cfg *config.Config) Renderer {
	if s.opts.Renderer != nil {
		return s.opts.Renderer
	}
	return render.New(cfg.Render)
}
