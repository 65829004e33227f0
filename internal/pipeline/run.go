/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"pgedge-dataset-agent/internal/config"
	"pgedge-dataset-agent/internal/generate"
	"pgedge-dataset-agent/internal/logging"
	"pgedge-dataset-agent/internal/metrics"
	"pgedge-dataset-agent/internal/render"
	"pgedge-dataset-agent/internal/sanitize"
	"pgedge-dataset-agent/internal/store"
)

// errNoAnswer marks an insight reply with neither narrative nor code
var errNoAnswer = errors.New("insight reply had no narrative or code")

// run carries one question through the states. Each stage runs at most
// once and a failure ends the run.
type run struct {
	session *Session
	cfg     *config.Config
	art     Artifact
}

func (r *run) transition(to State) {
	logging.Debug("pipeline_transition",
		"session", r.session.ID,
		"from", r.art.State.String(),
		"to", to.String(),
	)
	r.art.State = to
}

// stage enters state, runs fn and records the outcome
func (r *run) stage(state State, fn func() error) error {
	r.transition(state)
	start := time.Now()
	err := fn()
	status := metrics.StatusOK
	if err != nil {
		status = metrics.StatusError
	}
	metrics.ObserveStage(state.String(), status, time.Since(start))
	return err
}

func (r *run) skip(state State) {
	metrics.ObserveStage(state.String(), metrics.StatusSkipped, 0)
}

// fail moves to Failed with a user message; the cause is only logged
func (r *run) fail(err error, text string) {
	fields := []interface{}{
		"session", r.session.ID,
		"stage", r.art.State.String(),
		"error", err,
	}
	var re *render.RenderError
	if errors.As(err, &re) && re.Stderr != "" {
		fields = append(fields, "stderr", re.Stderr)
	}
	logging.Error("pipeline_failed", fields...)
	r.transition(Failed)
	r.art.Text = text
	r.art.Image = ""
}

func (r *run) finish() {
	r.transition(Done)
}

func (r *run) execute(ctx context.Context) {
	defer func() {
		metrics.ObserveAsk(r.art.State.String())
	}()

	s := r.session
	if s.store == nil {
		r.fail(errors.New("no dataset uploaded"), MessageUploadFirst)
		return
	}

	question := strings.TrimSpace(r.art.Question)
	if question == "" {
		r.fail(errors.New("empty question"), MessageUnableToAnswer)
		return
	}

	settings := generate.SettingsFrom(r.cfg, s.store.Dialect())
	settings.Table = s.table

	var raw string
	err := r.stage(GeneratingQuery, func() error {
		retrieved := s.index.Retrieve(ctx, question, r.cfg.Retrieval.TopK)
		var err error
		raw, err = generate.NewQueryGenerator(r.session.opts.Completer, settings).Generate(ctx, question, s.schema, retrieved)
		return err
	})
	if err != nil {
		r.fail(err, MessageUnableToAnswer)
		return
	}

	var query sanitize.Query
	err = r.stage(Sanitizing, func() error {
		sanitizer := sanitize.New(r.cfg.Sanitizer)
		sanitizer.Tables = []string{s.table}
		var err error
		query, err = sanitizer.Sanitize(raw)
		if err != nil {
			return err
		}
		if settings.Matcher != nil {
			query = sanitize.ResolveFilters(query, s.schema, *settings.Matcher)
		}
		return nil
	})
	if err != nil {
		r.fail(err, MessageUnableToAnswer)
		return
	}
	r.art.SQL = query.SQL
	r.art.Rewrites = query.Rewrites

	var rs *store.ResultSet
	err = r.stage(Executing, func() error {
		var err error
		rs, err = s.store.Execute(ctx, query)
		return err
	})
	if err != nil {
		r.fail(err, MessageUnableToAnswer)
		return
	}
	r.art.Columns = rs.Columns
	r.art.Rows = rs.Records()

	var analysis generate.Analysis
	err = r.stage(GeneratingInsight, func() error {
		var err error
		analysis, err = generate.NewInsightGenerator(r.session.opts.Completer, settings).Generate(ctx, question, query, rs)
		if err == nil && analysis.Narrative == "" && analysis.Code == "" {
			err = &generate.GenerationError{Stage: generate.StageInsight, Err: errNoAnswer}
		}
		return err
	})

	if rs.Len() == 0 {
		// An empty result is an answer, never a chart
		if err != nil {
			logging.Warn("empty_result_insight_failed", "session", s.ID, "error", err)
		}
		r.art.Text = analysis.Narrative
		if err != nil || r.art.Text == "" {
			r.art.Text = MessageNoData
		}
		r.skip(Rendering)
		r.finish()
		return
	}
	if err != nil {
		r.fail(err, MessageUnableToAnswer)
		return
	}
	r.art.Text = analysis.Narrative

	if analysis.Code == "" || !r.cfg.Render.Enabled {
		r.skip(Rendering)
		r.finish()
		return
	}

	var image string
	err = r.stage(Rendering, func() error {
		var err error
		image, err = s.renderer(r.cfg).Render(ctx, analysis.Code, rs)
		return err
	})
	if err != nil {
		narrative := r.art.Text
		r.fail(err, narrative)
		r.art.Notice = MessageChartFailed
		return
	}
	r.art.Image = image
	r.finish()
}
