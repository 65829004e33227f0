/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package datadog submits pipeline metrics to Datadog.
//
// Events are buffered in memory and submitted on a ticker and once more on
// Close. Stage durations are published as percentile gauges.
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"pgedge-dataset-agent/internal/config"
	"pgedge-dataset-agent/internal/logging"
	"pgedge-dataset-agent/internal/metrics"
)

// Options controls the Datadog backend
type Options struct {
	// JobName becomes the tag "job:<name>"; defaults to pgedge-dataset-agent
	JobName string

	// Tags are extra Datadog tags such as "env:prod"
	Tags []string

	// FlushEvery defaults to 60 seconds
	FlushEvery time.Duration

	now       func() time.Time
	submitter metricsSubmitter
}

// OptionsFrom converts the metrics configuration
func OptionsFrom(cfg config.MetricsConfig) Options {
	return Options{
		JobName:    cfg.JobName,
		Tags:       cfg.Tags,
		FlushEvery: time.Duration(cfg.FlushSeconds) * time.Second,
	}
}

type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
	closeOnce  sync.Once

	baseTags []string
	now      func() time.Time

	mu        sync.Mutex
	counts    map[seriesKey]float64
	durations map[seriesKey][]float64
}

// seriesKey identifies one counter or histogram series
type seriesKey struct {
	name string
	tags string
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend builds a backend using the official client. Credentials come
// from DD_API_KEY and DD_SITE.
func NewBackend(parent context.Context, opts Options) *Backend {
	job := opts.JobName
	if job == "" {
		job = "pgedge-dataset-agent"
	}
	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	now := opts.now
	if now == nil {
		now = time.Now
	}

	submitter := opts.submitter
	if submitter == nil {
		submitter = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        now,
		counts:     make(map[seriesKey]float64),
		durations:  make(map[seriesKey][]float64),
	}

	go b.loop()
	return b
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := time.NewTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			if err := b.Flush(); err != nil {
				logging.Warn("metrics_flush_failed", "error", err)
			}
		case <-b.stopCh:
			return
		}
	}
}

// IncCounter implements metrics.Backend
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counts[seriesKey{name, encodeLabels(labels)}] += delta
}

// ObserveHistogram implements metrics.Backend
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	k := seriesKey{name, encodeLabels(labels)}
	b.durations[k] = append(b.durations[k], value)
}

// Flush submits buffered metrics and resets the buffers. Buffers are reset
// even when submission fails.
func (b *Backend) Flush() error {
	b.mu.Lock()
	counts, durations := b.counts, b.durations
	b.counts = make(map[seriesKey]float64)
	b.durations = make(map[seriesKey][]float64)
	b.mu.Unlock()

	if len(counts) == 0 && len(durations) == 0 {
		return nil
	}

	series := b.buildSeries(counts, durations, b.now().Unix())
	_, _, err := b.api.SubmitMetrics(b.ctx, datadogV2.MetricPayload{Series: series}, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// Close stops the flush loop and flushes one final time
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		close(b.stopCh)
	})
	<-b.doneCh
	return b.Flush()
}

func (b *Backend) buildSeries(counts map[seriesKey]float64, durations map[seriesKey][]float64, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(counts)+6*len(durations))

	for k, v := range counts {
		series = append(series, point(datadogV2.METRICINTAKETYPE_COUNT, metricName(k.name), v, b.tags(k), nowUnix))
	}

	for k, samples := range durations {
		if len(samples) == 0 {
			continue
		}
		cp := append([]float64(nil), samples...)
		sort.Float64s(cp)
		name := metricName(k.name)
		tags := b.tags(k)
		for _, p := range []struct {
			suffix string
			q      float64
		}{{"p50", 0.50}, {"p90", 0.90}, {"p95", 0.95}, {"p99", 0.99}} {
			series = append(series, point(datadogV2.METRICINTAKETYPE_GAUGE, name+"."+p.suffix, percentileNearestRank(cp, p.q), tags, nowUnix))
		}
		series = append(series, point(datadogV2.METRICINTAKETYPE_GAUGE, name+".max", cp[len(cp)-1], tags, nowUnix))
		series = append(series, point(datadogV2.METRICINTAKETYPE_GAUGE, name+".samples", float64(len(cp)), tags, nowUnix))
	}

	sort.Slice(series, func(i, j int) bool {
		if series[i].Metric != series[j].Metric {
			return series[i].Metric < series[j].Metric
		}
		return strings.Join(series[i].Tags, ",") < strings.Join(series[j].Tags, ",")
	})
	return series
}

func (b *Backend) tags(k seriesKey) []string {
	out := append([]string(nil), b.baseTags...)
	if k.tags != "" {
		out = append(out, strings.Split(k.tags, ",")...)
	}
	return out
}

func point(kind datadogV2.MetricIntakeType, metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   kind.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

// metricName turns pipeline_stage_total into pipeline.stage.total
func metricName(name string) string {
	for _, suffix := range []string{"_total", "_seconds"} {
		if strings.HasSuffix(name, suffix) {
			base := strings.TrimSuffix(name, suffix)
			return strings.ReplaceAll(base, "_", ".") + "." + strings.TrimPrefix(suffix, "_")
		}
	}
	return strings.ReplaceAll(name, "_", ".")
}

// encodeLabels renders labels as sorted "key:value" tags
func encodeLabels(labels metrics.Labels) string {
	if len(labels) == 0 {
		return ""
	}
	tags := make([]string, 0, len(labels))
	for k, v := range labels {
		if v == "" {
			v = "unknown"
		}
		tags = append(tags, k+":"+v)
	}
	sort.Strings(tags)
	return strings.Join(tags, ",")
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)
