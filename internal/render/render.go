/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package render runs generated matplotlib code in a python sandbox and
// returns the chart as a base64 PNG.
package render

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"pgedge-dataset-agent/internal/config"
	"pgedge-dataset-agent/internal/logging"
	"pgedge-dataset-agent/internal/store"
)

//go:embed wrapper.py
var wrapperScript []byte

const (
	DefaultPython        = "python3"
	DefaultTimeout       = 30 * time.Second
	DefaultMemoryLimitMB = 1024
	DefaultDPI           = 100

	chartFile     = "chart.png"
	maxStderrSize = 4096
)

// RenderError reports a chart that could not be produced
type RenderError struct {
	Reason string
	Stderr string
	Err    error
}

func (e *RenderError) Error() string {
	msg := "chart rendering failed: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Runner executes chart code
type Runner struct {
	Enabled       bool
	Python        string
	Timeout       time.Duration
	MemoryLimitMB int
	DPI           int
}

// New creates a Runner from the render configuration
func New(cfg config.RenderConfig) *Runner {
	r := &Runner{
		Enabled:       cfg.Enabled,
		Python:        cfg.Python,
		Timeout:       time.Duration(cfg.TimeoutSeconds) * time.Second,
		MemoryLimitMB: cfg.MemoryLimitMB,
		DPI:           cfg.DPI,
	}
	if r.Python == "" {
		r.Python = DefaultPython
	}
	if r.Timeout <= 0 {
		r.Timeout = DefaultTimeout
	}
	if r.MemoryLimitMB <= 0 {
		r.MemoryLimitMB = DefaultMemoryLimitMB
	}
	if r.DPI <= 0 {
		r.DPI = DefaultDPI
	}
	return r
}

type job struct {
	Code           string      `json:"code"`
	Columns        []string    `json:"columns"`
	Rows           []store.Row `json:"rows"`
	DPI            int         `json:"dpi"`
	CPUSeconds     int         `json:"cpu_seconds"`
	MemoryBytes    int64       `json:"memory_bytes"`
	AllowedImports []string    `json:"allowed_imports"`
}

// Render validates and runs code against the result rows. It returns the
// chart as base64 encoded PNG. A disabled runner returns an empty string.
func (r *Runner) Render(ctx context.Context, code string, rs *store.ResultSet) (string, error) {
	if r == nil || !r.Enabled {
		return "", nil
	}
	if err := Validate(code); err != nil {
		return "", err
	}
	return r.run(ctx, code, rs)
}

func (r *Runner) run(ctx context.Context, code string, rs *store.ResultSet) (string, error) {
	python, err := exec.LookPath(r.Python)
	if err != nil {
		return "", &RenderError{Reason: "python interpreter not found", Err: err}
	}

	dir, err := os.MkdirTemp("", "pgedge-render-*")
	if err != nil {
		return "", &RenderError{Reason: "failed to create sandbox directory", Err: err}
	}
	defer os.RemoveAll(dir)

	script := filepath.Join(dir, "wrapper.py")
	if err := os.WriteFile(script, wrapperScript, 0o600); err != nil {
		return "", &RenderError{Reason: "failed to write wrapper script", Err: err}
	}

	input := job{
		Code:           base64.StdEncoding.EncodeToString([]byte(code)),
		Rows:           []store.Row{},
		Columns:        []string{},
		DPI:            r.DPI,
		CPUSeconds:     int(r.Timeout/time.Second) + 1,
		MemoryBytes:    int64(r.MemoryLimitMB) * 1024 * 1024,
		AllowedImports: AllowedImports,
	}
	if rs != nil {
		input.Columns = append(input.Columns, rs.Columns...)
		input.Rows = append(input.Rows, rs.Records()...)
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return "", &RenderError{Reason: "failed to encode result rows", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, python, "-I", script)
	cmd.Dir = dir
	cmd.Env = []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + dir,
		"MPLCONFIGDIR=" + filepath.Join(dir, ".matplotlib"),
		"MPLBACKEND=Agg",
		"PYTHONIOENCODING=utf-8",
		"OPENBLAS_NUM_THREADS=1",
		"OMP_NUM_THREADS=1",
	}
	cmd.Stdin = bytes.NewReader(payload)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = &stderr
	cmd.WaitDelay = 2 * time.Second
	configureProcess(cmd)

	start := time.Now()
	err = cmd.Run()
	logging.Debug("render_finished", "duration_ms", time.Since(start).Milliseconds(), "error", err)

	if ctx.Err() != nil {
		reason := "chart code was cancelled"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = fmt.Sprintf("chart code exceeded %s", r.Timeout)
		}
		return "", &RenderError{Reason: reason, Stderr: tail(stderr.String()), Err: ctx.Err()}
	}
	if err != nil {
		return "", &RenderError{Reason: "chart code failed", Stderr: tail(stderr.String()), Err: err}
	}

	png, err := os.ReadFile(filepath.Join(dir, chartFile))
	if err != nil {
		return "", &RenderError{Reason: "no chart was produced", Stderr: tail(stderr.String()), Err: err}
	}
	if len(png) == 0 {
		return "", &RenderError{Reason: "chart file is empty", Stderr: tail(stderr.String())}
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

// Available reports whether the interpreter can import matplotlib
func Available(ctx context.Context, python string) error {
	path, err := exec.LookPath(python)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, path, "-I", "-c", "import matplotlib")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("matplotlib is not importable: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderrSize {
		s = s[len(s)-maxStderrSize:]
	}
	return s
}
