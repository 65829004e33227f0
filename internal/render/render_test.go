/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"pgedge-dataset-agent/internal/config"
	"pgedge-dataset-agent/internal/store"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr string
	}{
		{"plain chart", "import matplotlib.pyplot as plt\nplt.bar(df['brand'], df['spend'])", ""},
		{"allowed imports", "import numpy as np, pandas as pd\nfrom collections import Counter\nimport math", ""},
		{"empty", "   \n", "empty"},
		{"os import", "import os\nos.listdir('.')", "forbidden"},
		{"from subprocess", "from subprocess import run", `"subprocess"`},
		{"inline import", "x = 1; import socket", `"socket"`},
		{"open call", "f = open('/etc/passwd')", "forbidden"},
		{"eval call", "eval('1+1')", "forbidden"},
		{"dunder access", "().__class__.__bases__", "forbidden"},
		{"getattr", "getattr(plt, 'show')()", "forbidden"},
		{"relative import", "from .secret import x", "not allowed"},
		{"pandas read", "df2 = pd.read_csv('/etc/passwd')", "reads or writes files"},
		{"pandas read from url", "pd.read_json('http://169.254.169.254/latest/meta-data')", "reads or writes files"},
		{"dataframe export", "df.to_csv('/tmp/x')", "reads or writes files"},
		{"excel export", "df.to_excel ('out.xlsx')", "reads or writes files"},
		{"figure save", "fig = plt.figure()\nfig.savefig('/tmp/out.png')", "reads or writes files"},
		{"image read", "img = plt.imread('/etc/hosts')", "reads or writes files"},
		{"numpy save", "np.save('/tmp/x.npy', df['spend'])", "reads or writes files"},
		{"numpy load", "x = np.loadtxt('/etc/hosts')", "reads or writes files"},
		{"array tofile", "df['spend'].values.tofile('/tmp/raw')", "reads or writes files"},
		{"numpy math", "plt.plot(np.log(df['spend']))", ""},
		{"too long", strings.Repeat("x = 1\n", maxCodeLength), "too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.code)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			var re *RenderError
			if !errors.As(err, &re) {
				t.Fatalf("Validate() error = %v, want *RenderError", err)
			}
			if !strings.Contains(re.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", re.Error(), tt.wantErr)
			}
		})
	}
}

func TestNewDefaults(t *testing.T) {
	r := New(config.RenderConfig{Enabled: true})
	if r.Python != DefaultPython || r.Timeout != DefaultTimeout || r.DPI != DefaultDPI || r.MemoryLimitMB != DefaultMemoryLimitMB {
		t.Errorf("New() = %+v, want defaults", r)
	}
}

func TestRenderDisabled(t *testing.T) {
	r := New(config.RenderConfig{Enabled: false, Python: "/nonexistent/python"})
	img, err := r.Render(context.Background(), "import os", nil)
	if err != nil || img != "" {
		t.Errorf("Render() = (%q, %v), want empty result", img, err)
	}
}

func TestRenderMissingInterpreter(t *testing.T) {
	r := New(config.RenderConfig{Enabled: true, Python: "/nonexistent/python3"})
	_, err := r.Render(context.Background(), "plt.plot([1, 2])", nil)
	var re *RenderError
	if !errors.As(err, &re) {
		t.Fatalf("Render() error = %v, want *RenderError", err)
	}
}

// sandbox returns a runner backed by a python3 with matplotlib
func sandbox(t *testing.T) *Runner {
	t.Helper()
	if err := Available(context.Background(), DefaultPython); err != nil {
		t.Skipf("python3 with matplotlib not available: %v", err)
	}
	return New(config.RenderConfig{Enabled: true, TimeoutSeconds: 20, DPI: 50})
}

func sampleResult() *store.ResultSet {
	return &store.ResultSet{
		Columns: []string{"brand", "spend"},
		Rows: [][]any{
			{"TESCO", 30.5},
			{"ASDA", 12.0},
		},
	}
}

func TestRenderChart(t *testing.T) {
	r := sandbox(t)

	code := "import matplotlib.pyplot as plt\nplt.bar([row['brand'] for row in data], df['spend'])\nplt.title('Spend')\nplt.show()"
	img, err := r.Render(context.Background(), code, sampleResult())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	png, err := base64.StdEncoding.DecodeString(img)
	if err != nil {
		t.Fatalf("image is not base64: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Errorf("image does not start with the PNG signature")
	}
}

func TestRenderFailures(t *testing.T) {
	r := sandbox(t)

	tests := []struct {
		name       string
		code       string
		timeout    time.Duration
		wantReason string
		wantStderr string
	}{
		{"exception", "x = 1 / 0", 0, "failed", "ZeroDivisionError"},
		{"no figure", "total = sum(df['spend'])", 0, "failed", "did not draw"},
		{"timeout", "while True:\n    pass", 2 * time.Second, "exceeded", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := *r
			if tt.timeout > 0 {
				runner.Timeout = tt.timeout
			}
			_, err := runner.Render(context.Background(), tt.code, sampleResult())
			var re *RenderError
			if !errors.As(err, &re) {
				t.Fatalf("Render() error = %v, want *RenderError", err)
			}
			if !strings.Contains(re.Reason, tt.wantReason) {
				t.Errorf("Reason = %q, want it to contain %q", re.Reason, tt.wantReason)
			}
			if !strings.Contains(re.Stderr, tt.wantStderr) {
				t.Errorf("Stderr = %q, want it to contain %q", re.Stderr, tt.wantStderr)
			}
		})
	}
}

func TestSandboxBlocksImports(t *testing.T) {
	r := sandbox(t)

	// Bypass static validation to exercise the runtime guard
	_, err := r.run(context.Background(), "import os\nos.getcwd()", sampleResult())
	var re *RenderError
	if !errors.As(err, &re) {
		t.Fatalf("run() error = %v, want *RenderError", err)
	}
	if !strings.Contains(re.Stderr, "not allowed") {
		t.Errorf("Stderr = %q, want an import error", re.Stderr)
	}
}

func TestSandboxBlocksIO(t *testing.T) {
	r := sandbox(t)

	tests := []struct {
		name string
		code string
	}{
		{"read outside work dir", "rows = pd.read_csv('/etc/passwd')\nplt.plot([1, 2])"},
		{"write outside work dir", "df.to_csv('/tmp/pgedge-render-leak.csv')\nplt.plot([1, 2])"},
		{"network", "rows = pd.read_json('http://169.254.169.254/latest/meta-data')\nplt.plot([1, 2])"},
		{"figure save outside work dir", "fig = plt.figure()\nfig.gca().plot([1, 2])\nfig.savefig('/tmp/pgedge-render-leak.png')"},
		{"numpy save outside work dir", "np.save('/tmp/pgedge-render-leak.npy', df['spend'].values)\nplt.plot([1, 2])"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Bypass static validation to exercise the runtime guard
			_, err := r.run(context.Background(), tt.code, sampleResult())
			var re *RenderError
			if !errors.As(err, &re) {
				t.Fatalf("run() error = %v, want *RenderError", err)
			}
			if !strings.Contains(re.Stderr, "not allowed") {
				t.Errorf("Stderr = %q, want a denied access", re.Stderr)
			}
		})
	}
}
