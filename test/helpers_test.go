/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package test

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
)

const purchasesCSV = "date,brand,spend\n2024-01-05,TESCO,10.5\n2024-02-05,TESCO,20\n2024-03-15,ASDA,12\n"

// buildAgent compiles the agent binary once per test into a temporary directory
func buildAgent(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping binary integration test in short mode")
	}
	goBin, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go toolchain not found in PATH, skipping binary integration test")
	}

	binaryPath := filepath.Join(t.TempDir(), "pgedge-dataset-agent")
	buildCmd := exec.Command(goBin, "build", "-o", binaryPath, "../cmd/pgedge-dataset-agent")
	if output, err := buildCmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to build binary: %v\nOutput: %s", err, output)
	}
	return binaryPath
}

// fakeLLM serves the OpenAI chat completions API from a queue of replies
type fakeLLM struct {
	mu      sync.Mutex
	replies []string
	calls   int
	server  *httptest.Server
}

func newFakeLLM(t *testing.T, replies ...string) *fakeLLM {
	t.Helper()
	f := &fakeLLM{replies: replies}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		f.mu.Lock()
		f.calls++
		reply := "I do not know."
		if len(f.replies) > 0 {
			reply = f.replies[0]
			f.replies = f.replies[1:]
		}
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test server
			"choices": []map[string]any{{
				"message":       map[string]string{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// agentEnv points the agent at the fake model and keeps state in dir
func agentEnv(llmURL, dir string) []string {
	env := []string{}
	for _, kv := range os.Environ() {
		if len(kv) > 7 && kv[:7] == "PGEDGE_" {
			continue
		}
		env = append(env, kv)
	}
	return append(env,
		"PGEDGE_LLM_PROVIDER=openai",
		"PGEDGE_OPENAI_API_KEY=test-key",
		"PGEDGE_LLM_BASE_URL="+llmURL,
		"PGEDGE_EMBEDDING_PROVIDER=",
		"PGEDGE_RETRIEVAL_ENABLED=false",
		"PGEDGE_RENDER_ENABLED=false",
		"PGEDGE_HISTORY_ENABLED=true",
		"PGEDGE_HISTORY_DIR="+filepath.Join(dir, "history"),
		"PGEDGE_AGENT_LOG_LEVEL=info",
	)
}

// writeDataset writes the purchases fixture and returns its path
func writeDataset(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "purchases.csv")
	if err := os.WriteFile(path, []byte(purchasesCSV), 0o600); err != nil {
		t.Fatalf("failed to write dataset: %v", err)
	}
	return path
}

// freeAddr returns a local address that is free at the time of the call
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find a free port: %v", err)
	}
	defer l.Close()
	return fmt.Sprintf("127.0.0.1:%d", l.Addr().(*net.TCPAddr).Port)
}

// writeConfig writes a minimal configuration file; the environment fills in the rest
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "pgedge-dataset-agent.yaml")
	content := "llm:\n  provider: openai\nrender:\n  enabled: false\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}
