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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os/exec"
	"strings"
	"testing"
	"time"
)

const brandTotals = "```sql\nSELECT brand, SUM(spend) AS total FROM purchase GROUP BY brand ORDER BY total DESC\n```"

// AgentServer is a running "pgedge-dataset-agent serve" process
type AgentServer struct {
	cmd     *exec.Cmd
	baseURL string
	client  *http.Client
	cancel  context.CancelFunc
	t       *testing.T
}

// StartAgentServer builds the binary and starts it in HTTP mode
func StartAgentServer(t *testing.T, llmURL string) *AgentServer {
	t.Helper()
	binaryPath := buildAgent(t)
	addr := freeAddr(t)
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, binaryPath, "serve", "-c", writeConfig(t, dir), "--addr", addr)
	cmd.Env = agentEnv(llmURL, dir)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		t.Fatalf("failed to capture stderr: %v", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		t.Fatalf("failed to start server: %v", err)
	}
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			t.Logf("[SERVER] %s", scanner.Text())
		}
	}()

	s := &AgentServer{
		cmd:     cmd,
		baseURL: "http://" + addr,
		client:  &http.Client{Timeout: 30 * time.Second},
		cancel:  cancel,
		t:       t,
	}
	t.Cleanup(s.Close)

	if err := s.waitForReady(); err != nil {
		t.Fatalf("server did not become ready: %v", err)
	}
	return s
}

// waitForReady polls the health endpoint until the server answers
func (s *AgentServer) waitForReady() error {
	for i := 0; i < 50; i++ {
		resp, err := s.client.Get(s.baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("no healthy response from %s", s.baseURL)
}

// Close stops the server process
func (s *AgentServer) Close() {
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}
	s.cancel()
	_ = s.cmd.Wait() //nolint:errcheck // killed on purpose
	s.cmd = nil
}

// do sends a request and decodes a JSON response body into out when set
func (s *AgentServer) do(method, path, contentType string, body io.Reader, out any) int {
	s.t.Helper()
	req, err := http.NewRequest(method, s.baseURL+path, body)
	if err != nil {
		s.t.Fatalf("failed to build request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		s.t.Fatalf("failed to read response: %v", err)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			s.t.Fatalf("failed to decode %s %s response %q: %v", method, path, data, err)
		}
	}
	return resp.StatusCode
}

// Upload posts a CSV dataset and returns the new session ID
func (s *AgentServer) Upload(name, content string) string {
	s.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		s.t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		s.t.Fatalf("failed to write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		s.t.Fatalf("failed to close form: %v", err)
	}

	var resp struct {
		SessionID string `json:"session_id"`
		Rows      int    `json:"rows"`
	}
	if code := s.do(http.MethodPost, "/api/sessions", mw.FormDataContentType(), &body, &resp); code != http.StatusCreated {
		s.t.Fatalf("upload status = %d, want 201", code)
	}
	if resp.SessionID == "" || resp.Rows != 3 {
		s.t.Fatalf("upload response = %+v", resp)
	}
	return resp.SessionID
}

type askResponse struct {
	State string `json:"state"`
	Text  string `json:"text"`
	SQL   string `json:"sql"`
}

func TestHTTPServerAnswersQuestion(t *testing.T) {
	llm := newFakeLLM(t, brandTotals, "TESCO spends the most with 30.5 in total.")
	server := StartAgentServer(t, llm.server.URL)

	id := server.Upload("purchases.csv", purchasesCSV)

	var answer askResponse
	code := server.do(http.MethodPost, "/api/sessions/"+id+"/ask", "application/json",
		strings.NewReader(`{"question":"Which brand spends the most?"}`), &answer)
	if code != http.StatusOK {
		t.Fatalf("ask status = %d", code)
	}
	if answer.State != "done" {
		t.Fatalf("state = %q, text %q", answer.State, answer.Text)
	}
	if !strings.Contains(answer.Text, "TESCO spends the most") {
		t.Errorf("text = %q", answer.Text)
	}
	if !strings.Contains(answer.SQL, "LIMIT") {
		t.Errorf("executed SQL should carry a row limit: %q", answer.SQL)
	}
	if llm.Calls() != 2 {
		t.Errorf("language model calls = %d, want 2", llm.Calls())
	}

	var hist struct {
		Entries []struct {
			Question string `json:"question"`
			State    string `json:"state"`
		} `json:"entries"`
	}
	if code := server.do(http.MethodGet, "/api/sessions/"+id+"/history", "", nil, &hist); code != http.StatusOK {
		t.Fatalf("history status = %d", code)
	}
	if len(hist.Entries) != 1 || hist.Entries[0].State != "done" {
		t.Errorf("history = %+v", hist.Entries)
	}

	if code := server.do(http.MethodDelete, "/api/sessions/"+id, "", nil, nil); code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", code)
	}
	if code := server.do(http.MethodGet, "/api/sessions/"+id+"/schema", "", nil, nil); code != http.StatusNotFound {
		t.Errorf("schema after delete status = %d, want 404", code)
	}
}

func TestHTTPServerUnanswerableQuestion(t *testing.T) {
	llm := newFakeLLM(t, "I cannot answer that from this data.")
	server := StartAgentServer(t, llm.server.URL)

	id := server.Upload("purchases.csv", purchasesCSV)

	var answer askResponse
	code := server.do(http.MethodPost, "/api/sessions/"+id+"/ask", "application/json",
		strings.NewReader(`{"question":"What will the weather be tomorrow?"}`), &answer)
	if code != http.StatusOK {
		t.Fatalf("ask status = %d", code)
	}
	if answer.State != "failed" || answer.SQL != "" {
		t.Errorf("answer = %+v, want a failed question without SQL", answer)
	}
}

func TestAskCommand(t *testing.T) {
	binaryPath := buildAgent(t)

	tests := []struct {
		name     string
		replies  []string
		wantExit int
		wantOut  string
	}{
		{"answered", []string{brandTotals, "TESCO spends the most."}, 0, "TESCO spends the most."},
		{"no query", []string{"I cannot write a query for that."}, 1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := newFakeLLM(t, tt.replies...)
			dir := t.TempDir()
			dataset := writeDataset(t, dir)

			cmd := exec.Command(binaryPath, "ask",
				"-c", writeConfig(t, dir),
				"--dataset", dataset, "Which", "brand", "spends", "most?")
			cmd.Env = agentEnv(llm.server.URL, dir)
			var stdout, stderr bytes.Buffer
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr

			err := cmd.Run()
			exit := 0
			if exitErr, ok := err.(*exec.ExitError); ok {
				exit = exitErr.ExitCode()
			} else if err != nil {
				t.Fatalf("failed to run ask: %v", err)
			}

			if exit != tt.wantExit {
				t.Fatalf("exit code = %d, want %d\nstdout: %s\nstderr: %s", exit, tt.wantExit, stdout.String(), stderr.String())
			}
			if tt.wantOut != "" && !strings.Contains(stdout.String(), tt.wantOut) {
				t.Errorf("stdout = %q, want %q", stdout.String(), tt.wantOut)
			}
		})
	}
}
