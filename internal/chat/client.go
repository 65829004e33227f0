/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package chat is an interactive terminal front end for a pipeline session.
package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"golang.org/x/term"

	"pgedge-dataset-agent/internal/dataset"
	"pgedge-dataset-agent/internal/logging"
	"pgedge-dataset-agent/internal/pipeline"
	"pgedge-dataset-agent/internal/watch"
)

// DefaultMaxRows is how many result rows are printed under an answer
const DefaultMaxRows = 20

// Config holds the options of an interactive session
type Config struct {
	// DatasetPath is uploaded before the first prompt when set
	DatasetPath string

	// ImageDir receives chart PNG files; charts are not saved when empty
	ImageDir string

	// HistoryFile keeps readline history between runs
	HistoryFile string

	// Watch re-uploads DatasetPath whenever the file changes
	Watch bool

	NoColor    bool
	NoMarkdown bool

	// MaxRows limits the result table printed under an answer
	MaxRows int
}

// Client runs the interactive loop for one session
type Client struct {
	session *pipeline.Session
	ui      *UI
	config  Config

	mu          sync.Mutex
	datasetPath string
	watcher     *watch.FileWatcher
	charts      int

	// interactive enables the Escape listener and the thinking animation
	interactive bool
}

// NewClient creates a client for the given session
func NewClient(session *pipeline.Session, cfg Config) *Client {
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultMaxRows
	}
	return &Client{
		session:     session,
		ui:          NewUI(cfg.NoColor, !cfg.NoMarkdown),
		config:      cfg,
		interactive: term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd())),
	}
}

// UI returns the client's user interface
func (c *Client) UI() *UI {
	return c.ui
}

// Run uploads the configured dataset and reads questions until the user
// leaves or the context is cancelled
func (c *Client) Run(ctx context.Context) error {
	c.ui.PrintWelcome()

	if c.config.DatasetPath != "" {
		if err := c.Upload(ctx, c.config.DatasetPath); err != nil {
			c.ui.PrintError(err.Error())
		}
		if c.config.Watch {
			if err := c.startWatch(ctx, c.config.DatasetPath); err != nil {
				c.ui.PrintError(err.Error())
			}
		}
	} else {
		c.ui.PrintSystemMessage("Use /upload <file> to load a dataset")
	}
	defer c.stopWatch()

	return c.chatLoop(ctx)
}

// chatLoop runs the interactive read loop
func (c *Client) chatLoop(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:                 c.ui.GetPrompt(),
		HistoryFile:            c.config.HistoryFile,
		HistoryLimit:           1000,
		DisableAutoSaveHistory: false,
		InterruptPrompt:        "^C",
		EOFPrompt:              "exit",
		HistorySearchFold:      true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	// Closing readline makes Readline return
	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) || ctx.Err() != nil {
				fmt.Fprintln(c.ui.out)
				c.ui.PrintSystemMessage("Goodbye!")
				return nil
			}
			return fmt.Errorf("readline error: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		switch strings.ToLower(input) {
		case "quit", "exit":
			c.ui.PrintSystemMessage("Goodbye!")
			return nil
		case "help":
			c.ui.PrintHelp()
			continue
		case "clear":
			c.ui.ClearScreen()
			continue
		}

		if cmd := ParseSlashCommand(input); cmd != nil {
			if !c.HandleSlashCommand(ctx, cmd) {
				c.ui.PrintError(fmt.Sprintf("Unknown command: /%s (type /help for available commands)", cmd.Command))
			}
			continue
		}

		c.Ask(ctx, input)
		c.ui.PrintSeparator()
	}
}

// Upload loads a dataset file into the session
func (c *Client) Upload(ctx context.Context, path string) error {
	ds, err := dataset.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	sch, err := c.session.Upload(ctx, ds)
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", path, err)
	}

	c.mu.Lock()
	c.datasetPath = path
	c.mu.Unlock()

	c.ui.PrintSystemMessage(fmt.Sprintf("Loaded %s: %d rows, %d columns",
		filepath.Base(path), ds.NumRows(), len(sch.Fields)))
	return nil
}

// startWatch re-uploads path whenever it is rewritten
func (c *Client) startWatch(ctx context.Context, path string) error {
	c.stopWatch()

	w, err := watch.NewFileWatcher(path, func() error {
		ds, err := dataset.Load(path)
		if err != nil {
			return err
		}
		if _, err := c.session.Upload(ctx, ds); err != nil {
			return err
		}
		c.ui.PrintSystemMessage(fmt.Sprintf("Reloaded %s: %d rows", filepath.Base(path), ds.NumRows()))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	w.Start()

	c.mu.Lock()
	c.watcher = w
	c.mu.Unlock()
	return nil
}

func (c *Client) stopWatch() {
	c.mu.Lock()
	w := c.watcher
	c.watcher = nil
	c.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}

// Ask runs one question and prints the answer. Pressing Escape cancels
// a question that is still running.
func (c *Client) Ask(ctx context.Context, question string) pipeline.Artifact {
	askCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	var wg sync.WaitGroup
	if c.interactive {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.ui.ShowThinking(askCtx, done)
		}()
		go func() {
			defer wg.Done()
			ListenForEscape(askCtx, done, cancel)
		}()
	}

	art := c.session.Ask(askCtx, question)
	close(done)
	wg.Wait()

	if askCtx.Err() != nil && ctx.Err() == nil {
		c.ui.PrintSystemMessage("Question cancelled")
		return art
	}

	c.printArtifact(art)
	return art
}

// printArtifact shows the narrative, the result rows and the chart location
func (c *Client) printArtifact(art pipeline.Artifact) {
	if art.Text != "" {
		c.ui.PrintAnswer(art.Text)
	}
	if art.Notice != "" {
		c.ui.PrintNotice(art.Notice)
	}
	if len(art.Rows) > 0 {
		c.ui.PrintRows(art.Columns, art.Rows, c.config.MaxRows)
	}
	if !art.HasImage() {
		return
	}

	path, err := c.saveChart(art.Image)
	if err != nil {
		c.ui.PrintError(fmt.Sprintf("Failed to save chart: %v", err))
		return
	}
	if path != "" {
		c.ui.PrintSystemMessage("Chart saved to " + path)
	}
}

// saveChart writes a base64 PNG into the image directory and returns its path
func (c *Client) saveChart(image string) (string, error) {
	if c.config.ImageDir == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(image)
	if err != nil {
		return "", fmt.Errorf("invalid chart data: %w", err)
	}
	if err := os.MkdirAll(c.config.ImageDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", c.config.ImageDir, err)
	}

	c.mu.Lock()
	c.charts++
	n := c.charts
	c.mu.Unlock()

	name := fmt.Sprintf("chart-%s-%03d.png", time.Now().Format("20060102-150405"), n)
	path := filepath.Join(c.config.ImageDir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	logging.Debug("chart_saved", "session", c.session.ID, "path", path, "bytes", len(data))
	return path, nil
}
