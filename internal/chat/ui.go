/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package chat

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"

	"pgedge-dataset-agent/internal/schema"
	"pgedge-dataset-agent/internal/store"
)

// Color codes for terminal output
const (
	ColorReset   = "\033[0m"
	ColorRed     = "\033[31m"
	ColorGreen   = "\033[32m"
	ColorYellow  = "\033[33m"
	ColorBlue    = "\033[34m"
	ColorMagenta = "\033[35m"
	ColorCyan    = "\033[36m"
	ColorGray    = "\033[90m"
	ColorBold    = "\033[1m"
)

// maxTableWidth caps markdown and table rendering on wide terminals
const maxTableWidth = 120

// UI handles the user interface
type UI struct {
	noColor        bool
	RenderMarkdown bool
	out            io.Writer
}

// NewUI creates a new UI instance writing to stdout
func NewUI(noColor bool, renderMarkdown bool) *UI {
	return &UI{
		noColor:        noColor,
		RenderMarkdown: renderMarkdown,
		out:            os.Stdout,
	}
}

// SetOutput redirects everything the UI prints
func (ui *UI) SetOutput(w io.Writer) {
	ui.out = w
}

// colorize applies color if colors are enabled
func (ui *UI) colorize(color, text string) string {
	if ui.noColor {
		return text
	}
	return color + text + ColorReset
}

// PrintWelcome prints the welcome message
// ASCII art credit: https://ascii.co.uk/art/elephant
func (ui *UI) PrintWelcome() {
	elephant := `
          _
   ______/ \-.   _           pgEdge Natural Language Agent
.-/     (    o\_//           Ask questions about your dataset in plain English
 |  ___  \_/\---'            Type 'quit' or 'exit' to leave, '/help' for commands
 |_||  |_||
`
	fmt.Fprintln(ui.out, ui.colorize(ColorCyan, elephant))
}

// GetPrompt returns the prompt string for readline
func (ui *UI) GetPrompt() string {
	return ui.colorize(ColorGreen+ColorBold, "You: ")
}

// PrintAnswer prints the narrative of an answer
func (ui *UI) PrintAnswer(text string) {
	ui.ClearThinkingLine()
	fmt.Fprint(ui.out, "\n")
	fmt.Fprint(ui.out, ui.colorize(ColorBlue, "Agent: "))

	if ui.RenderMarkdown {
		var style string
		if ui.noColor {
			style = "notty"
		} else {
			style = "dark"
		}

		width := ui.getTerminalWidth()
		if width > maxTableWidth {
			width = maxTableWidth
		}

		r, err := glamour.NewTermRenderer(
			glamour.WithStylePath(style),
			glamour.WithWordWrap(width),
		)
		if err == nil {
			rendered, err := r.Render(text)
			if err == nil {
				fmt.Fprint(ui.out, rendered)
				return
			}
		}
	}

	fmt.Fprint(ui.out, text+"\n")
}

// PrintSystemMessage prints a system message
func (ui *UI) PrintSystemMessage(text string) {
	fmt.Fprintln(ui.out, ui.colorize(ColorYellow, "System: ")+text)
}

// PrintNotice prints a non-fatal problem with an answer
func (ui *UI) PrintNotice(text string) {
	fmt.Fprintln(ui.out, ui.colorize(ColorMagenta, "Note: ")+text)
}

// PrintError prints an error message
func (ui *UI) PrintError(text string) {
	ui.ClearThinkingLine()
	fmt.Fprintln(ui.out, "\n"+ui.colorize(ColorRed, "Error: ")+text)
}

// PrintSQL prints an executed query
func (ui *UI) PrintSQL(query string) {
	fmt.Fprintln(ui.out, ui.colorize(ColorGray, query))
}

// PrintSeparator prints a separator line
func (ui *UI) PrintSeparator() {
	fmt.Fprintln(ui.out, ui.colorize(ColorGray, strings.Repeat("─", 80)))
}

// PrintRows prints at most maxRows result rows as a table
func (ui *UI) PrintRows(columns []string, rows []store.Row, maxRows int) {
	if len(columns) == 0 {
		return
	}

	t := ui.newTable()
	header := make(table.Row, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	t.AppendHeader(header)

	shown := rows
	if maxRows > 0 && len(shown) > maxRows {
		shown = shown[:maxRows]
	}
	for _, row := range shown {
		tr := make(table.Row, len(row.Values))
		for i, v := range row.Values {
			tr[i] = store.FormatValue(v)
		}
		t.AppendRow(tr)
	}

	if len(shown) < len(rows) {
		t.AppendFooter(table.Row{fmt.Sprintf("%d of %d rows", len(shown), len(rows))})
	}
	t.Render()
}

// PrintSchema prints one line per column with its kind, category values
// or date range
func (ui *UI) PrintSchema(s schema.Schema) {
	t := ui.newTable()
	t.AppendHeader(table.Row{"Column", "Type", "Values"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, WidthMax: 60},
	})
	for _, f := range s.Fields {
		var detail string
		switch f.Kind {
		case schema.KindCategorical:
			detail = strings.Join(f.Values, ", ")
		case schema.KindDatetime:
			detail = f.Min.Format(schema.DateLayout) + " to " + f.Max.Format(schema.DateLayout)
		}
		t.AppendRow(table.Row{f.Name, string(f.Kind), detail})
	}
	t.Render()
}

func (ui *UI) newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(ui.out)
	if ui.noColor {
		t.SetStyle(table.StyleLight)
	} else {
		t.SetStyle(table.StyleColoredBright)
		t.Style().Color.Header = text.Colors{text.Bold, text.FgHiCyan}
	}
	t.SetAllowedRowLength(maxTableWidth)
	return t
}

// Dataset themed action words for animation
var elephantActions = []string{
	"Thinking with trunks",
	"Consulting the herd",
	"Stampeding through rows",
	"Trumpeting queries",
	"Counting the columns",
	"Grazing on categories",
	"Charging through totals",
	"Sketching a chart",
	"Roaming the dataset",
	"Herding averages",
	"Foraging for answers",
	"Dusting off the schema",
	"Pondering profoundly",
	"Remembering every receipt",
}

// getThinkingMaxWidth calculates the maximum width needed for thinking animation
func (ui *UI) getThinkingMaxWidth() int {
	maxWidth := 40
	for _, action := range elephantActions {
		width := len(action) + 5 // frame + space + action + "..."
		if width > maxWidth {
			maxWidth = width
		}
	}
	return maxWidth
}

// getTerminalWidth returns the maximum width for markdown rendering
func (ui *UI) getTerminalWidth() int {
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		// Leave a small margin to prevent awkward wrapping at terminal edge
		if width > 2 {
			return width - 2
		}
		return width
	}
	return 80
}

// ClearThinkingLine clears the thinking animation line
func (ui *UI) ClearThinkingLine() {
	fmt.Fprint(ui.out, "\r"+strings.Repeat(" ", ui.getThinkingMaxWidth())+"\r")
}

// ShowThinking displays an animated "thinking" indicator until done is closed
func (ui *UI) ShowThinking(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	frameIndex := 0
	actionIndex := rand.Intn(len(elephantActions))
	actionChangeCounter := 0

	maxWidth := ui.getThinkingMaxWidth()

	fmt.Fprint(ui.out, "\r"+ui.colorize(ColorCyan, frames[frameIndex])+" "+ui.colorize(ColorGray, elephantActions[actionIndex])+"...")

	for {
		select {
		case <-done:
			ui.ClearThinkingLine()
			return
		case <-ctx.Done():
			ui.ClearThinkingLine()
			return
		case <-ticker.C:
			frameIndex = (frameIndex + 1) % len(frames)
			actionChangeCounter++

			// Change action text every 4 ticks (2 seconds)
			if actionChangeCounter >= 4 {
				actionIndex = rand.Intn(len(elephantActions))
				actionChangeCounter = 0
			}

			msg := ui.colorize(ColorCyan, frames[frameIndex]) + " " + ui.colorize(ColorGray, elephantActions[actionIndex]) + "..."
			padding := maxWidth - len(elephantActions[actionIndex]) - 5
			if padding > 0 {
				msg += strings.Repeat(" ", padding)
			}
			fmt.Fprint(ui.out, "\r"+msg)
		}
	}
}

// PrintHelp prints the help message
func (ui *UI) PrintHelp() {
	help := `
Commands:
  /upload <file>   - Load a CSV, TSV or XLSX file, replacing the current dataset
  /schema          - Show the columns of the current dataset
  /sql             - Show the query behind the last answer
  /rows [n]        - Show up to n rows of the last result (default 20)
  /history [n]     - List recent questions
  /markdown on|off - Toggle markdown rendering
  /clear           - Clear the screen
  /help            - Show this help message
  quit, exit       - Leave the agent

While a question is running, press Escape to cancel it.

History navigation:
  Up/Down   - Navigate through previous questions
  Ctrl+R    - Reverse search history

Anything else is asked as a question about the current dataset.
`
	fmt.Fprintln(ui.out, ui.colorize(ColorCyan, help))
}

// ClearScreen clears the terminal screen
func (ui *UI) ClearScreen() {
	fmt.Fprint(ui.out, "\033[H\033[2J")
}
