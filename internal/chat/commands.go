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
	"strconv"
	"strings"
	"time"

	"pgedge-dataset-agent/internal/pipeline"
)

// SlashCommand represents a parsed slash command
type SlashCommand struct {
	Command string
	Args    []string
}

// ParseSlashCommand parses a slash command from user input
func ParseSlashCommand(input string) *SlashCommand {
	if !strings.HasPrefix(input, "/") {
		return nil
	}

	// Remove the leading slash
	input = strings.TrimPrefix(input, "/")

	// Split into command and arguments, respecting quotes
	parts := parseQuotedArgs(input)
	if len(parts) == 0 {
		return nil
	}

	return &SlashCommand{
		Command: parts[0],
		Args:    parts[1:],
	}
}

// parseQuotedArgs splits a string into arguments, respecting quoted strings
func parseQuotedArgs(input string) []string {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)

	// Convert to runes for proper Unicode handling
	runes := []rune(input)

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case (r == '"' || r == '\'') && !inQuote:
			// Start of quoted string
			inQuote = true
			quoteChar = r
		case r == quoteChar && inQuote:
			// End of quoted string
			inQuote = false
			quoteChar = 0
		case r == ' ' && !inQuote:
			// Space outside quotes - end of argument
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		case r == '\\' && inQuote && i+1 < len(runes):
			// Escape sequence in quoted string
			next := runes[i+1]
			if next == quoteChar || next == '\\' {
				// Skip the backslash, include the escaped character
				current.WriteRune(next)
				i++ // Skip the next character since we've already processed it
			} else {
				// Not a valid escape sequence, include the backslash
				current.WriteRune(r)
			}
		default:
			// Regular character
			current.WriteRune(r)
		}
	}

	// Add the last argument if any
	if current.Len() > 0 {
		args = append(args, current.String())
	}

	return args
}

// HandleSlashCommand processes slash commands, returns true if handled
func (c *Client) HandleSlashCommand(ctx context.Context, cmd *SlashCommand) bool {
	if cmd == nil {
		return false
	}

	switch cmd.Command {
	case "help":
		c.ui.PrintHelp()
		return true

	case "upload":
		return c.handleUpload(ctx, cmd.Args)

	case "schema":
		return c.handleSchema()

	case "sql":
		return c.handleSQL()

	case "rows":
		return c.handleRows(cmd.Args)

	case "history":
		return c.handleHistory(cmd.Args)

	case "markdown":
		return c.handleMarkdown(cmd.Args)

	case "clear":
		c.ui.ClearScreen()
		return true

	default:
		return false
	}
}

// handleUpload replaces the dataset and moves any watch to the new file
func (c *Client) handleUpload(ctx context.Context, args []string) bool {
	if len(args) != 1 {
		c.ui.PrintError("Usage: /upload <file>")
		return true
	}
	if err := c.Upload(ctx, args[0]); err != nil {
		c.ui.PrintError(err.Error())
		return true
	}
	if c.config.Watch {
		if err := c.startWatch(ctx, args[0]); err != nil {
			c.ui.PrintError(err.Error())
		}
	}
	return true
}

func (c *Client) handleSchema() bool {
	sch, ok := c.session.Schema()
	if !ok {
		c.ui.PrintSystemMessage(pipeline.MessageUploadFirst)
		return true
	}
	c.ui.PrintSchema(sch)
	return true
}

func (c *Client) handleSQL() bool {
	last := c.session.Last()
	if last.SQL == "" {
		c.ui.PrintSystemMessage("No query has been run yet")
		return true
	}
	c.ui.PrintSQL(last.SQL)
	for _, rw := range last.Rewrites {
		c.ui.PrintSystemMessage("Rewrite: " + rw)
	}
	return true
}

func (c *Client) handleRows(args []string) bool {
	n, ok := c.parseCount(args, "/rows [n]", DefaultMaxRows)
	if !ok {
		return true
	}
	last := c.session.Last()
	if len(last.Rows) == 0 {
		c.ui.PrintSystemMessage("The last question returned no rows")
		return true
	}
	c.ui.PrintRows(last.Columns, last.Rows, n)
	return true
}

func (c *Client) handleHistory(args []string) bool {
	n, ok := c.parseCount(args, "/history [n]", 10)
	if !ok {
		return true
	}
	entries, err := c.session.History(n)
	if err != nil {
		c.ui.PrintError(fmt.Sprintf("Failed to read history: %v", err))
		return true
	}
	if len(entries) == 0 {
		c.ui.PrintSystemMessage("No questions recorded")
		return true
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-18s %s", e.CreatedAt.Local().Format(time.DateTime), e.State, e.Question)
		fmt.Fprintln(c.ui.out, line)
	}
	return true
}

func (c *Client) handleMarkdown(args []string) bool {
	if len(args) != 1 {
		c.ui.PrintError("Usage: /markdown on|off")
		return true
	}

	switch strings.ToLower(args[0]) {
	case "on", "true", "1", "yes":
		c.ui.RenderMarkdown = true
		c.ui.PrintSystemMessage("Markdown rendering enabled")
	case "off", "false", "0", "no":
		c.ui.RenderMarkdown = false
		c.ui.PrintSystemMessage("Markdown rendering disabled")
	default:
		c.ui.PrintError(fmt.Sprintf("Invalid value for markdown: %s (use on or off)", args[0]))
	}
	return true
}

// parseCount reads an optional positive count argument
func (c *Client) parseCount(args []string, usage string, def int) (int, bool) {
	switch len(args) {
	case 0:
		return def, true
	case 1:
		n, err := strconv.Atoi(args[0])
		if err == nil && n > 0 {
			return n, true
		}
	}
	c.ui.PrintError("Usage: " + usage)
	return 0, false
}
