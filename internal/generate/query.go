/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package generate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pgedge-dataset-agent/internal/llm"
	"pgedge-dataset-agent/internal/logging"
	"pgedge-dataset-agent/internal/schema"
)

// QueryGenerator asks the completion service for a query answering a
// question about the dataset table
type QueryGenerator struct {
	llm      llm.Completer
	settings Settings
}

// NewQueryGenerator creates a query generator
func NewQueryGenerator(c llm.Completer, settings Settings) *QueryGenerator {
	return &QueryGenerator{llm: c, settings: settings}
}

// Generate returns the raw completion, which should hold one fenced
// query block
func (g *QueryGenerator) Generate(ctx context.Context, question string, s schema.Schema, retrieved []string) (string, error) {
	start := time.Now()
	messages := g.Messages(question, s, retrieved)

	reply, err := g.llm.Complete(ctx, g.settings.request(messages, g.settings.QueryTemperature))
	if err != nil {
		return "", &GenerationError{Stage: StageQuery, Err: err}
	}
	if strings.TrimSpace(reply) == "" {
		return "", &GenerationError{Stage: StageQuery, Err: ErrEmptyReply}
	}

	logging.Debug("query_generated",
		"question_length", len(question),
		"context_snippets", len(retrieved),
		"reply_length", len(reply),
		"duration", time.Since(start).String(),
	)
	return reply, nil
}

// Messages builds the prompt: rules, retrieved context, schema, question
func (g *QueryGenerator) Messages(question string, s schema.Schema, retrieved []string) []llm.Message {
	messages := []llm.Message{{Role: llm.RoleSystem, Content: g.rules(question, s)}}

	if len(retrieved) > 0 {
		var sb strings.Builder
		sb.WriteString("Reference notes that may help:\n")
		for _, snippet := range retrieved {
			sb.WriteString("\n---\n")
			sb.WriteString(strings.TrimSpace(snippet))
		}
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: sb.String()})
	}

	limited := s
	if g.settings.MaxPromptValues > 0 {
		limited = s.Limit(g.settings.MaxPromptValues)
	}
	messages = append(messages,
		llm.Message{Role: llm.RoleSystem, Content: "Schema with the valid categorical values:\n" + limited.String()},
		llm.Message{Role: llm.RoleUser, Content: question},
	)
	return messages
}

func (g *QueryGenerator) rules(question string, s schema.Schema) string {
	st := g.settings
	dialect := st.Dialect
	if dialect == "" {
		dialect = "SQLite"
	}
	table := st.Table
	if table == "" {
		table = "purchase"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a SQL expert. Given the schema and valid categorical values that follow, write one %s query that answers the user's question. The table name is %s.\n\n", dialect, table)
	sb.WriteString("Rules:\n")
	sb.WriteString("- Write a single read-only SELECT statement (a WITH clause is allowed). Never modify data or schema.\n")
	fmt.Fprintf(&sb, "- Read only from the %s table.\n", table)
	sb.WriteString("- Interpret spelling mistakes and near matches generously.\n")
	sb.WriteString("- Never filter a column on a value that is not listed in the schema. Use the closest listed value, or LIKE against it.\n")
	sb.WriteString("- Return both the labels and the values in the result, with clear column aliases.\n")

	if weight := st.weightColumn(s); weight != "" {
		fmt.Fprintf(&sb, "- Every monetary, volume or count measure must be multiplied by %s so that it represents population totals.\n", weight)
		if st.Prompt.BuyerColumn != "" {
			fmt.Fprintf(&sb, "- Buyers are distinct values of %s and are weighted by %s in the same way.\n", st.Prompt.BuyerColumn, weight)
		}
	}

	sb.WriteString("- Express year on year growth as a percentage.\n")
	if st.Prompt.DefaultMeasure != "" {
		fmt.Fprintf(&sb, "- When no measure is named, use %s.\n", st.Prompt.DefaultMeasure)
	}
	if column, latest, ok := s.LatestDate(); ok {
		from := latest.AddDate(-1, 0, 1)
		fmt.Fprintf(&sb, "- When no time period is named, use the latest year of data: %s from %s to %s inclusive. \"Last year\" means this period too.\n",
			column, from.Format(schema.DateLayout), latest.Format(schema.DateLayout))
	}

	if hints := g.hints(question, s); hints != "" {
		sb.WriteString("- The question's wording maps to these listed values:\n")
		sb.WriteString(hints)
	}

	sb.WriteString("\nReturn the query in one fenced code block tagged sql and nothing else.")
	return sb.String()
}

// weightColumn returns the configured weight column, or else the first
// numeric column named like one of the candidates
func (st Settings) weightColumn(s schema.Schema) string {
	if st.Prompt.WeightColumn != "" {
		return st.Prompt.WeightColumn
	}
	for _, candidate := range st.Prompt.WeightCandidates {
		for _, f := range s.Fields {
			if f.Kind == schema.KindNumeric && strings.EqualFold(f.Name, candidate) {
				return f.Name
			}
		}
	}
	return ""
}

// hints lists question phrases the matcher resolves to categorical values
func (g *QueryGenerator) hints(question string, s schema.Schema) string {
	if g.settings.Matcher == nil {
		return ""
	}

	var sb strings.Builder
	for _, f := range s.Categorical() {
		for _, h := range g.settings.Matcher.Hints(question, f.Values) {
			fmt.Fprintf(&sb, "  %q -> %s = %q\n", h.Term, f.Name, h.Value)
		}
	}
	return sb.String()
}
