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
	"pgedge-dataset-agent/internal/sanitize"
	"pgedge-dataset-agent/internal/store"
)

// Analysis is the explanation of a result. Empty fields are absent.
type Analysis struct {
	Narrative string
	Code      string
}

// InsightGenerator asks the completion service to explain a result and
// optionally chart it
type InsightGenerator struct {
	llm      llm.Completer
	settings Settings
}

// NewInsightGenerator creates an insight generator
func NewInsightGenerator(c llm.Completer, settings Settings) *InsightGenerator {
	return &InsightGenerator{llm: c, settings: settings}
}

// Generate explains rs as the answer to question
func (g *InsightGenerator) Generate(ctx context.Context, question string, q sanitize.Query, rs *store.ResultSet) (Analysis, error) {
	start := time.Now()
	messages := g.Messages(question, q, rs)

	reply, err := g.llm.Complete(ctx, g.settings.request(messages, g.settings.InsightTemperature))
	if err != nil {
		return Analysis{}, &GenerationError{Stage: StageInsight, Err: err}
	}
	if strings.TrimSpace(reply) == "" {
		return Analysis{}, &GenerationError{Stage: StageInsight, Err: ErrEmptyReply}
	}

	a := ParseAnalysis(reply)
	logging.Debug("insight_generated",
		"rows", rs.Len(),
		"narrative_length", len(a.Narrative),
		"has_code", a.Code != "",
		"duration", time.Since(start).String(),
	)
	return a, nil
}

// Messages builds the prompt: rules, query and result, question
func (g *InsightGenerator) Messages(question string, q sanitize.Query, rs *store.ResultSet) []llm.Message {
	var data strings.Builder
	fmt.Fprintf(&data, "Query:\n%s\n\n", q.SQL)

	if rs.Len() == 0 {
		data.WriteString("Result: no rows matched the query.")
	} else {
		tsv, truncated := rs.TSV(g.settings.MaxPromptRows)
		fmt.Fprintf(&data, "Result (tab separated):\n%s", tsv)
		if truncated {
			fmt.Fprintf(&data, "\n\n(showing %d of %d rows)", g.settings.MaxPromptRows, rs.Len())
		}
	}

	return []llm.Message{
		{Role: llm.RoleSystem, Content: g.rules(rs.Len() == 0)},
		{Role: llm.RoleSystem, Content: data.String()},
		{Role: llm.RoleUser, Content: question},
	}
}

func (g *InsightGenerator) rules(empty bool) string {
	p := g.settings.Prompt
	currency := p.Currency
	if currency == "" {
		currency = "£"
	}
	volume := p.VolumeUnit
	if volume == "" {
		volume = "KG"
	}

	var sb strings.Builder
	sb.WriteString("You are a data analyst. Use the query and its result that follow to answer the user's question.\n\n")

	if empty {
		sb.WriteString("The query matched no rows. Explain briefly that no data matched the question, and what the question may have been looking for. Do not write any code.")
		return sb.String()
	}

	sb.WriteString("Rules:\n")
	sb.WriteString("- Explain the answer using the column labels of the query.\n")
	fmt.Fprintf(&sb, "- Spend is in %s, volume is in %s and growth is a percentage. Label every figure with its unit.\n", currency, volume)
	sb.WriteString("- Round figures and scale large ones to thousands or millions.\n")
	sb.WriteString("- Mention the time period or aggregation the query uses.\n")
	sb.WriteString("- Use as little text and code as the question needs. Return at most one piece of text and one code block, and do not announce the code block.\n")
	sb.WriteString("- If you are answering about a single value, do not write any code.\n")
	sb.WriteString("- Otherwise, if the data can be plotted, add one fenced block tagged python that draws a chart with matplotlib.\n")
	sb.WriteString("- The code may only use matplotlib, numpy, pandas, math, json and datetime. The result is preloaded as data, a list of row dictionaries, and as df, a pandas DataFrame.\n")
	sb.WriteString("- Convert values to thousands or millions on the axes so that 1e6 never appears. Do not call savefig or show.\n")
	return sb.String()
}

// codeTags mark blocks that are never part of the narrative
var codeTags = map[string]bool{"python": true, "py": true, "sql": true}

// ParseAnalysis splits a reply into narrative text and chart code
func ParseAnalysis(reply string) Analysis {
	var a Analysis
	code := -1
	if block, ok := sanitize.FindBlock(reply, "python", "py"); ok {
		a.Code = strings.TrimSpace(strings.ReplaceAll(block.Body, `\'`, "'"))
		code = block.Start
	}
	// Other blocks, such as a text table, belong to the narrative
	a.Narrative = strings.TrimSpace(sanitize.StripBlocks(reply, func(b sanitize.Block) bool {
		return b.Start == code || codeTags[b.Tag]
	}))
	return a
}
