/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package sanitize

import (
	"strings"
)

// Block is a fenced code block found in a completion
type Block struct {
	Tag  string // Lowercased info string, "" when untagged
	Body string

	// Byte offsets of the whole block, fences included
	Start int
	End   int
}

// Blocks returns every fenced block in text, in order. A block left open
// at the end of the text runs to the end.
func Blocks(text string) []Block {
	var blocks []Block
	var current *Block
	var body []string

	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		trimmed := strings.TrimSpace(line)
		lineStart := offset
		offset += len(line)

		if current == nil {
			if !strings.HasPrefix(trimmed, "```") {
				continue
			}
			info := strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
			// One-line block: ```sql SELECT 1```
			if strings.HasSuffix(info, "```") && len(info) > 3 {
				inner := strings.TrimSpace(strings.TrimSuffix(info, "```"))
				tag, rest := splitInfo(inner)
				blocks = append(blocks, Block{Tag: tag, Body: rest, Start: lineStart, End: offset})
				continue
			}
			tag, _ := splitInfo(info)
			current = &Block{Tag: tag, Start: lineStart}
			body = body[:0]
			continue
		}

		if strings.HasPrefix(trimmed, "```") {
			current.Body = strings.TrimSpace(strings.Join(body, ""))
			current.End = offset
			blocks = append(blocks, *current)
			current = nil
			continue
		}
		body = append(body, line)
	}

	if current != nil {
		current.Body = strings.TrimSpace(strings.Join(body, ""))
		current.End = len(text)
		blocks = append(blocks, *current)
	}
	return blocks
}

// splitInfo separates the language tag from anything that follows it
func splitInfo(info string) (tag, rest string) {
	fields := strings.SplitN(info, " ", 2)
	tag = strings.ToLower(strings.TrimSpace(fields[0]))
	if len(fields) > 1 {
		rest = strings.TrimSpace(fields[1])
	}
	return tag, rest
}

// FindBlock returns the first block tagged with one of tags, or failing
// that the first untagged block
func FindBlock(text string, tags ...string) (Block, bool) {
	blocks := Blocks(text)
	for _, b := range blocks {
		for _, tag := range tags {
			if b.Tag == strings.ToLower(tag) {
				return b, true
			}
		}
	}
	for _, b := range blocks {
		if b.Tag == "" {
			return b, true
		}
	}
	return Block{}, false
}

// StripBlocks removes the fenced blocks for which drop returns true, or
// every block when drop is nil
func StripBlocks(text string, drop func(Block) bool) string {
	blocks := Blocks(text)
	if len(blocks) == 0 {
		return text
	}

	var sb strings.Builder
	prev := 0
	for _, b := range blocks {
		if drop != nil && !drop(b) {
			continue
		}
		sb.WriteString(text[prev:b.Start])
		prev = b.End
	}
	sb.WriteString(text[prev:])
	return sb.String()
}
