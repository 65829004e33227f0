/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package retrieval

import (
	"strings"
)

// Chunk is an indexed piece of a source document
type Chunk struct {
	Source    string
	Section   string
	Text      string
	Embedding []float32
}

// Chunker splits markdown into overlapping word windows. Sizes are word
// counts, not model tokens.
type Chunker struct {
	Size    int
	Overlap int
}

// section is a heading and the lines under it
type section struct {
	heading string
	content string
}

// Split breaks a markdown document into chunks
func (c Chunker) Split(markdown, source string) []Chunk {
	var chunks []Chunk
	for _, s := range parseMarkdownSections(markdown) {
		chunks = append(chunks, c.chunkSection(s, source)...)
	}
	return chunks
}

// parseMarkdownSections splits markdown at headings
func parseMarkdownSections(markdown string) []section {
	var sections []section
	var current *section
	inFence := false

	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
		}

		if !inFence && strings.HasPrefix(trimmed, "#") {
			if current != nil && strings.TrimSpace(current.content) != "" {
				sections = append(sections, *current)
			}
			current = &section{heading: strings.TrimSpace(strings.TrimLeft(trimmed, "#"))}
			continue
		}

		if current == nil {
			current = &section{}
		}
		current.content += line + "\n"
	}

	if current != nil && strings.TrimSpace(current.content) != "" {
		sections = append(sections, *current)
	}
	return sections
}

// chunkSection breaks a section into windows of Size words with Overlap
// words repeated, preferring to end on a sentence boundary
func (c Chunker) chunkSection(s section, source string) []Chunk {
	words := strings.Fields(s.content)
	if len(words) == 0 {
		return nil
	}

	size := c.Size
	if size <= 0 {
		size = 250
	}
	overlap := c.Overlap
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	maxSize := size + size/5

	build := func(ws []string) Chunk {
		text := strings.Join(ws, " ")
		if s.heading != "" {
			text = s.heading + "\n\n" + text
		}
		return Chunk{Source: source, Section: s.heading, Text: text}
	}

	if len(words) <= size {
		return []Chunk{build(words)}
	}

	var chunks []Chunk
	start := 0
	for start < len(words) {
		end := start + size
		if end >= len(words) {
			end = len(words)
		} else {
			limit := start + maxSize
			if limit > len(words) {
				limit = len(words)
			}
			end = findSentenceBoundary(words, end, limit, start+size/2)
		}

		chunks = append(chunks, build(words[start:end]))
		if end >= len(words) {
			break
		}

		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// findSentenceBoundary looks back from preferred (no further than floor),
// then forward up to limit, for a word ending a sentence
func findSentenceBoundary(words []string, preferred, limit, floor int) int {
	for i := preferred - 1; i >= floor && i >= 0; i-- {
		if endsSentence(words[i]) {
			return i + 1
		}
	}
	for i := preferred; i < limit; i++ {
		if endsSentence(words[i]) {
			return i + 1
		}
	}
	return preferred
}

func endsSentence(word string) bool {
	last := word[len(word)-1]
	return last == '.' || last == '!' || last == '?'
}
