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
	"errors"
	"fmt"
	"html"
	"path/filepath"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// DocumentType identifies a corpus file format
type DocumentType string

const (
	TypeMarkdown         DocumentType = "markdown"
	TypeHTML             DocumentType = "html"
	TypeReStructuredText DocumentType = "rst"
	TypeText             DocumentType = "text"
	TypeUnknown          DocumentType = "unknown"
)

// ErrUnsupportedFormat is returned when a file format is not supported
var ErrUnsupportedFormat = errors.New("unsupported document format")

var titlePattern = regexp.MustCompile(`(?i)<title[^>]*>([^<]+)</title>`)

// DetectDocumentType detects the document type from file extension
func DetectDocumentType(filename string) DocumentType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".html", ".htm":
		return TypeHTML
	case ".md", ".markdown":
		return TypeMarkdown
	case ".rst":
		return TypeReStructuredText
	case ".txt":
		return TypeText
	default:
		return TypeUnknown
	}
}

// Convert converts a document to markdown
func Convert(content []byte, docType DocumentType) (string, error) {
	switch docType {
	case TypeHTML:
		return convertHTML(content)
	case TypeMarkdown, TypeText:
		return string(content), nil
	case TypeReStructuredText:
		return convertRSTHeadings(string(content)), nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// convertHTML converts HTML to markdown with the <title> as the only H1
func convertHTML(content []byte) (string, error) {
	converter := md.NewConverter("", true, nil)

	// Body headings move down a level since the title becomes H1
	converter.AddRules(md.Rule{
		Filter: []string{"h1", "h2", "h3", "h4", "h5", "h6"},
		Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
			level := int(selec.Nodes[0].Data[1]-'0') + 1
			if level > 6 {
				level = 6
			}
			result := "\n\n" + strings.Repeat("#", level) + " " + strings.TrimSpace(content) + "\n\n"
			return &result
		},
	})

	markdown, err := converter.ConvertBytes(content)
	if err != nil {
		return "", fmt.Errorf("failed to convert HTML: %w", err)
	}

	out := strings.TrimSpace(string(markdown))
	if m := titlePattern.FindSubmatch(content); len(m) > 1 {
		title := strings.TrimSpace(html.UnescapeString(string(m[1])))
		// The converter emits the title as plain text first
		out = strings.TrimSpace(strings.TrimPrefix(out, title))
		out = "# " + title + "\n\n" + out
	}
	return out, nil
}

// convertRSTHeadings turns underlined and overlined RST headings into
// markdown headings. Levels follow the order in which adornments appear.
func convertRSTHeadings(content string) string {
	lines := strings.Split(content, "\n")
	result := make([]string, 0, len(lines))
	levels := make(map[string]int)

	levelFor := func(pattern string) int {
		if level, ok := levels[pattern]; ok {
			return level
		}
		level := len(levels) + 1
		if level > 6 {
			level = 6
		}
		levels[pattern] = level
		return level
	}

	for i := 0; i < len(lines); i++ {
		current := strings.TrimSpace(lines[i])

		// Directives and labels carry no prose
		if strings.HasPrefix(current, "..") && strings.HasSuffix(current, ":") {
			continue
		}

		if i+2 < len(lines) && isUnderline(current) {
			text := strings.TrimSpace(lines[i+1])
			under := strings.TrimSpace(lines[i+2])
			if text != "" && under == current {
				level := levelFor(string(current[0]) + "o")
				result = append(result, strings.Repeat("#", level)+" "+text)
				i += 2
				continue
			}
		}

		if i+1 < len(lines) && current != "" && !isUnderline(current) {
			next := strings.TrimSpace(lines[i+1])
			if isUnderline(next) && len(next) >= len(current) {
				level := levelFor(string(next[0]) + "u")
				result = append(result, strings.Repeat("#", level)+" "+current)
				i++
				continue
			}
		}

		result = append(result, lines[i])
	}

	return strings.Join(result, "\n")
}

// isUnderline checks if a line repeats a single heading punctuation character
func isUnderline(line string) bool {
	if len(line) < 2 || !strings.ContainsRune("=-~^\"'`#*+_:.", rune(line[0])) {
		return false
	}
	return strings.Count(line, string(line[0])) == len(line)
}
