/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package render

import (
	"fmt"
	"regexp"
	"strings"
)

// AllowedImports are the modules chart code may import
var AllowedImports = []string{
	"matplotlib", "numpy", "pandas", "math", "json", "datetime",
	"statistics", "collections", "itertools", "decimal",
}

// maxCodeLength bounds generated chart code
const maxCodeLength = 50000

var forbiddenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bopen\s*\(`),
	regexp.MustCompile(`\bexec\s*\(`),
	regexp.MustCompile(`\beval\s*\(`),
	regexp.MustCompile(`\bcompile\s*\(`),
	regexp.MustCompile(`\bglobals\s*\(`),
	regexp.MustCompile(`\blocals\s*\(`),
	regexp.MustCompile(`\bvars\s*\(`),
	regexp.MustCompile(`\b(get|set|del)attr\s*\(`),
	regexp.MustCompile(`\bbreakpoint\s*\(`),
	regexp.MustCompile(`\binput\s*\(`),
	regexp.MustCompile(`__import__`),
	regexp.MustCompile(`__\w+__`),
	regexp.MustCompile(`\b(os|sys|subprocess|socket|shutil|pathlib|requests|urllib|http|importlib|ctypes|pickle|marshal)\s*\.`),
}

// ioPatterns catch file and network access through the libraries that are
// in scope; the sandbox denies the same operations at runtime
var ioPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bread_\w+\s*\(`),
	regexp.MustCompile(`\.to_(csv|excel|json|parquet|pickle|sql|hdf|feather|html|clipboard|latex|stata|orc|xml)\s*\(`),
	regexp.MustCompile(`\bsavefig\b`),
	regexp.MustCompile(`\b(imread|imsave)\b`),
	regexp.MustCompile(`\b(np|numpy)\s*\.\s*(save|savez|savez_compressed|load|fromfile|loadtxt|savetxt|genfromtxt|fromregex|memmap)\b`),
	regexp.MustCompile(`\.tofile\s*\(`),
}

var (
	importPattern     = regexp.MustCompile(`(?m)(?:^|;)\s*import\s+([^;\n#]+)`)
	fromImportPattern = regexp.MustCompile(`(?m)(?:^|;)\s*from\s+(\S+)\s+import\b`)
)

// Validate checks chart code before it is run
func Validate(code string) error {
	if strings.TrimSpace(code) == "" {
		return &RenderError{Reason: "chart code is empty"}
	}
	if len(code) > maxCodeLength {
		return &RenderError{Reason: "chart code is too long"}
	}

	for _, re := range forbiddenPatterns {
		if loc := re.FindStringIndex(code); loc != nil {
			return &RenderError{Reason: fmt.Sprintf("chart code uses forbidden construct %q", code[loc[0]:loc[1]])}
		}
	}
	for _, re := range ioPatterns {
		if loc := re.FindStringIndex(code); loc != nil {
			return &RenderError{Reason: fmt.Sprintf("chart code reads or writes files with %q", code[loc[0]:loc[1]])}
		}
	}

	allowed := make(map[string]bool, len(AllowedImports))
	for _, m := range AllowedImports {
		allowed[m] = true
	}

	var modules []string
	for _, m := range importPattern.FindAllStringSubmatch(code, -1) {
		for _, part := range strings.Split(m[1], ",") {
			fields := strings.Fields(part)
			if len(fields) > 0 {
				modules = append(modules, fields[0])
			}
		}
	}
	for _, m := range fromImportPattern.FindAllStringSubmatch(code, -1) {
		modules = append(modules, m[1])
	}

	for _, module := range modules {
		root := strings.Split(module, ".")[0]
		if !allowed[root] {
			return &RenderError{Reason: fmt.Sprintf("chart code imports %q, which is not allowed", module)}
		}
	}
	return nil
}
