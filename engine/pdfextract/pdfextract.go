// Package pdfextract converts PDF bytes into cleaned markdown: headers,
// tables and lists are reconstructed from the plain-text layout, then five
// ordered post-processing rules normalize the result.
package pdfextract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/text"
)

// Extractor converts PDF bytes to markdown.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor { return &Extractor{} }

// Extract converts PDF bytes into cleaned, UTF-8 markdown with no trailing
// whitespace. It turns header-looking lines into level-2 (##) headers,
// reconstructs pipe-syntax tables and list markers from the page's
// plain-text layout, then applies the post-processing rules in a fixed
// order. Every detected header gets the same level, so the PDF's header
// hierarchy is not kept.
func (e *Extractor) Extract(data []byte) (string, error) {
	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		raw, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages = append(pages, structurePage(raw))
	}

	md := strings.Join(pages, "\n\n")
	md = postProcess(md)

	if err := validateMarkdown(md); err != nil {
		return "", fmt.Errorf("structured markdown invalid: %w", err)
	}
	return md, nil
}

// structurePage turns one page's raw plain text into markdown: bullet
// glyphs become list markers, aligned multi-column lines become pipe
// tables, and short non-sentence lines become headers.
func structurePage(raw string) string {
	lines := strings.Split(raw, "\n")
	var out []string

	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			out = append(out, "")
			i++
			continue
		}

		if bullet := bulletPattern.FindStringSubmatch(trimmed); bullet != nil {
			out = append(out, "- "+strings.TrimSpace(bullet[1]))
			i++
			continue
		}

		if numbered := numberedListPattern.FindStringSubmatch(trimmed); numbered != nil {
			out = append(out, numbered[1]+". "+strings.TrimSpace(numbered[2]))
			i++
			continue
		}

		if tableColumns(trimmed) >= 2 {
			block, consumed := collectTableBlock(lines[i:])
			out = append(out, block...)
			i += consumed
			continue
		}

		if looksLikeHeader(trimmed, lines, i) {
			out = append(out, "## "+trimmed)
			i++
			continue
		}

		out = append(out, line)
		i++
	}

	return strings.Join(out, "\n")
}

var (
	bulletPattern       = regexp.MustCompile(`^[•▪◦‣]\s*(.+)$`)
	numberedListPattern = regexp.MustCompile(`^(\d{1,3})[.)]\s+(.+)$`)
	multiSpace          = regexp.MustCompile(`\s{2,}`)
)

// tableColumns estimates the number of columns in a line by counting runs
// of two or more spaces, which is how PDF text extraction typically
// represents aligned table cells.
func tableColumns(line string) int {
	return len(multiSpace.Split(strings.TrimSpace(line), -1))
}

// collectTableBlock gathers consecutive multi-column lines into a pipe
// table, inserting a header separator row after the first line.
func collectTableBlock(lines []string) ([]string, int) {
	var rows [][]string
	n := 0
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		if trimmed == "" || tableColumns(trimmed) < 2 {
			break
		}
		rows = append(rows, multiSpace.Split(trimmed, -1))
		n++
	}
	if len(rows) == 0 {
		return nil, 0
	}

	cols := len(rows[0])
	var out []string
	out = append(out, "| "+strings.Join(rows[0], " | ")+" |")
	sep := make([]string, cols)
	for i := range sep {
		sep[i] = "---"
	}
	out = append(out, "| "+strings.Join(sep, " | ")+" |")
	for _, r := range rows[1:] {
		out = append(out, "| "+strings.Join(r, " | ")+" |")
	}
	return out, n
}

// looksLikeHeader flags short, punctuation-free lines surrounded by blank
// lines as section headers: the common shape of a PDF title run after
// plain-text extraction loses font-size information.
func looksLikeHeader(line string, lines []string, idx int) bool {
	if len([]rune(line)) == 0 || len([]rune(line)) > 90 {
		return false
	}
	if strings.HasSuffix(line, ".") || strings.HasSuffix(line, ",") {
		return false
	}
	words := strings.Fields(line)
	if len(words) == 0 || len(words) > 12 {
		return false
	}
	if !isHeaderish(words) {
		return false
	}
	prevBlank := idx == 0 || strings.TrimSpace(lines[idx-1]) == ""
	nextBlank := idx+1 >= len(lines) || strings.TrimSpace(lines[idx+1]) == ""
	return prevBlank && nextBlank
}

// isHeaderish reports whether every word starts uppercase or the whole
// line is uppercase, matching typical PDF title casing.
func isHeaderish(words []string) bool {
	allUpper := true
	allTitled := true
	for _, w := range words {
		r := []rune(w)
		if len(r) == 0 {
			continue
		}
		if !unicode.IsUpper(r[0]) {
			allTitled = false
		}
		for _, c := range r {
			if unicode.IsLower(c) {
				allUpper = false
			}
		}
	}
	return allUpper || allTitled
}

var (
	hyphenBreak  = regexp.MustCompile(`(\p{L})-\n(\p{L})`)
	spacesRun    = regexp.MustCompile(`[ \t]{2,}`)
	newlinesRun  = regexp.MustCompile(`\n{3,}`)
	replacement  = "�"
)

// postProcess applies the five rules from the contract, in order: join
// hyphen-broken words, collapse space runs, cap blank-line runs at one
// blank line (two newlines), normalize bullet glyphs, strip the Unicode
// replacement character.
func postProcess(s string) string {
	s = hyphenBreak.ReplaceAllString(s, "$1$2")
	s = spacesRun.ReplaceAllString(s, " ")
	s = newlinesRun.ReplaceAllString(s, "\n\n")
	s = strings.ReplaceAll(s, "• ", "- ")
	s = strings.ReplaceAll(s, replacement, "")
	return strings.TrimRight(s, " \t\n\r")
}

// validateMarkdown parses the result with goldmark as a structural sanity
// check: a parse failure indicates malformed table/list syntax slipped
// through structurePage.
func validateMarkdown(md string) error {
	reader := text.NewReader([]byte(md))
	doc := goldmark.New().Parser().Parse(reader)
	if doc == nil {
		return fmt.Errorf("goldmark returned nil document")
	}
	return nil
}
