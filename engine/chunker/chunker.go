// Package chunker implements the recursive markdown splitter: documents are
// first partitioned at header boundaries, then any section still larger
// than the configured chunk size is recursively packed by paragraph and,
// failing that, by sentence. Ordering and greediness are a contract other
// stages (and the property tests in the testable-properties suite) depend
// on exactly, so this is a line-for-line port of the reference algorithm
// rather than an approximation.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Options configures a Chunker. Overlap is accepted for interface
// compatibility with the source contract but is not applied: the reference
// implementation accepts chunk_overlap and never uses it, and this port
// keeps that behavior rather than inventing windowed overlap.
type Options struct {
	ChunkSize int
	Overlap   int
}

// DefaultOptions matches the source defaults.
func DefaultOptions() Options {
	return Options{ChunkSize: 1000, Overlap: 200}
}

// Metadata carries the header path a chunk was extracted under, root to
// leaf.
type Metadata struct {
	Headers []string
}

// Chunk is one ordered, embeddable slice of a document.
type Chunk struct {
	Text     string
	Metadata Metadata
}

var headerLine = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

type section struct {
	text    string
	headers []string
}

// Split partitions markdown into ordered chunks per the header-then-
// paragraph-then-sentence cascade.
func Split(markdown string, opts Options) []Chunk {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultOptions().ChunkSize
	}
	sections := splitByHeaders(markdown)

	var out []Chunk
	for _, sec := range sections {
		if runeLen(sec.text) <= opts.ChunkSize {
			out = append(out, Chunk{Text: sec.text, Metadata: Metadata{Headers: sec.headers}})
			continue
		}
		out = append(out, recursiveSplit(sec.text, sec.headers, opts.ChunkSize)...)
	}
	return out
}

// splitByHeaders partitions text into sections at markdown header lines,
// maintaining a header-title stack truncated to the encountered level.
func splitByHeaders(text string) []section {
	lines := strings.Split(text, "\n")

	var sections []section
	var headers []string
	var buffer []string

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		content := strings.TrimSpace(strings.Join(buffer, "\n"))
		buffer = nil
		if content == "" {
			return
		}
		hcopy := make([]string, len(headers))
		copy(hcopy, headers)
		sections = append(sections, section{text: content, headers: hcopy})
	}

	for _, line := range lines {
		m := headerLine.FindStringSubmatch(line)
		if m != nil {
			flush()
			level := len(m[1])
			title := strings.TrimSpace(m[2])
			if len(headers) >= level {
				headers = headers[:level-1]
			}
			headers = append(headers, title)
			buffer = append(buffer, line)
			continue
		}
		buffer = append(buffer, line)
	}
	flush()

	return sections
}

var paragraphSplit = regexp.MustCompile(`\n\n+`)

// recursiveSplit packs paragraphs greedily into chunks no larger than
// chunkSize; any paragraph that alone exceeds chunkSize is further split by
// sentence boundary and packed the same way.
func recursiveSplit(text string, headers []string, chunkSize int) []Chunk {
	paragraphs := paragraphSplit.Split(text, -1)

	var out []Chunk
	emit := func(text string) {
		if text == "" {
			return
		}
		out = append(out, Chunk{Text: text, Metadata: Metadata{Headers: headers}})
	}

	var current []string
	currentLen := 0

	for _, para := range paragraphs {
		paraLen := runeLen(para)

		if paraLen > chunkSize {
			if len(current) > 0 {
				emit(strings.Join(current, "\n\n"))
				current = nil
				currentLen = 0
			}

			sentences := splitSentences(para)
			var sentBuf []string
			sentLen := 0
			for _, sent := range sentences {
				if sentLen+runeLen(sent) > chunkSize {
					if len(sentBuf) > 0 {
						emit(strings.Join(sentBuf, " "))
					}
					sentBuf = []string{sent}
					sentLen = runeLen(sent)
				} else {
					sentBuf = append(sentBuf, sent)
					sentLen += runeLen(sent)
				}
			}
			if len(sentBuf) > 0 {
				emit(strings.Join(sentBuf, " "))
			}
			continue
		}

		if currentLen+paraLen+2 > chunkSize {
			emit(strings.Join(current, "\n\n"))
			current = []string{para}
			currentLen = paraLen
		} else {
			current = append(current, para)
			currentLen += paraLen + 2
		}
	}

	if len(current) > 0 {
		emit(strings.Join(current, "\n\n"))
	}

	return out
}

var sentenceBoundary = regexp.MustCompile(`[.!?]\s+`)

// splitSentences mimics Python's re.split(r'(?<=[.!?])\s+', text): the
// sentence-terminating punctuation stays with the sentence that precedes
// it, and the following whitespace run is consumed as the delimiter. Go's
// RE2 has no lookbehind, so the split is reconstructed from match indices.
func splitSentences(text string) []string {
	locs := sentenceBoundary.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}

	var out []string
	prev := 0
	for _, loc := range locs {
		// loc[0] is the punctuation byte, loc[1] is past the whitespace run.
		out = append(out, text[prev:loc[0]+1])
		prev = loc[1]
	}
	if prev < len(text) {
		out = append(out, text[prev:])
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
