package chunk

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/manualdex/internal/domain"
)

// Packing defaults, calibrated for manual prose.
const (
	DefaultTargetChars = 800
	DefaultMaxChars    = 1200

	// flushFactor flushes a buffer once it exceeds target*flushFactor even
	// when the next paragraph would still fit.
	flushFactor = 1.3
	// hardSplitFactor hard-splits a single sentence above max*hardSplitFactor.
	hardSplitFactor = 1.2
)

var (
	pageMarkerRegex = regexp.MustCompile(`^#\s*\[p(\d+)\]`)
	headingRegex    = regexp.MustCompile(`^(#{1,6})\s*(.+)$`)
	// Sentence boundaries: latin terminal punctuation plus Korean polite
	// endings 다./요. followed by whitespace.
	sentenceRegex = regexp.MustCompile(`(?:[.!?]|[다요]\.)\s+`)
)

// Builder packs normalized page text into bounded chunks with provenance.
type Builder struct {
	targetChars int
	maxChars    int
	logger      *zap.Logger
}

// NewBuilder creates a chunk builder. Zero bounds fall back to the defaults.
func NewBuilder(targetChars, maxChars int, logger *zap.Logger) *Builder {
	if targetChars <= 0 {
		targetChars = DefaultTargetChars
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Builder{targetChars: targetChars, maxChars: maxChars, logger: logger}
}

// paragraph is one blank-line-delimited group attributed to a page and the
// section heading in force where it appeared.
type paragraph struct {
	text    string
	page    int
	section string
}

// BuildText packs the normalized document text into text chunks.
func (b *Builder) BuildText(docID, text string) []domain.Chunk {
	paragraphs := collectParagraphs(text)

	var chunks []domain.Chunk
	var parts []string
	var pages []int
	current := 0
	section := ""

	flush := func() {
		if len(parts) == 0 {
			return
		}
		content := strings.Join(parts, "\n\n")
		chunks = append(chunks, domain.Chunk{
			UID:          domain.TextChunkUID(docID, len(chunks)),
			DocID:        docID,
			Type:         domain.ChunkText,
			Text:         content,
			CharLen:      len(content),
			PageStart:    minInt(pages),
			PageEnd:      maxInt(pages),
			SectionTitle: section,
		})
		parts = nil
		pages = nil
		current = 0
	}

	for _, p := range paragraphs {
		for _, seg := range b.splitLongParagraph(p.text) {
			projected := current + len(seg)
			if len(parts) > 0 {
				projected += 2
			}
			if len(parts) > 0 && projected > b.maxChars {
				flush()
				projected = len(seg)
			}
			parts = append(parts, seg)
			pages = append(pages, p.page)
			section = p.section
			current = projected
			if float64(current) >= float64(b.targetChars)*flushFactor {
				flush()
			}
		}
	}
	flush()

	if b.logger != nil {
		b.logger.Info("text chunks built",
			zap.String("doc_id", docID),
			zap.Int("paragraphs", len(paragraphs)),
			zap.Int("chunks", len(chunks)),
		)
	}
	return chunks
}

// collectParagraphs walks the page-marked text, grouping non-blank line runs
// into paragraphs and tracking the rolling section title from markdown
// headings. Heading text stays in the content.
func collectParagraphs(text string) []paragraph {
	var out []paragraph
	page := 1
	section := ""
	var lines []string

	flush := func() {
		if len(lines) == 0 {
			return
		}
		out = append(out, paragraph{
			text:    strings.Join(lines, " "),
			page:    page,
			section: section,
		})
		lines = nil
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			flush()
			continue
		}
		if m := pageMarkerRegex.FindStringSubmatch(line); m != nil {
			flush()
			page = atoiOr(m[1], page)
			continue
		}
		if m := headingRegex.FindStringSubmatch(line); m != nil {
			section = strings.TrimSpace(m[2])
		}
		lines = append(lines, line)
	}
	flush()
	return out
}

// splitLongParagraph returns the paragraph unchanged when it fits, otherwise
// sentence-packs it; a single sentence far above max is sliced at fixed
// offsets.
func (b *Builder) splitLongParagraph(text string) []string {
	if len(text) <= b.maxChars {
		return []string{text}
	}

	var segments []string
	var cur strings.Builder
	for _, sentence := range splitSentences(text) {
		if float64(len(sentence)) > float64(b.maxChars)*hardSplitFactor {
			if cur.Len() > 0 {
				segments = append(segments, cur.String())
				cur.Reset()
			}
			segments = append(segments, hardSplit(sentence, b.maxChars)...)
			continue
		}
		projected := cur.Len() + len(sentence)
		if cur.Len() > 0 {
			projected++
		}
		if cur.Len() > 0 && projected > b.maxChars {
			segments = append(segments, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(sentence)
	}
	if cur.Len() > 0 {
		segments = append(segments, cur.String())
	}
	return segments
}

// splitSentences cuts after sentence-final punctuation, keeping the
// punctuation with the preceding sentence.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceRegex.FindAllStringIndex(text, -1) {
		// The match includes the punctuation and trailing whitespace; cut
		// after the punctuation rune(s).
		end := loc[1]
		for end > loc[0] && (text[end-1] == ' ' || text[end-1] == '\t' || text[end-1] == '\n') {
			end--
		}
		s := strings.TrimSpace(text[start:end])
		if s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		out = append(out, rest)
	}
	if len(out) == 0 {
		return []string{strings.TrimSpace(text)}
	}
	return out
}

// hardSplit slices a string into width-bounded pieces on byte offsets,
// backing off to the previous rune boundary so multi-byte text stays valid.
func hardSplit(s string, width int) []string {
	var out []string
	for len(s) > width {
		cut := width
		for cut > 0 && !isRuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			cut = width
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func atoiOr(s string, fallback int) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return fallback
		}
		n = n*10 + int(r-'0')
	}
	if n == 0 {
		return fallback
	}
	return n
}

func minInt(xs []int) int {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxInt(xs []int) int {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}
