package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var (
	pageMarkerRegex  = regexp.MustCompile(`^#\s*\[p(\d+)\]`)
	imageMarkupRegex = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	whitespaceRegex  = regexp.MustCompile(`\s+`)
)

// Header/footer lines must recur on at least this share of pages to be removed.
const repeatedLineShare = 0.6

const (
	repeatedLineMinLen = 5
	repeatedLineMaxLen = 80
)

// Normalizer strips placeholder markup, page-number noise, table-rule
// artifacts, and document-wide repeated headers/footers from parsed page text.
// Page markers of the form `# [pN]` are preserved for downstream attribution.
type Normalizer struct {
	logger *zap.Logger
}

// New creates a Normalizer.
func New(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Stats summarizes one normalization run.
type Stats struct {
	DocID           string `json:"doc_id"`
	Pages           int    `json:"pages"`
	LinesIn         int    `json:"lines_in"`
	LinesOut        int    `json:"lines_out"`
	RepeatedRemoved int    `json:"repeated_lines_removed"`
	RepeatedUnique  int    `json:"repeated_lines_unique"`
}

// pageBlock is one page marker plus its body lines.
type pageBlock struct {
	marker string
	lines  []string
}

// Run normalizes a whole document text and reports what was removed.
func (n *Normalizer) Run(docID, text string) (string, Stats) {
	stats := Stats{DocID: docID}

	blocks := splitPages(text)
	stats.Pages = len(blocks)
	for _, b := range blocks {
		stats.LinesIn += len(b.lines)
	}

	repeated := detectRepeatedLines(blocks)
	stats.RepeatedUnique = len(repeated)

	var out strings.Builder
	for _, b := range blocks {
		if b.marker != "" {
			out.WriteString(b.marker)
			out.WriteString("\n\n")
		}
		blank := true // swallow leading blanks after the marker
		for _, line := range b.lines {
			cleaned := cleanLine(line)
			if cleaned == "" {
				if !blank {
					out.WriteString("\n")
					blank = true
				}
				continue
			}
			if repeated[cleaned] {
				stats.RepeatedRemoved++
				continue
			}
			out.WriteString(cleaned)
			out.WriteString("\n")
			blank = false
			stats.LinesOut++
		}
		if !blank {
			out.WriteString("\n")
		}
	}

	n.logger.Info("text normalized",
		zap.String("doc_id", docID),
		zap.Int("pages", stats.Pages),
		zap.Int("lines_in", stats.LinesIn),
		zap.Int("lines_out", stats.LinesOut),
		zap.Int("repeated_removed", stats.RepeatedRemoved),
	)
	return out.String(), stats
}

// WriteReport persists the normalization stats next to the chunk logs.
func (n *Normalizer) WriteReport(dir string, stats Stats) error {
	path := filepath.Join(dir, stats.DocID+"_normalize_report.json")
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// splitPages groups the document lines by `# [pN]` markers. Text before the
// first marker becomes an unmarked leading block.
func splitPages(text string) []pageBlock {
	var blocks []pageBlock
	current := pageBlock{}
	started := false

	for _, line := range strings.Split(text, "\n") {
		if pageMarkerRegex.MatchString(strings.TrimSpace(line)) {
			if started || len(current.lines) > 0 {
				blocks = append(blocks, current)
			}
			current = pageBlock{marker: strings.TrimSpace(line)}
			started = true
			continue
		}
		current.lines = append(current.lines, line)
	}
	if started || len(current.lines) > 0 {
		blocks = append(blocks, current)
	}
	return blocks
}

// detectRepeatedLines finds candidate headers/footers: cleaned non-heading
// lines of 5..80 chars recurring on at least 60% of pages. Documents under
// two pages are left alone.
func detectRepeatedLines(blocks []pageBlock) map[string]bool {
	if len(blocks) < 2 {
		return nil
	}

	counts := make(map[string]int)
	for _, b := range blocks {
		seen := make(map[string]bool)
		for _, line := range b.lines {
			cleaned := cleanLine(line)
			if cleaned == "" || strings.HasPrefix(cleaned, "#") {
				continue
			}
			if len(cleaned) < repeatedLineMinLen || len(cleaned) > repeatedLineMaxLen {
				continue
			}
			if !seen[cleaned] {
				seen[cleaned] = true
				counts[cleaned]++
			}
		}
	}

	threshold := int(math.Ceil(repeatedLineShare * float64(len(blocks))))
	if threshold < 2 {
		threshold = 2
	}

	repeated := make(map[string]bool)
	for line, c := range counts {
		if c >= threshold {
			repeated[line] = true
		}
	}
	return repeated
}

// cleanLine strips image placeholders and collapses whitespace; pure-digit
// lines and table-rule lines reduce to empty.
func cleanLine(line string) string {
	s := imageMarkupRegex.ReplaceAllString(line, " ")
	s = whitespaceRegex.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if isDigits(s) {
		return ""
	}
	if isTableRule(s) {
		return ""
	}
	return s
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// isTableRule matches markdown table separators: lines of only |, :, -, spaces.
func isTableRule(s string) bool {
	hasRule := false
	for _, r := range s {
		switch r {
		case '|', ':', '-', ' ':
			if r == '-' || r == '|' {
				hasRule = true
			}
		default:
			return false
		}
	}
	return hasRule
}
