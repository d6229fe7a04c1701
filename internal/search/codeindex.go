package search

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/manualdex/internal/domain"
)

// Model and drawing code shapes, e.g. SBDH-T1000 and SAH001. Candidates are
// validated against surrounding characters separately since the matcher has
// no lookaround.
var (
	modelCodeRe  = regexp.MustCompile(`[0-9A-Z]{2,5}-[0-9A-Z]{2,10}`)
	simpleCodeRe = regexp.MustCompile(`[0-9A-Z]{3,8}`)
	codeCharRe   = regexp.MustCompile(`[^0-9A-Z-]`)

	// headScanChars bounds how much chunk text is scanned for codes.
	headScanChars = 200
)

// CodeIndex maps normalized product/model codes to the documents that carry
// them, built from the vector metadata log.
type CodeIndex struct {
	mu         sync.RWMutex
	codeToDocs map[string][]string
	logger     *zap.Logger
}

func NewCodeIndex(logger *zap.Logger) *CodeIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CodeIndex{codeToDocs: map[string][]string{}, logger: logger}
}

// Rebuild rescans all records: doc_id, file name and the head of the chunk
// text contribute code candidates.
func (ci *CodeIndex) Rebuild(records []domain.VectorRecord) {
	codeToDocs := map[string][]string{}
	for _, r := range records {
		docID := strings.TrimSpace(r.DocID)
		if docID == "" {
			continue
		}
		var candidates []string
		for _, field := range []string{r.DocID, r.FileName} {
			v := strings.ToUpper(field)
			if v == "" {
				continue
			}
			candidates = append(candidates, findCodes(modelCodeRe, v)...)
			candidates = append(candidates, findCodes(simpleCodeRe, v)...)
		}
		if head := strings.ToUpper(r.Text); head != "" {
			if runes := []rune(head); len(runes) > headScanChars {
				head = string(runes[:headScanChars])
			}
			candidates = append(candidates, findCodes(modelCodeRe, head)...)
		}
		for _, code := range candidates {
			norm := NormalizeCode(code)
			if norm == "" {
				continue
			}
			if !containsString(codeToDocs[norm], docID) {
				codeToDocs[norm] = append(codeToDocs[norm], docID)
			}
		}
	}

	ci.mu.Lock()
	ci.codeToDocs = codeToDocs
	ci.mu.Unlock()
	ci.logger.Info("code index rebuilt", zap.Int("codes", len(codeToDocs)))
}

// ExtractCodes pulls normalized code candidates out of a query, hyphenated
// codes first.
func (ci *CodeIndex) ExtractCodes(query string) []string {
	q := strings.ToUpper(query)
	var codes []string
	for _, re := range []*regexp.Regexp{modelCodeRe, simpleCodeRe} {
		for _, m := range findCodes(re, q) {
			norm := NormalizeCode(m)
			if norm != "" && !containsString(codes, norm) {
				codes = append(codes, norm)
			}
		}
	}
	return codes
}

// Resolve maps codes to document ids. When any digit-bearing code narrows
// the union down (its hyphen-stripped form contained in a doc id), only the
// narrowed set is returned; otherwise the full union is.
func (ci *CodeIndex) Resolve(codes []string) []string {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	var resolved []string
	var normalized []string
	for _, code := range codes {
		norm := NormalizeCode(code)
		if norm == "" {
			continue
		}
		normalized = append(normalized, norm)
		for _, d := range ci.codeToDocs[norm] {
			if !containsString(resolved, d) {
				resolved = append(resolved, d)
			}
		}
	}
	if len(resolved) == 0 {
		return nil
	}

	specific := specificCodes(normalized)
	for _, sc := range specific {
		stripped := strings.ReplaceAll(sc, "-", "")
		var narrowed []string
		for _, d := range resolved {
			if strings.Contains(strings.ReplaceAll(strings.ToUpper(d), "-", ""), stripped) {
				narrowed = append(narrowed, d)
			}
		}
		if len(narrowed) > 0 {
			ci.logger.Info("narrowed documents by code",
				zap.String("code", sc),
				zap.Strings("doc_ids", narrowed))
			return narrowed
		}
	}
	return resolved
}

// NormalizeCode uppercases and strips everything outside [0-9A-Z-].
func NormalizeCode(code string) string {
	return codeCharRe.ReplaceAllString(strings.ToUpper(strings.TrimSpace(code)), "")
}

// specificCodes keeps digit-bearing codes, longest first.
func specificCodes(codes []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, c := range codes {
		if _, dup := seen[c]; dup {
			continue
		}
		if !strings.ContainsAny(c, "0123456789") {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// findCodes emulates (?<![0-9A-Z])pattern(?![0-9A-Z]): candidates touching
// an alphanumeric neighbor are rejected and the scan resumes one character
// past the rejected start.
func findCodes(re *regexp.Regexp, s string) []string {
	var out []string
	for start := 0; start < len(s); {
		loc := re.FindStringIndex(s[start:])
		if loc == nil {
			break
		}
		lo, hi := start+loc[0], start+loc[1]
		if boundaryOK(s, lo, hi) {
			out = append(out, s[lo:hi])
			start = hi
			continue
		}
		start = lo + 1
	}
	return out
}

func boundaryOK(s string, lo, hi int) bool {
	if lo > 0 && isal(s[lo-1]) {
		return false
	}
	if hi < len(s) && isal(s[hi]) {
		return false
	}
	return true
}

func isal(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'A' && b <= 'Z')
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
