package pagesplit

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

// PDF date strings look like D:20240115093045+09'00'.
var pdfDateRegex = regexp.MustCompile(
	`/ModDate\s*\(\s*D:(\d{4})(\d{2})(\d{2})(\d{2})(\d{2})(\d{2})([Zz]|[+-]\d{2})'?(\d{2})?'?`,
)

// ModifiedAt extracts the document modification date from the raw PDF bytes
// and returns it as UTC ISO-8601. Returns an empty string with an error when
// the PDF carries no parsable /ModDate.
func ModifiedAt(pdfPath string) (string, error) {
	data, err := os.ReadFile(filepath.Clean(pdfPath))
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	return parsePDFDate(data)
}

func parsePDFDate(data []byte) (string, error) {
	m := pdfDateRegex.FindSubmatch(data)
	if m == nil {
		return "", fmt.Errorf("no /ModDate entry")
	}

	year, _ := strconv.Atoi(string(m[1]))
	month, _ := strconv.Atoi(string(m[2]))
	day, _ := strconv.Atoi(string(m[3]))
	hour, _ := strconv.Atoi(string(m[4]))
	minute, _ := strconv.Atoi(string(m[5]))
	second, _ := strconv.Atoi(string(m[6]))

	loc := time.UTC
	tz := string(m[7])
	if tz != "" && tz != "Z" && tz != "z" {
		offH, err := strconv.Atoi(tz)
		if err != nil {
			return "", fmt.Errorf("bad timezone hours %q", tz)
		}
		offM := 0
		if len(m[8]) > 0 {
			offM, _ = strconv.Atoi(string(m[8]))
		}
		seconds := offH * 3600
		if offH < 0 {
			seconds -= offM * 60
		} else {
			seconds += offM * 60
		}
		loc = time.FixedZone("pdf", seconds)
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, loc)
	return t.UTC().Format("2006-01-02T15:04:05Z"), nil
}
