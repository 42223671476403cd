package data

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var (
	// ErrNoHeader is returned when the input has no header row.
	ErrNoHeader = errors.New("table has no header row")
	// ErrNoRows is returned when the header is followed by no data rows.
	ErrNoRows = errors.New("table has no data rows")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// candidate delimiters in tie-break order
var delimiters = []rune{',', ';', '\t', '|'}

// Options controls how a table is read.
type Options struct {
	// Delimiter separates fields. If 0, it is sniffed from the header line.
	Delimiter rune
}

// Table is an uploaded survey table: one header row plus string rows.
// Every row has exactly len(Headers) cells.
type Table struct {
	Headers   []string
	Rows      [][]string
	Delimiter rune
	// Skipped counts malformed records dropped while reading.
	Skipped int
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// ReadTable reads a delimited table from r.
func ReadTable(r io.Reader, opts Options) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)

	delim := opts.Delimiter
	if delim == 0 {
		delim = SniffDelimiter(raw)
	}

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoHeader
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	if isBlank(header) {
		return nil, ErrNoHeader
	}

	t := &Table{
		Headers:   uniqueHeaders(header),
		Delimiter: delim,
	}
	width := len(t.Headers)

	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Skip malformed records
			t.Skipped++
			continue
		}
		if isBlank(rec) {
			continue
		}

		row := make([]string, width)
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}

	if len(t.Rows) == 0 {
		return nil, ErrNoRows
	}
	return t, nil
}

// SniffDelimiter picks the candidate delimiter occurring most often in the
// first line outside quotes. Comma wins ties and the no-match case.
func SniffDelimiter(raw []byte) rune {
	line := raw
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		line = raw[:i]
	}

	counts := make(map[rune]int, len(delimiters))
	inQuotes := false
	for _, c := range string(line) {
		if c == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[c]++
		}
	}

	best, bestCount := ',', 0
	for _, d := range delimiters {
		if counts[d] > bestCount {
			best, bestCount = d, counts[d]
		}
	}
	return best
}

// uniqueHeaders trims header names, names blank columns by position and
// suffixes repeated names so every column is addressable.
func uniqueHeaders(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]struct{}, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = "column_" + strconv.Itoa(i+1)
		}
		out[i] = UniqueName(h, seen)
	}
	return out
}

// UniqueName returns name, or the first free name_<n> (n >= 2) if name is
// already in seen, and records the result in seen.
func UniqueName(name string, seen map[string]struct{}) string {
	candidate := name
	for n := 2; ; n++ {
		if _, taken := seen[candidate]; !taken {
			break
		}
		candidate = name + "_" + strconv.Itoa(n)
	}
	seen[candidate] = struct{}{}
	return candidate
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
