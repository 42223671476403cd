package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// LabelColumn is the header appended to annotated tables.
const LabelColumn = "cluster"

// WriteAnnotated writes every row of t followed by its cluster label.
// labels[i] < 0 leaves the label cell empty (row was not clustered).
func WriteAnnotated(w io.Writer, t *Table, labels []int) error {
	if len(labels) != t.Len() {
		return fmt.Errorf("labels length %d does not match %d rows", len(labels), t.Len())
	}

	seen := make(map[string]struct{}, len(t.Headers)+1)
	for _, h := range t.Headers {
		seen[h] = struct{}{}
	}
	header := append(append([]string{}, t.Headers...), UniqueName(LabelColumn, seen))

	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range t.Rows {
		label := ""
		if labels[i] >= 0 {
			label = strconv.Itoa(labels[i])
		}
		out := append(append(make([]string, 0, len(row)+1), row...), label)
		if err := writer.Write(out); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
