// Package export writes feature tables as CSV with the stable schema
// column ordering.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"histofeat/internal/features"
)

// Write emits one CSV row per region, keyed by the composite
// image_region key, with columns in schema order plus the ignore flag.
// Rows are sorted by key so repeated runs produce identical files.
func Write(w io.Writer, table map[string]*features.FeatureVector) error {
	cw := csv.NewWriter(w)

	header := append([]string{"key"}, features.FeatureNames()...)
	header = append(header, "ignore")
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	row := make([]string, 0, len(header))
	for _, key := range keys {
		v := table[key]
		row = row[:0]
		row = append(row, key)
		for _, value := range v.Values() {
			row = append(row, formatValue(value))
		}
		row = append(row, strconv.FormatBool(v.Ignored))
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %s: %w", key, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatValue(v any) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
