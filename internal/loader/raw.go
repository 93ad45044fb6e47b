package loader

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
)

// RawExample is one labeled sentence as it appears in the raw JSON files.
// Label holds the raw value: -1, 0 or 1 for the disjoint dataset, 0 or 1 for
// CLEF.
type RawExample struct {
	Text  string
	Label int
}

// RawData replaces the files named by the configuration. Both slices must be
// set for the override to apply.
type RawData struct {
	Train []RawExample
	Eval  []RawExample
}

type jsonExample struct {
	Label *int    `json:"label"`
	Text  *string `json:"text"`
}

// parseJSON reads a JSON array of {label, text} objects. Missing fields and
// labels outside {-1, 0, 1} are fatal.
func parseJSON(path string) ([]RawExample, [3]int, error) {
	var counts [3]int
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, counts, errors.Wrapf(err, "loader: read %s", path)
	}
	var items []jsonExample
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, counts, errors.Wrapf(ErrMalformedInput, "%s: %v", path, err)
	}

	out := make([]RawExample, 0, len(items))
	for i, it := range items {
		if it.Label == nil || it.Text == nil {
			return nil, counts, errors.Wrapf(ErrMalformedInput, "%s: element %d lacks label or text", path, i)
		}
		lab := *it.Label
		if lab < -1 || lab > 1 {
			return nil, counts, errors.Wrapf(ErrMalformedInput, "%s: element %d has label %d", path, i, lab)
		}
		counts[lab+1]++
		out = append(out, RawExample{Text: *it.Text, Label: lab})
	}
	return out, counts, nil
}

type csvRow struct {
	Text  string `csv:"text"`
	Label string `csv:"label"`
}

// parseCSV reads a CLEF file with text and label columns.
func parseCSV(path string) ([]RawExample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "loader: open %s", path)
	}
	defer f.Close()

	var rows []*csvRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, errors.Wrapf(ErrMalformedInput, "%s: %v", path, err)
	}

	out := make([]RawExample, 0, len(rows))
	for i, r := range rows {
		lab, err := strconv.Atoi(strings.TrimSpace(r.Label))
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedInput, "%s: row %d has label %q", path, i+1, r.Label)
		}
		if lab != 0 && lab != 1 {
			return nil, errors.Wrapf(ErrMalformedInput, "%s: row %d has label %d", path, i+1, lab)
		}
		out = append(out, RawExample{Text: r.Text, Label: lab})
	}
	return out, nil
}

// ReadRaw reads a raw labeled file, JSON or CSV by extension, without
// remapping labels.
func ReadRaw(path string) ([]RawExample, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return parseCSV(path)
	}
	out, _, err := parseJSON(path)
	return out, err
}
