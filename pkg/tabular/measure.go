package tabular

import (
	"unicode/utf8"

	"github.com/ssargent/votable/pkg/codec"
)

// SizeStrings reads d once and sets ElementSize on string column specs that have none
// to the longest value found, at least 1. String arrays are always sized since their
// encoding needs a fixed string length. Scalar strings are sized only when fixed is
// set. It returns the number of rows read.
func SizeStrings(d Data, specs []codec.ColumnSpec, fixed bool) (int64, error) {
	var cols []int
	for i, s := range specs {
		if s.Class.Kind == codec.KindString && s.ElementSize <= 0 && (s.Class.Array || fixed) {
			cols = append(cols, i)
		}
	}
	if len(cols) == 0 && d.RowCount() >= 0 {
		return d.RowCount(), nil
	}

	seq, err := d.Rows()
	if err != nil {
		return 0, err
	}
	defer seq.Close()

	widths := make([]int, len(specs))
	var n int64
	for {
		ok, err := seq.Next()
		if err != nil {
			return n, err
		}
		if !ok {
			break
		}
		n++
		for _, i := range cols {
			v, err := seq.Cell(i)
			if err != nil {
				return n, err
			}
			switch s := v.(type) {
			case string:
				widths[i] = max(widths[i], utf8.RuneCountInString(s))
			case []string:
				for _, e := range s {
					widths[i] = max(widths[i], utf8.RuneCountInString(e))
				}
			}
		}
	}
	for _, i := range cols {
		specs[i].ElementSize = max(widths[i], 1)
	}
	return n, nil
}
