package harness

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/oakmere/addrmatch/internal/engine"
)

// encodeRow renders one result row as a canonical comparison key. Strings
// are NFC-normalised so byte-different but canonically equal Unicode (a
// real hazard in free-text address data) compares equal; NULL is encoded
// distinctly from the string "NULL".
func encodeRow(row []any) string {
	cells := make([]string, len(row))
	for i, v := range row {
		cells[i] = encodeValue(v)
	}
	return strings.Join(cells, "\x1f")
}

func encodeValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "\x00"
	case []byte:
		return "s:" + norm.NFC.String(string(x))
	case string:
		return "s:" + norm.NFC.String(x)
	case float32, float64:
		return fmt.Sprintf("f:%v", x)
	default:
		return fmt.Sprintf("v:%v", x)
	}
}

// canonicalRows encodes and sorts every row of a result, making the
// comparison order-insensitive.
func canonicalRows(res *engine.Result) []string {
	out := make([]string, len(res.Rows))
	for i, row := range res.Rows {
		out[i] = encodeRow(row)
	}
	sort.Strings(out)
	return out
}
