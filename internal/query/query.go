package query

import (
	"context"
	"strings"
	"time"
)

// Statement is a single SQL statement as produced by generation. It is
// opaque to the executor until it passes CheckStatement.
type Statement struct {
	Text string
	// RowLimit caps the rows of this statement. The service limit still applies.
	RowLimit int
}

type Result struct {
	Columns  []string
	Rows     [][]string
	Duration time.Duration
}

func (r Result) Empty() bool {
	return len(r.Rows) == 0
}

const (
	ValueSeparator = ", "
	RowSeparator   = "; "
)

// Text renders rows in result order: values joined by ", ", rows by "; ".
// A "; " inside a value is written as ", " so the text splits back into
// exactly the original rows.
func (r Result) Text() string {
	if len(r.Rows) == 0 {
		return ""
	}
	lines := make([]string, 0, len(r.Rows))
	values := make([]string, 0)
	for _, row := range r.Rows {
		values = values[:0]
		for _, value := range row {
			values = append(values, strings.ReplaceAll(value, RowSeparator, ValueSeparator))
		}
		lines = append(lines, strings.Join(values, ValueSeparator))
	}
	return strings.Join(lines, RowSeparator)
}

type Executor interface {
	Execute(ctx context.Context, statement Statement) (Result, error)
}
