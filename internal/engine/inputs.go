package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/oakmere/addrmatch/internal/plan"
)

// Bind creates a temp view for each input binding so rendered plans can
// reference bindings by bare name regardless of where the data lives. The
// relation is spliced in verbatim; CSVRelation and ParquetRelation build
// reader expressions for file-backed inputs.
func (s *Session) Bind(ctx context.Context, bindings []plan.InputBinding) error {
	for _, b := range bindings {
		stmt := fmt.Sprintf("CREATE OR REPLACE TEMP VIEW %s AS SELECT * FROM %s", b.Name, b.Relation)
		if err := s.Exec(ctx, stmt); err != nil {
			return &Error{
				Code:    ErrCodeBinding,
				Message: fmt.Sprintf("bind input %q to %s", b.Name, b.Relation),
				Err:     err,
			}
		}
		slog.Debug("input bound", "run_id", s.runID, "name", b.Name, "relation", b.Relation)
	}
	return nil
}

// CSVRelation builds a read_csv relation expression for an input binding.
// Column types are inferred by the reader.
func CSVRelation(path string) string {
	return fmt.Sprintf("read_csv(%s, header = true)", quotePath(path))
}

// ParquetRelation builds a read_parquet relation expression for an input
// binding.
func ParquetRelation(path string) string {
	return fmt.Sprintf("read_parquet(%s)", quotePath(path))
}

func quotePath(path string) string {
	return "'" + strings.ReplaceAll(path, "'", "''") + "'"
}
