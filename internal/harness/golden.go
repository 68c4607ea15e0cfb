package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

// RunWithGolden executes a scenario, requires its equivalence properties to
// hold, and snapshots the rendered plan SQL under
// testdata/{scenario.Name}.golden. The snapshot pins rendering determinism:
// any change to aliasing, ordering or composition shows up as a golden
// diff.
//
// Regenerate snapshots with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, sc *Scenario) *Outcome {
	t.Helper()

	out, err := Run(context.Background(), sc)
	require.NoError(t, err)
	require.NoError(t, out.Verify())

	g := goldie.New(t)
	g.Assert(t, sc.Name, []byte(out.Plan.SQL))
	return out
}
