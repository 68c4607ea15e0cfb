package plan

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/oakmere/addrmatch/internal/stage"
)

func TestPipelineText(t *testing.T) {
	p, err := NewPipeline("exact_matching",
		[]InputBinding{{Name: "records", Relation: "records"}},
		[]stage.Stage{
			stage.MustSingle("restrict_canonical", "SELECT * FROM {input}",
				stage.WithMeta(stage.Meta{
					Description: "Restrict canonical addresses to observed postcodes",
					Tags:        []string{"exact_matching"},
				})),
			stage.MustNew("annotate", []stage.Fragment{
				{Name: "hits", SQL: "SELECT * FROM {input}"},
				{Name: "annotated", SQL: "SELECT * FROM {hits}"},
			},
				stage.WithMeta(stage.Meta{
					Description: "Annotate exact matches",
					DependsOn:   []string{"restrict_canonical"},
				}),
				stage.WithCheckpoint()),
		})
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "pipeline_text", []byte(p.Text()))
}
