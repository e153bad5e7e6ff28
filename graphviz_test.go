package atree

import (
	"bytes"
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

func TestWriteGraphviz(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	require.NoError(t, idx.Insert(ctx, 1, `country == "US" && age >= 18`))
	require.NoError(t, idx.Insert(ctx, 2, `country == "US"`))

	buf := &bytes.Buffer{}
	require.NoError(t, idx.WriteGraphviz(buf))

	g := goldie.New(t)
	g.Assert(t, "graphviz", buf.Bytes())
}

func TestGraph(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	require.NoError(t, idx.Insert(ctx, 1, `country == "US" && age >= 18`))
	require.NoError(t, idx.Insert(ctx, 2, `country == "US"`))
	require.NoError(t, idx.Insert(ctx, 3, `country == "US"`))

	g, err := idx.Graph()
	require.NoError(t, err)
	require.Len(t, g.Nodes, 3)
	require.Len(t, g.Edges, 2)

	pred := g.Nodes[nodeIndex(g, g.Roots[2])]
	require.Equal(t, KindPredicate, pred.Kind)
	require.Equal(t, `country == "US"`, pred.Label)
	require.Equal(t, []uint64{2, 3}, pred.Subscriptions)
	require.Equal(t, 3, pred.RefCount)

	and := g.Nodes[nodeIndex(g, g.Roots[1])]
	require.Equal(t, KindAnd, and.Kind)
	require.Equal(t, "AND", and.Label)
	require.Equal(t, 1, and.RefCount)
}
