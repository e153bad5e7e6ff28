package atree

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestIndex(t testing.TB, opts ...Option) *Index {
	t.Helper()
	idx, err := New(newTestSchema(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func rootOf(t *testing.T, idx *Index, sub uint64) NodeID {
	t.Helper()
	g, err := idx.Graph()
	require.NoError(t, err)
	root, ok := g.Roots[sub]
	require.True(t, ok)
	return root
}

func TestGraph_Sharing(t *testing.T) {
	ctx := context.Background()

	t.Run("It shares identical expressions", func(t *testing.T) {
		idx := newTestIndex(t)
		require.NoError(t, idx.Insert(ctx, 1, `country == "US" && age >= 18`))
		require.NoError(t, idx.Insert(ctx, 2, `country == "US" && age >= 18`))

		require.Equal(t, rootOf(t, idx, 1), rootOf(t, idx, 2))
		require.Equal(t, 2, idx.RefCount(1))
		require.Equal(t, 3, idx.Stats().Nodes)
		require.Equal(t, 2, idx.Stats().Predicates)
	})

	t.Run("It shares reordered operands", func(t *testing.T) {
		idx := newTestIndex(t)
		require.NoError(t, idx.Insert(ctx, 1, `country == "US" && age >= 18`))
		require.NoError(t, idx.Insert(ctx, 2, `18 <= age AND country = 'US'`))

		require.Equal(t, rootOf(t, idx, 1), rootOf(t, idx, 2))
		require.Equal(t, 2, idx.RefCount(2))
		require.Equal(t, 3, idx.Stats().Nodes)
	})

	t.Run("It shares predicates between different connectives", func(t *testing.T) {
		idx := newTestIndex(t)
		require.NoError(t, idx.Insert(ctx, 1, `country == "US" && age >= 18`))
		require.NoError(t, idx.Insert(ctx, 2, `country == "US"`))

		// The predicate is referenced by the AND and by subscription 2.
		require.Equal(t, 2, idx.RefCount(2))
		require.Equal(t, 1, idx.RefCount(1))
		require.Equal(t, 3, idx.Stats().Nodes)
	})

	t.Run("It flattens nested connectives", func(t *testing.T) {
		idx := newTestIndex(t)
		require.NoError(t, idx.Insert(ctx, 1, `private && (deleted && age > 1)`))
		require.NoError(t, idx.Insert(ctx, 2, `(private && deleted) && age > 1`))
		require.NoError(t, idx.Insert(ctx, 3, `age > 1 && deleted && private`))

		require.Equal(t, rootOf(t, idx, 1), rootOf(t, idx, 2))
		require.Equal(t, rootOf(t, idx, 1), rootOf(t, idx, 3))
		require.Equal(t, 4, idx.Stats().Nodes)
	})

	t.Run("It pushes negations to predicates", func(t *testing.T) {
		idx := newTestIndex(t)
		require.NoError(t, idx.Insert(ctx, 1, `!(private || deleted)`))
		require.NoError(t, idx.Insert(ctx, 2, `!private && !deleted`))
		require.NoError(t, idx.Insert(ctx, 3, `!(!private)`))
		require.NoError(t, idx.Insert(ctx, 4, `private`))

		require.Equal(t, rootOf(t, idx, 1), rootOf(t, idx, 2))
		require.Equal(t, rootOf(t, idx, 3), rootOf(t, idx, 4))
		// Two predicates, two negations and one AND.
		require.Equal(t, 5, idx.Stats().Nodes)

		g, err := idx.Graph()
		require.NoError(t, err)
		for _, n := range g.Nodes {
			if n.Kind != KindNot {
				continue
			}
			for _, e := range g.Edges {
				if e.From == n.ID {
					require.Equal(t, KindPredicate, g.Nodes[nodeIndex(g, e.To)].Kind)
				}
			}
		}
	})

	t.Run("It collapses duplicate operands", func(t *testing.T) {
		idx := newTestIndex(t)
		require.NoError(t, idx.Insert(ctx, 1, `private && private`))
		require.NoError(t, idx.Insert(ctx, 2, `private || (private && private)`))
		require.Equal(t, 1, idx.Stats().Nodes)
		require.Equal(t, rootOf(t, idx, 1), rootOf(t, idx, 2))
		require.Equal(t, 2, idx.RefCount(1))
	})

	t.Run("It stores tautologies as written", func(t *testing.T) {
		idx := newTestIndex(t)
		require.NoError(t, idx.Insert(ctx, 1, `private || !private`))
		require.Equal(t, 3, idx.Stats().Nodes)
	})
}

func nodeIndex(g Graph, id NodeID) int {
	for n, node := range g.Nodes {
		if node.ID == id {
			return n
		}
	}
	return -1
}

func TestGraph_Reclamation(t *testing.T) {
	ctx := context.Background()

	exprs := []string{
		`country == "US" && age >= 18`,
		`country == "US"`,
		`!(private || deleted) && price < 10.5`,
		`tags.all_of(["a", "b"]) || "c" in tags || tags.is_empty()`,
		`segments.none_of([1, 2]) && country in ["US", "CA"]`,
		`exchange_id != 1 || (age > 1 && age < 100)`,
	}

	t.Run("It reclaims every node", func(t *testing.T) {
		idx := newTestIndex(t)
		for n, expr := range exprs {
			require.NoError(t, idx.Insert(ctx, uint64(n), expr))
		}
		require.Equal(t, len(exprs), idx.Len())

		for n := range exprs {
			require.True(t, idx.Delete(ctx, uint64(n)))
		}

		stats := idx.Stats()
		require.Equal(t, 0, stats.Subscriptions)
		require.Equal(t, 0, stats.Nodes)
		require.Equal(t, 0, stats.Predicates)

		g := idx.graph
		require.Empty(t, g.table)
		for _, a := range g.attrs {
			require.Empty(t, a.negations)
		}
	})

	t.Run("It reclaims only unshared nodes", func(t *testing.T) {
		idx := newTestIndex(t)
		require.NoError(t, idx.Insert(ctx, 1, `country == "US" && age >= 18`))
		require.NoError(t, idx.Insert(ctx, 2, `country == "US"`))

		idx.Delete(ctx, 1)
		require.Equal(t, 1, idx.Stats().Nodes)
		require.Equal(t, 1, idx.RefCount(2))
	})

	t.Run("It reuses freed slots", func(t *testing.T) {
		idx := newTestIndex(t)
		require.NoError(t, idx.Insert(ctx, 1, `country == "US" && age >= 18`))
		idx.Delete(ctx, 1)
		require.NoError(t, idx.Insert(ctx, 2, `private || deleted`))
		require.LessOrEqual(t, len(idx.graph.nodes), 4)
	})
}

func TestGraph_Replace(t *testing.T) {
	ctx := context.Background()

	t.Run("It replaces the expression for an id", func(t *testing.T) {
		idx := newTestIndex(t)
		require.NoError(t, idx.Insert(ctx, 1, `country == "US"`))
		require.NoError(t, idx.Insert(ctx, 1, `age > 1`))
		require.Equal(t, 1, idx.Len())
		require.Equal(t, 1, idx.Stats().Nodes)
	})

	t.Run("It keeps nodes shared with the old expression", func(t *testing.T) {
		idx := newTestIndex(t)
		require.NoError(t, idx.Insert(ctx, 1, `country == "US" && age > 1`))
		require.NoError(t, idx.Insert(ctx, 1, `country == "US" && age > 2`))
		require.Equal(t, 3, idx.Stats().Nodes)
	})

	t.Run("It re-inserts the same expression", func(t *testing.T) {
		idx := newTestIndex(t)
		require.NoError(t, idx.Insert(ctx, 1, `country == "US" && age > 1`))
		require.NoError(t, idx.Insert(ctx, 1, `country == "US" && age > 1`))
		require.Equal(t, 3, idx.Stats().Nodes)
		require.Equal(t, 1, idx.RefCount(1))
	})

	t.Run("It leaves the index unchanged on failure", func(t *testing.T) {
		idx := newTestIndex(t)
		require.NoError(t, idx.Insert(ctx, 1, `country == "US"`))
		require.ErrorIs(t, idx.Insert(ctx, 1, `country == 1`), ErrType)
		require.ErrorIs(t, idx.Insert(ctx, 2, `country ==`), ErrParse)

		require.True(t, idx.Has(1))
		require.False(t, idx.Has(2))
		require.Equal(t, 1, idx.Stats().Nodes)
	})
}
