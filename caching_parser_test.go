package atree

import (
	"testing"

	"github.com/google/cel-go/cel"
	"github.com/stretchr/testify/require"
)

func newTestCompiler(t *testing.T, size int64) *cachingCompiler {
	t.Helper()
	env, err := celEnv()
	require.NoError(t, err)
	c := newCachingCompiler(env, size)
	t.Cleanup(c.Stop)
	return c
}

func TestCachingCompiler_CachesSame(t *testing.T) {
	c := newTestCompiler(t, 100)

	a := `country == "cache"`
	b := `region == "cache"`

	var (
		prevAST  *cel.Ast
		prevVars LiftedArgs
	)

	t.Run("With an uncached expression", func(t *testing.T) {
		var err error
		prevAST, prevVars, err = c.Compile(a)
		require.NoError(t, err)
		require.NotNil(t, prevAST)
		require.NotNil(t, prevVars)
		require.EqualValues(t, 0, c.Hits())
		require.EqualValues(t, 1, c.Misses())
	})

	t.Run("With a cached expression", func(t *testing.T) {
		ast, vars, err := c.Compile(a)
		require.NoError(t, err)
		require.Same(t, prevAST, ast)
		require.Equal(t, prevVars, vars)
		require.EqualValues(t, 1, c.Hits())
		require.EqualValues(t, 1, c.Misses())
	})

	t.Run("With another uncached expression", func(t *testing.T) {
		_, _, err := c.Compile(b)
		require.NoError(t, err)
		// This misses the cache, as the attribute has changed - not the
		// literals.
		require.EqualValues(t, 1, c.Hits())
		require.EqualValues(t, 2, c.Misses())
	})
}

func TestCachingCompiler_CacheIgnoresLiterals(t *testing.T) {
	c := newTestCompiler(t, 100)

	a := `country == "literal-a" && age >= 18`
	b := `country == 'literal-b' && age >= 21`

	astA, varsA, err := c.Compile(a)
	require.NoError(t, err)
	require.EqualValues(t, 1, c.Misses())

	t.Run("It shares the AST when only literals differ", func(t *testing.T) {
		astB, varsB, err := c.Compile(b)
		require.NoError(t, err)
		require.Same(t, astA, astB)
		require.EqualValues(t, 1, c.Hits())
		require.EqualValues(t, 1, c.Misses())

		// Each expression keeps its own literals.
		litA, _ := varsA.Get("v0")
		litB, _ := varsB.Get("v0")
		require.Equal(t, `"literal-a"`, litA.text)
		require.Equal(t, `'literal-b'`, litB.text)
	})
}

func TestCachingCompiler_Errors(t *testing.T) {
	c := newTestCompiler(t, 100)

	t.Run("It returns parse errors", func(t *testing.T) {
		_, _, err := c.Compile(`country ==`)
		require.ErrorIs(t, err, ErrParse)
		require.EqualValues(t, 1, c.Misses())
	})

	t.Run("It caches parse errors", func(t *testing.T) {
		_, _, err := c.Compile(`country ==`)
		require.ErrorIs(t, err, ErrParse)
		require.EqualValues(t, 1, c.Hits())
		require.EqualValues(t, 1, c.Misses())
	})
}

func TestCachingCompiler_Disabled(t *testing.T) {
	c := newTestCompiler(t, 0)

	for n := 0; n < 3; n++ {
		_, _, err := c.Compile(`country == "US"`)
		require.NoError(t, err)
	}
	require.EqualValues(t, 0, c.Hits())
	require.EqualValues(t, 3, c.Misses())
}
