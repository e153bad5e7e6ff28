package atree

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/karlseguin/ccache/v2"
)

// cacheTTL is how long a parsed AST stays in the cache.  Entries are usually
// evicted by size well before this.
const cacheTTL = 24 * time.Hour

var (
	defaultEnv     *cel.Env
	defaultEnvErr  error
	defaultEnvOnce sync.Once
)

// celEnv returns the shared CEL environment used for parsing.  Expressions are
// only ever parsed, never type-checked by CEL, so no variables are declared:
// attribute resolution happens against the schema.
func celEnv() (*cel.Env, error) {
	defaultEnvOnce.Do(func() {
		defaultEnv, defaultEnvErr = cel.NewEnv()
	})
	return defaultEnv, defaultEnvErr
}

// newCachingCompiler returns a compiler which lifts literals out of the
// expression as variables and caches parsed ASTs keyed by the lifted
// expression, so that `a == "x"` and `a == "y"` are only parsed once.  A size
// of zero disables caching.
func newCachingCompiler(env *cel.Env, size int64) *cachingCompiler {
	c := &cachingCompiler{env: env}
	if size > 0 {
		c.cache = ccache.New(ccache.Configure().MaxSize(size))
	}
	return c
}

type cachingCompiler struct {
	// cache is a cache of parsed expressions, keyed by lifted expression.
	cache *ccache.Cache

	env *cel.Env

	hits   int64
	misses int64
}

type parsedCelExpr struct {
	Expr   string
	AST    *cel.Ast
	Issues *cel.Issues
}

// Compile lifts literals from expr and parses the result, returning the CEL
// AST along with the lifted literals.
func (c *cachingCompiler) Compile(expr string) (*cel.Ast, LiftedArgs, error) {
	lifted, vars, err := liftLiterals(expr)
	if err != nil {
		return nil, nil, err
	}

	if c.cache != nil {
		if item := c.cache.Get(lifted); item != nil && !item.Expired() {
			atomic.AddInt64(&c.hits, 1)
			p := item.Value().(parsedCelExpr)
			if p.Issues != nil && p.Issues.Err() != nil {
				return nil, nil, parseError("%s", p.Issues.Err())
			}
			return p.AST, vars, nil
		}
	}

	ast, issues := c.env.Parse(lifted)
	atomic.AddInt64(&c.misses, 1)

	if c.cache != nil {
		c.cache.Set(lifted, parsedCelExpr{
			Expr:   lifted,
			AST:    ast,
			Issues: issues,
		}, cacheTTL)
	}

	if issues != nil && issues.Err() != nil {
		return nil, nil, parseError("%s", issues.Err())
	}
	return ast, vars, nil
}

func (c *cachingCompiler) Hits() int64 {
	return atomic.LoadInt64(&c.hits)
}

func (c *cachingCompiler) Misses() int64 {
	return atomic.LoadInt64(&c.misses)
}

// Stop stops the cache's background worker.
func (c *cachingCompiler) Stop() {
	if c.cache != nil {
		c.cache.Stop()
	}
}
