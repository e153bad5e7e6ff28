// Package atree implements a content-based matching index:  many boolean
// subscriptions are registered against a fixed schema of typed attributes,
// and each incoming event is matched against all of them at once.
//
// Subscriptions share structure.  Every predicate (eg. `country == "US"`) and
// every connective over the same operands is stored once no matter how many
// subscriptions use it, and searching only evaluates predicates over the
// attributes an event actually defines.
package atree

import (
	"context"
	"sync"
	"time"
)

// Evaluable represents a subscription which can be added to an index.
type Evaluable interface {
	// Identifier returns the subscription's caller-chosen identifier.
	Identifier() uint64
	// Expression returns the subscription's expression as a raw string.
	Expression() string
}

// Index stores subscriptions and matches events against them.
//
// An Index is safe for concurrent use.  Inserts and deletes are serialized
// and exclude searches; searches run concurrently with each other.
type Index struct {
	lock *sync.RWMutex

	schema   *Schema
	graph    *graph
	compiler *cachingCompiler
	opts     options
	closed   bool
}

// Stats reports the size of an index.
type Stats struct {
	// Subscriptions is the number of registered subscriptions.
	Subscriptions int
	// Nodes is the number of live predicate and connective nodes.
	Nodes int
	// Predicates is the number of predicate nodes stored in matching engines.
	Predicates int

	ParseCacheHits   int64
	ParseCacheMisses int64
}

// New creates an empty index over the given schema.
func New(schema *Schema, opts ...Option) (*Index, error) {
	if schema == nil {
		return nil, schemaError("", "schema is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	env, err := celEnv()
	if err != nil {
		return nil, err
	}

	return &Index{
		lock:     &sync.RWMutex{},
		schema:   schema,
		graph:    newGraph(schema),
		compiler: newCachingCompiler(env, o.parseCacheSize),
		opts:     o,
	}, nil
}

// Schema returns the index's schema.
func (i *Index) Schema() *Schema {
	return i.schema
}

// Compile compiles an expression against the index's schema, using the
// index's parse cache.
func (i *Index) Compile(expr string) (*Expression, error) {
	// The read lock is held while compiling so that Close can't stop the
	// parse cache under an in-flight compile.
	i.lock.RLock()
	defer i.lock.RUnlock()
	if i.closed {
		return nil, ErrClosed
	}
	return compile(i.compiler, i.schema, expr)
}

// Insert compiles expr and binds it to the subscription id, replacing any
// expression already bound to id.  If compilation fails the index is left
// unchanged.
func (i *Index) Insert(ctx context.Context, id uint64, expr string) error {
	start := time.Now()
	compiled, err := i.Compile(expr)
	if err != nil {
		i.opts.logger.LogInsert(ctx, id, 0, err)
		i.opts.metricsCollector.RecordInsert(time.Since(start), 0, err)
		return err
	}
	return i.insert(ctx, start, id, compiled)
}

// InsertExpression binds an already compiled expression to the subscription
// id.  The expression must have been compiled against the index's schema.
func (i *Index) InsertExpression(ctx context.Context, id uint64, expr *Expression) error {
	return i.insert(ctx, time.Now(), id, expr)
}

func (i *Index) insert(ctx context.Context, start time.Time, id uint64, expr *Expression) error {
	i.lock.Lock()
	err := i.insertLocked(id, expr)
	nodes := 0
	if i.graph != nil {
		nodes = i.graph.nodeCount()
	}
	i.lock.Unlock()

	i.opts.logger.LogInsert(ctx, id, nodes, err)
	i.opts.metricsCollector.RecordInsert(time.Since(start), nodes, err)
	return err
}

func (i *Index) insertLocked(id uint64, expr *Expression) error {
	if i.closed {
		return ErrClosed
	}
	if expr == nil || expr.Root == nil {
		return parseError("expression is empty")
	}
	if expr.schema != i.schema {
		return ErrSchemaMismatch
	}
	return i.graph.insert(id, expr)
}

// Add inserts the given Evaluable.
func (i *Index) Add(ctx context.Context, eval Evaluable) error {
	return i.Insert(ctx, eval.Identifier(), eval.Expression())
}

// Delete removes a subscription, reclaiming every node no other subscription
// uses.  Deleting an unknown id, or deleting from a closed index, does
// nothing.  It returns whether a subscription was removed.
func (i *Index) Delete(ctx context.Context, id uint64) bool {
	start := time.Now()

	i.lock.Lock()
	var (
		found bool
		nodes int
	)
	if !i.closed {
		found = i.graph.remove(id)
		nodes = i.graph.nodeCount()
	}
	i.lock.Unlock()

	i.opts.logger.LogDelete(ctx, id, found, nodes)
	i.opts.metricsCollector.RecordDelete(time.Since(start), found, nodes)
	return found
}

// Remove deletes the given Evaluable.
func (i *Index) Remove(ctx context.Context, eval Evaluable) bool {
	return i.Delete(ctx, eval.Identifier())
}

// Has returns whether a subscription with the given id exists.
func (i *Index) Has(id uint64) bool {
	i.lock.RLock()
	defer i.lock.RUnlock()
	if i.closed {
		return false
	}
	_, ok := i.graph.roots[id]
	return ok
}

// Len returns the number of subscriptions.
func (i *Index) Len() int {
	i.lock.RLock()
	defer i.lock.RUnlock()
	if i.closed {
		return 0
	}
	return len(i.graph.roots)
}

// RefCount returns the reference count of a subscription's root node:  the
// number of parent nodes plus the number of subscriptions rooted there.  It
// returns zero for unknown subscriptions.
func (i *Index) RefCount(id uint64) int {
	i.lock.RLock()
	defer i.lock.RUnlock()
	if i.closed {
		return 0
	}
	return i.graph.refCount(id)
}

// Stats returns the current size of the index.
func (i *Index) Stats() Stats {
	i.lock.RLock()
	defer i.lock.RUnlock()

	s := Stats{
		ParseCacheHits:   i.compiler.Hits(),
		ParseCacheMisses: i.compiler.Misses(),
	}
	if i.closed {
		return s
	}
	s.Subscriptions = len(i.graph.roots)
	s.Nodes = i.graph.nodeCount()
	for _, a := range i.graph.attrs {
		s.Predicates += a.engine.Len()
	}
	return s
}

// NewEventBuilder returns a builder for events matched by this index.
func (i *Index) NewEventBuilder() *EventBuilder {
	return NewEventBuilder(i.schema)
}

// Close releases the index's storage and stops its parse cache.  Any later
// operation fails with ErrClosed, except Delete which does nothing.
func (i *Index) Close() error {
	i.lock.Lock()
	defer i.lock.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	i.graph = nil
	i.compiler.Stop()
	return nil
}
