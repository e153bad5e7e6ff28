package atree

import (
	"fmt"
	"slices"
)

// EngineType is the kind of leaf matcher used for an attribute.
type EngineType int

const (
	EngineTypeNone EngineType = iota

	EngineTypeBool
	EngineTypeBTree
	EngineTypeART
	EngineTypeList
)

func (e EngineType) String() string {
	switch e {
	case EngineTypeBool:
		return "bool"
	case EngineTypeBTree:
		return "btree"
	case EngineTypeART:
		return "art"
	case EngineTypeList:
		return "list"
	default:
		return "none"
	}
}

// MatchingEngine represents an engine (such as a b-tree, radix trie, or
// simple hash map) which matches a predicate over many expressions.  Each
// attribute in a schema has exactly one engine, chosen by the attribute's
// type.
//
// Engines are only mutated with the index's write lock held.  Match may be
// called concurrently.
type MatchingEngine interface {
	// Type returns the EngineType.
	Type() EngineType
	// Add registers a predicate node.  Each node is added at most once.
	Add(id NodeID, p *Predicate) error
	// Remove removes a previously added predicate node.
	Remove(id NodeID, p *Predicate) error
	// Match calls fn for every registered predicate node satisfied by the
	// given, defined value.  fn is called at most once per node.
	Match(v Value, fn func(NodeID))
	// Len returns the number of registered predicate nodes.
	Len() int
}

// newEngine returns the matching engine for an attribute type.
func newEngine(t AttributeType) MatchingEngine {
	switch t {
	case TypeBoolean:
		return newBoolEngine()
	case TypeInteger:
		return newNumberEngine(func(v Value) int64 { return v.Int() }, compareInt)
	case TypeFloat:
		return newNumberEngine(func(v Value) Decimal { return v.Float() }, Decimal.Cmp)
	case TypeString:
		return newStringEngine()
	case TypeStringList:
		return newListEngine(
			func(v Value) string { return v.Str() },
			func(v Value) []string { return v.ss },
		)
	case TypeIntegerList:
		return newListEngine(
			func(v Value) int64 { return v.Int() },
			func(v Value) []int64 { return v.is },
		)
	}
	panic(fmt.Sprintf("atree: no engine for attribute type %d", t))
}

// removeID removes the first occurrence of id, preserving order.
func removeID(ids []NodeID, id NodeID) ([]NodeID, bool) {
	n := slices.Index(ids, id)
	if n < 0 {
		return ids, false
	}
	return slices.Delete(ids, n, n+1), true
}

func errNotFound(id NodeID, p *Predicate) error {
	return fmt.Errorf("%w: node %d (%s)", ErrExpressionPartNotFound, id, p)
}

func errInvalidOperator(p *Predicate, t EngineType) error {
	return fmt.Errorf("%w: %s can't be stored in a %s engine", ErrInvalidType, p.Operator, t)
}
