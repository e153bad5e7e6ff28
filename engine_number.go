package atree

import (
	"cmp"

	"github.com/tidwall/btree"
)

type numEntry[T any] struct {
	key T
	ids []NodeID
}

func newNumberEngine[T any](get func(Value) T, compare func(a, b T) int) MatchingEngine {
	less := func(a, b *numEntry[T]) bool {
		return compare(a.key, b.key) < 0
	}
	return &numbers[T]{
		get:     get,
		compare: compare,
		eq:      btree.NewBTreeG(less),
		lt:      btree.NewBTreeG(less),
		lte:     btree.NewBTreeG(less),
		gt:      btree.NewBTreeG(less),
		gte:     btree.NewBTreeG(less),
	}
}

// numbers matches integer and decimal predicates.  Each operator has its own
// b-tree keyed by literal, so that a single range scan from the event's value
// finds every satisfied predicate:  for `x < L` we need every L > x, which is
// an ascending scan from x.
//
// Set membership (`x in [1, 2, 3]`) is stored in the equality tree under
// every element of the set.
type numbers[T any] struct {
	get     func(Value) T
	compare func(a, b T) int

	eq  *btree.BTreeG[*numEntry[T]]
	lt  *btree.BTreeG[*numEntry[T]]
	lte *btree.BTreeG[*numEntry[T]]
	gt  *btree.BTreeG[*numEntry[T]]
	gte *btree.BTreeG[*numEntry[T]]

	size int
}

func (n *numbers[T]) Type() EngineType {
	return EngineTypeBTree
}

func (n *numbers[T]) tree(op Operator) *btree.BTreeG[*numEntry[T]] {
	switch op {
	case OpEq, OpIn:
		return n.eq
	case OpLt:
		return n.lt
	case OpLe:
		return n.lte
	case OpGt:
		return n.gt
	case OpGe:
		return n.gte
	default:
		return nil
	}
}

func (n *numbers[T]) Add(id NodeID, p *Predicate) error {
	tree := n.tree(p.Operator)
	if tree == nil {
		return errInvalidOperator(p, n.Type())
	}
	for _, lit := range literals(p) {
		key := n.get(lit)
		if item, ok := tree.Get(&numEntry[T]{key: key}); ok {
			item.ids = append(item.ids, id)
			continue
		}
		tree.Set(&numEntry[T]{key: key, ids: []NodeID{id}})
	}
	n.size++
	return nil
}

func (n *numbers[T]) Remove(id NodeID, p *Predicate) error {
	tree := n.tree(p.Operator)
	if tree == nil {
		return errInvalidOperator(p, n.Type())
	}
	for _, lit := range literals(p) {
		pivot := &numEntry[T]{key: n.get(lit)}
		item, ok := tree.Get(pivot)
		if !ok {
			return errNotFound(id, p)
		}
		if item.ids, ok = removeID(item.ids, id); !ok {
			return errNotFound(id, p)
		}
		if len(item.ids) == 0 {
			tree.Delete(pivot)
		}
	}
	n.size--
	return nil
}

func (n *numbers[T]) Match(v Value, fn func(NodeID)) {
	key := n.get(v)
	pivot := &numEntry[T]{key: key}

	if item, ok := n.eq.Get(pivot); ok {
		emit(item.ids, fn)
	}

	// Literals strictly greater than the value satisfy `x < L`.
	n.lt.Ascend(pivot, func(item *numEntry[T]) bool {
		if n.compare(item.key, key) != 0 {
			emit(item.ids, fn)
		}
		return true
	})
	n.lte.Ascend(pivot, func(item *numEntry[T]) bool {
		emit(item.ids, fn)
		return true
	})
	// Literals strictly less than the value satisfy `x > L`.
	n.gt.Descend(pivot, func(item *numEntry[T]) bool {
		if n.compare(item.key, key) != 0 {
			emit(item.ids, fn)
		}
		return true
	})
	n.gte.Descend(pivot, func(item *numEntry[T]) bool {
		emit(item.ids, fn)
		return true
	})
}

func (n *numbers[T]) Len() int {
	return n.size
}

// literals returns the literals a predicate is indexed under.
func literals(p *Predicate) []Value {
	if p.Operator == OpIn {
		return p.Set
	}
	return []Value{p.Literal}
}

func emit(ids []NodeID, fn func(NodeID)) {
	for _, id := range ids {
		fn(id)
	}
}

func compareInt(a, b int64) int {
	return cmp.Compare(a, b)
}
