package atree

import (
	art "github.com/plar/go-adaptive-radix-tree"
)

func newStringEngine() MatchingEngine {
	return &artTree{
		Tree: art.New(),
	}
}

// artTree matches string equality and set membership using an adaptive radix
// tree keyed by literal.  Many predicates may share a literal, eg. a user may
// set up 3 matches for order ID "abc" combined with different conditions, so
// each leaf holds every predicate node for its key.
type artTree struct {
	art.Tree
	size int
}

// Leaf is the value stored for each key in the tree.
type Leaf struct {
	IDs []NodeID
}

func (a *artTree) Type() EngineType {
	return EngineTypeART
}

func (a *artTree) Add(id NodeID, p *Predicate) error {
	if p.Operator != OpEq && p.Operator != OpIn {
		return errInvalidOperator(p, a.Type())
	}

	for _, lit := range literals(p) {
		key := artKeyFromString(lit.Str())
		val, ok := a.Tree.Search(key)
		if !ok {
			a.Tree.Insert(key, art.Value(&Leaf{IDs: []NodeID{id}}))
			continue
		}
		leaf := val.(*Leaf)
		leaf.IDs = append(leaf.IDs, id)
	}
	a.size++
	return nil
}

func (a *artTree) Remove(id NodeID, p *Predicate) error {
	for _, lit := range literals(p) {
		key := artKeyFromString(lit.Str())
		val, ok := a.Tree.Search(key)
		if !ok {
			return errNotFound(id, p)
		}
		leaf := val.(*Leaf)
		if leaf.IDs, ok = removeID(leaf.IDs, id); !ok {
			return errNotFound(id, p)
		}
		if len(leaf.IDs) == 0 {
			a.Tree.Delete(key)
		}
	}
	a.size--
	return nil
}

func (a *artTree) Match(v Value, fn func(NodeID)) {
	val, ok := a.Tree.Search(artKeyFromString(v.Str()))
	if !ok {
		return
	}
	emit(val.(*Leaf).IDs, fn)
}

func (a *artTree) Len() int {
	return a.size
}

// artKeyFromString returns the tree key for a string.  Keys are prefixed so
// that the empty string is a valid, non-empty key.
func artKeyFromString(str string) art.Key {
	key := make(art.Key, 0, len(str)+1)
	key = append(key, '$')
	return append(key, str...)
}
