package atree

func newBoolEngine() MatchingEngine {
	return &boolEngine{}
}

// boolEngine matches boolean equality.  There are only two possible literals,
// so predicates are kept in two lists indexed by literal.
type boolEngine struct {
	ids [2][]NodeID
}

func (b *boolEngine) Type() EngineType {
	return EngineTypeBool
}

func (b *boolEngine) Add(id NodeID, p *Predicate) error {
	if p.Operator != OpEq {
		return errInvalidOperator(p, b.Type())
	}
	n := boolInt(p.Literal.Bool())
	b.ids[n] = append(b.ids[n], id)
	return nil
}

func (b *boolEngine) Remove(id NodeID, p *Predicate) error {
	n := boolInt(p.Literal.Bool())
	ids, ok := removeID(b.ids[n], id)
	if !ok {
		return errNotFound(id, p)
	}
	b.ids[n] = ids
	return nil
}

func (b *boolEngine) Match(v Value, fn func(NodeID)) {
	for _, id := range b.ids[boolInt(v.Bool())] {
		fn(id)
	}
}

func (b *boolEngine) Len() int {
	return len(b.ids[0]) + len(b.ids[1])
}
