package atree

func newListEngine[K comparable](elem func(Value) K, items func(Value) []K) MatchingEngine {
	return &listLookup[K]{
		elem:      elem,
		items:     items,
		contains:  map[K][]NodeID{},
		oneOf:     map[K][]NodeID{},
		allOf:     map[K][]NodeID{},
		allOfSize: map[NodeID]int{},
	}
}

// listLookup matches predicates over list attributes.  Each predicate is
// indexed under every element of its literal set, so that matching iterates
// over the event's elements rather than over predicates.
type listLookup[K comparable] struct {
	elem  func(Value) K
	items func(Value) []K

	// contains maps an element to `elem in attr` predicates.
	contains map[K][]NodeID
	// oneOf maps an element to every one_of predicate containing it.
	oneOf map[K][]NodeID
	// allOf maps an element to every all_of predicate containing it, and
	// allOfSize records how many distinct elements each requires.
	allOf     map[K][]NodeID
	allOfSize map[NodeID]int
	// vacuous holds all_of predicates over the empty set, which every list
	// satisfies.
	vacuous []NodeID
	empty   []NodeID

	size int
}

func (l *listLookup[K]) Type() EngineType {
	return EngineTypeList
}

func (l *listLookup[K]) Add(id NodeID, p *Predicate) error {
	switch p.Operator {
	case OpContains:
		k := l.elem(p.Literal)
		l.contains[k] = append(l.contains[k], id)
	case OpOneOf:
		for _, v := range p.Set {
			k := l.elem(v)
			l.oneOf[k] = append(l.oneOf[k], id)
		}
	case OpAllOf:
		if len(p.Set) == 0 {
			l.vacuous = append(l.vacuous, id)
			break
		}
		for _, v := range p.Set {
			k := l.elem(v)
			l.allOf[k] = append(l.allOf[k], id)
		}
		l.allOfSize[id] = len(p.Set)
	case OpIsEmpty:
		l.empty = append(l.empty, id)
	default:
		return errInvalidOperator(p, l.Type())
	}
	l.size++
	return nil
}

func (l *listLookup[K]) Remove(id NodeID, p *Predicate) error {
	var ok bool
	switch p.Operator {
	case OpContains:
		ok = removeFromMap(l.contains, l.elem(p.Literal), id)
	case OpOneOf:
		ok = true
		for _, v := range p.Set {
			ok = removeFromMap(l.oneOf, l.elem(v), id) && ok
		}
	case OpAllOf:
		if len(p.Set) == 0 {
			l.vacuous, ok = removeID(l.vacuous, id)
			break
		}
		ok = true
		for _, v := range p.Set {
			ok = removeFromMap(l.allOf, l.elem(v), id) && ok
		}
		delete(l.allOfSize, id)
	case OpIsEmpty:
		l.empty, ok = removeID(l.empty, id)
	default:
		return errInvalidOperator(p, l.Type())
	}
	if !ok {
		return errNotFound(id, p)
	}
	l.size--
	return nil
}

func (l *listLookup[K]) Match(v Value, fn func(NodeID)) {
	items := l.items(v)

	emit(l.vacuous, fn)
	if len(items) == 0 {
		emit(l.empty, fn)
		return
	}

	// Events may repeat elements; each distinct element is only counted once.
	seen := make(map[K]struct{}, len(items))
	var (
		oneOf map[NodeID]struct{}
		allOf map[NodeID]int
	)

	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}

		emit(l.contains[item], fn)

		for _, id := range l.oneOf[item] {
			if oneOf == nil {
				oneOf = map[NodeID]struct{}{}
			}
			if _, ok := oneOf[id]; ok {
				continue
			}
			oneOf[id] = struct{}{}
			fn(id)
		}

		for _, id := range l.allOf[item] {
			if allOf == nil {
				allOf = map[NodeID]int{}
			}
			allOf[id]++
			if allOf[id] == l.allOfSize[id] {
				fn(id)
			}
		}
	}
}

func (l *listLookup[K]) Len() int {
	return l.size
}

func removeFromMap[K comparable](m map[K][]NodeID, k K, id NodeID) bool {
	ids, ok := removeID(m[k], id)
	if !ok {
		return false
	}
	if len(ids) == 0 {
		delete(m, k)
		return true
	}
	m[k] = ids
	return true
}
