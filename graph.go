package atree

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// NodeID addresses a node within an index's graph.  IDs of removed nodes are
// reused.
type NodeID uint32

type graphNode struct {
	kind NodeKind
	pred *Predicate
	// children is sorted by ID and holds no duplicates.
	children []NodeID
	parents  []NodeID
	// refs is the number of parent edges plus the number of subscriptions
	// rooted at the node.  A node is removed when it drops to zero.
	refs int
	// subs are the subscriptions rooted at this node.
	subs []uint64
	key  string
	hash uint64
	live bool
}

// attrIndex holds the per-attribute structures used when searching.
type attrIndex struct {
	engine MatchingEngine
	// negations maps each predicate node to the NOT node wrapping it, if any.
	negations map[NodeID]NodeID
}

// graph is a directed acyclic graph of predicates and connectives shared by
// every subscription in an index.  Structurally identical subexpressions are
// stored once:  nodes are canonicalised by key, and a subexpression used by
// many subscriptions is referenced many times.
//
// NOT nodes only ever wrap a predicate.  Negations are pushed towards the
// leaves when lowering, and AND and OR children are flattened, sorted and
// deduplicated, so that `a && (b && c)`, `c && b && a` and `!(!a || !b || !c)`
// all share a single node.
//
// graph is not safe for concurrent mutation.  Concurrent reads are safe.
type graph struct {
	schema *Schema

	nodes []graphNode
	free  []NodeID
	live  int

	// table maps the xxhash of a node's key to the nodes with that hash.
	table map[uint64][]NodeID

	attrs []attrIndex

	// roots maps each subscription to its root node.
	roots map[uint64]NodeID
}

func newGraph(schema *Schema) *graph {
	g := &graph{
		schema: schema,
		table:  map[uint64][]NodeID{},
		attrs:  make([]attrIndex, schema.Len()),
		roots:  map[uint64]NodeID{},
	}
	for i := range g.attrs {
		g.attrs[i] = attrIndex{
			engine:    newEngine(schema.Attribute(i).Type),
			negations: map[NodeID]NodeID{},
		}
	}
	return g
}

// insert binds a subscription to a compiled expression, replacing any
// expression previously bound to the same id.
func (g *graph) insert(sub uint64, expr *Expression) error {
	root, err := g.lower(expr.Root, false)
	if err != nil {
		return err
	}

	// The new root is built before releasing the old one, so that nodes
	// shared between the two are never removed and recreated.
	if old, ok := g.roots[sub]; ok {
		g.unbind(sub, old)
	}
	g.roots[sub] = root
	n := &g.nodes[root]
	n.subs = append(n.subs, sub)
	return nil
}

// remove unbinds a subscription, reclaiming every node it alone used.  It
// returns false if the subscription doesn't exist.
func (g *graph) remove(sub uint64) bool {
	root, ok := g.roots[sub]
	if !ok {
		return false
	}
	delete(g.roots, sub)
	g.unbind(sub, root)
	return true
}

func (g *graph) unbind(sub uint64, root NodeID) {
	n := &g.nodes[root]
	if i := slices.Index(n.subs, sub); i >= 0 {
		n.subs = slices.Delete(n.subs, i, i+1)
	}
	g.release(root)
}

// lower adds the expression to the graph in negation normal form, returning
// its root with one reference acquired on behalf of the caller.
func (g *graph) lower(n *Node, negated bool) (NodeID, error) {
	switch n.Kind {
	case KindPredicate:
		id, err := g.acquirePredicate(n.Predicate)
		if err != nil || !negated {
			return id, err
		}
		return g.acquireNot(id, n.Predicate.Attribute), nil

	case KindNot:
		return g.lower(n.Children[0], !negated)

	case KindAnd, KindOr:
		kind := n.Kind
		if negated {
			// De Morgan.
			kind = flip(kind)
		}

		ids := make([]NodeID, 0, len(n.Children))
		for _, c := range n.Children {
			id, err := g.lower(c, negated)
			if err != nil {
				g.releaseAll(ids)
				return 0, err
			}
			child := &g.nodes[id]
			if child.kind != kind {
				ids = append(ids, id)
				continue
			}
			// Flatten nested connectives of the same kind, taking
			// references on the grandchildren before dropping the child.
			for _, gc := range child.children {
				g.nodes[gc].refs++
				ids = append(ids, gc)
			}
			g.release(id)
		}
		return g.acquireConnective(kind, ids), nil

	default:
		return 0, fmt.Errorf("unknown node kind %d", n.Kind)
	}
}

// acquirePredicate returns the node for a predicate, creating it if needed.
func (g *graph) acquirePredicate(p *Predicate) (NodeID, error) {
	key := "P|" + p.key()
	hash := xxhash.Sum64String(key)
	if id, ok := g.lookup(hash, key); ok {
		g.nodes[id].refs++
		return id, nil
	}

	id := g.alloc(graphNode{
		kind: KindPredicate,
		pred: p,
		refs: 1,
		key:  key,
		hash: hash,
		live: true,
	})
	if err := g.attrs[p.Attribute].engine.Add(id, p); err != nil {
		g.dealloc(id)
		return 0, err
	}
	return id, nil
}

// acquireNot returns the NOT node over a predicate node, consuming the
// caller's reference on the predicate.
func (g *graph) acquireNot(child NodeID, attr int) NodeID {
	key := "N|" + strconv.FormatUint(uint64(child), 10)
	hash := xxhash.Sum64String(key)
	if id, ok := g.lookup(hash, key); ok {
		g.release(child)
		g.nodes[id].refs++
		return id
	}

	id := g.alloc(graphNode{
		kind:     KindNot,
		children: []NodeID{child},
		refs:     1,
		key:      key,
		hash:     hash,
		live:     true,
	})
	g.nodes[child].parents = append(g.nodes[child].parents, id)
	g.attrs[attr].negations[child] = id
	return id
}

// acquireConnective returns the AND or OR node over children, consuming the
// caller's reference on each child.
func (g *graph) acquireConnective(kind NodeKind, children []NodeID) NodeID {
	slices.Sort(children)
	uniq := children[:0]
	for i, id := range children {
		if i > 0 && id == children[i-1] {
			// a && a is a.
			g.release(id)
			continue
		}
		uniq = append(uniq, id)
	}
	children = uniq

	if len(children) == 1 {
		return children[0]
	}

	key := connectiveKey(kind, children)
	hash := xxhash.Sum64String(key)
	if id, ok := g.lookup(hash, key); ok {
		g.releaseAll(children)
		g.nodes[id].refs++
		return id
	}

	id := g.alloc(graphNode{
		kind:     kind,
		children: slices.Clone(children),
		refs:     1,
		key:      key,
		hash:     hash,
		live:     true,
	})
	for _, c := range children {
		g.nodes[c].parents = append(g.nodes[c].parents, id)
	}
	return id
}

// release drops a reference to a node, removing it and releasing its
// children once unreferenced.
func (g *graph) release(id NodeID) {
	n := &g.nodes[id]
	n.refs--
	if n.refs > 0 {
		return
	}

	switch n.kind {
	case KindPredicate:
		// Predicates are only added to engines with validated operators, so
		// removal can't fail unless the graph is corrupt.
		if err := g.attrs[n.pred.Attribute].engine.Remove(id, n.pred); err != nil {
			panic(err)
		}
	case KindNot:
		child := n.children[0]
		delete(g.attrs[g.nodes[child].pred.Attribute].negations, child)
	}

	children := n.children
	g.dealloc(id)

	for _, c := range children {
		cn := &g.nodes[c]
		if i := slices.Index(cn.parents, id); i >= 0 {
			cn.parents = slices.Delete(cn.parents, i, i+1)
		}
		g.release(c)
	}
}

func (g *graph) releaseAll(ids []NodeID) {
	for _, id := range ids {
		g.release(id)
	}
}

func (g *graph) alloc(n graphNode) NodeID {
	var id NodeID
	if len(g.free) > 0 {
		id = g.free[len(g.free)-1]
		g.free = g.free[:len(g.free)-1]
		g.nodes[id] = n
	} else {
		id = NodeID(len(g.nodes))
		g.nodes = append(g.nodes, n)
	}
	g.table[n.hash] = append(g.table[n.hash], id)
	g.live++
	return id
}

func (g *graph) dealloc(id NodeID) {
	g.unindex(id)
	g.nodes[id] = graphNode{}
	g.free = append(g.free, id)
	g.live--
}

func (g *graph) lookup(hash uint64, key string) (NodeID, bool) {
	for _, id := range g.table[hash] {
		if g.nodes[id].key == key {
			return id, true
		}
	}
	return 0, false
}

func (g *graph) unindex(id NodeID) {
	hash := g.nodes[id].hash
	ids, _ := removeID(g.table[hash], id)
	if len(ids) == 0 {
		delete(g.table, hash)
		return
	}
	g.table[hash] = ids
}

func (g *graph) nodeCount() int {
	return g.live
}

// refCount returns the reference count of the subscription's root node, or
// zero if the subscription doesn't exist.
func (g *graph) refCount(sub uint64) int {
	root, ok := g.roots[sub]
	if !ok {
		return 0
	}
	return g.nodes[root].refs
}

func (g *graph) label(id NodeID) string {
	n := &g.nodes[id]
	switch n.kind {
	case KindPredicate:
		return n.pred.String()
	default:
		return n.kind.String()
	}
}

func connectiveKey(kind NodeKind, children []NodeID) string {
	b := &strings.Builder{}
	if kind == KindAnd {
		b.WriteString("A|")
	} else {
		b.WriteString("O|")
	}
	for i, c := range children {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(c), 10))
	}
	return b.String()
}

func flip(k NodeKind) NodeKind {
	if k == KindAnd {
		return KindOr
	}
	return KindAnd
}
