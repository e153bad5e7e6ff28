package atree

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
)

// Graph is a read-only snapshot of an index's shared graph.
type Graph struct {
	// Nodes are ordered by ID.
	Nodes []GraphNode
	Edges []GraphEdge
	// Roots maps each subscription to its root node.
	Roots map[uint64]NodeID
}

type GraphNode struct {
	ID       NodeID
	Kind     NodeKind
	Label    string
	RefCount int
	// Subscriptions are the subscriptions rooted at this node, in ascending
	// order.
	Subscriptions []uint64
}

// GraphEdge links a connective to one of its children.
type GraphEdge struct {
	From NodeID
	To   NodeID
}

// Graph returns a snapshot of the index's nodes and edges.
func (i *Index) Graph() (Graph, error) {
	i.lock.RLock()
	defer i.lock.RUnlock()
	if i.closed {
		return Graph{}, ErrClosed
	}

	g := i.graph
	out := Graph{Roots: maps.Clone(g.roots)}
	for n := range g.nodes {
		node := &g.nodes[n]
		if !node.live {
			continue
		}
		id := NodeID(n)
		subs := slices.Clone(node.subs)
		slices.Sort(subs)
		out.Nodes = append(out.Nodes, GraphNode{
			ID:            id,
			Kind:          node.kind,
			Label:         g.label(id),
			RefCount:      node.refs,
			Subscriptions: subs,
		})
		for _, c := range node.children {
			out.Edges = append(out.Edges, GraphEdge{From: id, To: c})
		}
	}
	return out, nil
}

var dotEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// WriteGraphviz renders the index's graph in the DOT language.  Output is
// deterministic:  nodes are written in ID order, followed by subscriptions in
// ID order.
func (i *Index) WriteGraphviz(w io.Writer) error {
	g, err := i.Graph()
	if err != nil {
		return err
	}

	edges := map[NodeID][]NodeID{}
	for _, e := range g.Edges {
		edges[e.From] = append(edges[e.From], e.To)
	}

	buf := &bytes.Buffer{}
	buf.WriteString("digraph atree {\n")
	for _, n := range g.Nodes {
		shape := "ellipse"
		if n.Kind == KindPredicate {
			shape = "box"
		}
		label := dotEscaper.Replace(fmt.Sprintf("%s\nrefs=%d", n.Label, n.RefCount))
		fmt.Fprintf(buf, "  n%d [shape=%s, label=\"%s\"];\n", n.ID, shape, label)
		for _, c := range edges[n.ID] {
			fmt.Fprintf(buf, "  n%d -> n%d;\n", n.ID, c)
		}
	}
	for _, sub := range slices.Sorted(maps.Keys(g.Roots)) {
		fmt.Fprintf(buf, "  s%d [shape=plaintext, label=\"sub %d\"];\n", sub, sub)
		fmt.Fprintf(buf, "  s%d -> n%d;\n", sub, g.Roots[sub])
	}
	buf.WriteString("}\n")

	_, err = w.Write(buf.Bytes())
	return err
}
