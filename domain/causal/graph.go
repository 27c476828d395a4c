// Package causal describes the data-generating graphs of the simulated studies.
package causal

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"colliderlab/domain/core"
)

// DAG is a directed acyclic causal graph over named variables
type DAG struct {
	g     *simple.DirectedGraph
	ids   map[core.VariableKey]int64
	names map[int64]core.VariableKey
	// Latent variables are part of the generating process but may be
	// withheld from a variable set.
	latent map[core.VariableKey]bool
}

// Edge is a directed causal arrow
type Edge struct {
	From core.VariableKey
	To   core.VariableKey
}

// NewDAG builds a graph from edges and rejects self-loops and cycles
func NewDAG(edges ...Edge) (*DAG, error) {
	d := &DAG{
		g:      simple.NewDirectedGraph(),
		ids:    make(map[core.VariableKey]int64),
		names:  make(map[int64]core.VariableKey),
		latent: make(map[core.VariableKey]bool),
	}
	for _, e := range edges {
		if e.From == e.To {
			return nil, fmt.Errorf("%w: self-loop on %s", core.ErrInvalidParameter, e.From)
		}
		from, to := d.node(e.From), d.node(e.To)
		d.g.SetEdge(d.g.NewEdge(from, to))
	}
	if _, err := d.TopologicalOrder(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *DAG) node(key core.VariableKey) graph.Node {
	if id, ok := d.ids[key]; ok {
		return d.g.Node(id)
	}
	n := simple.Node(int64(len(d.ids)))
	d.g.AddNode(n)
	d.ids[key] = n.ID()
	d.names[n.ID()] = key
	return n
}

// MarkLatent flags a variable as unobserved in the real-world story
func (d *DAG) MarkLatent(key core.VariableKey) {
	d.latent[key] = true
}

// IsLatent reports whether the variable was marked latent
func (d *DAG) IsLatent(key core.VariableKey) bool {
	return d.latent[key]
}

// Variables returns every variable in insertion order
func (d *DAG) Variables() []core.VariableKey {
	out := make([]core.VariableKey, len(d.ids))
	for key, id := range d.ids {
		out[id] = key
	}
	return out
}

// Edges returns all arrows ordered by (from, to) insertion order
func (d *DAG) Edges() []Edge {
	var out []Edge
	for _, from := range d.Variables() {
		for _, to := range d.Children(from) {
			out = append(out, Edge{From: from, To: to})
		}
	}
	return out
}

// Parents returns the direct causes of key
func (d *DAG) Parents(key core.VariableKey) []core.VariableKey {
	id, ok := d.ids[key]
	if !ok {
		return nil
	}
	return d.keys(graph.NodesOf(d.g.To(id)))
}

// Children returns the direct effects of key
func (d *DAG) Children(key core.VariableKey) []core.VariableKey {
	id, ok := d.ids[key]
	if !ok {
		return nil
	}
	return d.keys(graph.NodesOf(d.g.From(id)))
}

func (d *DAG) keys(nodes []graph.Node) []core.VariableKey {
	sortNodes(nodes)
	out := make([]core.VariableKey, len(nodes))
	for i, n := range nodes {
		out[i] = d.names[n.ID()]
	}
	return out
}

func sortNodes(nodes []graph.Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID() < nodes[j].ID() })
}

// TopologicalOrder returns the variables with every cause before its effects.
// Ties are broken by insertion order.
func (d *DAG) TopologicalOrder() ([]core.VariableKey, error) {
	sorted, err := topo.SortStabilized(d.g, sortNodes)
	if err != nil {
		return nil, fmt.Errorf("%w: causal graph has a cycle: %v", core.ErrInvalidParameter, err)
	}
	return d.inOrder(sorted), nil
}

func (d *DAG) inOrder(nodes []graph.Node) []core.VariableKey {
	out := make([]core.VariableKey, len(nodes))
	for i, n := range nodes {
		out[i] = d.names[n.ID()]
	}
	return out
}

// IsCollider reports whether key has two or more direct causes
func (d *DAG) IsCollider(key core.VariableKey) bool {
	return len(d.Parents(key)) >= 2
}

// Colliders returns every variable with two or more direct causes
func (d *DAG) Colliders() []core.VariableKey {
	var out []core.VariableKey
	for _, key := range d.Variables() {
		if d.IsCollider(key) {
			out = append(out, key)
		}
	}
	return out
}

// ConditioningWarning describes a collider that a predictor set conditions on
type ConditioningWarning struct {
	Collider core.VariableKey
	// Causes of the collider that become associated once it is conditioned on
	Opened []core.VariableKey
	// Causes of the collider that are missing from the predictor set
	Omitted []core.VariableKey
}

// AuditPredictors lists the colliders among predictors whose causes are not
// all adjusted for. Conditioning on such a collider induces a spurious
// association between its causes, which is the bias the studies demonstrate.
func (d *DAG) AuditPredictors(outcome core.VariableKey, predictors []core.VariableKey) []ConditioningWarning {
	in := make(map[core.VariableKey]bool, len(predictors))
	for _, p := range predictors {
		in[p] = true
	}
	var out []ConditioningWarning
	for _, p := range predictors {
		if !d.IsCollider(p) {
			continue
		}
		w := ConditioningWarning{Collider: p}
		for _, cause := range d.Parents(p) {
			w.Opened = append(w.Opened, cause)
			if cause != outcome && !in[cause] {
				w.Omitted = append(w.Omitted, cause)
			}
		}
		if len(w.Omitted) > 0 || contains(w.Opened, outcome) {
			out = append(out, w)
		}
	}
	return out
}

func contains(keys []core.VariableKey, key core.VariableKey) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
