package routing

import (
	"sort"
)

// Edge is an undirected link between two nodes.
type Edge struct {
	A, B string
	Cost float64
}

type pair struct{ a, b string }

func pairOf(a, b string) pair {
	if b < a {
		a, b = b, a
	}
	return pair{a, b}
}

// Graph stores the advertised costs for each unordered node pair. A pair may
// hold several costs; routing uses the lowest.
type Graph struct {
	costs map[pair][]float64
}

func NewGraph() *Graph { return &Graph{costs: make(map[pair][]float64)} }

// Find returns the lowest-cost edge between a and b.
func (g *Graph) Find(a, b string) (Edge, bool) {
	p := pairOf(a, b)
	cs := g.costs[p]
	if len(cs) == 0 {
		return Edge{}, false
	}
	return Edge{A: p.a, B: p.b, Cost: minOf(cs)}, true
}

// Register adds cost for the pair. Registering a cost already present is a no-op.
func (g *Graph) Register(a, b string, cost float64) {
	if a == b {
		return
	}
	p := pairOf(a, b)
	for _, c := range g.costs[p] {
		if c == cost {
			return
		}
	}
	g.costs[p] = append(g.costs[p], cost)
}

// Update replaces the lowest registered cost of the pair with cost, or
// registers it when the pair is unknown.
func (g *Graph) Update(a, b string, cost float64) {
	p := pairOf(a, b)
	cs := g.costs[p]
	if len(cs) == 0 {
		g.Register(a, b, cost)
		return
	}
	i := minIndex(cs)
	cs[i] = cost
	// drop a duplicate the replacement may have created
	out := cs[:0]
	seen := make(map[float64]bool, len(cs))
	for _, c := range cs {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	g.costs[p] = out
}

// Costs returns every cost registered for the pair.
func (g *Graph) Costs(a, b string) []float64 {
	return append([]float64(nil), g.costs[pairOf(a, b)]...)
}

// Remove drops every cost of the pair.
func (g *Graph) Remove(a, b string) { delete(g.costs, pairOf(a, b)) }

// RemoveNode drops every pair touching n.
func (g *Graph) RemoveNode(n string) {
	for p := range g.costs {
		if p.a == n || p.b == n {
			delete(g.costs, p)
		}
	}
}

// Edges returns one lowest-cost edge per pair in a stable order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.costs))
	for p, cs := range g.costs {
		if len(cs) == 0 {
			continue
		}
		out = append(out, Edge{A: p.a, B: p.b, Cost: minOf(cs)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

func (g *Graph) Len() int { return len(g.costs) }

func minIndex(cs []float64) int {
	mi := 0
	for i := 1; i < len(cs); i++ {
		if cs[i] < cs[mi] {
			mi = i
		}
	}
	return mi
}

func minOf(cs []float64) float64 { return cs[minIndex(cs)] }
