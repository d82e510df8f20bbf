package routing

import (
	"container/heap"
	"sort"
)

// Table maps a destination node id to the directly connected peer that
// starts the cheapest known path toward it.
type Table map[string]string

// BuildTable runs Dijkstra from self over edges. Ties are broken by node id
// so equal-cost topologies yield the same table on every rebuild.
func BuildTable(self string, edges []Edge) Table {
	adj := make(map[string]map[string]float64)
	link := func(a, b string, w float64) {
		if adj[a] == nil {
			adj[a] = make(map[string]float64)
		}
		if old, ok := adj[a][b]; !ok || w < old {
			adj[a][b] = w
		}
	}
	for _, e := range edges {
		if e.A == e.B || e.Cost < 0 {
			continue
		}
		link(e.A, e.B, e.Cost)
		link(e.B, e.A, e.Cost)
	}

	dist := map[string]float64{self: 0}
	first := map[string]string{}
	visited := map[string]bool{}
	pq := &nodePQ{}
	heap.Push(pq, nodeItem{id: self, prio: 0})

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(nodeItem)
		if visited[cur.id] {
			continue
		}
		visited[cur.id] = true
		nbs := make([]string, 0, len(adj[cur.id]))
		for nb := range adj[cur.id] {
			nbs = append(nbs, nb)
		}
		sort.Strings(nbs)
		for _, nb := range nbs {
			if visited[nb] {
				continue
			}
			nd := dist[cur.id] + adj[cur.id][nb]
			hop := first[cur.id]
			if cur.id == self {
				hop = nb
			}
			old, seen := dist[nb]
			if !seen || nd < old || (nd == old && hop < first[nb]) {
				dist[nb] = nd
				first[nb] = hop
				heap.Push(pq, nodeItem{id: nb, prio: nd})
			}
		}
	}
	t := make(Table, len(first))
	for dst, hop := range first {
		t[dst] = hop
	}
	return t
}

type nodeItem struct {
	id   string
	prio float64
}

type nodePQ []nodeItem

func (p nodePQ) Len() int { return len(p) }
func (p nodePQ) Less(i, j int) bool {
	if p[i].prio != p[j].prio {
		return p[i].prio < p[j].prio
	}
	return p[i].id < p[j].id
}
func (p nodePQ) Swap(i, j int) { p[i], p[j] = p[j], p[i] }
func (p *nodePQ) Push(x any)   { *p = append(*p, x.(nodeItem)) }
func (p *nodePQ) Pop() any {
	old := *p
	n := len(old)
	x := old[n-1]
	*p = old[:n-1]
	return x
}
