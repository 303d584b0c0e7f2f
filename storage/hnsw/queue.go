package hnsw

import "sort"

// distQueue is a binary heap of nodes keyed by distance. min selects whether
// pop returns the closest (candidate queue) or the farthest (result queue).
type distQueue struct {
	min   bool
	nodes []*node
	dists []float32
}

func (q *distQueue) len() int { return len(q.nodes) }

func (q *distQueue) less(i, j int) bool {
	if q.min {
		return q.dists[i] < q.dists[j]
	}
	return q.dists[i] > q.dists[j]
}

func (q *distQueue) swap(i, j int) {
	q.nodes[i], q.nodes[j] = q.nodes[j], q.nodes[i]
	q.dists[i], q.dists[j] = q.dists[j], q.dists[i]
}

func (q *distQueue) push(n *node, d float32) {
	q.nodes = append(q.nodes, n)
	q.dists = append(q.dists, d)
	i := len(q.nodes) - 1
	for i > 0 {
		parent := (i - 1) / 2
		if !q.less(i, parent) {
			break
		}
		q.swap(i, parent)
		i = parent
	}
}

func (q *distQueue) pop() (*node, float32) {
	top, topDist := q.nodes[0], q.dists[0]
	last := len(q.nodes) - 1
	q.swap(0, last)
	q.nodes = q.nodes[:last]
	q.dists = q.dists[:last]
	q.siftDown(0)
	return top, topDist
}

// peek returns the root distance: the farthest kept result for a max queue.
func (q *distQueue) peek() (float32, bool) {
	if len(q.dists) == 0 {
		return 0, false
	}
	return q.dists[0], true
}

func (q *distQueue) siftDown(i int) {
	n := len(q.nodes)
	for {
		left, right := 2*i+1, 2*i+2
		best := i
		if left < n && q.less(left, best) {
			best = left
		}
		if right < n && q.less(right, best) {
			best = right
		}
		if best == i {
			return
		}
		q.swap(i, best)
		i = best
	}
}

// sortedAsc drains nothing; it returns the queued nodes ordered by ascending
// distance.
func (q *distQueue) sortedAsc() []*node {
	type pair struct {
		n *node
		d float32
	}
	pairs := make([]pair, len(q.nodes))
	for i := range q.nodes {
		pairs[i] = pair{q.nodes[i], q.dists[i]}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].d < pairs[j].d })
	out := make([]*node, len(pairs))
	for i, p := range pairs {
		out[i] = p.n
	}
	return out
}

// sortByDist orders nodes by ascending distance from a reference vector.
func sortByDist(ref []float32, nodes []*node) {
	sort.Slice(nodes, func(i, j int) bool {
		return dist(ref, nodes[i].vector) < dist(ref, nodes[j].vector)
	})
}
