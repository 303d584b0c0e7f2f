package hnsw

import (
	"math"
	"math/rand/v2"
	"sync"
)

const (
	// DefaultM is the number of bidirectional links per node and level.
	DefaultM = 16
	// DefaultEfConstruction is the candidate-list width during inserts.
	DefaultEfConstruction = 200
	// DefaultEfSearch is the candidate-list width during queries.
	DefaultEfSearch = 64
)

// Candidate is a search hit: a stored key and its similarity to the query.
type Candidate struct {
	Key        string
	Similarity float32
}

// Config tunes the index. Zero values fall back to the defaults.
type Config struct {
	M              int
	EfConstruction int
	EfSearch       int
}

type node struct {
	key       string
	vector    []float32
	neighbors [][]*node // one adjacency list per level
	level     int
	deleted   bool
}

// Graph is a hierarchical navigable small-world index over unit-length
// vectors. Similarity is the dot product, which equals cosine similarity for
// normalized inputs. Safe for concurrent use; deletes are tombstones that
// stay traversable so the graph does not fragment.
type Graph struct {
	mu    sync.RWMutex
	cfg   Config
	nodes map[string]*node
	entry *node
	live  int
	mult  float64
	rng   *rand.Rand
}

// New creates an empty graph.
func New(cfg Config) *Graph {
	if cfg.M <= 0 {
		cfg.M = DefaultM
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = DefaultEfConstruction
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = DefaultEfSearch
	}
	return &Graph{
		cfg:   cfg,
		nodes: make(map[string]*node),
		mult:  1 / math.Log(float64(cfg.M)),
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Len returns the number of live (non-deleted) vectors.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.live
}

// Insert adds a vector under key. Inserting an existing key replaces it.
func (g *Graph) Insert(key string, vector []float32) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if old, ok := g.nodes[key]; ok && !old.deleted {
		old.deleted = true
		g.live--
	}

	level := g.randomLevel()
	n := &node{
		key:       key,
		vector:    vector,
		neighbors: make([][]*node, level+1),
		level:     level,
	}
	g.nodes[key] = n
	g.live++

	if g.entry == nil {
		g.entry = n
		return
	}

	ep := g.entry
	// Greedy descent through the levels above the new node's level.
	for l := g.entry.level; l > level; l-- {
		ep = g.greedyClosest(ep, vector, l)
	}

	// Connect on each level from min(level, entryLevel) down to 0.
	top := level
	if g.entry.level < top {
		top = g.entry.level
	}
	for l := top; l >= 0; l-- {
		found := g.searchLayer([]*node{ep}, vector, g.cfg.EfConstruction, l)
		neighbors := g.selectClosest(found, g.cfg.M)
		n.neighbors[l] = neighbors
		for _, nb := range neighbors {
			nb.neighbors[l] = append(nb.neighbors[l], n)
			g.pruneNeighbors(nb, l)
		}
		if len(found) > 0 {
			ep = found[0]
		}
	}

	if level > g.entry.level {
		g.entry = n
	}
}

// Delete tombstones a key. The node stays in the graph for routing but is
// never returned from Search. Reports whether the key was live.
func (g *Graph) Delete(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[key]
	if !ok || n.deleted {
		return false
	}
	n.deleted = true
	g.live--
	return true
}

// Search returns up to k live keys closest to query, best first.
func (g *Graph) Search(query []float32, k int) []Candidate {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.entry == nil || k <= 0 {
		return nil
	}

	ep := g.entry
	for l := g.entry.level; l > 0; l-- {
		ep = g.greedyClosest(ep, query, l)
	}

	ef := g.cfg.EfSearch
	if ef < k {
		ef = k
	}
	found := g.searchLayer([]*node{ep}, query, ef, 0)

	out := make([]Candidate, 0, k)
	for _, n := range found {
		if n.deleted {
			continue
		}
		out = append(out, Candidate{Key: n.key, Similarity: dot(query, n.vector)})
		if len(out) == k {
			break
		}
	}
	return out
}

// randomLevel draws a level from the standard exponential distribution.
func (g *Graph) randomLevel() int {
	return int(-math.Log(g.rng.Float64()) * g.mult)
}

// greedyClosest walks one level toward query until no neighbor improves.
func (g *Graph) greedyClosest(start *node, query []float32, level int) *node {
	cur := start
	curDist := dist(query, cur.vector)
	for {
		improved := false
		if level <= cur.level {
			for _, nb := range cur.neighbors[level] {
				if d := dist(query, nb.vector); d < curDist {
					cur, curDist = nb, d
					improved = true
				}
			}
		}
		if !improved {
			return cur
		}
	}
}

// searchLayer is the beam search of the HNSW paper restricted to one level.
// Returns up to ef nodes ordered by ascending distance, tombstones included.
func (g *Graph) searchLayer(entries []*node, query []float32, ef, level int) []*node {
	visited := make(map[*node]bool, ef*2)
	candidates := &distQueue{min: true}
	results := &distQueue{min: false}

	for _, e := range entries {
		d := dist(query, e.vector)
		visited[e] = true
		candidates.push(e, d)
		results.push(e, d)
	}

	for candidates.len() > 0 {
		cur, curDist := candidates.pop()
		if worst, ok := results.peek(); ok && curDist > worst && results.len() >= ef {
			break
		}
		if level > cur.level {
			continue
		}
		for _, nb := range cur.neighbors[level] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			d := dist(query, nb.vector)
			if worst, ok := results.peek(); !ok || d < worst || results.len() < ef {
				candidates.push(nb, d)
				results.push(nb, d)
				for results.len() > ef {
					results.pop()
				}
			}
		}
	}

	return results.sortedAsc()
}

// selectClosest keeps the m nearest of an ascending-ordered candidate list.
func (g *Graph) selectClosest(sorted []*node, m int) []*node {
	if len(sorted) <= m {
		out := make([]*node, len(sorted))
		copy(out, sorted)
		return out
	}
	out := make([]*node, m)
	copy(out, sorted[:m])
	return out
}

// pruneNeighbors caps a node's adjacency list. Level 0 allows 2*M links.
func (g *Graph) pruneNeighbors(n *node, level int) {
	max := g.cfg.M
	if level == 0 {
		max = g.cfg.M * 2
	}
	if len(n.neighbors[level]) <= max {
		return
	}
	sortByDist(n.vector, n.neighbors[level])
	n.neighbors[level] = n.neighbors[level][:max]
}

// dist is 1 - dot(a, b): a proper ordering key for cosine similarity on
// normalized vectors.
func dist(a, b []float32) float32 {
	return 1 - dot(a, b)
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
