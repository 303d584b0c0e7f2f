package hnsw

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"
)

func randomUnitVector(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	var sum float64
	for i := range v {
		v[i] = float32(rng.NormFloat64())
		sum += float64(v[i]) * float64(v[i])
	}
	norm := float32(1)
	if sum > 0 {
		norm = float32(1 / sqrtf(sum))
	}
	for i := range v {
		v[i] *= norm
	}
	return v
}

func sqrtf(x float64) float64 {
	z := x
	for i := 0; i < 24; i++ {
		z = (z + x/z) / 2
	}
	return z
}

func TestSearchFindsExactMatch(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	g := New(Config{})

	vectors := make(map[string][]float32)
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("k%d", i)
		vec := randomUnitVector(rng, 32)
		vectors[key] = vec
		g.Insert(key, vec)
	}

	for i := 0; i < 20; i++ {
		key := fmt.Sprintf("k%d", i*7)
		hits := g.Search(vectors[key], 1)
		if len(hits) != 1 {
			t.Fatalf("Expected 1 hit, got %d", len(hits))
		}
		if hits[0].Key != key {
			t.Fatalf("Expected exact match %s, got %s (sim %f)", key, hits[0].Key, hits[0].Similarity)
		}
	}
}

func TestSearchRecallAgainstBruteForce(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	g := New(Config{EfSearch: 128})

	const n, dim, k = 500, 16, 10
	keys := make([]string, n)
	vecs := make([][]float32, n)
	for i := 0; i < n; i++ {
		keys[i] = fmt.Sprintf("k%d", i)
		vecs[i] = randomUnitVector(rng, dim)
		g.Insert(keys[i], vecs[i])
	}

	totalRecall := 0.0
	const queries = 20
	for q := 0; q < queries; q++ {
		query := randomUnitVector(rng, dim)

		// Brute-force top k
		type scored struct {
			key string
			sim float32
		}
		all := make([]scored, n)
		for i := 0; i < n; i++ {
			all[i] = scored{keys[i], dot(query, vecs[i])}
		}
		sort.Slice(all, func(i, j int) bool { return all[i].sim > all[j].sim })
		truth := make(map[string]bool, k)
		for i := 0; i < k; i++ {
			truth[all[i].key] = true
		}

		hits := g.Search(query, k)
		found := 0
		for _, h := range hits {
			if truth[h.Key] {
				found++
			}
		}
		totalRecall += float64(found) / k
	}

	if avg := totalRecall / queries; avg < 0.9 {
		t.Fatalf("Average recall too low: %.2f", avg)
	}
}

func TestSearchResultsOrderedByDescendingSimilarity(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	g := New(Config{})
	for i := 0; i < 100; i++ {
		g.Insert(fmt.Sprintf("k%d", i), randomUnitVector(rng, 8))
	}

	hits := g.Search(randomUnitVector(rng, 8), 20)
	if len(hits) == 0 {
		t.Fatal("Expected hits")
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Similarity > hits[i-1].Similarity {
			t.Fatalf("Results out of order at %d: %f > %f", i, hits[i].Similarity, hits[i-1].Similarity)
		}
	}
}

func TestDeleteTombstonesKey(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	g := New(Config{})
	vecs := make(map[string][]float32)
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("k%d", i)
		vec := randomUnitVector(rng, 8)
		vecs[key] = vec
		g.Insert(key, vec)
	}

	if !g.Delete("k10") {
		t.Fatal("Delete should report a live key")
	}
	if g.Delete("k10") {
		t.Fatal("Second delete should report not-live")
	}
	if g.Len() != 49 {
		t.Fatalf("Expected 49 live, got %d", g.Len())
	}

	for _, hit := range g.Search(vecs["k10"], 50) {
		if hit.Key == "k10" {
			t.Fatal("Deleted key returned from search")
		}
	}
}

func TestInsertReplacesExistingKey(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 10))
	g := New(Config{})
	for i := 0; i < 20; i++ {
		g.Insert(fmt.Sprintf("k%d", i), randomUnitVector(rng, 8))
	}

	replacement := randomUnitVector(rng, 8)
	g.Insert("k5", replacement)

	if g.Len() != 20 {
		t.Fatalf("Replacement must not grow the live count, got %d", g.Len())
	}
	hits := g.Search(replacement, 1)
	if len(hits) != 1 || hits[0].Key != "k5" {
		t.Fatalf("Expected replaced vector to win, got %+v", hits)
	}
}

func TestEmptyGraphSearch(t *testing.T) {
	g := New(Config{})
	if hits := g.Search([]float32{1, 0}, 5); hits != nil {
		t.Fatalf("Expected nil hits on empty graph, got %v", hits)
	}
}

func TestConcurrentInsertAndSearch(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 12))
	g := New(Config{})
	seed := make([][]float32, 50)
	for i := range seed {
		seed[i] = randomUnitVector(rng, 8)
		g.Insert(fmt.Sprintf("seed%d", i), seed[i])
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			local := rand.New(rand.NewPCG(uint64(w), 99))
			for i := 0; i < 50; i++ {
				g.Insert(fmt.Sprintf("w%d-%d", w, i), randomUnitVector(local, 8))
				g.Search(seed[i%len(seed)], 5)
			}
		}(w)
	}
	wg.Wait()

	if g.Len() != 250 {
		t.Fatalf("Expected 250 live vectors, got %d", g.Len())
	}
}
