// Package storage defines the persistence contracts for vector records.
// Concrete backends live in subpackages; storage/badger provides the
// default embedded implementation with ANN search via storage/hnsw.
package storage
