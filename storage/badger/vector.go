package badger

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/nkissick-del/ragflow-scraper-sub000/core"
	"github.com/nkissick-del/ragflow-scraper-sub000/storage"
	"github.com/nkissick-del/ragflow-scraper-sub000/storage/hnsw"
)

const defaultTopK = 10

// VectorRepository implements storage.VectorRepository for BadgerDB.
// Records are partitioned by source; each partition carries its own HNSW
// index, built lazily from the stored records on first access.
type VectorRepository struct {
	backend   *Backend
	dimension int

	mu     sync.Mutex
	graphs map[string]*hnsw.Graph
}

var _ storage.VectorRepository = (*VectorRepository)(nil)

// NewVectorRepository creates a new VectorRepository.
func NewVectorRepository(backend *Backend, dimension int) (*VectorRepository, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", dimension)
	}
	return &VectorRepository{
		backend:   backend,
		dimension: dimension,
		graphs:    make(map[string]*hnsw.Graph),
	}, nil
}

// Close closes the underlying backend.
func (r *VectorRepository) Close() error {
	return r.backend.Close()
}

// Upsert writes records, replacing rows that share the same key. Vectors are
// normalized to unit length before storage so similarity reduces to a dot
// product.
func (r *VectorRepository) Upsert(ctx context.Context, records ...*core.VectorRecord) error {
	if r.backend.IsClosed() {
		return storage.ErrClosed
	}
	if len(records) == 0 {
		return nil
	}

	// Validate everything up front so a bad record leaves nothing behind.
	for _, record := range records {
		if err := core.ValidateVectorRecord(record, r.dimension); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	for _, record := range records {
		if record.IngestedAt.IsZero() {
			record.IngestedAt = now
		}
		record.Vector = normalize(record.Vector)
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, record := range records {
			key := makeRecordKey(record.Source, record.DocumentID, record.ChunkIndex)
			value, err := storage.MarshalVectorRecord(record)
			if err != nil {
				return err
			}
			if err := tx.Set(key, value); err != nil {
				return err
			}
			if record.ContentHash != "" {
				hashKey := makeDocumentHashKey(record.Source, record.ContentHash)
				if err := tx.Set(hashKey, []byte(record.DocumentID)); err != nil {
					return err
				}
			}
			if err := tx.Set(makeSourceKey(record.Source), nil); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}

	for _, record := range records {
		graph, err := r.graph(record.Source)
		if err != nil {
			return err
		}
		key := makeRecordKey(record.Source, record.DocumentID, record.ChunkIndex)
		graph.Insert(string(key), record.Vector)
	}
	return nil
}

// Search returns up to TopK records ordered by descending similarity, ties
// broken by most recent ingestion time.
func (r *VectorRepository) Search(ctx context.Context, query storage.Query) ([]*core.SearchResult, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrClosed
	}
	if len(query.Vector) == 0 {
		return nil, storage.ErrEmptyQuery
	}
	if len(query.Vector) != r.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, store has %d",
			core.ErrDimensionMismatch, len(query.Vector), r.dimension)
	}

	topK := query.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	var sources []string
	if query.Source != "" {
		sources = []string{query.Source}
	} else {
		var err error
		sources, err = r.Sources(ctx)
		if err != nil {
			return nil, err
		}
	}

	// Oversample when a metadata filter will discard candidates after the
	// ANN pass.
	ask := topK
	if len(query.Metadata) > 0 {
		ask = topK*4 + 16
	}

	normalized := normalize(slices.Clone(query.Vector))

	var results []*core.SearchResult
	for _, source := range sources {
		graph, err := r.graph(source)
		if err != nil {
			return nil, err
		}
		for _, candidate := range graph.Search(normalized, ask) {
			record, err := r.readRecord([]byte(candidate.Key))
			if err != nil {
				return nil, err
			}
			if record == nil {
				continue
			}
			if !metadataMatches(record.Metadata, query.Metadata) {
				continue
			}
			results = append(results, &core.SearchResult{
				Record: record,
				Score:  candidate.Similarity,
			})
		}
	}

	slices.SortFunc(results, func(a, b *core.SearchResult) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		// Newer records first on equal score.
		return b.Record.IngestedAt.Compare(a.Record.IngestedAt)
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// DeleteBySource purges one partition: records, hash index, and marker.
func (r *VectorRepository) DeleteBySource(ctx context.Context, source string) error {
	if r.backend.IsClosed() {
		return storage.ErrClosed
	}

	keys, err := r.collectKeys(makeSourceKeyPrefix(source))
	if err != nil {
		return err
	}
	hashKeys, err := r.collectKeys(makeDocumentHashKeyPrefix(source))
	if err != nil {
		return err
	}
	keys = append(keys, hashKeys...)
	keys = append(keys, makeSourceKey(source))

	if err := r.deleteKeys(keys); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.graphs, source)
	r.mu.Unlock()
	return nil
}

// DeleteDocument removes every chunk of one document, its index entries
// included. Deleting a document that is not stored is a no-op.
func (r *VectorRepository) DeleteDocument(ctx context.Context, source, documentID string) error {
	if r.backend.IsClosed() {
		return storage.ErrClosed
	}

	keys, err := r.collectKeys(makeDocumentKeyPrefix(source, documentID))
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	// The hash index entry is only removed when it still points at this
	// document; a re-ingested document may have claimed the hash already.
	first, err := r.readRecord(keys[0])
	if err != nil {
		return err
	}
	deleteKeys := slices.Clone(keys)
	if first != nil && first.ContentHash != "" {
		owner, err := r.FindDocumentByHash(ctx, source, first.ContentHash)
		if err == nil && owner == documentID {
			deleteKeys = append(deleteKeys, makeDocumentHashKey(source, first.ContentHash))
		}
	}

	if err := r.deleteKeys(deleteKeys); err != nil {
		return err
	}

	graph, err := r.graph(source)
	if err != nil {
		return err
	}
	for _, key := range keys {
		graph.Delete(string(key))
	}
	return nil
}

// FindDocumentByHash returns the document ID stored under a content hash.
func (r *VectorRepository) FindDocumentByHash(ctx context.Context, source, hash string) (string, error) {
	if r.backend.IsClosed() {
		return "", storage.ErrClosed
	}

	var documentID string
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeDocumentHashKey(source, hash))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			documentID = string(val)
			return nil
		})
	}, false)
	return documentID, err
}

// UpdateDocumentMetadata replaces the metadata of every chunk of one document
// without touching vectors or text.
func (r *VectorRepository) UpdateDocumentMetadata(ctx context.Context, source, documentID string, metadata map[string]string) error {
	if r.backend.IsClosed() {
		return storage.ErrClosed
	}

	found := false
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeDocumentKeyPrefix(source, documentID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			var record *core.VectorRecord
			err := item.Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalVectorRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			found = true
			record.Metadata = cloneMetadata(metadata)
			value, err := storage.MarshalVectorRecord(record)
			if err != nil {
				return err
			}
			if err := tx.Set(item.KeyCopy(nil), value); err != nil {
				return err
			}
		}
		iter.Close()
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}
	if !found {
		return storage.ErrNotFound
	}
	return nil
}

// GetDocument returns the stored chunks of one document ordered by index.
func (r *VectorRepository) GetDocument(ctx context.Context, source, documentID string) ([]*core.VectorRecord, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrClosed
	}

	var records []*core.VectorRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeDocumentKeyPrefix(source, documentID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Keys sort by BigEndian chunk index, so iteration order is
		// already chunk order.
		for iter.Rewind(); iter.Valid(); iter.Next() {
			var record *core.VectorRecord
			err := iter.Item().Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalVectorRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	}, false)
	return records, err
}

// Sources lists the partitions currently present.
func (r *VectorRepository) Sources(ctx context.Context) ([]string, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrClosed
	}

	prefix := sourcePrefix + ":"
	var sources []string
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			key := string(iter.Item().Key())
			sources = append(sources, strings.TrimPrefix(key, prefix))
		}
		return nil
	}, false)
	return sources, err
}

// Count returns the number of chunk records in one partition.
func (r *VectorRepository) Count(ctx context.Context, source string) (int, error) {
	if r.backend.IsClosed() {
		return 0, storage.ErrClosed
	}

	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeSourceKeyPrefix(source)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// graph returns the HNSW index for a source, building it from the stored
// records on first access.
func (r *VectorRepository) graph(source string) (*hnsw.Graph, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if graph, ok := r.graphs[source]; ok {
		return graph, nil
	}

	graph := hnsw.New(hnsw.Config{})
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeSourceKeyPrefix(source)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			key := item.KeyCopy(nil)
			var record *core.VectorRecord
			err := item.Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalVectorRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			graph.Insert(string(key), record.Vector)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	r.graphs[source] = graph
	return graph, nil
}

func (r *VectorRepository) readRecord(key []byte) (*core.VectorRecord, error) {
	var record *core.VectorRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(key)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var err error
			record, err = storage.UnmarshalVectorRecord(val)
			return err
		})
	}, false)
	return record, err
}

func (r *VectorRepository) collectKeys(prefix []byte) ([][]byte, error) {
	var keys [][]byte
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if !bytes.HasPrefix(iter.Item().Key(), prefix) {
				break
			}
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		return nil
	}, false)
	return keys, err
}

func (r *VectorRepository) deleteKeys(keys [][]byte) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

func metadataMatches(have, want map[string]string) bool {
	for key, value := range want {
		if have[key] != value {
			return false
		}
	}
	return true
}

func cloneMetadata(metadata map[string]string) map[string]string {
	if metadata == nil {
		return nil
	}
	clone := make(map[string]string, len(metadata))
	for key, value := range metadata {
		clone[key] = value
	}
	return clone
}

// normalize scales a vector to unit length in place and returns it.
// Zero vectors are returned unchanged.
func normalize(vector []float32) []float32 {
	var sum float64
	for _, v := range vector {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vector
	}
	norm := math.Sqrt(sum)
	if math.Abs(norm-1) < 1e-6 {
		return vector
	}
	inv := float32(1 / norm)
	for i := range vector {
		vector[i] *= inv
	}
	return vector
}
