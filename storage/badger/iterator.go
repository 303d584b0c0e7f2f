package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/nkissick-del/ragflow-scraper-sub000/core"
	"github.com/nkissick-del/ragflow-scraper-sub000/storage"
)

// recordIterator walks every stored chunk record in key order, across all
// sources. Each Next call opens a fresh read transaction, so writes that land
// between calls are visible.
type recordIterator struct {
	backend *Backend
	lastKey []byte
	done    bool
}

var _ storage.RecordIterator = (*recordIterator)(nil)

// NewRecordIterator returns an iterator over all records in the repository.
func NewRecordIterator(r *VectorRepository) storage.RecordIterator {
	return &recordIterator{backend: r.backend}
}

// Next returns the next batch of at most limit records, or an empty slice
// when the store is exhausted.
func (it *recordIterator) Next(ctx context.Context, limit int) ([]*core.VectorRecord, error) {
	if it.done || limit <= 0 {
		return nil, nil
	}
	if it.backend.IsClosed() {
		return nil, storage.ErrClosed
	}

	var records []*core.VectorRecord
	err := it.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(vectorRecordPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		if it.lastKey == nil {
			iter.Rewind()
		} else {
			iter.Seek(it.lastKey)
			// Seek lands on lastKey itself when it still exists.
			if iter.Valid() && string(iter.Item().Key()) == string(it.lastKey) {
				iter.Next()
			}
		}

		for ; iter.Valid() && len(records) < limit; iter.Next() {
			item := iter.Item()
			it.lastKey = item.KeyCopy(nil)
			var record *core.VectorRecord
			err := item.Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalVectorRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			records = append(records, record)
		}
		if !iter.Valid() {
			it.done = true
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return records, nil
}
