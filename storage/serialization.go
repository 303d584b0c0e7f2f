package storage

import (
	"fmt"

	"github.com/nkissick-del/ragflow-scraper-sub000/core"
)

// MarshalVectorRecord encodes a record into its binary on-disk form.
func MarshalVectorRecord(record *core.VectorRecord) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("%w: nil record", ErrSerialization)
	}
	bs := make([]byte, core.VectorRecordMUS.Size(*record))
	core.VectorRecordMUS.Marshal(*record, bs)
	return bs, nil
}

// UnmarshalVectorRecord decodes a record from its binary on-disk form.
func UnmarshalVectorRecord(bs []byte) (*core.VectorRecord, error) {
	record, _, err := core.VectorRecordMUS.Unmarshal(bs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return &record, nil
}
