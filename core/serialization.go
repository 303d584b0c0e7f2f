package core

import (
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for records persisted in the vector store. Field order is
// part of the stored format; append new fields, never reorder.

var (
	vectorMUS   = ord.NewSliceSer[float32](raw.Float32)
	metadataMUS = ord.NewMapSer[string, string](ord.String, ord.String)
)

// VectorRecordMUS serializes VectorRecord values for storage.
var VectorRecordMUS = vectorRecordMUS{}

type vectorRecordMUS struct{}

func (s vectorRecordMUS) Marshal(v VectorRecord, bs []byte) (n int) {
	n = ord.String.Marshal(v.Source, bs)
	n += ord.String.Marshal(v.DocumentID, bs[n:])
	n += varint.Int.Marshal(v.ChunkIndex, bs[n:])
	n += ord.String.Marshal(v.Text, bs[n:])
	n += ord.String.Marshal(v.Heading, bs[n:])
	n += vectorMUS.Marshal(v.Vector, bs[n:])
	n += metadataMUS.Marshal(v.Metadata, bs[n:])
	n += ord.String.Marshal(v.ContentHash, bs[n:])
	n += raw.TimeUnixMicro.Marshal(v.IngestedAt, bs[n:])
	return
}

func (s vectorRecordMUS) Unmarshal(bs []byte) (v VectorRecord, n int, err error) {
	var n1 int
	if v.Source, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if v.DocumentID, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.ChunkIndex, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.Text, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.Heading, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.Vector, n1, err = vectorMUS.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.Metadata, n1, err = metadataMUS.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.ContentHash, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.IngestedAt, n1, err = raw.TimeUnixMicro.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	return
}

func (s vectorRecordMUS) Size(v VectorRecord) (size int) {
	size = ord.String.Size(v.Source)
	size += ord.String.Size(v.DocumentID)
	size += varint.Int.Size(v.ChunkIndex)
	size += ord.String.Size(v.Text)
	size += ord.String.Size(v.Heading)
	size += vectorMUS.Size(v.Vector)
	size += metadataMUS.Size(v.Metadata)
	size += ord.String.Size(v.ContentHash)
	size += raw.TimeUnixMicro.Size(v.IngestedAt)
	return
}
