package core

import (
	"encoding/hex"
	"io"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// DocumentTask is one unit of pipeline work: a document that a collector has
// already downloaded. Tasks are never mutated after creation; a re-run of the
// same document creates a new task.
type DocumentTask struct {
	SourceURL   string
	FilePath    string
	Source      string
	Title       string
	Tags        []string
	PublishedAt time.Time
	Metadata    map[string]string
	ContentHash string // hex BLAKE2b of the downloaded bytes
}

// DocumentID returns the stable identifier this task's records are stored
// under. It depends only on the source and URL, so a re-download of the same
// document replaces its rows instead of duplicating them.
func (t *DocumentTask) DocumentID() string {
	return DocumentID(t.Source, t.SourceURL)
}

// StageStatus is the outcome of a single pipeline stage.
type StageStatus int

const (
	StageSkipped StageStatus = iota
	StageSucceeded
	StageFailed
)

func (s StageStatus) String() string {
	switch s {
	case StageSucceeded:
		return "succeeded"
	case StageFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// Outcome is the terminal status of one document's pipeline run.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// PipelineResult records per-stage outcomes for one processed document.
// Owned by the caller; immutable once returned.
type PipelineResult struct {
	Task    *DocumentTask
	Archive StageStatus
	Parse   StageStatus
	Ingest  StageStatus
	Cleanup StageStatus
	Outcome Outcome
	Detail  string // human-readable error detail, empty on success
}

// Chunk is one bounded span of normalized document text prepared for
// embedding. Chunks are consumed immediately and not persisted on their own.
type Chunk struct {
	Index      int
	Text       string
	Heading    string // nearest preceding heading trail, may be empty
	TokenCount int
}

// VectorRecord is a stored row of the vector table, uniquely identified by
// (Source, DocumentID, ChunkIndex). Upsert replaces on identity conflict.
type VectorRecord struct {
	Source      string
	DocumentID  string
	ChunkIndex  int
	Text        string
	Heading     string
	Vector      []float32
	Metadata    map[string]string
	ContentHash string
	IngestedAt  time.Time
}

// Key returns the record's identity within its source partition.
func (r *VectorRecord) Key() string {
	return r.DocumentID + ":" + strconv.Itoa(r.ChunkIndex)
}

// SearchResult pairs a stored record with its similarity score.
type SearchResult struct {
	Record *VectorRecord
	Score  float32
}

// HashBytes computes the hex BLAKE2b content hash used for deduplication.
// Identical bytes always produce identical hashes, independent of URL.
func HashBytes(data []byte) string {
	h, _ := blake2b.New(32, nil)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashReader computes the content hash of a stream while discarding it.
func HashReader(r io.Reader) (string, error) {
	h, _ := blake2b.New(32, nil)
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DocumentID generates a deterministic document identifier from a source name
// and URL using BLAKE2b hashing, so identical inputs produce identical IDs.
func DocumentID(source, url string) string {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(url))
	return hex.EncodeToString(h.Sum(nil))
}
