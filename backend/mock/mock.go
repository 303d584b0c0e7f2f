// Package mock provides function-field test doubles for the backend
// interfaces. Zero values behave like healthy no-op services.
package mock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nkissick-del/ragflow-scraper-sub000/backend"
	"github.com/nkissick-del/ragflow-scraper-sub000/core"
)

// Parser is a configurable backend.Parser double.
type Parser struct {
	ParseFunc            func(ctx context.Context, path string) (*backend.ParseResult, error)
	SupportedFormatsFunc func() []string
	IsAvailableFunc      func(ctx context.Context) bool

	parseCalls atomic.Int64
}

var _ backend.Parser = (*Parser)(nil)

func (p *Parser) Parse(ctx context.Context, path string) (*backend.ParseResult, error) {
	p.parseCalls.Add(1)
	if p.ParseFunc != nil {
		return p.ParseFunc(ctx, path)
	}
	return &backend.ParseResult{Text: "mock parsed text"}, nil
}

func (p *Parser) SupportedFormats() []string {
	if p.SupportedFormatsFunc != nil {
		return p.SupportedFormatsFunc()
	}
	return []string{".txt", ".pdf"}
}

func (p *Parser) IsAvailable(ctx context.Context) bool {
	if p.IsAvailableFunc != nil {
		return p.IsAvailableFunc(ctx)
	}
	return true
}

// ParseCalls returns how many times Parse was invoked.
func (p *Parser) ParseCalls() int {
	return int(p.parseCalls.Load())
}

// Archiver is a configurable backend.Archiver double.
type Archiver struct {
	ArchiveFunc func(ctx context.Context, task *core.DocumentTask) (string, error)
	VerifyFunc  func(ctx context.Context, archiveID string, timeout time.Duration) error

	archiveCalls atomic.Int64
	verifyCalls  atomic.Int64
}

var _ backend.Archiver = (*Archiver)(nil)

func (a *Archiver) Archive(ctx context.Context, task *core.DocumentTask) (string, error) {
	a.archiveCalls.Add(1)
	if a.ArchiveFunc != nil {
		return a.ArchiveFunc(ctx, task)
	}
	return "mock-archive-id", nil
}

func (a *Archiver) Verify(ctx context.Context, archiveID string, timeout time.Duration) error {
	a.verifyCalls.Add(1)
	if a.VerifyFunc != nil {
		return a.VerifyFunc(ctx, archiveID, timeout)
	}
	return nil
}

// ArchiveCalls returns how many times Archive was invoked.
func (a *Archiver) ArchiveCalls() int {
	return int(a.archiveCalls.Load())
}

// VerifyCalls returns how many times Verify was invoked.
func (a *Archiver) VerifyCalls() int {
	return int(a.verifyCalls.Load())
}

// Ingestor is a configurable backend.Ingestor double.
type Ingestor struct {
	IngestFunc func(ctx context.Context, req *backend.IngestRequest) (*backend.IngestResult, error)

	ingestCalls atomic.Int64
}

var _ backend.Ingestor = (*Ingestor)(nil)

func (i *Ingestor) Ingest(ctx context.Context, req *backend.IngestRequest) (*backend.IngestResult, error) {
	i.ingestCalls.Add(1)
	if i.IngestFunc != nil {
		return i.IngestFunc(ctx, req)
	}
	return &backend.IngestResult{DocumentID: req.DocumentID, ChunkCount: 1}, nil
}

// IngestCalls returns how many times Ingest was invoked.
func (i *Ingestor) IngestCalls() int {
	return int(i.ingestCalls.Load())
}
