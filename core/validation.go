package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRecord indicates a VectorRecord failed validation.
	ErrInvalidRecord = errors.New("invalid vector record")

	// ErrInvalidTask indicates a DocumentTask failed validation.
	ErrInvalidTask = errors.New("invalid document task")
)

// ValidateVectorRecord validates a VectorRecord before it is written.
//
// Validation rules:
//   - Source must not be empty
//   - DocumentID must not be empty
//   - Vector must not be empty
//   - Vector length must equal dimension when dimension > 0
//
// NOT validated:
//   - Text (empty chunks are legal, if useless)
//   - Metadata and Heading (free-form)
func ValidateVectorRecord(record *VectorRecord, dimension int) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}
	if record.Source == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptySource)
	}
	if record.DocumentID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyDocumentID)
	}
	if len(record.Vector) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyVector)
	}
	if dimension > 0 && len(record.Vector) != dimension {
		return fmt.Errorf("%w: %w: want %d, got %d",
			ErrInvalidRecord, ErrDimensionMismatch, dimension, len(record.Vector))
	}
	return nil
}

// ValidateDocumentTask validates a DocumentTask before pipeline processing.
//
// Validation rules:
//   - Source must not be empty
//   - SourceURL must not be empty
//   - FilePath must not be empty
func ValidateDocumentTask(task *DocumentTask) error {
	if task == nil {
		return fmt.Errorf("%w: task is nil", ErrInvalidTask)
	}
	if task.Source == "" {
		return fmt.Errorf("%w: %w", ErrInvalidTask, ErrEmptySource)
	}
	if task.SourceURL == "" {
		return fmt.Errorf("%w: source URL cannot be empty", ErrInvalidTask)
	}
	if task.FilePath == "" {
		return fmt.Errorf("%w: file path cannot be empty", ErrInvalidTask)
	}
	return nil
}
