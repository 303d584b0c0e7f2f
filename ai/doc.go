// Package ai defines the embedding service abstraction used by the ingest
// and search paths, plus a batching client that preserves input order and
// validates vector dimensions against the configured expectation.
//
// Concrete implementations live in subpackages: ai/openai talks to
// OpenAI-compatible embedding APIs, ai/mock provides deterministic test
// doubles.
package ai
