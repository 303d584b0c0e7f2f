// Package pipeline drives one document through the fixed processing stages:
// skip check, archive, parse, ingest, cleanup.
package pipeline
