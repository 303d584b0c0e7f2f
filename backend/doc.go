// Package backend defines the collaborator contracts of the document
// pipeline: parsing, archival, and ingestion. Concrete clients live in
// subpackages; backend/mock provides test doubles.
package backend
