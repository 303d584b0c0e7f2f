package badger

// NewMemoryRepository creates an in-memory vector repository for testing.
// Returns the repository and its backend; closing the repository closes the
// backend too.
func NewMemoryRepository(dimension int) (*VectorRepository, *Backend, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, nil, err
	}

	repo, err := NewVectorRepository(backend, dimension)
	if err != nil {
		backend.Close()
		return nil, nil, err
	}

	return repo, backend, nil
}
