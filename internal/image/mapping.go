package image

// mapping is the host backing for the container's bytes. It is small enough
// to have exactly two implementations: a real mmap on unix-like platforms
// (mapping_unix.go) and a read-whole/flush-whole buffer everywhere else
// (mapping_other.go), the usual platform split for direct file-backed
// memory access.
type mapping interface {
	// Bytes returns the live byte slice backing the container. Writes
	// through it are visible to subsequent reads immediately.
	Bytes() []byte
	// Sync flushes pending writes to the host file.
	Sync() error
	// Close releases the mapping (and syncs first).
	Close() error
}

func openMapping(path string, size int64) (mapping, error) {
	return openMappingImpl(path, size)
}
