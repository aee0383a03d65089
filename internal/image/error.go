package image

import "fmt"

// ValidationError reports that an existing file failed the open-time
// checks: bad magic, or a size mismatch against the superblock's own
// blockSize/fatClass. Validation failure is always fatal.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid filesystem (%s): %s", e.Path, e.Reason)
}

// UsageError reports a bad format-time parameter (block size or FAT class).
// Fatal at startup, same as the CLI's own argv validation.
type UsageError struct {
	Reason string
}

func (e *UsageError) Error() string {
	return e.Reason
}
