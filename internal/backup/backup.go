// Package backup writes an lz4-compressed copy of the whole container
// image to a host path, for the optional "-snapshot=" startup flag. It
// never reads back into the live mapping; it is strictly a one-shot,
// host-side backup knob layered on top of internal/image, the way the
// teacher layers squashfs's compressed-block reads on github.com/pierrec/lz4
// without that library knowing anything about the filesystem format above
// it.
package backup

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pierrec/lz4"
)

// Snapshot writes an lz4-compressed copy of data (a full container image,
// as returned by (*image.Container).Snapshot) to path, creating or
// truncating it.
func Snapshot(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot open snapshot path %s: %w", path, err)
	}
	defer f.Close()

	w := lz4.NewWriter(f)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("cannot write snapshot %s: %w", path, err)
	}
	return w.Close()
}

// Restore decompresses an lz4 snapshot previously written by Snapshot and
// returns its raw bytes.
func Restore(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open snapshot path %s: %w", path, err)
	}
	defer f.Close()

	r := lz4.NewReader(f)
	var out []byte
	buf := make([]byte, 64*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("cannot read snapshot %s: %w", path, err)
		}
	}
	return out, nil
}
