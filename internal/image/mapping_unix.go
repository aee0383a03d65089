//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris
// +build aix darwin dragonfly freebsd linux netbsd openbsd solaris

package image

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mmapMapping backs the container with a real MAP_SHARED mmap of the host
// file, the same design the original C implementation used. Writes into
// Bytes() are writes through the mapping; Sync forces them out with msync.
type mmapMapping struct {
	f    *os.File
	data []byte
}

func openMappingImpl(path string, size int64) (mapping, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o666)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("cannot map %s: %w", path, err)
	}
	return &mmapMapping{f: f, data: data}, nil
}

func (m *mmapMapping) Bytes() []byte {
	return m.data
}

func (m *mmapMapping) Sync() error {
	return unix.Msync(m.data, unix.MS_SYNC)
}

func (m *mmapMapping) Close() error {
	if err := m.Sync(); err != nil {
		_ = unix.Munmap(m.data)
		_ = m.f.Close()
		return err
	}
	if err := unix.Munmap(m.data); err != nil {
		_ = m.f.Close()
		return err
	}
	return m.f.Close()
}
