package image

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Container is the open, mapped [superblock | FAT | data blocks] image.
// All accessors read and write directly through the backing mapping; there
// is no separate in-memory cache to keep consistent.
type Container struct {
	Path string

	m mapping

	blockSize int
	fatClass  int
	n         int32 // number of data blocks

	fatOff  int // byte offset of the FAT within the mapping
	dataOff int // byte offset of the data region within the mapping
}

// Open opens an existing container at path and validates it, or formats a
// new one with the given parameters if path does not exist. The returned
// bool is true when a new container was formatted, so the caller can
// perform the one-time root-directory initialization
// (internal/directory.InitRoot) that this package, by design, knows
// nothing about.
func Open(path string, blockSize, fatClass int) (*Container, bool, error) {
	if _, err := os.Stat(path); err == nil {
		c, err := openExisting(path)
		return c, false, err
	} else if !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("cannot stat %s: %w", path, err)
	}
	c, err := format(path, blockSize, fatClass)
	return c, true, err
}

func openExisting(path string) (*Container, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot stat %s: %w", path, err)
	}
	size := info.Size()
	// Read just enough to decode the superblock before committing to a
	// mapping of the "right" size -- we don't yet know blockSize/fatClass.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	head := make([]byte, superblockSize)
	_, err = f.ReadAt(head, 0)
	f.Close()
	if err != nil {
		return nil, &ValidationError{Path: path, Reason: "cannot read superblock"}
	}
	sb := decodeSuperblock(head)
	if sb.Magic != Magic {
		return nil, &ValidationError{Path: path, Reason: "bad magic number"}
	}
	if !ValidBlockSize(int(sb.BlockSize)) || !ValidFatClass(int(sb.FatClass)) {
		return nil, &ValidationError{Path: path, Reason: "invalid blockSize/fatClass in superblock"}
	}
	expected := Size(int(sb.BlockSize), int(sb.FatClass))
	if size != expected {
		return nil, &ValidationError{Path: path, Reason: fmt.Sprintf("file size %d does not match expected %d", size, expected)}
	}

	m, err := openMapping(path, size)
	if err != nil {
		return nil, err
	}
	c := &Container{
		Path:      path,
		m:         m,
		blockSize: int(sb.BlockSize),
		fatClass:  int(sb.FatClass),
		n:         sb.N(),
	}
	c.fatOff = c.blockSize
	c.dataOff = c.fatOff + int(c.n)*4
	return c, nil
}

func format(path string, blockSize, fatClass int) (*Container, error) {
	if !ValidBlockSize(blockSize) {
		return nil, &UsageError{Reason: fmt.Sprintf("invalid block size (%d)", blockSize)}
	}
	if !ValidFatClass(fatClass) {
		return nil, &UsageError{Reason: fmt.Sprintf("invalid fat type (%d)", fatClass)}
	}
	size := Size(blockSize, fatClass)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		return nil, fmt.Errorf("cannot create filesystem (%s): %w", path, err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("cannot extend filesystem (%s): %w", path, err)
	}
	f.Close()

	m, err := openMapping(path, size)
	if err != nil {
		return nil, err
	}
	n := int32(1) << uint(fatClass)
	c := &Container{
		Path:      path,
		m:         m,
		blockSize: blockSize,
		fatClass:  fatClass,
		n:         n,
	}
	c.fatOff = c.blockSize
	c.dataOff = c.fatOff + int(c.n)*4

	c.writeSuperblock(Superblock{
		Magic:     Magic,
		BlockSize: int32(blockSize),
		FatClass:  int32(fatClass),
		RootBlock: 0,
		FreeHead:  1,
		FreeCount: n - 1,
	})
	c.initFAT()
	return c, nil
}

func (c *Container) initFAT() {
	c.SetFatNext(0, -1)
	for i := int32(1); i < c.n-1; i++ {
		c.SetFatNext(i, i+1)
	}
	c.SetFatNext(c.n-1, -1)
}

// BlockSize returns the configured block size in bytes.
func (c *Container) BlockSize() int { return c.blockSize }

// FatClass returns the configured FAT class.
func (c *Container) FatClass() int { return c.fatClass }

// N returns the number of data blocks.
func (c *Container) N() int32 { return c.n }

func (c *Container) readSuperblock() Superblock {
	return decodeSuperblock(c.m.Bytes()[0:superblockSize])
}

func (c *Container) writeSuperblock(sb Superblock) {
	sb.encode(c.m.Bytes()[0:superblockSize])
}

// RootBlock returns the data-block index of the root directory.
func (c *Container) RootBlock() int32 { return c.readSuperblock().RootBlock }

// FreeHead returns the head of the free-block list.
func (c *Container) FreeHead() int32 { return c.readSuperblock().FreeHead }

// SetFreeHead updates the head of the free-block list.
func (c *Container) SetFreeHead(b int32) {
	sb := c.readSuperblock()
	sb.FreeHead = b
	c.writeSuperblock(sb)
}

// FreeCount returns the number of free blocks.
func (c *Container) FreeCount() int32 { return c.readSuperblock().FreeCount }

// SetFreeCount updates the number of free blocks.
func (c *Container) SetFreeCount(n int32) {
	sb := c.readSuperblock()
	sb.FreeCount = n
	c.writeSuperblock(sb)
}

func (c *Container) fatEntryOffset(b int32) int {
	return c.fatOff + int(b)*4
}

// FatNext returns fat[b]: the next block in b's chain, or -1 at end.
func (c *Container) FatNext(b int32) int32 {
	off := c.fatEntryOffset(b)
	return int32(binary.LittleEndian.Uint32(c.m.Bytes()[off : off+4]))
}

// SetFatNext sets fat[b] = v.
func (c *Container) SetFatNext(b, v int32) {
	off := c.fatEntryOffset(b)
	binary.LittleEndian.PutUint32(c.m.Bytes()[off:off+4], uint32(v))
}

// Block returns the byte slice for data block b, sized BlockSize().
func (c *Container) Block(b int32) []byte {
	off := c.dataOff + int(b)*c.blockSize
	return c.m.Bytes()[off : off+c.blockSize]
}

// Flush forces any pending writes out to the host file.
func (c *Container) Flush() error {
	return c.m.Sync()
}

// Close flushes and releases the container's backing mapping.
func (c *Container) Close() error {
	return c.m.Close()
}

// Snapshot returns a copy of the full container image bytes, suitable for
// a host-side backup.
func (c *Container) Snapshot() []byte {
	b := c.m.Bytes()
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
