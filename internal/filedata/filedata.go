// Package filedata implements the file content chain: create-from-host-
// bytes, read-to-host, and duplicate-chain, all against raw block chains
// threaded through the same FAT the directory chains use. Grounded on
// vfs.c's vfs_get/vfs_put/vfs_cat/vfs_cp block loops, but rewritten against
// io.Reader/io.Writer so that interior NUL bytes survive copies of file
// payload untouched.
package filedata

import (
	"io"

	"github.com/diskfs/vfs/internal/alloc"
	"github.com/diskfs/vfs/internal/image"
)

// BlocksNeeded returns how many blocks a file of the given length needs,
// with a floor of 1 block even for a zero-length file (see DESIGN.md for
// the reasoning behind always acquiring at least one block).
func BlocksNeeded(blockSize int, length int64) int {
	if length <= 0 {
		return 1
	}
	return int((length + int64(blockSize) - 1) / int64(blockSize))
}

// CreateFromReader allocates a new block chain of exactly BlocksNeeded(len)
// blocks, copies length bytes from r into it block by block, and returns
// the chain's first block. The caller must already have confirmed that
// enough free blocks exist (reserve-then-commit).
func CreateFromReader(c *image.Container, a *alloc.Allocator, r io.Reader, length int64) (int32, error) {
	need := BlocksNeeded(c.BlockSize(), length)
	first := a.Acquire()
	blocks := make([]int32, 1, need)
	blocks[0] = first
	prev := first
	for i := 1; i < need; i++ {
		b := a.Acquire()
		c.SetFatNext(prev, b)
		blocks = append(blocks, b)
		prev = b
	}
	c.SetFatNext(prev, -1)

	remaining := length
	for _, b := range blocks {
		buf := c.Block(b)
		toRead := int64(len(buf))
		if toRead > remaining {
			toRead = remaining
		}
		if toRead > 0 {
			if _, err := io.ReadFull(r, buf[:toRead]); err != nil {
				return first, err
			}
		}
		remaining -= toRead
	}
	return first, nil
}

// WriteTo walks the chain starting at first and writes exactly length
// bytes to w: BlockSize bytes for every block but the last, and the
// residual length%BlockSize bytes (or a full block when that residual is
// zero and length > 0) for the last one.
func WriteTo(c *image.Container, first int32, length int64, w io.Writer) error {
	blockSize := int64(c.BlockSize())
	remaining := length
	block := first
	for {
		buf := c.Block(block)
		n := blockSize
		if remaining < n {
			n = remaining
		}
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return err
			}
		}
		remaining -= n
		next := c.FatNext(block)
		if next == -1 {
			break
		}
		block = next
	}
	return nil
}

// Duplicate copies the chain starting at src (holding length bytes) into a
// newly allocated chain of identical length, block by block, and returns
// the new chain's first block. The caller must have already reserved
// capacity for BlocksNeeded(length) new blocks.
func Duplicate(c *image.Container, a *alloc.Allocator, src int32, length int64) int32 {
	need := BlocksNeeded(c.BlockSize(), length)
	first := a.Acquire()
	prev := first
	cur := src
	copy(c.Block(first), c.Block(src))
	for i := 1; i < need; i++ {
		cur = c.FatNext(cur)
		b := a.Acquire()
		c.SetFatNext(prev, b)
		copy(c.Block(b), c.Block(cur))
		prev = b
	}
	c.SetFatNext(prev, -1)
	return first
}
