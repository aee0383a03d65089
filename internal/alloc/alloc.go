// Package alloc implements the free-block allocator: a stateless LIFO free
// list rooted in the superblock, threaded through the FAT. Grounded on the
// original vfs.c's get_free_block/free_block, generalized with a
// chain-splice release for whole chains.
package alloc

import "github.com/diskfs/vfs/internal/image"

// None is returned by Acquire when the container is out of free blocks.
const None int32 = -1

// Allocator is a thin, stateless wrapper around a Container's superblock
// and FAT fields -- it carries no state of its own, exactly like the
// original C functions it is grounded on.
type Allocator struct {
	c *image.Container
}

// New returns an Allocator over c.
func New(c *image.Container) *Allocator {
	return &Allocator{c: c}
}

// FreeCount returns the number of blocks currently on the free list.
func (a *Allocator) FreeCount() int32 {
	return a.c.FreeCount()
}

// Acquire removes and returns the head of the free list, or None if the
// container is full.
func (a *Allocator) Acquire() int32 {
	if a.c.FreeCount() == 0 {
		return None
	}
	b := a.c.FreeHead()
	a.c.SetFreeHead(a.c.FatNext(b))
	a.c.SetFatNext(b, -1)
	a.c.SetFreeCount(a.c.FreeCount() - 1)
	return b
}

// Release returns a single block to the front of the free list. The caller
// must ensure b is not reachable from any live chain.
func (a *Allocator) Release(b int32) {
	a.c.SetFatNext(b, a.c.FreeHead())
	a.c.SetFreeHead(b)
	a.c.SetFreeCount(a.c.FreeCount() + 1)
}

// FreeChain splices an entire chain, starting at head h, onto the front of
// the free list in one operation. It walks the chain once to find its tail
// and count its length.
func (a *Allocator) FreeChain(h int32) {
	if h == -1 {
		return
	}
	t := h
	count := int32(1)
	for a.c.FatNext(t) != -1 {
		t = a.c.FatNext(t)
		count++
	}
	a.c.SetFatNext(t, a.c.FreeHead())
	a.c.SetFreeHead(h)
	a.c.SetFreeCount(a.c.FreeCount() + count)
}
