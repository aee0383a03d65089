// Package directory implements the directory chain: a sequence of fixed-
// size dirent.Entry records threaded across data blocks, with the live
// count carried in slot 0 ("."). It is the Go-native collapse of the
// repeated cur_block/block_i walk that the original vfs.c inlines at every
// call site (vfs_ls, vfs_mkdir, vfs_rmdir, ...), in the spirit of the
// teacher's fat32/directory.go Directory type centralizing entry
// management instead of repeating it per caller.
package directory

import (
	"time"

	"github.com/diskfs/vfs/internal/alloc"
	"github.com/diskfs/vfs/internal/dirent"
	"github.com/diskfs/vfs/internal/image"
)

// Chain is a handle onto one directory's block chain, addressed by its
// head block.
type Chain struct {
	c     *image.Container
	a     *alloc.Allocator
	Head  int32
	epb   int // entries per block
}

// Open returns a Chain rooted at head.
func Open(c *image.Container, a *alloc.Allocator, head int32) *Chain {
	return &Chain{c: c, a: a, Head: head, epb: c.BlockSize() / dirent.EntrySize}
}

// InitRoot formats data block 0 as an empty root directory: "." and ".."
// both point back at block 0. This is the one piece of directory-layer
// bootstrapping that internal/image deliberately leaves to this package.
func InitRoot(c *image.Container, a *alloc.Allocator) {
	InitBlock(c, 0, 0, 2, time.Now())
}

// NewChild acquires a fresh block, formats it as an empty directory whose
// parent is parent, and returns its head block index.
func NewChild(c *image.Container, a *alloc.Allocator, parent int32, now time.Time) int32 {
	head := a.Acquire()
	InitBlock(c, head, parent, 2, now)
	return head
}

// InitBlock writes "." (firstBlock=block, size=liveCount) and ".."
// (firstBlock=parent) into the first two slots of block, dated now.
func InitBlock(c *image.Container, block, parent int32, liveCount uint32, now time.Time) {
	buf := c.Block(block)
	dot := dirent.Entry{
		Type:       dirent.TypeDir,
		Name:       ".",
		Day:        uint8(now.Day()),
		Month:      uint8(now.Month()),
		Year:       uint8(now.Year() - 1900),
		Size:       liveCount,
		FirstBlock: block,
	}
	dotdot := dirent.Entry{
		Type:       dirent.TypeDir,
		Name:       "..",
		Day:        dot.Day,
		Month:      dot.Month,
		Year:       dot.Year,
		Size:       0,
		FirstBlock: parent,
	}
	dirent.Encode(dot, buf[0:dirent.EntrySize])
	dirent.Encode(dotdot, buf[dirent.EntrySize:2*dirent.EntrySize])
}

// Size returns the directory's live-entry count, stored in "."'s size
// field at slot 0.
func (d *Chain) Size() int {
	return int(d.slotEntry(0).Size)
}

func (d *Chain) setSize(n int) {
	e := d.slotEntry(0)
	e.Size = uint32(n)
	d.writeSlotEntry(0, e)
}

// blockForSlot walks the chain to the block holding slot i, returning the
// block index and the slot's position within it.
func (d *Chain) blockForSlot(i int) (block int32, posInBlock int) {
	block = d.Head
	steps := i / d.epb
	for s := 0; s < steps; s++ {
		block = d.c.FatNext(block)
	}
	return block, i % d.epb
}

func (d *Chain) slotEntry(i int) dirent.Entry {
	block, pos := d.blockForSlot(i)
	buf := d.c.Block(block)
	off := pos * dirent.EntrySize
	return dirent.Decode(buf[off : off+dirent.EntrySize])
}

func (d *Chain) writeSlotEntry(i int, e dirent.Entry) {
	block, pos := d.blockForSlot(i)
	buf := d.c.Block(block)
	off := pos * dirent.EntrySize
	dirent.Encode(e, buf[off:off+dirent.EntrySize])
}

// Get returns the live entry at slot i.
func (d *Chain) Get(i int) dirent.Entry {
	return d.slotEntry(i)
}

// Entries returns every live entry in slot order.
func (d *Chain) Entries() []dirent.Entry {
	n := d.Size()
	out := make([]dirent.Entry, n)
	block := d.Head
	for i := 0; i < n; i++ {
		if i > 0 && i%d.epb == 0 {
			block = d.c.FatNext(block)
		}
		buf := d.c.Block(block)
		off := (i % d.epb) * dirent.EntrySize
		out[i] = dirent.Decode(buf[off : off+dirent.EntrySize])
	}
	return out
}

// Find returns the first live entry matching name, and its slot index.
func (d *Chain) Find(name string) (int, dirent.Entry, bool) {
	n := d.Size()
	block := d.Head
	for i := 0; i < n; i++ {
		if i > 0 && i%d.epb == 0 {
			block = d.c.FatNext(block)
		}
		buf := d.c.Block(block)
		off := (i % d.epb) * dirent.EntrySize
		e := dirent.Decode(buf[off : off+dirent.EntrySize])
		if e.Name == name {
			return i, e, true
		}
	}
	return -1, dirent.Entry{}, false
}

// NeedsTailBlockForAppend reports whether appending one more entry to this
// directory requires acquiring a new tail block first.
func (d *Chain) NeedsTailBlockForAppend() bool {
	return d.Size()%d.epb == 0
}

// Append adds e as the new last live entry, acquiring and linking a new
// tail block first if the current tail is full. The caller is responsible
// for having already reserved capacity for this (reserve-then-commit);
// Append itself does not re-check free count.
func (d *Chain) Append(e dirent.Entry) {
	n := d.Size()
	tail := d.lastBlock()
	if n%d.epb == 0 {
		next := d.a.Acquire()
		d.c.SetFatNext(tail, next)
		tail = next
	}
	buf := d.c.Block(tail)
	off := (n % d.epb) * dirent.EntrySize
	dirent.Encode(e, buf[off:off+dirent.EntrySize])
	d.setSize(n + 1)
}

func (d *Chain) lastBlock() int32 {
	block := d.Head
	for d.c.FatNext(block) != -1 {
		block = d.c.FatNext(block)
	}
	return block
}

// Remove deletes the live entry at slot p via swap-with-last compaction:
// the entry at the last live slot is copied onto p, the count is
// decremented, and if that emptied the tail block, the tail block is freed
// and unlinked. Returns the entry that was removed (its original contents
// at slot p, before the swap overwrote it) so callers that need to act on
// its FirstBlock (e.g. rmdir, rm, mv) can do so without re-reading.
func (d *Chain) Remove(p int) dirent.Entry {
	n := d.Size()
	removed := d.slotEntry(p)

	last := d.slotEntry(n - 1)
	if p != n-1 {
		d.writeSlotEntry(p, last)
	}
	d.setSize(n - 1)

	if (n-1)%d.epb == 0 {
		tail := d.lastBlock()
		prev := d.Head
		if tail != d.Head {
			for d.c.FatNext(prev) != tail {
				prev = d.c.FatNext(prev)
			}
			d.c.SetFatNext(prev, -1)
		}
		d.a.Release(tail)
	}

	return removed
}

// Len returns the number of blocks in this directory's chain (for tests /
// invariant checks: ceil(size/epb)).
func (d *Chain) Len() int {
	n := 0
	block := d.Head
	for {
		n++
		if d.c.FatNext(block) == -1 {
			break
		}
		block = d.c.FatNext(block)
	}
	return n
}
