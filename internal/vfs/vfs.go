// Package vfs ties the allocator and directory/file chains together into
// the namespace operations the shell exposes: ls, mkdir, cd, pwd, rmdir,
// get, put, cat, cp, mv, rm. It is the Go-native collapse of vfs.c's
// vfs_ls/vfs_mkdir/.../vfs_rm free functions, all of which close over the
// same two bits of global state (the open image and the current directory
// block) that this package instead carries as fields on VFS.
package vfs

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/diskfs/vfs/internal/alloc"
	"github.com/diskfs/vfs/internal/dirent"
	"github.com/diskfs/vfs/internal/directory"
	"github.com/diskfs/vfs/internal/filedata"
	"github.com/diskfs/vfs/internal/image"
	"github.com/diskfs/vfs/internal/vfserr"
	"github.com/diskfs/vfs/util/timestamp"
	times "gopkg.in/djherbis/times.v1"
)

var monthAbbrev = [...]string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

// VFS is a session over one open container: the allocator plus the block
// of the directory the session is currently positioned in.
type VFS struct {
	c   *image.Container
	a   *alloc.Allocator
	cur int32
}

// Open wraps an already-open container in a VFS, bootstrapping the root
// directory first if created reports that the container was just formatted.
func Open(c *image.Container, created bool) *VFS {
	a := alloc.New(c)
	if created {
		directory.InitRoot(c, a)
	}
	return &VFS{c: c, a: a, cur: c.RootBlock()}
}

// FreeBlocks returns the number of free blocks remaining in the container.
func (v *VFS) FreeBlocks() int32 { return v.a.FreeCount() }

func (v *VFS) dir() *directory.Chain {
	return directory.Open(v.c, v.a, v.cur)
}

// List renders one line per live entry of the current directory, sorted by
// the rendered line's byte order (name-first, since the name is the line's
// leading field).
func (v *VFS) List() []string {
	entries := v.dir().Entries()
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		var kind string
		if e.IsDir() {
			kind = "DIR"
		} else {
			kind = fmt.Sprintf("%d", e.Size)
		}
		month := "???"
		if e.Month >= 1 && int(e.Month) <= len(monthAbbrev) {
			month = monthAbbrev[e.Month-1]
		}
		lines = append(lines, fmt.Sprintf("%-20s\t%02d-%s-%04d\t%s",
			e.Name, e.Day, month, 1900+int(e.Year), kind))
	}
	sort.Strings(lines)
	return lines
}

// MakeDir creates an empty subdirectory named name in the current
// directory.
func (v *VFS) MakeDir(name string) error {
	const cmd = "mkdir"
	if err := dirent.ValidateName(name); err != nil {
		return vfserr.New(vfserr.NameTooLong, cmd, "cannot create directory '%s' - %s", name, err)
	}
	d := v.dir()
	if _, _, ok := d.Find(name); ok {
		return vfserr.New(vfserr.AlreadyExists, cmd, "cannot create directory '%s' - entry exists", name)
	}
	demand := int32(1) // the new directory's own first block
	if d.NeedsTailBlockForAppend() {
		demand++
	}
	if v.a.FreeCount() < demand {
		return vfserr.New(vfserr.CapacityExhausted, cmd, "cannot create directory '%s' - disk is full", name)
	}
	now := timestamp.GetTime()
	head := directory.NewChild(v.c, v.a, v.cur, now)
	d.Append(dirent.Entry{
		Type: dirent.TypeDir, Name: name,
		Day: uint8(now.Day()), Month: uint8(now.Month()), Year: uint8(now.Year() - 1900),
		Size: 0, FirstBlock: head,
	})
	return nil
}

// ChangeDir moves the session's current directory to the first block of
// the entry named name. The entry's type is not checked.
func (v *VFS) ChangeDir(name string) error {
	const cmd = "cd"
	_, e, ok := v.dir().Find(name)
	if !ok {
		return vfserr.New(vfserr.NotFound, cmd, "cannot cd into '%s' - entry doesn't exist", name)
	}
	v.cur = e.FirstBlock
	return nil
}

// PrintWorkingDir returns the absolute path of the current directory by
// walking ".." links up to the root.
func (v *VFS) PrintWorkingDir() string {
	path := ""
	cur := v.cur
	for cur != v.c.RootBlock() {
		d := directory.Open(v.c, v.a, cur)
		parent := d.Get(1).FirstBlock
		pd := directory.Open(v.c, v.a, parent)
		for _, e := range pd.Entries() {
			if e.FirstBlock == cur {
				path = "/" + e.Name + path
				break
			}
		}
		cur = parent
	}
	if path == "" {
		return "/"
	}
	return path
}

// RemoveDir deletes the empty subdirectory named name from the current
// directory.
func (v *VFS) RemoveDir(name string) error {
	const cmd = "rmdir"
	d := v.dir()
	idx, e, ok := d.Find(name)
	if !ok {
		return vfserr.New(vfserr.NotFound, cmd, "cannot remove directory '%s' - entry doesn't exist", name)
	}
	if !e.IsDir() {
		return vfserr.New(vfserr.TypeMismatch, cmd, "cannot remove directory '%s' - entry not a directory", name)
	}
	target := directory.Open(v.c, v.a, e.FirstBlock)
	if target.Size() != 2 {
		return vfserr.New(vfserr.NotEmpty, cmd, "cannot remove directory '%s' - entry not empty", name)
	}
	v.a.Release(e.FirstBlock)
	d.Remove(idx)
	return nil
}

// Ingest copies the host file at hostPath into the current directory under
// name.
func (v *VFS) Ingest(hostPath, name string) error {
	const cmd = "get"
	if err := dirent.ValidateName(name); err != nil {
		return vfserr.New(vfserr.NameTooLong, cmd, "cannot get '%s' - %s", name, err)
	}
	d := v.dir()
	if _, _, ok := d.Find(name); ok {
		return vfserr.New(vfserr.AlreadyExists, cmd, "cannot get '%s' - destination file already exists", name)
	}
	st, err := os.Stat(hostPath)
	if err != nil {
		return vfserr.New(vfserr.HostIOError, cmd, "cannot get '%s' - input file not found", hostPath)
	}
	if !st.Mode().IsRegular() {
		return vfserr.New(vfserr.HostIOError, cmd, "cannot get '%s' - file is not a regular file", hostPath)
	}
	length := st.Size()
	demand := int32(filedata.BlocksNeeded(v.c.BlockSize(), length))
	if d.NeedsTailBlockForAppend() {
		demand++
	}
	if v.a.FreeCount() < demand {
		return vfserr.New(vfserr.CapacityExhausted, cmd, "cannot get '%s' - disk space is full", hostPath)
	}
	f, err := os.Open(hostPath)
	if err != nil {
		return vfserr.New(vfserr.HostIOError, cmd, "cannot get '%s' - input file not found", hostPath)
	}
	defer f.Close()
	first, err := filedata.CreateFromReader(v.c, v.a, f, length)
	if err != nil {
		return vfserr.New(vfserr.HostIOError, cmd, "cannot get '%s' - %s", hostPath, err)
	}
	mtime := timestamp.GetTime()
	if ts, err := times.Stat(hostPath); err == nil {
		mtime = ts.ModTime()
	}
	d.Append(dirent.Entry{
		Type: dirent.TypeFile, Name: name,
		Day: uint8(mtime.Day()), Month: uint8(mtime.Month()), Year: uint8(mtime.Year() - 1900),
		Size: uint32(length), FirstBlock: first,
	})
	return nil
}

// Egress writes the file named name out to the host filesystem at
// hostPath.
func (v *VFS) Egress(name, hostPath string) error {
	const cmd = "put"
	_, e, ok := v.dir().Find(name)
	if !ok {
		return vfserr.New(vfserr.NotFound, cmd, "cannot put '%s' - file not found", name)
	}
	if !e.IsFile() {
		return vfserr.New(vfserr.TypeMismatch, cmd, "cannot put '%s' - entry not a file", name)
	}
	f, err := os.Create(hostPath)
	if err != nil {
		return vfserr.New(vfserr.HostIOError, cmd, "cannot put '%s' - %s", name, err)
	}
	defer f.Close()
	if err := filedata.WriteTo(v.c, e.FirstBlock, int64(e.Size), f); err != nil {
		return vfserr.New(vfserr.HostIOError, cmd, "cannot put '%s' - %s", name, err)
	}
	return nil
}

// Cat writes the file named name's contents to w.
func (v *VFS) Cat(name string, w io.Writer) error {
	const cmd = "cat"
	_, e, ok := v.dir().Find(name)
	if !ok {
		return vfserr.New(vfserr.NotFound, cmd, "cannot cat '%s' - entry not found", name)
	}
	if !e.IsFile() {
		return vfserr.New(vfserr.TypeMismatch, cmd, "cannot cat '%s' - entry not a file", name)
	}
	return filedata.WriteTo(v.c, e.FirstBlock, int64(e.Size), w)
}

// resolveTarget applies the shared cp/mv destination rule: if dstName names
// an existing subdirectory of d, the target becomes that subdirectory and
// the final name reverts to origName; if it names an existing file, that
// file's slot is returned for removal; otherwise dstName is a plain create
// (or rename) in d itself.
func resolveTarget(d *directory.Chain, cur int32, origName, dstName string) (targetHead int32, finalName string, existingIdx int) {
	targetHead, finalName, existingIdx = cur, dstName, -1
	if idx, e, ok := d.Find(dstName); ok {
		if e.IsDir() {
			targetHead = e.FirstBlock
			finalName = origName
		} else {
			existingIdx = idx
		}
	}
	return
}

// Copy duplicates the file named srcName's content into a new chain,
// placing it in the current directory (or, if dstName names a
// subdirectory, inside that subdirectory under srcName's own name). An
// existing file at the destination is overwritten. Capacity is reserved
// before any existing destination entry is removed, so a failed copy
// never leaves the destination deleted.
func (v *VFS) Copy(srcName, dstName string) error {
	const cmd = "cp"
	d := v.dir()
	_, src, ok := d.Find(srcName)
	if !ok {
		return vfserr.New(vfserr.NotFound, cmd, "cannot copy '%s' - file not found", srcName)
	}
	if !src.IsFile() {
		return vfserr.New(vfserr.TypeMismatch, cmd, "cannot copy '%s' - entry not a file", srcName)
	}
	if err := dirent.ValidateName(dstName); err != nil {
		return vfserr.New(vfserr.NameTooLong, cmd, "cannot copy '%s' - %s", dstName, err)
	}

	targetHead, finalName, existingIdx := resolveTarget(d, v.cur, srcName, dstName)
	target := directory.Open(v.c, v.a, targetHead)

	demand := int32(filedata.BlocksNeeded(v.c.BlockSize(), int64(src.Size)))
	if target.NeedsTailBlockForAppend() {
		demand++
	}
	if v.a.FreeCount() < demand {
		return vfserr.New(vfserr.CapacityExhausted, cmd, "cannot copy '%s' - disk space is full", srcName)
	}

	if existingIdx >= 0 {
		old := target.Get(existingIdx)
		v.a.FreeChain(old.FirstBlock)
		target.Remove(existingIdx)
	}

	newFirst := filedata.Duplicate(v.c, v.a, src.FirstBlock, int64(src.Size))
	now := timestamp.GetTime()
	target.Append(dirent.Entry{
		Type: dirent.TypeFile, Name: finalName,
		Day: uint8(now.Day()), Month: uint8(now.Month()), Year: uint8(now.Year() - 1900),
		Size: src.Size, FirstBlock: newFirst,
	})
	return nil
}

// Move relocates the file named srcName to dstName (or into dstName, if it
// names a subdirectory), reusing its block chain unchanged. The entry's
// firstBlock and size are captured before the current directory's
// swap-with-last removal runs, so the relinked chain is always the one
// that belonged to srcName, never whatever entry got swapped into its
// vacated slot. The destination is resolved only after the source has
// been removed: that ordering is what lets a plain rename-in-place
// (dstName == srcName) fall through to the ordinary not-found branch and
// reduce to a bare remove-then-append, instead of colliding with its own
// slot.
func (v *VFS) Move(srcName, dstName string) error {
	const cmd = "mv"
	d := v.dir()
	idx, src, ok := d.Find(srcName)
	if !ok {
		return vfserr.New(vfserr.NotFound, cmd, "cannot move '%s' - file not found", srcName)
	}
	if !src.IsFile() {
		return vfserr.New(vfserr.TypeMismatch, cmd, "cannot move '%s' - entry not a file", srcName)
	}
	if err := dirent.ValidateName(dstName); err != nil {
		return vfserr.New(vfserr.NameTooLong, cmd, "cannot move '%s' - %s", dstName, err)
	}

	originalFirst := src.FirstBlock
	originalSize := src.Size

	d.Remove(idx)

	targetHead, finalName, existingIdx := resolveTarget(d, v.cur, srcName, dstName)
	target := directory.Open(v.c, v.a, targetHead)

	if existingIdx >= 0 {
		old := target.Get(existingIdx)
		v.a.FreeChain(old.FirstBlock)
		target.Remove(existingIdx)
	}

	now := timestamp.GetTime()
	target.Append(dirent.Entry{
		Type: dirent.TypeFile, Name: finalName,
		Day: uint8(now.Day()), Month: uint8(now.Month()), Year: uint8(now.Year() - 1900),
		Size: originalSize, FirstBlock: originalFirst,
	})
	return nil
}

// RemoveFile deletes the file named name from the current directory and
// frees its whole block chain.
func (v *VFS) RemoveFile(name string) error {
	const cmd = "rm"
	d := v.dir()
	idx, e, ok := d.Find(name)
	if !ok || !e.IsFile() {
		return vfserr.New(vfserr.NotFound, cmd, "cannot remove '%s' - file not found", name)
	}
	v.a.FreeChain(e.FirstBlock)
	d.Remove(idx)
	return nil
}
