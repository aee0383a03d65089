package vfs

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/diskfs/vfs/internal/image"
	"github.com/diskfs/vfs/internal/vfserr"
)

func newTestVFS(t *testing.T, blockSize, fatClass int) *VFS {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.vfs")
	c, created, err := image.Open(path, blockSize, fatClass)
	if err != nil {
		t.Fatalf("image.Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return Open(c, created)
}

func hostFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
	return path
}

func asVFSErr(t *testing.T, err error) *vfserr.Error {
	t.Helper()
	ve, ok := err.(*vfserr.Error)
	if !ok {
		t.Fatalf("error %v is a %T, not *vfserr.Error", err, err)
	}
	return ve
}

// Scenario 1: fresh format + list.
func TestFreshFormatListsDotAndDotDot(t *testing.T) {
	v := newTestVFS(t, 256, 8)

	lines := v.List()
	if len(lines) != 2 {
		t.Fatalf("List() returned %d lines, want 2 (. and ..): %v", len(lines), lines)
	}
	if v.PrintWorkingDir() != "/" {
		t.Errorf("PrintWorkingDir() = %q, want %q", v.PrintWorkingDir(), "/")
	}
}

// Create/remove idempotence at the namespace level.
func TestMkdirRmdirIdempotence(t *testing.T) {
	v := newTestVFS(t, 256, 8)
	before := v.FreeBlocks()

	if err := v.MakeDir("x"); err != nil {
		t.Fatalf("MakeDir: %v", err)
	}
	if err := v.RemoveDir("x"); err != nil {
		t.Fatalf("RemoveDir: %v", err)
	}

	if v.FreeBlocks() != before {
		t.Errorf("FreeBlocks() = %d, want %d (pre-mkdir value)", v.FreeBlocks(), before)
	}
	if v.dir().Size() != 2 {
		t.Errorf("root Size() = %d, want 2", v.dir().Size())
	}
}

func TestMkdirCrossingTailBoundaryThenRmdirRestores(t *testing.T) {
	v := newTestVFS(t, 256, 8) // EntrySize=32 -> 8 entries per block
	epb := v.c.BlockSize() / 32

	// Fill the root block exactly: 2 (., ..) + (epb-2) more.
	for i := 0; i < epb-2; i++ {
		if err := v.MakeDir(name(i)); err != nil {
			t.Fatalf("MakeDir(%s): %v", name(i), err)
		}
	}
	if v.dir().Len() != 1 {
		t.Fatalf("root directory grew early: Len() = %d", v.dir().Len())
	}

	before := v.FreeBlocks()
	if err := v.MakeDir("boundary"); err != nil {
		t.Fatalf("MakeDir(boundary): %v", err)
	}
	if v.dir().Len() != 2 {
		t.Fatalf("Len() = %d after the boundary-crossing mkdir, want 2", v.dir().Len())
	}
	if consumed := before - v.FreeBlocks(); consumed != 2 {
		t.Errorf("boundary mkdir consumed %d blocks, want 2 (new tail block + new dir's head block)", consumed)
	}

	if err := v.RemoveDir("boundary"); err != nil {
		t.Fatalf("RemoveDir(boundary): %v", err)
	}
	if v.dir().Len() != 1 {
		t.Errorf("Len() = %d after rmdir of the boundary entry, want 1 (tail block freed)", v.dir().Len())
	}
	if v.FreeBlocks() != before {
		t.Errorf("FreeBlocks() = %d, want %d restored after rmdir", v.FreeBlocks(), before)
	}
}

func name(i int) string {
	return string(rune('a' + i))
}

// Scenario 3: ingest / egress round-trip.
func TestIngestEgressRoundTrip(t *testing.T) {
	v := newTestVFS(t, 256, 8)
	content := make([]byte, 600)
	for i := range content {
		content[i] = byte(i % 7)
	}
	content[100] = 0
	content[101] = 0
	hostPath := hostFile(t, "h.bin", content)

	if err := v.Ingest(hostPath, "a"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	_, e, ok := v.dir().Find("a")
	if !ok {
		t.Fatalf("entry 'a' not found after Ingest")
	}
	if e.Size != 600 {
		t.Errorf("Size = %d, want 600", e.Size)
	}
	chainLen := chainLength(v, e.FirstBlock)
	if chainLen != 3 {
		t.Errorf("chain length = %d, want 3 (ceil(600/256))", chainLen)
	}

	outPath := filepath.Join(t.TempDir(), "h2.bin")
	if err := v.Egress("a", outPath); err != nil {
		t.Fatalf("Egress: %v", err)
	}
	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("egressed bytes do not match the original host file")
	}
}

func chainLength(v *VFS, first int32) int {
	n := 0
	b := first
	for {
		n++
		next := v.c.FatNext(b)
		if next == -1 {
			break
		}
		b = next
	}
	return n
}

// Scenario 4: copy into a directory.
func TestCopyIntoDirectory(t *testing.T) {
	v := newTestVFS(t, 256, 8)
	content := bytes.Repeat([]byte("xyz"), 200)
	hostPath := hostFile(t, "h.bin", content)

	if err := v.MakeDir("sub"); err != nil {
		t.Fatalf("MakeDir(sub): %v", err)
	}
	if err := v.Ingest(hostPath, "a"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := v.Copy("a", "sub"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if err := v.ChangeDir("sub"); err != nil {
		t.Fatalf("ChangeDir(sub): %v", err)
	}

	_, e, ok := v.dir().Find("a")
	if !ok {
		t.Fatalf("'a' not found inside sub after cp a sub")
	}
	if int(e.Size) != len(content) {
		t.Errorf("copied entry size = %d, want %d", e.Size, len(content))
	}

	var out bytes.Buffer
	if err := v.Cat("a", &out); err != nil {
		t.Fatalf("Cat: %v", err)
	}
	if !bytes.Equal(out.Bytes(), content) {
		t.Fatalf("copied file bytes do not match the source")
	}
}

// Copy independence: rm the source after cp must not disturb the copy.
func TestCopyIndependenceFromSource(t *testing.T) {
	v := newTestVFS(t, 256, 8)
	content := []byte("independent copy bytes")
	hostPath := hostFile(t, "h.bin", content)

	if err := v.Ingest(hostPath, "a"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := v.Copy("a", "b"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if err := v.RemoveFile("a"); err != nil {
		t.Fatalf("RemoveFile(a): %v", err)
	}

	var out bytes.Buffer
	if err := v.Cat("b", &out); err != nil {
		t.Fatalf("Cat(b) after rm a: %v", err)
	}
	if !bytes.Equal(out.Bytes(), content) {
		t.Fatalf("b's bytes changed after removing a")
	}
}

// Scenario 5: move overwrite -- and the mv first_block-after-swap bug fix.
func TestMoveOverwriteReusesSourceChain(t *testing.T) {
	v := newTestVFS(t, 256, 8)
	content := []byte("identical payload for both a and b")
	hostPath := hostFile(t, "h.bin", content)

	if err := v.Ingest(hostPath, "a"); err != nil {
		t.Fatalf("Ingest a: %v", err)
	}
	// A third entry between a and b forces a's slot to be mid-chain, so
	// removing it during the swap-with-last touches a different slot than
	// the one that held a's own data -- the scenario the original bug hid in.
	if err := v.MakeDir("filler"); err != nil {
		t.Fatalf("MakeDir(filler): %v", err)
	}
	if err := v.Ingest(hostPath, "b"); err != nil {
		t.Fatalf("Ingest b: %v", err)
	}

	_, aEntry, _ := v.dir().Find("a")
	aFirstBlock := aEntry.FirstBlock

	if err := v.Move("a", "b"); err != nil {
		t.Fatalf("Move: %v", err)
	}

	if _, _, ok := v.dir().Find("a"); ok {
		t.Errorf("'a' still present after mv a b")
	}
	_, bEntry, ok := v.dir().Find("b")
	if !ok {
		t.Fatalf("'b' missing after mv a b")
	}
	if bEntry.FirstBlock != aFirstBlock {
		t.Fatalf("b.FirstBlock = %d, want %d (a's original chain, not whatever slot got swapped in)", bEntry.FirstBlock, aFirstBlock)
	}

	var out bytes.Buffer
	if err := v.Cat("b", &out); err != nil {
		t.Fatalf("Cat(b): %v", err)
	}
	if !bytes.Equal(out.Bytes(), content) {
		t.Fatalf("b's bytes after move do not match the original payload")
	}

	names := map[string]bool{}
	for _, e := range v.dir().Entries() {
		names[e.Name] = true
	}
	if names["a"] {
		t.Errorf("'a' unexpectedly still present: %v", names)
	}
	if !names["b"] || !names["filler"] || !names["."] || !names[".."] {
		t.Errorf("unexpected final entry set: %v", names)
	}
}

// Scenario 6: capacity rejection.
func TestIngestCapacityRejection(t *testing.T) {
	v := newTestVFS(t, 128, 7) // N=128 data blocks total
	before := v.FreeBlocks()

	huge := make([]byte, int(before+10)*128)
	hostPath := hostFile(t, "huge.bin", huge)

	err := v.Ingest(hostPath, "huge")
	if err == nil {
		t.Fatalf("Ingest of an oversized file succeeded, want CapacityExhausted")
	}
	ve := asVFSErr(t, err)
	if ve.Code != vfserr.CapacityExhausted {
		t.Errorf("Code = %v, want CapacityExhausted", ve.Code)
	}
	if v.FreeBlocks() != before {
		t.Errorf("FreeBlocks() = %d, want %d (unchanged on rejection)", v.FreeBlocks(), before)
	}
	if _, _, ok := v.dir().Find("huge"); ok {
		t.Errorf("a partial 'huge' entry was created despite rejection")
	}
}

func TestMkdirRejectsDuplicateAndTooLongName(t *testing.T) {
	v := newTestVFS(t, 256, 8)
	if err := v.MakeDir("dup"); err != nil {
		t.Fatalf("MakeDir(dup): %v", err)
	}
	err := v.MakeDir("dup")
	if err == nil || asVFSErr(t, err).Code != vfserr.AlreadyExists {
		t.Errorf("MakeDir(dup) again: got %v, want AlreadyExists", err)
	}

	err = v.MakeDir("this-name-is-twenty-chars")
	if err == nil || asVFSErr(t, err).Code != vfserr.NameTooLong {
		t.Errorf("MakeDir(too-long): got %v, want NameTooLong", err)
	}
}

func TestRmdirRejectsNonEmptyAndWrongType(t *testing.T) {
	v := newTestVFS(t, 256, 8)
	if err := v.MakeDir("d"); err != nil {
		t.Fatalf("MakeDir(d): %v", err)
	}
	if err := v.ChangeDir("d"); err != nil {
		t.Fatalf("ChangeDir(d): %v", err)
	}
	if err := v.MakeDir("inner"); err != nil {
		t.Fatalf("MakeDir(inner): %v", err)
	}
	if err := v.ChangeDir(".."); err != nil {
		t.Fatalf("ChangeDir(..): %v", err)
	}

	err := v.RemoveDir("d")
	if err == nil || asVFSErr(t, err).Code != vfserr.NotEmpty {
		t.Errorf("RemoveDir(d) (non-empty): got %v, want NotEmpty", err)
	}

	content := []byte("plain file")
	hostPath := hostFile(t, "f.bin", content)
	if err := v.Ingest(hostPath, "f"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	err = v.RemoveDir("f")
	if err == nil || asVFSErr(t, err).Code != vfserr.TypeMismatch {
		t.Errorf("RemoveDir(f) (a file): got %v, want TypeMismatch", err)
	}
}

func TestPwdAfterDescendingAndReturning(t *testing.T) {
	v := newTestVFS(t, 256, 8)
	if err := v.MakeDir("a"); err != nil {
		t.Fatalf("MakeDir(a): %v", err)
	}
	if err := v.ChangeDir("a"); err != nil {
		t.Fatalf("ChangeDir(a): %v", err)
	}
	if err := v.MakeDir("b"); err != nil {
		t.Fatalf("MakeDir(b): %v", err)
	}
	if err := v.ChangeDir("b"); err != nil {
		t.Fatalf("ChangeDir(b): %v", err)
	}
	if got := v.PrintWorkingDir(); got != "/a/b" {
		t.Errorf("PrintWorkingDir() = %q, want %q", got, "/a/b")
	}
	if err := v.ChangeDir(".."); err != nil {
		t.Fatalf("ChangeDir(..): %v", err)
	}
	if got := v.PrintWorkingDir(); got != "/a" {
		t.Errorf("PrintWorkingDir() after cd .. = %q, want %q", got, "/a")
	}
}
