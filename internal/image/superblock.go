// Package image implements the on-disk container: superblock, FAT, and the
// mapped data-block region that everything else in the filesystem is built
// on top of.
package image

import "encoding/binary"

// Magic identifies a valid container. It never changes across versions.
const Magic = 9999

// superblockSize is the number of bytes the superblock actually occupies;
// the remainder of the first block is left zeroed.
const superblockSize = 6 * 4

// Superblock is the fixed-layout header stored in block 0 of the image.
type Superblock struct {
	Magic     int32
	BlockSize int32
	FatClass  int32
	RootBlock int32
	FreeHead  int32
	FreeCount int32
}

// N returns the number of data blocks for this superblock's FAT class.
func (s Superblock) N() int32 {
	return 1 << uint(s.FatClass)
}

func (s Superblock) encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], uint32(s.Magic))
	binary.LittleEndian.PutUint32(b[4:8], uint32(s.BlockSize))
	binary.LittleEndian.PutUint32(b[8:12], uint32(s.FatClass))
	binary.LittleEndian.PutUint32(b[12:16], uint32(s.RootBlock))
	binary.LittleEndian.PutUint32(b[16:20], uint32(s.FreeHead))
	binary.LittleEndian.PutUint32(b[20:24], uint32(s.FreeCount))
}

func decodeSuperblock(b []byte) Superblock {
	return Superblock{
		Magic:     int32(binary.LittleEndian.Uint32(b[0:4])),
		BlockSize: int32(binary.LittleEndian.Uint32(b[4:8])),
		FatClass:  int32(binary.LittleEndian.Uint32(b[8:12])),
		RootBlock: int32(binary.LittleEndian.Uint32(b[12:16])),
		FreeHead:  int32(binary.LittleEndian.Uint32(b[16:20])),
		FreeCount: int32(binary.LittleEndian.Uint32(b[20:24])),
	}
}

// ValidBlockSize reports whether bs is one of the supported block sizes.
func ValidBlockSize(bs int) bool {
	switch bs {
	case 128, 256, 512, 1024:
		return true
	default:
		return false
	}
}

// ValidFatClass reports whether fc is one of the supported FAT classes.
func ValidFatClass(fc int) bool {
	switch fc {
	case 7, 8, 9, 10:
		return true
	default:
		return false
	}
}

// Size computes the total container size in bytes for the given parameters:
// one superblock block, N FAT entries of 4 bytes each, and N data blocks.
func Size(blockSize, fatClass int) int64 {
	n := int64(1) << uint(fatClass)
	return int64(blockSize) + n*4 + n*int64(blockSize)
}
