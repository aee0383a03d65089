// Package dirent encodes and decodes the fixed-size directory entry record,
// independent of how the surrounding block chain is managed. It has no
// knowledge of the container or of chains; it only turns an Entry into 32
// bytes and back, implemented by hand with encoding/binary rather than
// trusting Go struct memory layout.
package dirent

import (
	"encoding/binary"
	"fmt"
)

// TypeDir and TypeFile are the two entry kinds.
const (
	TypeDir  = 'D'
	TypeFile = 'F'
)

// NameField is the width in bytes of the on-disk name field.
const NameField = 20

// NameMax is the maximum number of visible characters a created name may
// have; one byte is reserved for the NUL terminator in the common case.
// Decode tolerates a name that fills all 20 bytes with no terminator.
const NameMax = 19

// EntrySize is the on-disk byte size of one directory entry:
// type(1) + name(20) + day(1) + month(1) + year(1) + size(4) + firstBlock(4).
const EntrySize = 1 + NameField + 1 + 1 + 1 + 4 + 4

// Entry is one directory record: either a subdirectory or a file.
type Entry struct {
	Type       byte
	Name       string
	Day        uint8
	Month      uint8
	Year       uint8 // years since 1900, wraps past 2155
	Size       uint32
	FirstBlock int32
}

// IsDir reports whether this entry names a subdirectory.
func (e Entry) IsDir() bool { return e.Type == TypeDir }

// IsFile reports whether this entry names a file.
func (e Entry) IsFile() bool { return e.Type == TypeFile }

// Encode writes e into buf, which must be at least EntrySize bytes.
func Encode(e Entry, buf []byte) {
	buf[0] = e.Type
	nameBuf := buf[1 : 1+NameField]
	for i := range nameBuf {
		nameBuf[i] = 0
	}
	copy(nameBuf, e.Name)
	buf[1+NameField] = e.Day
	buf[1+NameField+1] = e.Month
	buf[1+NameField+2] = e.Year
	binary.LittleEndian.PutUint32(buf[1+NameField+3:1+NameField+7], e.Size)
	binary.LittleEndian.PutUint32(buf[1+NameField+7:1+NameField+11], uint32(e.FirstBlock))
}

// Decode reads an Entry out of buf, which must be at least EntrySize bytes.
func Decode(buf []byte) Entry {
	nameBuf := buf[1 : 1+NameField]
	nul := NameField
	for i, b := range nameBuf {
		if b == 0 {
			nul = i
			break
		}
	}
	return Entry{
		Type:       buf[0],
		Name:       string(nameBuf[:nul]),
		Day:        buf[1+NameField],
		Month:      buf[1+NameField+1],
		Year:       buf[1+NameField+2],
		Size:       binary.LittleEndian.Uint32(buf[1+NameField+3 : 1+NameField+7]),
		FirstBlock: int32(binary.LittleEndian.Uint32(buf[1+NameField+7 : 1+NameField+11])),
	}
}

// ValidateName rejects names too long to store for creation.
func ValidateName(name string) error {
	if len(name) > NameMax {
		return fmt.Errorf("name too long (MAX: %d characters)", NameMax)
	}
	return nil
}
