package ext4

import (
	"encoding/binary"

	"golang.org/x/xerrors"
)

// Classical indirect block map geometry: twelve direct pointers followed
// by single/double/triple indirect pointers, ref spec.md 3 "Legacy block
// map" and grounded on the worked implementation in
// lvdlvd-rawhide/fsys/ext/ext.go's walkIndirectExtents.
const (
	directBlockCount = 12
)

// legacyBlockMap resolves the classical (pre-extents) block map living in
// an inode's 60-byte area into the same []Extent shape the extent tree
// walk produces, so the rest of the core (file reads, directory reads)
// never needs to know which addressing scheme an inode uses. Implements
// the Open Question spec.md 9 raised about legacy images: this module
// picks "implement it" over "stub with InvalidInput".
func legacyBlockMap(dev BlockDevice, blockSize int64, raw []byte) ([]Extent, error) {
	var out []Extent
	var logical uint32

	for i := 0; i < directBlockCount; i++ {
		ptr := int64(binary.LittleEndian.Uint32(raw[i*4 : i*4+4]))
		if err := walkIndirect(dev, blockSize, ptr, 0, &logical, &out); err != nil {
			return nil, xerrors.Errorf("direct block %d: %w", i, err)
		}
	}
	for level := 1; level <= 3; level++ {
		ptr := int64(binary.LittleEndian.Uint32(raw[(directBlockCount+level-1)*4 : (directBlockCount+level-1)*4+4]))
		if err := walkIndirect(dev, blockSize, ptr, level, &logical, &out); err != nil {
			return nil, xerrors.Errorf("indirect level %d: %w", level, err)
		}
	}
	return out, nil
}

// walkIndirect descends the indirection chain. level 0 means ptr
// addresses a data block directly; level > 0 means ptr addresses a block
// of pointers one level shallower. A zero pointer at any level is a hole:
// logical advances past the blocks it would have covered without emitting
// an extent.
func walkIndirect(dev BlockDevice, blockSize int64, ptr int64, level int, logical *uint32, out *[]Extent) error {
	if level == 0 {
		if ptr != 0 {
			*out = append(*out, Extent{
				Block:   *logical,
				Len:     1,
				StartHi: uint16(ptr >> 32),
				StartLo: uint32(ptr),
			})
		}
		*logical++
		return nil
	}

	pointersPerBlock := uint32(blockSize / 4)
	if ptr == 0 {
		*logical += holeSpan(pointersPerBlock, level)
		return nil
	}

	block, err := readBlock(dev, blockSize, ptr)
	if err != nil {
		return xerrors.Errorf("failed to read indirect block %d: %w", ptr, err)
	}
	for i := uint32(0); i < pointersPerBlock; i++ {
		child := int64(binary.LittleEndian.Uint32(block[i*4 : i*4+4]))
		if err := walkIndirect(dev, blockSize, child, level-1, logical, out); err != nil {
			return err
		}
	}
	return nil
}

// holeSpan returns how many logical blocks a zero pointer at the given
// indirection level would have covered, had it been populated.
func holeSpan(pointersPerBlock uint32, level int) uint32 {
	span := uint32(1)
	for i := 0; i < level; i++ {
		span *= pointersPerBlock
	}
	return span
}
