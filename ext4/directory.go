package ext4

import (
	"encoding/binary"
	"strings"

	"golang.org/x/xerrors"
)

// DirEntry is one directory-entry record: ref spec.md 3 "Directory entry".
type DirEntry struct {
	Inode    uint32
	FileType uint8
	nameRaw  []byte
}

// Name renders the entry name, lossily coercing invalid UTF-8 the way the
// original source does. Callers that need the exact on-disk bytes should
// use NameBytes instead — this resolves the Open Question spec.md 9 raised
// by exposing both.
func (d DirEntry) Name() string {
	return strings.ToValidUTF8(string(d.nameRaw), "�")
}

// NameBytes returns the exact on-disk name bytes, unmodified.
func (d DirEntry) NameBytes() []byte {
	return d.nameRaw
}

func (d DirEntry) IsDir() bool  { return d.FileType == DIR_ENTRY_FILE_TYPE_DIRECTORY }
func (d DirEntry) IsFile() bool { return d.FileType == DIR_ENTRY_FILE_TYPE_REGULAR_FILE }

// DirectoryIterator walks directory-entry records within a directory
// inode's data blocks in logical order. It is lazy (it reads one block at
// a time) and restartable via Rewind. Implements spec.md 4.7.
type DirectoryIterator struct {
	dev       BlockDevice
	blockSize int64
	blocks    []int64
	blockIdx  int
	pending   []DirEntry
}

func newDirectoryIterator(dev BlockDevice, blockSize int64, extents []Extent) *DirectoryIterator {
	return &DirectoryIterator{
		dev:       dev,
		blockSize: blockSize,
		blocks:    flattenExtents(extents),
	}
}

// flattenExtents expands a sorted extent list into the physical block
// numbers it covers, in logical order.
func flattenExtents(extents []Extent) []int64 {
	var blocks []int64
	for _, e := range extents {
		start := e.PhysicalStart()
		length := e.Length()
		for i := uint16(0); i < length; i++ {
			blocks = append(blocks, start+int64(i))
		}
	}
	return blocks
}

// Rewind resets the iterator to the first block, making it safe to reuse.
func (it *DirectoryIterator) Rewind() {
	it.blockIdx = 0
	it.pending = nil
}

// Next yields the next directory entry, or ok==false once every block has
// been exhausted.
func (it *DirectoryIterator) Next() (entry DirEntry, ok bool, err error) {
	for len(it.pending) == 0 {
		if it.blockIdx >= len(it.blocks) {
			return DirEntry{}, false, nil
		}
		block, err := readBlock(it.dev, it.blockSize, it.blocks[it.blockIdx])
		if err != nil {
			return DirEntry{}, false, xerrors.Errorf("failed to read directory block %d: %w", it.blocks[it.blockIdx], err)
		}
		it.blockIdx++
		entries, err := decodeDirectoryBlock(block)
		if err != nil {
			return DirEntry{}, false, err
		}
		it.pending = entries
	}
	entry, it.pending = it.pending[0], it.pending[1:]
	return entry, true, nil
}

// decodeDirectoryBlock decodes every entry in one directory data block,
// stopping at the first inode==0 tombstone (spec.md 4.7) or at a rec_len
// too small to be valid, which signals the block is corrupt or padding
// (grounded on lvdlvd-rawhide/fsys/ext/ext.go's recLen<8 guard).
func decodeDirectoryBlock(block []byte) ([]DirEntry, error) {
	var entries []DirEntry
	pos := 0
	for pos+8 <= len(block) {
		inode := binary.LittleEndian.Uint32(block[pos : pos+4])
		recLen := binary.LittleEndian.Uint16(block[pos+4 : pos+6])
		nameLen := block[pos+6]
		fileType := block[pos+7]

		if recLen < 8 {
			break
		}
		if inode == 0 {
			break
		}
		nameEnd := pos + 8 + int(nameLen)
		if nameEnd > len(block) {
			return nil, newError(InvalidData, "directory_entry", xerrors.Errorf("name_len %d overruns block at offset %d", nameLen, pos))
		}
		name := make([]byte, nameLen)
		copy(name, block[pos+8:nameEnd])
		entries = append(entries, DirEntry{Inode: inode, FileType: fileType, nameRaw: name})

		pos += int(recLen)
	}
	return entries, nil
}
