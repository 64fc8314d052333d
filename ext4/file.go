package ext4

import (
	"io"
	"io/fs"
	"time"

	"golang.org/x/xerrors"
)

var (
	_ fs.File         = &File{}
	_ fs.ReadDirFile  = &File{}
	_ fs.FileInfo     = &FileInfo{}
	_ fs.DirEntry     = dirEntry{}
)

// File is an ephemeral read cursor over one inode's data blocks. Its
// lifetime is scoped to a read session and it borrows the facade's block
// device, ref spec.md 3 "File handle" / "Ownership".
type File struct {
	dev       BlockDevice
	blockSize int64
	extents   []Extent
	pos       int64
	fsys      *FileSystem

	FileInfo
}

// FileInfo is the decoded identity of one filesystem object.
type FileInfo struct {
	name  string
	ino   int64
	inode *Inode
}

func (fi FileInfo) Name() string       { return fi.name }
func (fi FileInfo) Size() int64        { return fi.inode.GetSize() }
func (fi FileInfo) Mode() fs.FileMode  { return fsFileMode(fi.inode.Mode) }
func (fi FileInfo) ModTime() time.Time { return time.Unix(int64(fi.inode.Mtime), 0) }
func (fi FileInfo) IsDir() bool        { return fi.inode.IsDir() }
func (fi FileInfo) Sys() interface{}   { return fi.inode }

// Ino returns the inode number backing this entry, a test seam beyond the
// stdlib fs.FileInfo surface.
func (fi FileInfo) Ino() int64 { return fi.ino }

// RenderMode renders the 10-character mode string spec.md 6 describes,
// independent of io/fs's own FileMode.String() rendering.
func (fi FileInfo) RenderMode() string { return renderMode(fi.inode.Mode) }

// dirEntry adapts FileInfo to fs.DirEntry for ReadDir results.
type dirEntry struct {
	FileInfo
}

func (d dirEntry) Type() fs.FileMode          { return d.FileInfo.Mode().Type() }
func (d dirEntry) Info() (fs.FileInfo, error) { return d.FileInfo, nil }

// Stat implements fs.File.
func (f *File) Stat() (fs.FileInfo, error) {
	return &f.FileInfo, nil
}

// IsEOF reports whether the cursor has reached the inode's logical size,
// ref spec.md 4.8 "Observable guarantees".
func (f *File) IsEOF() bool {
	return f.pos >= f.inode.GetSize()
}

// Read fills p by stitching the partial first block (from pos mod
// block_size), whole middle blocks, and a partial last block, never
// reading past the inode's logical size. A logical block with no extent
// mapping (a hole) or one marked uninitialized reads as zeros, per
// spec.md 4.6 "Edge cases". Implements spec.md 4.8.
func (f *File) Read(p []byte) (int, error) {
	size := f.inode.GetSize()
	if f.pos >= size {
		return 0, io.EOF
	}

	remaining := size - f.pos
	want := int64(len(p))
	if want > remaining {
		want = remaining
	}

	var total int64
	for total < want {
		blockIdx := uint32(f.pos / f.blockSize)
		blockOffset := f.pos % f.blockSize
		chunk := f.blockSize - blockOffset
		if total+chunk > want {
			chunk = want - total
		}

		block, err := f.readLogicalBlock(blockIdx)
		if err != nil {
			return int(total), err
		}
		copy(p[total:total+chunk], block[blockOffset:blockOffset+chunk])

		total += chunk
		f.pos += chunk
	}
	return int(total), nil
}

// readLogicalBlock returns the block_size bytes for logical block n,
// resolving through the extent (or legacy) mapping and producing a
// zero-filled block for holes and uninitialized extents.
func (f *File) readLogicalBlock(n uint32) ([]byte, error) {
	physical, uninitialized, ok := resolveExtent(f.extents, n)
	if !ok || uninitialized {
		return make([]byte, f.blockSize), nil
	}
	block, err := readBlock(f.dev, f.blockSize, physical)
	if err != nil {
		return nil, xerrors.Errorf("failed to read logical block %d (physical %d): %w", n, physical, err)
	}
	return block, nil
}

// ReadDir implements fs.ReadDirFile, letting a directory File be listed
// directly, matching the FileHandle.read_dir() surface in spec.md 6.
func (f *File) ReadDir(n int) ([]fs.DirEntry, error) {
	if !f.inode.IsDir() {
		return nil, newError(InvalidInput, "read_dir", xerrors.Errorf("%s is not a directory", f.name))
	}
	it := newDirectoryIterator(f.dev, f.blockSize, f.extents)
	var out []fs.DirEntry
	for {
		if n > 0 && len(out) >= n {
			break
		}
		entry, ok, err := it.Next()
		if err != nil {
			return out, err
		}
		if !ok {
			if n > 0 {
				return out, io.EOF
			}
			break
		}
		childInode, err := f.fsys.getInode(int64(entry.Inode))
		if err != nil {
			return out, xerrors.Errorf("failed to read inode(%d): %w", entry.Inode, err)
		}
		out = append(out, dirEntry{FileInfo{name: entry.Name(), ino: int64(entry.Inode), inode: childInode}})
	}
	return out, nil
}

// Close releases no resources; the facade owns the underlying device.
func (f *File) Close() error {
	return nil
}
