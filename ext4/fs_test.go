package ext4

import (
	"bytes"
	"io"
	"testing"
)

// buildImage constructs a minimal, structurally valid single-group ext4
// image in memory: 1,024-byte blocks, 128-byte inodes, containing a root
// directory with one subdirectory "test" holding one regular file
// "test.bin" of 1,500 bytes filled with 0x5A. Layout mirrors the scenario
// in spec.md 8, scaled down from 64 MiB/4,096-byte blocks to keep the
// fixture small enough to hand-assemble.
//
// block 0:  boot block (unused)
// block 1:  superblock
// block 2:  group descriptor table
// block 3:  block bitmap
// block 4:  inode bitmap
// block 5-8: inode table (32 inodes * 128 bytes)
// block 9:  root directory data
// block 10: "test" directory data
// block 11-12: test.bin data (1024 + 476 bytes)
// block 13: free
func buildImage(t *testing.T) []byte {
	t.Helper()
	const (
		blockSize  = 1024
		totalBlock = 14
	)
	img := make([]byte, totalBlock*blockSize)

	put := func(blockNum int64, data []byte) {
		copy(img[blockNum*blockSize:], data)
	}

	sb := Superblock{
		InodeCount:       32,
		BlockCountLo:     totalBlock,
		FreeBlockCountLo: 1,
		FreeInodeCount:   29,
		FirstDataBlock:   1,
		LogBlockSize:     0,
		BlockPerGroup:    32,
		InodePerGroup:    32,
		Magic:            extMagic,
		InodeSize:        128,
		FeatureIncompat:  FEATURE_INCOMPAT_EXTENTS | FEATURE_INCOMPAT_FILETYPE,
		FeatureRoCompat:  FEATURE_RO_COMPAT_SPARSE_SUPER,
	}
	for i := range sb.UUID {
		sb.UUID[i] = byte(i)
	}
	copy(sb.VolumeName[:], "TESTVOL")
	put(1, packBytes(t, &sb))

	gd := GroupDescriptor{
		BlockBitmapLo:     3,
		InodeBitmapLo:     4,
		InodeTableLo:      5,
		FreeBlocksCountLo: 1,
		FreeInodesCountLo: 29,
		UsedDirsCountLo:   2,
	}
	put(2, packBytes(t, &gd)[:32])

	blockBitmap := make([]byte, blockSize)
	blockBitmap[0] = 0xFF // blocks 1-8 used
	blockBitmap[1] = 0x0F // blocks 9-12 used, block 13 free
	put(3, blockBitmap)

	extentArea := func(physicalStart int64, length uint16) []byte {
		var buf bytes.Buffer
		buf.Write(packBytes(t, &ExtentHeader{Magic: extentMagic, Entries: 1, Max: 4, Depth: 0}))
		buf.Write(packBytes(t, &Extent{
			Block:   0,
			Len:     length,
			StartHi: uint16(physicalStart >> 32),
			StartLo: uint32(physicalStart),
		}))
		return pad60(t, buf.Bytes())
	}

	const inodeTableStart = 5 * blockSize
	writeInode := func(n int64, inode Inode) {
		group, slot := inodeLocation(n, sb.InodePerGroup)
		if group != 0 {
			t.Fatalf("inode %d not in group 0", n)
		}
		offset := inodeTableStart + slot*128
		copy(img[offset:], packBytes(t, &inode)[:128])
	}

	rootInode := Inode{
		Mode:           modeTypeDir | 0o755,
		SizeLo:         blockSize,
		LinksCount:     2,
		BlocksLo:       2,
		Flags:          EXTENTS_FL,
		BlockOrExtents: fixed60(extentArea(9, 1)),
	}
	writeInode(rootInodeNumber, rootInode)

	testDirInode := Inode{
		Mode:           modeTypeDir | 0o755,
		SizeLo:         blockSize,
		LinksCount:     2,
		BlocksLo:       2,
		Flags:          EXTENTS_FL,
		BlockOrExtents: fixed60(extentArea(10, 1)),
	}
	writeInode(11, testDirInode)

	fileInode := Inode{
		Mode:           modeTypeFile | 0o644,
		SizeLo:         1500,
		LinksCount:     1,
		BlocksLo:       4,
		Flags:          EXTENTS_FL,
		BlockOrExtents: fixed60(extentArea(11, 2)),
	}
	writeInode(12, fileInode)

	rootDirBlock := make([]byte, blockSize)
	putDirEntry(rootDirBlock, 0, rootInodeNumber, 12, DIR_ENTRY_FILE_TYPE_DIRECTORY, ".")
	pos := putDirEntry(rootDirBlock, 12, rootInodeNumber, 12, DIR_ENTRY_FILE_TYPE_DIRECTORY, "..")
	putDirEntry(rootDirBlock, pos, 11, 12, DIR_ENTRY_FILE_TYPE_DIRECTORY, "test")
	put(9, rootDirBlock)

	testDirBlock := make([]byte, blockSize)
	putDirEntry(testDirBlock, 0, 11, 12, DIR_ENTRY_FILE_TYPE_DIRECTORY, ".")
	pos = putDirEntry(testDirBlock, 12, rootInodeNumber, 12, DIR_ENTRY_FILE_TYPE_DIRECTORY, "..")
	putDirEntry(testDirBlock, pos, 12, 16, DIR_ENTRY_FILE_TYPE_REGULAR_FILE, "test.bin")
	put(10, testDirBlock)

	fileBlock0 := make([]byte, blockSize)
	for i := range fileBlock0 {
		fileBlock0[i] = 0x5A
	}
	put(11, fileBlock0)

	fileBlock1 := make([]byte, blockSize)
	for i := 0; i < 1500-blockSize; i++ {
		fileBlock1[i] = 0x5A
	}
	put(12, fileBlock1)

	return img
}

func fixed60(b []byte) [60]byte {
	var out [60]byte
	copy(out[:], b)
	return out
}

func openTestImage(t *testing.T) *FileSystem {
	t.Helper()
	img := buildImage(t)
	fsys, err := Open(bytes.NewReader(img))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if fsys == nil {
		t.Fatal("Open returned a nil filesystem for a valid image")
	}
	return fsys
}

func TestOpenRejectsGarbage(t *testing.T) {
	fsys, err := Open(bytes.NewReader(make([]byte, 8192)))
	if err != nil {
		t.Fatalf("Open on non-ext4 bytes returned an error instead of absence: %v", err)
	}
	if fsys != nil {
		t.Fatal("Open returned a non-nil filesystem for non-ext4 bytes")
	}
}

func TestInfoContainsMagicAndUUID(t *testing.T) {
	fsys := openTestImage(t)
	info := fsys.Info()
	if !bytes.Contains([]byte(info), []byte("ef53")) {
		t.Errorf("Info() = %q, want it to contain \"ef53\"", info)
	}
	want := "00010203-0405-0607-0809-0a0b0c0d0e0f"
	if !bytes.Contains([]byte(info), []byte(want)) {
		t.Errorf("Info() = %q, want it to contain the UUID %q", info, want)
	}
}

func TestOpenPathRoot(t *testing.T) {
	fsys := openTestImage(t)
	f, err := fsys.OpenPath("/")
	if err != nil {
		t.Fatalf("OpenPath(/): %v", err)
	}
	info, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("root handle is not a directory")
	}

	entries, err := f.ReadDir(0)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name()] = true
	}
	for _, want := range []string{".", "..", "test"} {
		if !names[want] {
			t.Errorf("root ReadDir() = %v, missing %q", names, want)
		}
	}
}

func TestOpenPathSubdirectory(t *testing.T) {
	fsys := openTestImage(t)
	f, err := fsys.OpenPath("/test")
	if err != nil {
		t.Fatalf("OpenPath(/test): %v", err)
	}
	info, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("/test handle is not a directory")
	}

	entries, err := f.ReadDir(0)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	found := false
	for _, e := range entries {
		if e.Name() == "test.bin" {
			found = true
		}
	}
	if !found {
		t.Errorf("ReadDir(/test) = %v, missing test.bin", entries)
	}
}

func TestOpenPathFileReadRoundTrip(t *testing.T) {
	fsys := openTestImage(t)
	f, err := fsys.OpenPath("/test/test.bin")
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	info, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != 1500 {
		t.Fatalf("Size() = %d, want 1500", info.Size())
	}
	if info.IsDir() {
		t.Fatal("test.bin reports as a directory")
	}

	buf := make([]byte, 1024)
	n, err := f.Read(buf)
	if err != nil || n != 1024 {
		t.Fatalf("first Read() = (%d, %v), want (1024, nil)", n, err)
	}
	for i, b := range buf[:n] {
		if b != 0x5A {
			t.Fatalf("buf[%d] = %#x, want 0x5a", i, b)
		}
	}

	n, err = f.Read(buf)
	if err != nil || n != 476 {
		t.Fatalf("second Read() = (%d, %v), want (476, nil)", n, err)
	}
	for i, b := range buf[:n] {
		if b != 0x5A {
			t.Fatalf("buf[%d] = %#x, want 0x5a", i, b)
		}
	}

	n, err = f.Read(buf)
	if n != 0 || err != io.EOF {
		t.Fatalf("third Read() = (%d, %v), want (0, io.EOF)", n, err)
	}
	if !f.IsEOF() {
		t.Fatal("IsEOF() = false after reading the full file")
	}
}

func TestOpenPathMissing(t *testing.T) {
	fsys := openTestImage(t)
	f, err := fsys.OpenPath("/test/missing")
	if err != nil {
		t.Fatalf("OpenPath(missing): %v", err)
	}
	if f != nil {
		t.Fatal("OpenPath returned a non-nil handle for a missing file")
	}
}

func TestOpenPathIdempotent(t *testing.T) {
	fsys := openTestImage(t)
	a, err := fsys.OpenPath("/test/test.bin")
	if err != nil {
		t.Fatalf("OpenPath #1: %v", err)
	}
	b, err := fsys.OpenPath("/test/test.bin")
	if err != nil {
		t.Fatalf("OpenPath #2: %v", err)
	}

	aInfo, _ := a.Stat()
	bInfo, _ := b.Stat()
	if aInfo.Size() != bInfo.Size() || aInfo.Mode() != bInfo.Mode() || aInfo.Name() != bInfo.Name() {
		t.Fatalf("handles differ: %+v vs %+v", aInfo, bInfo)
	}

	// cursors are independent: advancing one must not affect the other.
	buf := make([]byte, 100)
	if _, err := a.Read(buf); err != nil {
		t.Fatalf("a.Read: %v", err)
	}
	if b.pos != 0 {
		t.Errorf("b.pos = %d after reading from a, want 0", b.pos)
	}
}

func TestIOFsFSConformance(t *testing.T) {
	fsys := openTestImage(t)
	entries, err := fsys.ReadDir("test")
	if err != nil {
		t.Fatalf("fs.ReadDirFS.ReadDir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("ReadDir(\"test\") returned no entries")
	}

	if _, err := fsys.Stat("test/test.bin"); err != nil {
		t.Fatalf("fs.StatFS.Stat: %v", err)
	}

	if _, err := fsys.Open("nonexistent"); err == nil {
		t.Fatal("Open(\"nonexistent\") returned no error")
	}
}

func TestFreeBlocksReportsTheOneFreeBlock(t *testing.T) {
	fsys := openTestImage(t)
	ranges, err := fsys.FreeBlocks()
	if err != nil {
		t.Fatalf("FreeBlocks: %v", err)
	}
	want := []Range{{Start: 13 * 1024, End: 14 * 1024}}
	if len(ranges) != 1 || ranges[0] != want[0] {
		t.Errorf("FreeBlocks() = %v, want %v", ranges, want)
	}
}
