package ext4

import (
	"bytes"
	"testing"

	"github.com/lunixbochs/struc"
)

func TestExtentLengthAndUninitialized(t *testing.T) {
	e := Extent{Block: 0, Len: 10}
	if e.Uninitialized() {
		t.Error("Uninitialized() = true for a normal extent")
	}
	if e.Length() != 10 {
		t.Errorf("Length() = %d, want 10", e.Length())
	}

	u := Extent{Block: 0, Len: uninitializedLenBit + 3}
	if !u.Uninitialized() {
		t.Error("Uninitialized() = false for a len>32768 extent")
	}
	if u.Length() != 3 {
		t.Errorf("Length() = %d, want 3", u.Length())
	}
}

func TestExtentPhysicalStart(t *testing.T) {
	e := Extent{StartHi: 1, StartLo: 0}
	if got, want := e.PhysicalStart(), int64(1)<<32; got != want {
		t.Errorf("PhysicalStart() = %d, want %d", got, want)
	}
}

func packBytes(t *testing.T, v interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := struc.Pack(&buf, v); err != nil {
		t.Fatalf("struc.Pack: %v", err)
	}
	return buf.Bytes()
}

// pad60 places packed extent-area bytes into a 60-byte inode block area,
// zero-filling the remainder the way an on-disk inode's unused tail is.
func pad60(t *testing.T, b []byte) []byte {
	t.Helper()
	out := make([]byte, 60)
	copy(out, b)
	return out
}

func TestExtentTreeLeaf(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(packBytes(t, &ExtentHeader{Magic: extentMagic, Entries: 2, Max: 4, Depth: 0}))
	buf.Write(packBytes(t, &Extent{Block: 10, Len: 5, StartLo: 100}))
	buf.Write(packBytes(t, &Extent{Block: 0, Len: 10, StartLo: 50}))

	extents, err := extentTree(nil, 1024, pad60(t, buf.Bytes()), nil)
	if err != nil {
		t.Fatalf("extentTree: %v", err)
	}
	if len(extents) != 2 {
		t.Fatalf("got %d extents, want 2", len(extents))
	}
	// extentTree must return leaves sorted by logical block, regardless of
	// on-disk order.
	if extents[0].Block != 0 || extents[1].Block != 10 {
		t.Errorf("extents not sorted by Block: %+v", extents)
	}
}

func TestExtentTreeBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(packBytes(t, &ExtentHeader{Magic: 0x1234, Entries: 0, Max: 4, Depth: 0}))
	if _, err := extentTree(nil, 1024, pad60(t, buf.Bytes()), nil); err == nil {
		t.Fatal("expected an error for a bad extent header magic")
	}
}

// memDevice is a minimal BlockDevice backed by block-number-keyed buffers,
// for tests that need to walk into a child extent node.
type memDevice struct {
	blockSize int64
	blocks    map[int64][]byte
}

func (d *memDevice) ReadAt(p []byte, off int64) (int, error) {
	block := off / d.blockSize
	blockOff := off % d.blockSize
	data, ok := d.blocks[block]
	if !ok {
		data = make([]byte, d.blockSize)
	}
	n := copy(p, data[blockOff:])
	return n, nil
}

func TestExtentTreeIndexNode(t *testing.T) {
	const blockSize = 1024
	childBlock := int64(42)

	var child bytes.Buffer
	child.Write(packBytes(t, &ExtentHeader{Magic: extentMagic, Entries: 1, Max: 4, Depth: 0}))
	child.Write(packBytes(t, &Extent{Block: 5, Len: 3, StartLo: 200}))
	childBytes := make([]byte, blockSize)
	copy(childBytes, child.Bytes())

	dev := &memDevice{blockSize: blockSize, blocks: map[int64][]byte{childBlock: childBytes}}

	var root bytes.Buffer
	root.Write(packBytes(t, &ExtentHeader{Magic: extentMagic, Entries: 1, Max: 4, Depth: 1}))
	root.Write(packBytes(t, &ExtentInternal{Block: 0, LeafLow: uint32(childBlock)}))

	extents, err := extentTree(dev, blockSize, pad60(t, root.Bytes()), nil)
	if err != nil {
		t.Fatalf("extentTree: %v", err)
	}
	if len(extents) != 1 || extents[0].Block != 5 || extents[0].PhysicalStart() != 200 {
		t.Fatalf("extentTree through index node = %+v", extents)
	}
}

func TestResolveExtent(t *testing.T) {
	extents := []Extent{
		{Block: 0, Len: 4, StartLo: 100},
		{Block: 10, Len: uninitializedLenBit + 2, StartLo: 500},
	}

	phys, uninit, ok := resolveExtent(extents, 2)
	if !ok || uninit || phys != 102 {
		t.Errorf("resolveExtent(2) = (%d, %v, %v), want (102, false, true)", phys, uninit, ok)
	}

	phys, uninit, ok = resolveExtent(extents, 11)
	if !ok || !uninit || phys != 501 {
		t.Errorf("resolveExtent(11) = (%d, %v, %v), want (501, true, true)", phys, uninit, ok)
	}

	if _, _, ok := resolveExtent(extents, 5); ok {
		t.Error("resolveExtent(5) reported ok for a hole")
	}
}
