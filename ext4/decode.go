package ext4

import (
	"encoding/binary"

	"golang.org/x/xerrors"
)

// decoder is a cursor over a byte slice used to decode the extent tree's
// header, leaf and index records field by field in little-endian order.
// The superblock, group descriptor and inode records go through
// struc.Unpack instead, matching the teacher's approach.
type decoder struct {
	buf []byte
	pos int
}

func newDecoder(buf []byte) *decoder {
	return &decoder{buf: buf}
}

func (d *decoder) readU16LE() (uint16, error) {
	b, err := d.readFixedBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *decoder) readU32LE() (uint32, error) {
	b, err := d.readFixedBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *decoder) readU64LE() (uint64, error) {
	b, err := d.readFixedBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *decoder) readFixedBytes(n int) ([]byte, error) {
	if d.pos+n > len(d.buf) {
		return nil, newError(InvalidData, "decode", xerrors.Errorf("need %d bytes, have %d", n, len(d.buf)-d.pos))
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}
