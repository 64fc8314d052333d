package ext4

// Inode is the fixed-size record describing one filesystem object. Layout
// ref https://ext4.wiki.kernel.org/index.php/Ext4_Disk_Layout#Index_Nodes
type Inode struct {
	Mode           uint16   `struc:"uint16,little"`
	UID            uint16   `struc:"uint16,little"`
	SizeLo         uint32   `struc:"uint32,little"`
	Atime          uint32   `struc:"uint32,little"`
	Ctime          uint32   `struc:"uint32,little"`
	Mtime          uint32   `struc:"uint32,little"`
	Dtime          uint32   `struc:"uint32,little"`
	GID            uint16   `struc:"uint16,little"`
	LinksCount     uint16   `struc:"uint16,little"`
	BlocksLo       uint32   `struc:"uint32,little"`
	Flags          uint32   `struc:"uint32,little"`
	Osd1           uint32   `struc:"uint32,little"`
	BlockOrExtents [60]byte `struc:"[60]byte,little"`
	Generation     uint32   `struc:"uint32,little"`
	FileACLLo      uint32   `struc:"uint32,little"`
	SizeHigh       uint32   `struc:"uint32,little"`
	ObsoFaddr      uint32   `struc:"uint32,little"`
	// OSD2, Linux-specific layout
	BlocksHigh  uint16 `struc:"uint16,little"`
	FileACLHigh uint16 `struc:"uint16,little"`
	UIDHigh     uint16 `struc:"uint16,little"`
	GIDHigh     uint16 `struc:"uint16,little"`
	ChecksumLow uint16 `struc:"uint16,little"`
	Unused      uint16 `struc:"uint16,little"`

	ExtraIsize  uint16    `struc:"uint16,little"`
	ChecksumHi  uint16    `struc:"uint16,little"`
	CtimeExtra  uint32    `struc:"uint32,little"`
	MtimeExtra  uint32    `struc:"uint32,little"`
	AtimeExtra  uint32    `struc:"uint32,little"`
	Crtime      uint32    `struc:"uint32,little"`
	CrtimeExtra uint32    `struc:"uint32,little"`
	VersionHi   uint32 `struc:"uint32,little"`
	Projid      uint32 `struc:"uint32,little"`
	// Remaining bytes up to inode_size are reserved/unused; decoding stops
	// here and the facade's inode reader simply ignores the tail.
}

// modeType extracts the file-type nibble from Mode (mode & 0xF000).
func (i *Inode) modeType() uint16 {
	return i.Mode & modeTypeMask
}

func (i *Inode) IsDir() bool      { return i.modeType() == modeTypeDir }
func (i *Inode) IsRegular() bool  { return i.modeType() == modeTypeFile }
func (i *Inode) IsSymlink() bool  { return i.modeType() == modeTypeLink }
func (i *Inode) IsSocket() bool   { return i.modeType() == modeTypeSock }
func (i *Inode) IsFifo() bool     { return i.modeType() == modeTypeFifo }
func (i *Inode) IsCharDevice() bool {
	return i.modeType() == modeTypeChar
}
func (i *Inode) IsBlockDevice() bool {
	return i.modeType() == modeTypeBlock
}

// UsesExtents reports whether block() should be interpreted as an extent
// tree rather than the classical indirect block map.
func (i *Inode) UsesExtents() bool {
	return i.Flags&EXTENTS_FL != 0
}

// UsesDirectoryHashTree reports the htree indexing flag. Out of scope per
// spec.md 1 Non-goals; the directory iterator never consults it and simply
// walks entries linearly, which htree-indexed directories still support.
func (i *Inode) UsesDirectoryHashTree() bool {
	return i.Flags&INDEX_FL != 0
}

// GetSize returns the inode's logical size, joining the high/low halves.
func (i *Inode) GetSize() int64 {
	return (int64(i.SizeHigh) << 32) | int64(i.SizeLo)
}

// BlocksCount returns the 512-byte sector count charged to this inode.
func (i *Inode) BlocksCount() int64 {
	return (int64(i.BlocksHigh) << 32) | int64(i.BlocksLo)
}
