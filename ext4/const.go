package ext4

// On-disk geometry constants. SectorSize is the conventional 512-byte disk
// sector; the device itself is read at arbitrary byte offsets. The
// remaining constants describe the fixed layout before the superblock's
// own geometry takes over.
const (
	SectorSize       = 0x200
	BlockSize        = 0x400
	SuperBlockSize   = 0x400
	GroupZeroPadding = 0x400

	superBlockOffset = 1024

	rootInodeNumber = 2

	// inodeRecordSize is the fixed byte size of the Inode struct's declared
	// fields. On-disk records shorter than this (the classic 128-byte
	// inode) are zero-padded before decode; longer ones are truncated.
	inodeRecordSize = 160

	extMagic    = 0xEF53
	extentMagic = 0xF30A
)

// Inode mode type nibble (mode & modeTypeMask), ref original_source's
// src/ext4/stat.rs Mode bitflags.
const (
	modeTypeMask  = 0xF000
	modeTypeFifo  = 0x1000
	modeTypeChar  = 0x2000
	modeTypeDir   = 0x4000
	modeTypeBlock = 0x6000
	modeTypeFile  = 0x8000
	modeTypeLink  = 0xA000
	modeTypeSock  = 0xC000
)

// Directory entry file_type byte, ref ext4 dirent file_type values.
const (
	DIR_ENTRY_FILE_TYPE_UNKNOWN         = 0x0
	DIR_ENTRY_FILE_TYPE_REGULAR_FILE    = 0x1
	DIR_ENTRY_FILE_TYPE_DIRECTORY       = 0x2
	DIR_ENTRY_FILE_TYPE_CHARACTER_DEVICE = 0x3
	DIR_ENTRY_FILE_TYPE_BLOCK_DEVICE    = 0x4
	DIR_ENTRY_FILE_TYPE_FIFO            = 0x5
	DIR_ENTRY_FILE_TYPE_SOCKET          = 0x6
	DIR_ENTRY_FILE_TYPE_SYMLINK         = 0x7
)

// Inode flags (i_flags), ref original_source's src/ext4/stat.rs IFlags.
const (
	SECRM_FL        = 0x00000001
	UNRM_FL         = 0x00000002
	COMPR_FL        = 0x00000004
	SYNC_FL         = 0x00000008
	IMMUTABLE_FL    = 0x00000010
	APPEND_FL       = 0x00000020
	NODUMP_FL       = 0x00000040
	NOATIME_FL      = 0x00000080
	INDEX_FL        = 0x00001000
	IMAGIC_FL       = 0x00002000
	JOURNAL_DATA_FL = 0x00004000
	NOTAIL_FL       = 0x00008000
	DIRSYNC_FL      = 0x00010000
	TOPDIR_FL       = 0x00020000
	HUGE_FILE_FL    = 0x00040000
	EXTENTS_FL      = 0x00080000
	VERITY_FL       = 0x00100000
	EA_INODE_FL     = 0x00200000
	EOFBLOCKS_FL    = 0x00400000
	INLINE_DATA_FL  = 0x10000000
)

// Superblock feature bitmaps, ref Ext4_Disk_Layout feature flags.
const (
	FEATURE_COMPAT_DIR_PREALLOC  = 0x0001
	FEATURE_COMPAT_IMAGIC_INODES = 0x0002
	FEATURE_COMPAT_HAS_JOURNAL   = 0x0004
	FEATURE_COMPAT_EXT_ATTR      = 0x0008
	FEATURE_COMPAT_RESIZE_INODE  = 0x0010
	FEATURE_COMPAT_DIR_INDEX     = 0x0020
	FEATURE_COMPAT_SPARSE_SUPER2 = 0x0200

	FEATURE_RO_COMPAT_SPARSE_SUPER  = 0x0001
	FEATURE_RO_COMPAT_LARGE_FILE    = 0x0002
	FEATURE_RO_COMPAT_BTREE_DIR     = 0x0004
	FEATURE_RO_COMPAT_HUGE_FILE     = 0x0008
	FEATURE_RO_COMPAT_GDT_CSUM      = 0x0010
	FEATURE_RO_COMPAT_DIR_NLINK     = 0x0020
	FEATURE_RO_COMPAT_EXTRA_ISIZE   = 0x0040
	FEATURE_RO_COMPAT_QUOTA         = 0x0100
	FEATURE_RO_COMPAT_BIGALLOC      = 0x0200
	FEATURE_RO_COMPAT_METADATA_CSUM = 0x0400
	FEATURE_RO_COMPAT_READONLY      = 0x1000
	FEATURE_RO_COMPAT_PROJECT       = 0x2000

	FEATURE_INCOMPAT_COMPRESSION = 0x0001
	FEATURE_INCOMPAT_FILETYPE    = 0x0002
	FEATURE_INCOMPAT_RECOVER     = 0x0004
	FEATURE_INCOMPAT_JOURNAL_DEV = 0x0008
	FEATURE_INCOMPAT_META_BG     = 0x0010
	FEATURE_INCOMPAT_EXTENTS     = 0x0040
	FEATURE_INCOMPAT_64BIT       = 0x0080
	FEATURE_INCOMPAT_MMP         = 0x0100
	FEATURE_INCOMPAT_FLEX_BG     = 0x0200
	FEATURE_INCOMPAT_EA_INODE    = 0x0400
	FEATURE_INCOMPAT_DIRDATA     = 0x1000
	FEATURE_INCOMPAT_CSUM_SEED   = 0x2000
	FEATURE_INCOMPAT_LARGEDIR    = 0x4000
	FEATURE_INCOMPAT_INLINE_DATA = 0x8000
	FEATURE_INCOMPAT_ENCRYPT     = 0x10000
)
