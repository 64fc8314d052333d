package ext4

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/xerrors"
)

// Superblock is the 1024-byte record at device offset 1024 describing
// filesystem-wide geometry and features. Field layout ref
// https://ext4.wiki.kernel.org/index.php/Ext4_Disk_Layout#The_Super_Block
type Superblock struct {
	InodeCount           uint32     `struc:"uint32,little"`
	BlockCountLo         uint32     `struc:"uint32,little"`
	RBlockCountLo        uint32     `struc:"uint32,little"`
	FreeBlockCountLo     uint32     `struc:"uint32,little"`
	FreeInodeCount       uint32     `struc:"uint32,little"`
	FirstDataBlock       uint32     `struc:"uint32,little"`
	LogBlockSize         uint32     `struc:"uint32,little"`
	LogClusterSize       uint32     `struc:"uint32,little"`
	BlockPerGroup        uint32     `struc:"uint32,little"`
	ClusterPerGroup      uint32     `struc:"uint32,little"`
	InodePerGroup        uint32     `struc:"uint32,little"`
	Mtime                uint32     `struc:"uint32,little"`
	Wtime                uint32     `struc:"uint32,little"`
	MntCount             uint16     `struc:"uint16,little"`
	MaxMntCount          uint16     `struc:"uint16,little"`
	Magic                uint16     `struc:"uint16,little"`
	State                uint16     `struc:"uint16,little"`
	Errors               uint16     `struc:"uint16,little"`
	MinorRevLevel        uint16     `struc:"uint16,little"`
	Lastcheck            uint32     `struc:"uint32,little"`
	Checkinterval        uint32     `struc:"uint32,little"`
	CreatorOs            uint32     `struc:"uint32,little"`
	RevLevel             uint32     `struc:"uint32,little"`
	DefResuid            uint16     `struc:"uint16,little"`
	DefResgid            uint16     `struc:"uint16,little"`
	FirstIno             uint32     `struc:"uint32,little"`
	InodeSize            uint16     `struc:"uint16,little"`
	BlockGroupNr         uint16     `struc:"uint16,little"`
	FeatureCompat        uint32     `struc:"uint32,little"`
	FeatureIncompat      uint32     `struc:"uint32,little"`
	FeatureRoCompat      uint32     `struc:"uint32,little"`
	UUID                 [16]byte   `struc:"[16]byte"`
	VolumeName           [16]byte   `struc:"[16]byte"`
	LastMounted          [64]byte   `struc:"[64]byte"`
	AlgorithmUsageBitmap uint32     `struc:"uint32,little"`
	PreallocBlocks       byte       `struc:"byte"`
	PreallocDirBlocks    byte       `struc:"byte"`
	ReservedGdtBlocks    uint16     `struc:"uint16,little"`
	JournalUUID          [16]byte   `struc:"[16]byte"`
	JournalInum          uint32     `struc:"uint32,little"`
	JournalDev           uint32     `struc:"uint32,little"`
	LastOrphan           uint32     `struc:"uint32,little"`
	HashSeed             [4]uint32  `struc:"[4]uint32,little"`
	DefHashVersion       byte       `struc:"byte"`
	JnlBackupType        byte       `struc:"byte"`
	DescSize             uint16     `struc:"uint16,little"`
	DefaultMountOpts     uint32     `struc:"uint32,little"`
	FirstMetaBg          uint32     `struc:"uint32,little"`
	MkfTime              uint32     `struc:"uint32,little"`
	JnlBlocks            [17]uint32 `struc:"[17]uint32,little"`
	BlockCountHi         uint32     `struc:"uint32,little"`
	RBlockCountHi        uint32     `struc:"uint32,little"`
	FreeBlockCountHi     uint32     `struc:"uint32,little"`
	MinExtraIsize        uint16     `struc:"uint16,little"`
	WantExtraIsize       uint16     `struc:"uint16,little"`
	Flags                uint32     `struc:"uint32,little"`
	RaidStride           uint16     `struc:"uint16,little"`
	MmpUpdateInterval    uint16     `struc:"uint16,little"`
	MmpBlock             uint64     `struc:"uint64,little"`
	RaidStripeWidth      uint32     `struc:"uint32,little"`
	LogGroupPerFlex      byte       `struc:"byte"`
	ChecksumType         byte       `struc:"byte"`
	EncryptionLevel      byte       `struc:"byte"`
	ReservedPad          byte       `struc:"byte"`
	KbyteWritten         uint64     `struc:"uint64,little"`
	SnapshotInum         uint32     `struc:"uint32,little"`
	SnapshotID           uint32     `struc:"uint32,little"`
	SnapshotRBlockCount  uint64     `struc:"uint64,little"`
	SnapshotList         uint32     `struc:"uint32,little"`
	ErrorCount           uint32     `struc:"uint32,little"`
	FirstErrorTime       uint32     `struc:"uint32,little"`
	FirstErrorIno        uint32     `struc:"uint32,little"`
	FirstErrorBlock      uint64     `struc:"uint64,little"`
	FirstErrorFunc       [32]byte   `struc:"[32]pad"`
	FirstErrorLine       uint32     `struc:"uint32,little"`
	LastErrorTime        uint32     `struc:"uint32,little"`
	LastErrorIno         uint32     `struc:"uint32,little"`
	LastErrorLine        uint32     `struc:"uint32,little"`
	LastErrorBlock       uint64     `struc:"uint64,little"`
	LastErrorFunc        [32]byte   `struc:"[32]pad"`
	MountOpts            [64]byte   `struc:"[64]pad"`
	UsrQuotaInum         uint32     `struc:"uint32,little"`
	GrpQuotaInum         uint32     `struc:"uint32,little"`
	OverheadClusters     uint32     `struc:"uint32,little"`
	BackupBgs            [2]uint32  `struc:"[2]uint32,little"`
	EncryptAlgos         [4]byte    `struc:"[4]pad"`
	EncryptPwSalt        [16]byte   `struc:"[16]pad"`
	LpfIno               uint32     `struc:"uint32,little"`
	PrjQuotaInum         uint32     `struc:"uint32,little"`
	ChecksumSeed         uint32     `struc:"uint32,little"`
	Reserved             [98]uint32 `struc:"[98]uint32,little"`
	Checksum             uint32     `struc:"uint32,little"`
}

func (sb *Superblock) FeatureCompatDirPrealloc() bool {
	return sb.FeatureCompat&FEATURE_COMPAT_DIR_PREALLOC != 0
}
func (sb *Superblock) FeatureCompatImagicInodes() bool {
	return sb.FeatureCompat&FEATURE_COMPAT_IMAGIC_INODES != 0
}
func (sb *Superblock) FeatureCompatHasJournal() bool {
	return sb.FeatureCompat&FEATURE_COMPAT_HAS_JOURNAL != 0
}
func (sb *Superblock) FeatureCompatExtAttr() bool {
	return sb.FeatureCompat&FEATURE_COMPAT_EXT_ATTR != 0
}
func (sb *Superblock) FeatureCompatResizeInode() bool {
	return sb.FeatureCompat&FEATURE_COMPAT_RESIZE_INODE != 0
}
func (sb *Superblock) FeatureCompatDirIndex() bool {
	return sb.FeatureCompat&FEATURE_COMPAT_DIR_INDEX != 0
}
func (sb *Superblock) FeatureCompatSparseSuper2() bool {
	return sb.FeatureCompat&FEATURE_COMPAT_SPARSE_SUPER2 != 0
}
func (sb *Superblock) FeatureRoCompatSparseSuper() bool {
	return sb.FeatureRoCompat&FEATURE_RO_COMPAT_SPARSE_SUPER != 0
}
func (sb *Superblock) FeatureRoCompatLargeFile() bool {
	return sb.FeatureRoCompat&FEATURE_RO_COMPAT_LARGE_FILE != 0
}
func (sb *Superblock) FeatureRoCompatBtreeDir() bool {
	return sb.FeatureRoCompat&FEATURE_RO_COMPAT_BTREE_DIR != 0
}
func (sb *Superblock) FeatureRoCompatHugeFile() bool {
	return sb.FeatureRoCompat&FEATURE_RO_COMPAT_HUGE_FILE != 0
}
func (sb *Superblock) FeatureRoCompatGdtCsum() bool {
	return sb.FeatureRoCompat&FEATURE_RO_COMPAT_GDT_CSUM != 0
}
func (sb *Superblock) FeatureRoCompatDirNlink() bool {
	return sb.FeatureRoCompat&FEATURE_RO_COMPAT_DIR_NLINK != 0
}
func (sb *Superblock) FeatureRoCompatExtraIsize() bool {
	return sb.FeatureRoCompat&FEATURE_RO_COMPAT_EXTRA_ISIZE != 0
}
func (sb *Superblock) FeatureRoCompatQuota() bool {
	return sb.FeatureRoCompat&FEATURE_RO_COMPAT_QUOTA != 0
}
func (sb *Superblock) FeatureRoCompatBigalloc() bool {
	return sb.FeatureRoCompat&FEATURE_RO_COMPAT_BIGALLOC != 0
}
func (sb *Superblock) FeatureRoCompatMetadataCsum() bool {
	return sb.FeatureRoCompat&FEATURE_RO_COMPAT_METADATA_CSUM != 0
}
func (sb *Superblock) FeatureRoCompatReadonly() bool {
	return sb.FeatureRoCompat&FEATURE_RO_COMPAT_READONLY != 0
}
func (sb *Superblock) FeatureRoCompatProject() bool {
	return sb.FeatureRoCompat&FEATURE_RO_COMPAT_PROJECT != 0
}

func (sb *Superblock) FeatureIncompatCompression() bool {
	return sb.FeatureIncompat&FEATURE_INCOMPAT_COMPRESSION != 0
}
func (sb *Superblock) FeatureIncompatFiletype() bool {
	return sb.FeatureIncompat&FEATURE_INCOMPAT_FILETYPE != 0
}
func (sb *Superblock) FeatureIncompatRecover() bool {
	return sb.FeatureIncompat&FEATURE_INCOMPAT_RECOVER != 0
}
func (sb *Superblock) FeatureIncompatJournalDev() bool {
	return sb.FeatureIncompat&FEATURE_INCOMPAT_JOURNAL_DEV != 0
}
func (sb *Superblock) FeatureIncompatMetaBg() bool {
	return sb.FeatureIncompat&FEATURE_INCOMPAT_META_BG != 0
}
func (sb *Superblock) FeatureIncompatExtents() bool {
	return sb.FeatureIncompat&FEATURE_INCOMPAT_EXTENTS != 0
}
func (sb *Superblock) FeatureIncompatMmp() bool {
	return sb.FeatureIncompat&FEATURE_INCOMPAT_MMP != 0
}
func (sb *Superblock) FeatureIncompatFlexBg() bool {
	return sb.FeatureIncompat&FEATURE_INCOMPAT_FLEX_BG != 0
}
func (sb *Superblock) FeatureIncompatEaInode() bool {
	return sb.FeatureIncompat&FEATURE_INCOMPAT_EA_INODE != 0
}
func (sb *Superblock) FeatureIncompatDirdata() bool {
	return sb.FeatureIncompat&FEATURE_INCOMPAT_DIRDATA != 0
}
func (sb *Superblock) FeatureIncompatCsumSeed() bool {
	return sb.FeatureIncompat&FEATURE_INCOMPAT_CSUM_SEED != 0
}
func (sb *Superblock) FeatureIncompatLargedir() bool {
	return sb.FeatureIncompat&FEATURE_INCOMPAT_LARGEDIR != 0
}
func (sb *Superblock) FeatureIncompatInlineData() bool {
	return sb.FeatureIncompat&FEATURE_INCOMPAT_INLINE_DATA != 0
}
func (sb *Superblock) FeatureIncompatEncrypt() bool {
	return sb.FeatureIncompat&FEATURE_INCOMPAT_ENCRYPT != 0
}
func (sb *Superblock) FeatureIncompat64bit() bool {
	return sb.FeatureIncompat&FEATURE_INCOMPAT_64BIT != 0
}

// GetBlockCount returns the total block count, joining the high/low halves
// only when the 64bit feature is set.
func (sb *Superblock) GetBlockCount() int64 {
	if sb.FeatureIncompat64bit() {
		return (int64(sb.BlockCountHi) << 32) | int64(sb.BlockCountLo)
	}
	return int64(sb.BlockCountLo)
}

// GetGroupCount returns ceil(block_count / blocks_per_group).
func (sb *Superblock) GetGroupCount() int64 {
	bpg := int64(sb.BlockPerGroup)
	return (sb.GetBlockCount() + bpg - 1) / bpg
}

// GetGroupDescriptorSize returns the on-disk size of one group descriptor
// entry: 64 bytes when the 64bit feature is set, else 32.
func (sb *Superblock) GetGroupDescriptorSize() int64 {
	if sb.FeatureIncompat64bit() {
		return 64
	}
	return 32
}

func (sb *Superblock) GetBlockSize() int64 {
	return int64(1024 << uint(sb.LogBlockSize))
}

func (sb *Superblock) GetInodeSize() int64 {
	if sb.InodeSize == 0 {
		return 128
	}
	return int64(sb.InodeSize)
}

func (sb *Superblock) GetGroupsPerFlex() int64 {
	if sb.LogGroupPerFlex == 0 {
		return 1
	}
	return 1 << sb.LogGroupPerFlex
}

// groupDescriptorTableOffset is the byte offset of the first group
// descriptor, ref spec.md 4.4: block_size==1024 → block 2 (2048), else
// block 1 (block_size).
func (sb *Superblock) groupDescriptorTableOffset() int64 {
	if sb.GetBlockSize() == 1024 {
		return 2 * 1024
	}
	return sb.GetBlockSize()
}

// UUIDString renders the filesystem UUID as the canonical 8-4-4-4-12 hex
// form, satisfying the info() scenario in spec.md 8.
func (sb *Superblock) UUIDString() string {
	id, err := uuid.FromBytes(sb.UUID[:])
	if err != nil {
		return fmt.Sprintf("%x", sb.UUID)
	}
	return id.String()
}

// VolumeLabel returns the NUL-trimmed volume name.
func (sb *Superblock) VolumeLabel() string {
	return strings.TrimRight(string(sb.VolumeName[:]), "\x00")
}

// Variant reports the filesystem flavor implied by the feature bitmaps:
// "ext4" if any of the extents, 64bit or flex_bg features is set, "ext3"
// if none of those is set but it has a journal, else "ext2".
func (sb *Superblock) Variant() string {
	switch {
	case sb.FeatureIncompatExtents() || sb.FeatureIncompat64bit() || sb.FeatureIncompatFlexBg():
		return "ext4"
	case sb.FeatureCompatHasJournal():
		return "ext3"
	default:
		return "ext2"
	}
}

// Info renders a short human-readable summary, ref spec.md 8 scenario 1
// ("contains the string... and the volume UUID rendered as 8-4-4-4-12").
func (sb *Superblock) Info() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ext4 filesystem (magic ef53, variant %s)\n", sb.Variant())
	fmt.Fprintf(&b, "volume: %q uuid: %s\n", sb.VolumeLabel(), sb.UUIDString())
	fmt.Fprintf(&b, "block size: %d inode size: %d\n", sb.GetBlockSize(), sb.GetInodeSize())
	fmt.Fprintf(&b, "blocks: %d (per group %d) inodes: %d (per group %d)\n",
		sb.GetBlockCount(), sb.BlockPerGroup, sb.InodeCount, sb.InodePerGroup)
	return b.String()
}

// validate checks the invariants spec.md 3 requires of a decoded
// superblock: magic match, power-of-two block size ≥ 1024, inode_size
// divides block_size, blocks_per_group > 0.
func (sb *Superblock) validate() error {
	if sb.Magic != extMagic {
		return newError(InvalidData, "superblock", xerrors.Errorf("magic mismatch: got %#x want %#x", sb.Magic, extMagic))
	}
	blockSize := sb.GetBlockSize()
	if blockSize < 1024 || blockSize&(blockSize-1) != 0 {
		return newError(InvalidData, "superblock", xerrors.Errorf("block size %d is not a power of two ≥ 1024", blockSize))
	}
	if sb.GetInodeSize() != 0 && blockSize%sb.GetInodeSize() != 0 {
		return newError(InvalidData, "superblock", xerrors.Errorf("inode size %d does not divide block size %d", sb.GetInodeSize(), blockSize))
	}
	if sb.BlockPerGroup == 0 {
		return newError(InvalidData, "superblock", xerrors.New("blocks_per_group is zero"))
	}
	return nil
}

// isBackupGroup implements the sparse-super rule this module's Open
// Questions resolved in favor of: group 0 and 1 always carry a backup, and
// with sparse_super set, beyond that only groups that are an exact power
// of 3, 5, or 7; without sparse_super every group carries one. This
// replaces the "probe odd groups" heuristic spec.md 9 calls out as
// imprecise.
func isBackupGroup(g uint64, sparseSuper bool) bool {
	if g == 0 || g == 1 {
		return true
	}
	if !sparseSuper {
		return true
	}
	for _, base := range [...]uint64{3, 5, 7} {
		for p := base; p <= g; p *= base {
			if p == g {
				return true
			}
		}
	}
	return false
}

// backupGroupOffset returns the byte offset of group g's backup superblock:
// block (blocks_per_group*g + 1), ref spec.md 4.3.
func (sb *Superblock) backupGroupOffset(g uint64) int64 {
	return (int64(sb.BlockPerGroup)*int64(g) + 1) * sb.GetBlockSize()
}
