package codec

import (
	"encoding/binary"
	"fmt"
)

const (
	Ext4SuperBlockSize   = 1024
	ext4SuperBlockOffset = 1024
	ext4Magic            = 0xEF53
	ext4InodesPerGroup   = 8192
	ext4BlocksPerGroup   = 32768
	ext4FeatureCompat    = 0x38
	ext4FeatureIncompat  = 0x2C2
	ext4FeatureROCompat  = 0x7B
	ext4InodeSize        = 256
)

// Ext4SuperBlock is the minimum superblock described in §4.2(6). It
// describes the layout; a production filesystem still needs block
// groups and a root inode written by an external formatter (see
// pkg/fswriter and Open Question 2 in SPEC_FULL.md).
type Ext4SuperBlock struct {
	InodesCount      uint32
	BlocksCountLo    uint32
	RBlocksCountLo   uint32
	FreeBlocksCountLo uint32
	FreeInodesCount  uint32
	FirstDataBlock   uint32
	LogBlockSize     uint32
	BlocksPerGroup   uint32
	InodesPerGroup   uint32
	MTime            uint32
	WTime            uint32
	MaxMntCount      uint16
	Magic            uint16
	State            uint16
	Errors           uint16
	RevLevel         uint32
	FirstIno         uint32
	InodeSize        uint16
	FeatureCompat    uint32
	FeatureIncompat  uint32
	FeatureROCompat  uint32
	UUID             [16]byte
	VolumeName       [16]byte
}

// NewExt4SuperBlock fills in the fixed constants from §4.2(6): magic
// 0xEF53, log_block_size 2 (4 KiB blocks), inodes/group 8192,
// blocks/group 32768, the three feature flag words, inode size 256. The
// UUID is supplied by the caller (typically from NewGUID); the volume
// name is padded/truncated to 16 bytes.
func NewExt4SuperBlock(blockCount uint32, label string, mtime uint32, uuid [16]byte) Ext4SuperBlock {
	blockGroups := (blockCount + ext4BlocksPerGroup - 1) / ext4BlocksPerGroup
	inodesCount := ext4InodesPerGroup * blockGroups

	sb := Ext4SuperBlock{
		InodesCount:       inodesCount,
		BlocksCountLo:     blockCount,
		RBlocksCountLo:    blockCount / 20,
		FreeBlocksCountLo: blockCount - 1000,
		FreeInodesCount:   inodesCount - 11,
		FirstDataBlock:    0,
		LogBlockSize:      2,
		BlocksPerGroup:    ext4BlocksPerGroup,
		InodesPerGroup:    ext4InodesPerGroup,
		MTime:             mtime,
		WTime:             mtime,
		MaxMntCount:       65535,
		Magic:             ext4Magic,
		State:             1,
		Errors:            1,
		RevLevel:          1,
		FirstIno:          11,
		InodeSize:         ext4InodeSize,
		FeatureCompat:     ext4FeatureCompat,
		FeatureIncompat:   ext4FeatureIncompat,
		FeatureROCompat:   ext4FeatureROCompat,
		UUID:              uuid,
	}
	copy(sb.VolumeName[:], []byte(label))
	return sb
}

// Offset is the fixed byte offset of the superblock within the partition.
func (Ext4SuperBlock) Offset() int64 { return ext4SuperBlockOffset }

// Marshal writes the fields used by this minimum superblock into their
// documented offsets within the 1024-byte superblock region; fields
// not set here (block group descriptors, reserved words) are left zero.
func (sb Ext4SuperBlock) Marshal() [Ext4SuperBlockSize]byte {
	var buf [Ext4SuperBlockSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], sb.InodesCount)
	binary.LittleEndian.PutUint32(buf[4:8], sb.BlocksCountLo)
	binary.LittleEndian.PutUint32(buf[8:12], sb.RBlocksCountLo)
	binary.LittleEndian.PutUint32(buf[12:16], sb.FreeBlocksCountLo)
	binary.LittleEndian.PutUint32(buf[16:20], sb.FreeInodesCount)
	binary.LittleEndian.PutUint32(buf[20:24], sb.FirstDataBlock)
	binary.LittleEndian.PutUint32(buf[24:28], sb.LogBlockSize)
	binary.LittleEndian.PutUint32(buf[28:32], sb.LogBlockSize) // s_log_cluster_size mirrors block size
	binary.LittleEndian.PutUint32(buf[32:36], sb.BlocksPerGroup)
	binary.LittleEndian.PutUint32(buf[36:40], sb.BlocksPerGroup) // s_clusters_per_group
	binary.LittleEndian.PutUint32(buf[40:44], sb.InodesPerGroup)
	binary.LittleEndian.PutUint32(buf[44:48], sb.MTime)
	binary.LittleEndian.PutUint32(buf[48:52], sb.WTime)
	// s_mnt_count (52:54) left zero
	binary.LittleEndian.PutUint16(buf[54:56], sb.MaxMntCount)
	binary.LittleEndian.PutUint16(buf[56:58], sb.Magic)
	binary.LittleEndian.PutUint16(buf[58:60], sb.State)
	binary.LittleEndian.PutUint16(buf[60:62], sb.Errors)
	// s_minor_rev_level (62:64) left zero
	binary.LittleEndian.PutUint32(buf[64:68], sb.MTime) // s_lastcheck
	// s_checkinterval (68:72) left zero
	// s_creator_os (72:76) left zero
	binary.LittleEndian.PutUint32(buf[76:80], sb.RevLevel)
	// s_def_resuid/resgid (80:84) left zero
	binary.LittleEndian.PutUint32(buf[84:88], sb.FirstIno)
	binary.LittleEndian.PutUint16(buf[88:90], sb.InodeSize)
	// s_block_group_nr (90:92) left zero
	binary.LittleEndian.PutUint32(buf[92:96], sb.FeatureCompat)
	binary.LittleEndian.PutUint32(buf[96:100], sb.FeatureIncompat)
	binary.LittleEndian.PutUint32(buf[100:104], sb.FeatureROCompat)
	copy(buf[104:120], sb.UUID[:])
	copy(buf[120:136], sb.VolumeName[:])
	return buf
}

// UnmarshalExt4SuperBlock rejects buffers shorter than 1024 bytes and
// validates the magic number.
func UnmarshalExt4SuperBlock(data []byte) (Ext4SuperBlock, error) {
	if len(data) < Ext4SuperBlockSize {
		return Ext4SuperBlock{}, fmt.Errorf("ext4 superblock: expected %d bytes, got %d", Ext4SuperBlockSize, len(data))
	}
	magic := binary.LittleEndian.Uint16(data[56:58])
	if magic != ext4Magic {
		return Ext4SuperBlock{}, fmt.Errorf("ext4 superblock: bad magic 0x%04X", magic)
	}
	var sb Ext4SuperBlock
	sb.InodesCount = binary.LittleEndian.Uint32(data[0:4])
	sb.BlocksCountLo = binary.LittleEndian.Uint32(data[4:8])
	sb.RBlocksCountLo = binary.LittleEndian.Uint32(data[8:12])
	sb.FreeBlocksCountLo = binary.LittleEndian.Uint32(data[12:16])
	sb.FreeInodesCount = binary.LittleEndian.Uint32(data[16:20])
	sb.FirstDataBlock = binary.LittleEndian.Uint32(data[20:24])
	sb.LogBlockSize = binary.LittleEndian.Uint32(data[24:28])
	sb.BlocksPerGroup = binary.LittleEndian.Uint32(data[32:36])
	sb.InodesPerGroup = binary.LittleEndian.Uint32(data[40:44])
	sb.MTime = binary.LittleEndian.Uint32(data[44:48])
	sb.WTime = binary.LittleEndian.Uint32(data[48:52])
	sb.MaxMntCount = binary.LittleEndian.Uint16(data[54:56])
	sb.Magic = magic
	sb.State = binary.LittleEndian.Uint16(data[58:60])
	sb.Errors = binary.LittleEndian.Uint16(data[60:62])
	sb.RevLevel = binary.LittleEndian.Uint32(data[76:80])
	sb.FirstIno = binary.LittleEndian.Uint32(data[84:88])
	sb.InodeSize = binary.LittleEndian.Uint16(data[88:90])
	sb.FeatureCompat = binary.LittleEndian.Uint32(data[92:96])
	sb.FeatureIncompat = binary.LittleEndian.Uint32(data[96:100])
	sb.FeatureROCompat = binary.LittleEndian.Uint32(data[100:104])
	copy(sb.UUID[:], data[104:120])
	copy(sb.VolumeName[:], data[120:136])
	return sb, nil
}
