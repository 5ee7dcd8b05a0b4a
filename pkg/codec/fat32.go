package codec

import (
	"encoding/binary"
	"fmt"
)

const (
	FAT32BootSectorSize = 512
	FSInfoSize          = 512

	fat32BytesPerSector     = 512
	fat32SectorsPerCluster  = 8
	fat32ReservedSectors    = 32
	fat32NumFATs            = 2
	fat32FSInfoSector       = 1
	fat32BackupBootSector   = 6
	fat32RootCluster        = 2

	fsInfoLeadSignature  = 0x41615252
	fsInfoStructSignature = 0x61417272
	fsInfoTrailSignature  = 0xAA550000
)

// FAT32BootSector is the bit-exact boot sector + BPB described in §4.2(5).
type FAT32BootSector struct {
	OEMName              [8]byte
	BytesPerSector       uint16
	SectorsPerCluster    uint8
	ReservedSectorCount  uint16
	NumFATs              uint8
	Media                uint8
	SectorsPerTrack      uint16
	NumberOfHeads        uint16
	HiddenSectors        uint32
	TotalSectors32       uint32
	FATSize32            uint32
	RootCluster          uint32
	FSInfoSector         uint16
	BackupBootSector     uint16
	DriveNumber          uint8
	BootSignature        uint8
	VolumeID             uint32
	VolumeLabel          [11]byte
	FSType               [8]byte
}

// NewFAT32BootSector computes FATSize32 and fills in every fixed
// constant named in §4.2(5): 512 B/sector, 8 sectors/cluster, 32
// reserved sectors, 2 FATs, root cluster 2, FSInfo at sector 1, backup
// at sector 6. label is padded to 11 characters with spaces.
func NewFAT32BootSector(totalSectors32 uint32, label string, volumeID uint32) FAT32BootSector {
	bs := FAT32BootSector{
		BytesPerSector:      fat32BytesPerSector,
		SectorsPerCluster:   fat32SectorsPerCluster,
		ReservedSectorCount: fat32ReservedSectors,
		NumFATs:             fat32NumFATs,
		Media:               0xF8,
		SectorsPerTrack:     63,
		NumberOfHeads:       255,
		TotalSectors32:      totalSectors32,
		RootCluster:         fat32RootCluster,
		FSInfoSector:        fat32FSInfoSector,
		BackupBootSector:    fat32BackupBootSector,
		DriveNumber:         0x80,
		BootSignature:       0x29,
		VolumeID:            volumeID,
	}
	copy(bs.OEMName[:], "MSWIN4.1")
	copy(bs.FSType[:], "FAT32   ")
	for i := range bs.VolumeLabel {
		bs.VolumeLabel[i] = ' '
	}
	copy(bs.VolumeLabel[:], []byte(label))

	bs.FATSize32 = FATSize32(totalSectors32, fat32ReservedSectors, fat32SectorsPerCluster, fat32NumFATs)
	return bs
}

// FATSize32 computes ceil((total-reserved) / (256*spc + numFATs)).
func FATSize32(totalSectors32 uint32, reservedSectors uint16, sectorsPerCluster uint8, numFATs uint8) uint32 {
	tmp1 := totalSectors32 - uint32(reservedSectors)
	tmp2 := uint32(256)*uint32(sectorsPerCluster) + uint32(numFATs)
	return (tmp1 + tmp2 - 1) / tmp2
}

// Marshal produces the exact 512-byte boot sector.
func (bs FAT32BootSector) Marshal() [FAT32BootSectorSize]byte {
	var buf [FAT32BootSectorSize]byte
	buf[0], buf[1], buf[2] = 0xEB, 0x58, 0x90
	copy(buf[3:11], bs.OEMName[:])
	binary.LittleEndian.PutUint16(buf[11:13], bs.BytesPerSector)
	buf[13] = bs.SectorsPerCluster
	binary.LittleEndian.PutUint16(buf[14:16], bs.ReservedSectorCount)
	buf[16] = bs.NumFATs
	// rootEntryCount (17:19) stays 0 for FAT32
	// totalSectors16 (19:21) stays 0 for FAT32
	buf[21] = bs.Media
	// FATSize16 (22:24) stays 0 for FAT32
	binary.LittleEndian.PutUint16(buf[24:26], bs.SectorsPerTrack)
	binary.LittleEndian.PutUint16(buf[26:28], bs.NumberOfHeads)
	binary.LittleEndian.PutUint32(buf[28:32], bs.HiddenSectors)
	binary.LittleEndian.PutUint32(buf[32:36], bs.TotalSectors32)
	binary.LittleEndian.PutUint32(buf[36:40], bs.FATSize32)
	// extFlags (40:42), fsVersion (42:44) stay 0
	binary.LittleEndian.PutUint32(buf[44:48], bs.RootCluster)
	binary.LittleEndian.PutUint16(buf[48:50], bs.FSInfoSector)
	binary.LittleEndian.PutUint16(buf[50:52], bs.BackupBootSector)
	// reserved[12] (52:64) stays 0
	buf[64] = bs.DriveNumber
	// reserved1 (65) stays 0
	buf[66] = bs.BootSignature
	binary.LittleEndian.PutUint32(buf[67:71], bs.VolumeID)
	copy(buf[71:82], bs.VolumeLabel[:])
	copy(buf[82:90], bs.FSType[:])
	// bootCode[420] (90:510) stays 0
	binary.LittleEndian.PutUint16(buf[510:512], 0xAA55)
	return buf
}

// UnmarshalFAT32BootSector rejects buffers shorter than 512 bytes.
func UnmarshalFAT32BootSector(data []byte) (FAT32BootSector, error) {
	if len(data) < FAT32BootSectorSize {
		return FAT32BootSector{}, fmt.Errorf("fat32 boot sector: expected %d bytes, got %d", FAT32BootSectorSize, len(data))
	}
	var bs FAT32BootSector
	copy(bs.OEMName[:], data[3:11])
	bs.BytesPerSector = binary.LittleEndian.Uint16(data[11:13])
	bs.SectorsPerCluster = data[13]
	bs.ReservedSectorCount = binary.LittleEndian.Uint16(data[14:16])
	bs.NumFATs = data[16]
	bs.Media = data[21]
	bs.SectorsPerTrack = binary.LittleEndian.Uint16(data[24:26])
	bs.NumberOfHeads = binary.LittleEndian.Uint16(data[26:28])
	bs.HiddenSectors = binary.LittleEndian.Uint32(data[28:32])
	bs.TotalSectors32 = binary.LittleEndian.Uint32(data[32:36])
	bs.FATSize32 = binary.LittleEndian.Uint32(data[36:40])
	bs.RootCluster = binary.LittleEndian.Uint32(data[44:48])
	bs.FSInfoSector = binary.LittleEndian.Uint16(data[48:50])
	bs.BackupBootSector = binary.LittleEndian.Uint16(data[50:52])
	bs.DriveNumber = data[64]
	bs.BootSignature = data[66]
	bs.VolumeID = binary.LittleEndian.Uint32(data[67:71])
	copy(bs.VolumeLabel[:], data[71:82])
	copy(bs.FSType[:], data[82:90])
	return bs, nil
}

// FSInfo is the FAT32 filesystem information sector.
type FSInfo struct {
	FreeCount uint32
	NextFree  uint32
}

// NewFSInfo fills in the fixed signatures; FreeCount/NextFree default
// to 0xFFFFFFFF ("unknown"), matching the original.
func NewFSInfo() FSInfo {
	return FSInfo{FreeCount: 0xFFFFFFFF, NextFree: 0xFFFFFFFF}
}

// Marshal produces the exact 512-byte FSInfo sector.
func (fi FSInfo) Marshal() [FSInfoSize]byte {
	var buf [FSInfoSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], fsInfoLeadSignature)
	binary.LittleEndian.PutUint32(buf[484:488], fsInfoStructSignature)
	binary.LittleEndian.PutUint32(buf[488:492], fi.FreeCount)
	binary.LittleEndian.PutUint32(buf[492:496], fi.NextFree)
	binary.LittleEndian.PutUint32(buf[508:512], fsInfoTrailSignature)
	return buf
}

// UnmarshalFSInfo rejects buffers shorter than 512 bytes.
func UnmarshalFSInfo(data []byte) (FSInfo, error) {
	if len(data) < FSInfoSize {
		return FSInfo{}, fmt.Errorf("fsinfo: expected %d bytes, got %d", FSInfoSize, len(data))
	}
	return FSInfo{
		FreeCount: binary.LittleEndian.Uint32(data[488:492]),
		NextFree:  binary.LittleEndian.Uint32(data[492:496]),
	}, nil
}

// InitialFAT returns the first 512-byte FAT sector with the first two
// reserved FAT entries set to the media-descriptor / end-of-chain
// values (0x0FFFFFF8, 0x0FFFFFFF) and the root directory's own cluster
// entry (entry 2) set to the end-of-chain marker 0x0FFFFFFF.
func InitialFAT() [512]byte {
	var buf [512]byte
	binary.LittleEndian.PutUint32(buf[0:4], 0x0FFFFFF8)
	binary.LittleEndian.PutUint32(buf[4:8], 0x0FFFFFFF)
	binary.LittleEndian.PutUint32(buf[8:12], 0x0FFFFFFF)
	return buf
}
