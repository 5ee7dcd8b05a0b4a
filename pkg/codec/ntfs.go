package codec

import (
	"encoding/binary"
	"fmt"
)

const (
	NTFSBootSectorSize = 512

	ntfsClustersPerFileRecord  int8 = -10 // record size = 2^10 = 1024 bytes (Open Question 3: signed interpretation)
	ntfsClustersPerIndexBuffer int8 = 1
)

// NTFSBootSector is the bit-exact boot sector described in §4.2(7).
// ClustersPerFileRecord commits to the signed-byte interpretation
// throughout, per Open Question 3.
type NTFSBootSector struct {
	BytesPerSector         uint16
	SectorsPerCluster      uint8
	MediaDescriptor        uint8
	SectorsPerTrack        uint16
	NumberOfHeads          uint16
	HiddenSectors          uint32
	TotalSectors           uint64
	MFTCluster             uint64
	MFTMirrorCluster       uint64
	ClustersPerFileRecord  int8
	ClustersPerIndexBuffer int8
	VolumeSerialNumber     uint64
}

// NewNTFSBootSector fills in the fixed constants from §4.2(7): jump
// 0xEB 0x52 0x90, OEM "NTFS    ", media 0xF8, mftCluster =
// totalSectors/2, mftMirrorCluster = totalSectors-1,
// clustersPerFileRecord = -10, clustersPerIndexBuffer = 1.
func NewNTFSBootSector(totalSectors uint64, volumeSerial uint64) NTFSBootSector {
	return NTFSBootSector{
		BytesPerSector:         512,
		SectorsPerCluster:      8,
		MediaDescriptor:        0xF8,
		SectorsPerTrack:        63,
		NumberOfHeads:          255,
		TotalSectors:           totalSectors,
		MFTCluster:             totalSectors / 2,
		MFTMirrorCluster:       totalSectors - 1,
		ClustersPerFileRecord:  ntfsClustersPerFileRecord,
		ClustersPerIndexBuffer: ntfsClustersPerIndexBuffer,
		VolumeSerialNumber:     volumeSerial,
	}
}

// Marshal produces the exact 512-byte boot sector: jump 0xEB 0x52
// 0x90, OEM "NTFS    ", trailer 0xAA55.
func (bs NTFSBootSector) Marshal() [NTFSBootSectorSize]byte {
	var buf [NTFSBootSectorSize]byte
	buf[0], buf[1], buf[2] = 0xEB, 0x52, 0x90
	copy(buf[3:11], []byte("NTFS    "))
	binary.LittleEndian.PutUint16(buf[11:13], bs.BytesPerSector)
	buf[13] = bs.SectorsPerCluster
	buf[21] = bs.MediaDescriptor
	binary.LittleEndian.PutUint16(buf[24:26], bs.SectorsPerTrack)
	binary.LittleEndian.PutUint16(buf[26:28], bs.NumberOfHeads)
	binary.LittleEndian.PutUint32(buf[28:32], bs.HiddenSectors)
	binary.LittleEndian.PutUint64(buf[40:48], bs.TotalSectors)
	binary.LittleEndian.PutUint64(buf[48:56], bs.MFTCluster)
	binary.LittleEndian.PutUint64(buf[56:64], bs.MFTMirrorCluster)
	buf[64] = byte(bs.ClustersPerFileRecord)
	buf[68] = byte(bs.ClustersPerIndexBuffer)
	binary.LittleEndian.PutUint64(buf[72:80], bs.VolumeSerialNumber)
	binary.LittleEndian.PutUint16(buf[510:512], 0xAA55)
	return buf
}

// UnmarshalNTFSBootSector rejects buffers shorter than 512 bytes.
func UnmarshalNTFSBootSector(data []byte) (NTFSBootSector, error) {
	if len(data) < NTFSBootSectorSize {
		return NTFSBootSector{}, fmt.Errorf("ntfs boot sector: expected %d bytes, got %d", NTFSBootSectorSize, len(data))
	}
	var bs NTFSBootSector
	bs.BytesPerSector = binary.LittleEndian.Uint16(data[11:13])
	bs.SectorsPerCluster = data[13]
	bs.MediaDescriptor = data[21]
	bs.SectorsPerTrack = binary.LittleEndian.Uint16(data[24:26])
	bs.NumberOfHeads = binary.LittleEndian.Uint16(data[26:28])
	bs.HiddenSectors = binary.LittleEndian.Uint32(data[28:32])
	bs.TotalSectors = binary.LittleEndian.Uint64(data[40:48])
	bs.MFTCluster = binary.LittleEndian.Uint64(data[48:56])
	bs.MFTMirrorCluster = binary.LittleEndian.Uint64(data[56:64])
	bs.ClustersPerFileRecord = int8(data[64])
	bs.ClustersPerIndexBuffer = int8(data[68])
	bs.VolumeSerialNumber = binary.LittleEndian.Uint64(data[72:80])
	return bs, nil
}
