// Package fskind implements the closed persistence filesystem-kind
// enumeration named in §2.3.1/§3, replacing the original's untyped
// filesystem-kind strings (DESIGN NOTES).
package fskind

import "strings"

// Kind is a closed enumeration of supported persistence filesystem kinds.
type Kind int

const (
	Unknown Kind = iota
	EXT4
	NTFS
	ExFAT
	FAT32
	FAT64
)

// Parse maps a case-insensitive name to its Kind, mirroring
// lib/fs_supports.cpp's parseFSType.
func Parse(name string) Kind {
	switch strings.ToLower(name) {
	case "ext4":
		return EXT4
	case "ntfs":
		return NTFS
	case "exfat":
		return ExFAT
	case "fat32":
		return FAT32
	case "fat64":
		return FAT64
	default:
		return Unknown
	}
}

// Supported reports whether kind is one of the closed enumeration's
// known values.
func Supported(kind Kind) bool {
	return kind != Unknown
}

// Name returns the canonical lowercase name for kind.
func Name(kind Kind) string {
	switch kind {
	case EXT4:
		return "ext4"
	case NTFS:
		return "ntfs"
	case ExFAT:
		return "exfat"
	case FAT32:
		return "fat32"
	case FAT64:
		return "fat64"
	default:
		return "unknown"
	}
}

// All returns the full list of supported kinds, mirroring
// getSupportedFilesystems.
func All() []Kind {
	return []Kind{EXT4, NTFS, ExFAT, FAT32, FAT64}
}
