package ext4

import "io/fs"

// renderMode renders the 10-character mode string spec.md 6 requires:
// a type letter followed by three rwx triples.
func renderMode(mode uint16) string {
	var b [10]byte
	switch mode & modeTypeMask {
	case modeTypeDir:
		b[0] = 'd'
	case modeTypeLink:
		b[0] = 'l'
	case modeTypeChar:
		b[0] = 'c'
	case modeTypeBlock:
		b[0] = 'b'
	case modeTypeFifo:
		b[0] = 'p'
	case modeTypeSock:
		b[0] = 's'
	default:
		b[0] = '-'
	}
	const rwx = "rwx"
	for i := 0; i < 9; i++ {
		if mode&(1<<uint(8-i)) != 0 {
			b[1+i] = rwx[i%3]
		} else {
			b[1+i] = '-'
		}
	}
	return string(b[:])
}

// fsFileMode translates an ext4 on-disk mode into the bits io/fs expects,
// since the two encodings share only the permission bits, not the type
// nibble (fs.FileMode reserves its top bits differently from ext4's 0xF000
// nibble).
func fsFileMode(mode uint16) fs.FileMode {
	perm := fs.FileMode(mode & 0x1FF)
	switch mode & modeTypeMask {
	case modeTypeDir:
		return perm | fs.ModeDir
	case modeTypeLink:
		return perm | fs.ModeSymlink
	case modeTypeChar:
		return perm | fs.ModeCharDevice | fs.ModeDevice
	case modeTypeBlock:
		return perm | fs.ModeDevice
	case modeTypeFifo:
		return perm | fs.ModeNamedPipe
	case modeTypeSock:
		return perm | fs.ModeSocket
	default:
		return perm
	}
}
