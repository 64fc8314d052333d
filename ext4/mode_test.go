package ext4

import (
	"io/fs"
	"testing"
)

func TestRenderMode(t *testing.T) {
	tests := []struct {
		name string
		mode uint16
		want string
	}{
		{"dir rwxr-xr-x", modeTypeDir | 0o755, "drwxr-xr-x"},
		{"regular rw-r--r--", modeTypeFile | 0o644, "-rw-r--r--"},
		{"symlink rwxrwxrwx", modeTypeLink | 0o777, "lrwxrwxrwx"},
		{"fifo", modeTypeFifo | 0o600, "prw-------"},
		{"socket", modeTypeSock | 0o666, "srw-rw-rw-"},
		{"char device", modeTypeChar | 0o660, "crw-rw----"},
		{"block device", modeTypeBlock | 0o640, "brw-r-----"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := renderMode(tt.mode); got != tt.want {
				t.Errorf("renderMode(%#o) = %q, want %q", tt.mode, got, tt.want)
			}
		})
	}
}

func TestFsFileMode(t *testing.T) {
	tests := []struct {
		name     string
		mode     uint16
		wantType fs.FileMode
		wantPerm fs.FileMode
	}{
		{"dir", modeTypeDir | 0o755, fs.ModeDir, 0o755},
		{"regular", modeTypeFile | 0o644, 0, 0o644},
		{"symlink", modeTypeLink | 0o777, fs.ModeSymlink, 0o777},
		{"fifo", modeTypeFifo | 0o600, fs.ModeNamedPipe, 0o600},
		{"socket", modeTypeSock | 0o666, fs.ModeSocket, 0o666},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fsFileMode(tt.mode)
			if got.Type() != tt.wantType {
				t.Errorf("fsFileMode(%#o).Type() = %v, want %v", tt.mode, got.Type(), tt.wantType)
			}
			if got.Perm() != tt.wantPerm {
				t.Errorf("fsFileMode(%#o).Perm() = %v, want %v", tt.mode, got.Perm(), tt.wantPerm)
			}
		})
	}
}

// regression test for the teacher's direct fs.FileMode(inode.Mode) cast,
// which produced a mode with fs.ModeDir unset for a directory inode since
// ext4's 0x4000 type bit doesn't land on fs.ModeDir's bit position.
func TestFsFileModeNotRawCast(t *testing.T) {
	var mode uint16 = modeTypeDir | 0o755
	if raw := fs.FileMode(mode); raw.IsDir() {
		t.Skip("only meaningful when the raw cast disagrees with fsFileMode")
	}
	if !fsFileMode(mode).IsDir() {
		t.Errorf("fsFileMode(%#o).IsDir() = false, want true", mode)
	}
}
