package mapped

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrUnsupported is returned on platforms without mmap support.
var ErrUnsupported = errors.New("mapped: not supported on this platform")

// File is a memory-mapped file. Mem aliases the file contents; stores are
// visible to every process mapping the same path.
type File struct {
	file *os.File
	mem  []byte
	path string
}

// Path returns the backing file path.
func (f *File) Path() string { return f.path }

// Mem returns the mapped region.
func (f *File) Mem() []byte { return f.mem }

// Close unmaps the region and closes the backing file. The file itself is not
// removed; lifecycle of driver-created files belongs to the driver.
func (f *File) Close() error {
	var err error
	if f.mem != nil {
		err = unmap(f.mem)
		f.mem = nil
	}
	if f.file != nil {
		if cerr := f.file.Close(); err == nil {
			err = cerr
		}
		f.file = nil
	}
	return err
}

// ShmDir returns the preferred directory for shared files: /dev/shm when
// available, else the OS temp directory.
func ShmDir() string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// CreateFile creates path with the given length and maps it shared.
// The file must not already exist.
func CreateFile(path string, length int64) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := file.Truncate(length); err != nil {
		file.Close()
		os.Remove(path)
		return nil, err
	}
	mem, err := mmap(file, int(length))
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, err
	}
	return &File{file: file, mem: mem, path: path}, nil
}

// OpenFile maps an existing file shared, using its current length.
func OpenFile(path string) (*File, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	mem, err := mmap(file, int(info.Size()))
	if err != nil {
		file.Close()
		return nil, err
	}
	return &File{file: file, mem: mem, path: path}, nil
}
