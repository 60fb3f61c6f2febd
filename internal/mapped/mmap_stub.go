//go:build !linux && !darwin

package mapped

import "os"

func mmap(file *os.File, length int) ([]byte, error) {
	return nil, ErrUnsupported
}

func unmap(mem []byte) error {
	return ErrUnsupported
}
