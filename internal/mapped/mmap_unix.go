//go:build linux || darwin

package mapped

import (
	"os"
	"syscall"
)

func mmap(file *os.File, length int) ([]byte, error) {
	return syscall.Mmap(int(file.Fd()), 0, length, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
}

func unmap(mem []byte) error {
	return syscall.Munmap(mem)
}
