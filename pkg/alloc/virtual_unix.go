//go:build unix

package alloc

import "golang.org/x/sys/unix"

// mapAnonymous obtains a private anonymous read-write mapping of length
// bytes from the kernel.
func mapAnonymous(length int) ([]byte, error) {
	return unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

// unmapAnonymous returns a mapping obtained from mapAnonymous to the kernel.
func unmapAnonymous(data []byte) error {
	return unix.Munmap(data)
}
