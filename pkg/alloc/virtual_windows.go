//go:build windows

package alloc

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// mapAnonymous commits length bytes of read-write pages via VirtualAlloc.
func mapAnonymous(length int) ([]byte, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(length), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), length), nil
}

// unmapAnonymous releases pages committed by mapAnonymous.
func unmapAnonymous(data []byte) error {
	return windows.VirtualFree(uintptr(unsafe.Pointer(&data[0])), 0, windows.MEM_RELEASE)
}
