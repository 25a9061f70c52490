package alloc

import (
	"fmt"
	"sync"
)

// Default wraps the Go runtime allocator. Requests with alignment beyond
// what the runtime guarantees allocate a padded parent slice, hand out an
// aligned view into it, and retain the parent keyed by the aligned address
// so the deallocate path can release it and the GC keeps it alive meanwhile.
type Default struct {
	mu      sync.Mutex
	aligned map[uintptr][]byte
	stats   Statistics
}

// runtimeAlignment is the largest alignment Allocate first tries to meet
// with a plain make. The Go heap does not promise it for small odd-sized
// slices, so Allocate checks the address and falls back to the padded path.
const runtimeAlignment = 8

// NewDefault creates an allocator backed by the host's general-purpose
// allocator.
func NewDefault() *Default {
	return &Default{
		aligned: make(map[uintptr][]byte),
	}
}

func (d *Default) Name() string { return "default" }

func (d *Default) Allocate(size, alignment int) ([]byte, error) {
	if err := checkAlignment(alignment); err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, fmt.Errorf("negative allocation size %d", size)
	}
	if size == 0 {
		return []byte{}, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var buf []byte
	if alignment <= runtimeAlignment {
		buf = make([]byte, size)
	}
	if buf == nil || sliceBase(buf)%uintptr(alignment) != 0 {
		raw := make([]byte, size+alignment)
		base := sliceBase(raw)
		off := int((uintptr(alignment) - base%uintptr(alignment)) % uintptr(alignment))
		buf = raw[off : off+size : off+size]
		d.aligned[sliceBase(buf)] = raw
	}

	d.stats.recordAlloc(size)
	return buf, nil
}

func (d *Default) Deallocate(buf []byte) {
	if len(buf) == 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.aligned, sliceBase(buf))
	d.stats.recordFree(len(buf))
}

func (d *Default) Reallocate(buf []byte, newSize int) ([]byte, error) {
	if buf == nil {
		return d.Allocate(newSize, DefaultAlignment)
	}
	if newSize == 0 {
		d.Deallocate(buf)
		return nil, nil
	}

	out, err := d.Allocate(newSize, DefaultAlignment)
	if err != nil {
		return nil, err
	}
	copy(out, buf)
	d.Deallocate(buf)
	return out, nil
}

func (d *Default) Stats() Statistics {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Default) ResetStatistics() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.reset()
}
