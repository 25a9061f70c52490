package alloc

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Region is one OS-level mapping, page-aligned and released as a unit.
type Region struct {
	data        []byte
	size        int
	allocatedAt time.Time
}

// Virtual allocates page-granular regions directly from the OS: anonymous
// read-write mappings on unix, VirtualAlloc on windows. Address space is
// exclusively owned by this allocator until Deallocate; Close releases every
// outstanding mapping.
type Virtual struct {
	mu       sync.Mutex
	pageSize int
	regions  map[uintptr]*Region
	stats    Statistics
	log      zerolog.Logger
}

// NewVirtual creates a virtual-memory allocator. The page size is obtained
// from the OS at construction.
func NewVirtual() *Virtual {
	return &Virtual{
		pageSize: os.Getpagesize(),
		regions:  make(map[uintptr]*Region),
		log:      zerolog.Nop(),
	}
}

// SetLogger routes deallocate diagnostics to l.
func (v *Virtual) SetLogger(l zerolog.Logger) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.log = l
}

func (v *Virtual) Name() string { return "virtual" }

// PageSize returns the mapping granularity.
func (v *Virtual) PageSize() int { return v.pageSize }

func (v *Virtual) Allocate(size, alignment int) ([]byte, error) {
	if err := checkAlignment(alignment); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, fmt.Errorf("virtual allocation size must be positive, got %d", size)
	}
	if alignment > v.pageSize {
		return nil, fmt.Errorf("alignment %d exceeds page size %d", alignment, v.pageSize)
	}

	rounded := alignUp(size, v.pageSize)

	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := mapAnonymous(rounded)
	if err != nil {
		v.stats.recordFailure()
		return nil, fmt.Errorf("anonymous mapping of %d bytes failed: %w", rounded, err)
	}

	v.regions[sliceBase(data)] = &Region{
		data:        data,
		size:        rounded,
		allocatedAt: time.Now(),
	}
	v.stats.recordAlloc(rounded)
	return data[:size:rounded], nil
}

// Deallocate returns the region containing buf to the OS. An unknown pointer
// is an error without state change.
func (v *Virtual) Deallocate(buf []byte) {
	if len(buf) == 0 {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	region, ok := v.regions[sliceBase(buf)]
	if !ok {
		v.log.Error().Msg("virtual deallocate of unknown pointer")
		return
	}

	if err := unmapAnonymous(region.data); err != nil {
		v.log.Error().Err(err).Msg("unmap failed")
		return
	}
	delete(v.regions, sliceBase(buf))
	v.stats.recordFree(region.size)
}

func (v *Virtual) Reallocate(buf []byte, newSize int) ([]byte, error) {
	if buf == nil {
		return v.Allocate(newSize, DefaultAlignment)
	}
	if newSize == 0 {
		v.Deallocate(buf)
		return nil, nil
	}

	out, err := v.Allocate(newSize, DefaultAlignment)
	if err != nil {
		return nil, err
	}
	copy(out, buf)
	v.Deallocate(buf)
	return out, nil
}

// OutstandingRegions returns the number of live mappings.
func (v *Virtual) OutstandingRegions() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.regions)
}

// Close releases every outstanding mapping.
func (v *Virtual) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	var firstErr error
	for base, region := range v.regions {
		if err := unmapAnonymous(region.data); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		v.stats.recordFree(region.size)
		delete(v.regions, base)
	}
	return firstErr
}

func (v *Virtual) Stats() Statistics {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats
}

func (v *Virtual) ResetStatistics() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stats.reset()
}
