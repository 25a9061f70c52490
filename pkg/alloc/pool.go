package alloc

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// poolNone terminates the freelist.
const poolNone = ^uint64(0)

// Pool is a fixed-size-block allocator. The whole buffer is threaded into an
// intrusive freelist at construction: each free block stores the index of
// the next free block in its leading bytes, while allocated blocks are
// opaque user data. Alloc and free are O(1).
type Pool struct {
	mu         sync.Mutex
	buffer     []byte
	blockSize  int
	blockCount int
	freeHead   uint64
	allocated  []bool
	liveBlocks int
	stats      Statistics
	log        zerolog.Logger
}

// NewPool creates a pool of blockCount blocks. The effective block size is
// raised to at least the pointer size and rounded up to pointer alignment so
// a free block can always hold its next-pointer.
func NewPool(blockSize, blockCount int) (*Pool, error) {
	if blockCount <= 0 {
		return nil, fmt.Errorf("pool needs at least one block, got %d", blockCount)
	}
	if blockSize < PointerSize {
		blockSize = PointerSize
	}
	blockSize = alignUp(blockSize, PointerSize)

	p := &Pool{
		buffer:     make([]byte, blockSize*blockCount),
		blockSize:  blockSize,
		blockCount: blockCount,
		freeHead:   0,
		allocated:  make([]bool, blockCount),
		log:        zerolog.Nop(),
	}
	for i := 0; i < blockCount; i++ {
		next := poolNone
		if i+1 < blockCount {
			next = uint64(i + 1)
		}
		binary.LittleEndian.PutUint64(p.block(i), next)
	}
	return p, nil
}

// SetLogger routes deallocate diagnostics to l.
func (p *Pool) SetLogger(l zerolog.Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log = l
}

func (p *Pool) Name() string { return "pool" }

// BlockSize returns the effective per-block size.
func (p *Pool) BlockSize() int { return p.blockSize }

func (p *Pool) block(i int) []byte {
	off := i * p.blockSize
	return p.buffer[off : off+p.blockSize : off+p.blockSize]
}

func (p *Pool) Allocate(size, alignment int) ([]byte, error) {
	if err := checkAlignment(alignment); err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, fmt.Errorf("negative allocation size %d", size)
	}
	if size == 0 {
		return []byte{}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if size > p.blockSize {
		p.stats.recordFailure()
		return nil, fmt.Errorf("request of %d bytes exceeds pool block size %d", size, p.blockSize)
	}
	if alignment > PointerSize {
		p.stats.recordFailure()
		return nil, fmt.Errorf("alignment %d exceeds pool block alignment %d", alignment, PointerSize)
	}
	if p.freeHead == poolNone {
		p.stats.recordFailure()
		return nil, fmt.Errorf("pool exhausted: all %d blocks allocated", p.blockCount)
	}

	idx := int(p.freeHead)
	p.freeHead = binary.LittleEndian.Uint64(p.block(idx))
	p.allocated[idx] = true
	p.liveBlocks++
	p.stats.recordAlloc(size)

	buf := p.block(idx)[:size:p.blockSize]
	return buf, nil
}

// Deallocate returns a block to the freelist. Out-of-range, misaligned, and
// double frees are reported and ignored without touching the freelist.
func (p *Pool) Deallocate(buf []byte) {
	if len(buf) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	base := sliceBase(p.buffer)
	ptr := sliceBase(buf)
	if ptr < base || ptr >= base+uintptr(len(p.buffer)) {
		p.log.Error().Msg("pool deallocate of pointer outside the pool range")
		return
	}
	off := int(ptr - base)
	if off%p.blockSize != 0 {
		p.log.Error().Int("offset", off).Msg("pool deallocate of mid-block pointer")
		return
	}
	idx := off / p.blockSize
	if !p.allocated[idx] {
		p.log.Error().Int("block", idx).Msg("pool double free")
		return
	}

	binary.LittleEndian.PutUint64(p.block(idx), p.freeHead)
	p.freeHead = uint64(idx)
	p.allocated[idx] = false
	p.liveBlocks--
	p.stats.recordFree(len(buf))
}

func (p *Pool) Reallocate(buf []byte, newSize int) ([]byte, error) {
	if buf == nil {
		return p.Allocate(newSize, DefaultAlignment)
	}
	if newSize == 0 {
		p.Deallocate(buf)
		return nil, nil
	}
	if newSize > p.blockSize {
		return nil, fmt.Errorf("request of %d bytes exceeds pool block size %d", newSize, p.blockSize)
	}

	// The block already spans the whole cell; resize in place.
	p.mu.Lock()
	if newSize >= len(buf) {
		p.stats.TotalAllocated += uint64(newSize - len(buf))
		if p.stats.TotalAllocated > p.stats.PeakAllocated {
			p.stats.PeakAllocated = p.stats.TotalAllocated
		}
	} else {
		p.stats.TotalAllocated -= uint64(len(buf) - newSize)
	}
	p.mu.Unlock()
	return buf[:newSize:cap(buf)], nil
}

// AllocatedBlocks returns the number of blocks currently handed out.
func (p *Pool) AllocatedBlocks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.liveBlocks
}

// AvailableBlocks returns the number of free blocks.
func (p *Pool) AvailableBlocks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.blockCount - p.liveBlocks
}

func (p *Pool) Stats() Statistics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// ResetStatistics clears the cumulative totals. Counters for blocks still
// outstanding are intentionally left alone.
func (p *Pool) ResetStatistics() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.reset()
}
