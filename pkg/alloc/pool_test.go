package alloc_test

import (
	"testing"

	"github.com/mwantia/ember/pkg/alloc"
)

func TestPoolExhaustion(t *testing.T) {
	p, err := alloc.NewPool(64, 4)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}

	seen := make(map[*byte]bool)
	bufs := make([][]byte, 0, 4)
	for i := 0; i < 4; i++ {
		buf, err := p.Allocate(64, 8)
		if err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
		if seen[&buf[0]] {
			t.Fatalf("allocation %d aliases an earlier block", i)
		}
		seen[&buf[0]] = true
		bufs = append(bufs, buf)
	}

	if _, err := p.Allocate(64, 8); err == nil {
		t.Fatal("5th allocate succeeded on a 4-block pool")
	}

	p.Deallocate(bufs[2])
	if _, err := p.Allocate(64, 8); err != nil {
		t.Fatalf("allocate after free: %v", err)
	}
}

func TestPoolBlockAccounting(t *testing.T) {
	p, _ := alloc.NewPool(32, 8)

	check := func(want int) {
		t.Helper()
		if got := p.AllocatedBlocks(); got != want {
			t.Errorf("AllocatedBlocks() = %d, want %d", got, want)
		}
		if got := p.AllocatedBlocks() + p.AvailableBlocks(); got != 8 {
			t.Errorf("allocated+available = %d, want 8", got)
		}
	}

	check(0)
	a, _ := p.Allocate(32, 8)
	b, _ := p.Allocate(32, 8)
	check(2)
	p.Deallocate(a)
	check(1)
	p.Deallocate(b)
	check(0)
}

func TestPoolRejectsOversizedRequest(t *testing.T) {
	p, _ := alloc.NewPool(64, 2)

	if _, err := p.Allocate(65, 8); err == nil {
		t.Error("expected error for request larger than block size")
	}
}

func TestPoolBlockSizeFloor(t *testing.T) {
	p, _ := alloc.NewPool(1, 4)

	if got := p.BlockSize(); got < alloc.PointerSize {
		t.Errorf("BlockSize() = %d, want at least %d", got, alloc.PointerSize)
	}
	if got := p.BlockSize(); got%alloc.PointerSize != 0 {
		t.Errorf("BlockSize() = %d, want multiple of %d", got, alloc.PointerSize)
	}
}

func TestPoolOutOfRangeDeallocate(t *testing.T) {
	p, _ := alloc.NewPool(64, 2)

	a, _ := p.Allocate(64, 8)

	// A foreign buffer must be reported without corrupting the freelist.
	foreign := make([]byte, 64)
	p.Deallocate(foreign)

	if got := p.AllocatedBlocks(); got != 1 {
		t.Errorf("AllocatedBlocks() = %d after foreign free, want 1", got)
	}

	p.Deallocate(a)
	b, err := p.Allocate(64, 8)
	if err != nil {
		t.Fatalf("allocate after foreign free: %v", err)
	}
	c, err := p.Allocate(64, 8)
	if err != nil {
		t.Fatalf("second allocate: %v", err)
	}
	if &b[0] == &c[0] {
		t.Error("freelist corrupted: two live blocks alias")
	}
}

func TestPoolDoubleFreeIgnored(t *testing.T) {
	p, _ := alloc.NewPool(64, 2)

	a, _ := p.Allocate(64, 8)
	p.Deallocate(a)
	p.Deallocate(a)

	if got := p.AvailableBlocks(); got != 2 {
		t.Errorf("AvailableBlocks() = %d after double free, want 2", got)
	}
}

func TestPoolReallocateWithinBlock(t *testing.T) {
	p, _ := alloc.NewPool(64, 2)

	buf, _ := p.Allocate(16, 8)
	copy(buf, []byte{1, 2, 3, 4})

	grown, err := p.Reallocate(buf, 48)
	if err != nil {
		t.Fatalf("reallocate: %v", err)
	}
	if len(grown) != 48 {
		t.Errorf("len = %d, want 48", len(grown))
	}
	if &grown[0] != &buf[0] {
		t.Error("in-block reallocate moved the allocation")
	}
	if _, err := p.Reallocate(grown, 100); err == nil {
		t.Error("expected error growing past the block size")
	}
}

func TestPoolResetStatisticsKeepsOutstanding(t *testing.T) {
	p, _ := alloc.NewPool(64, 4)

	p.Allocate(64, 8)
	p.Allocate(64, 8)
	p.ResetStatistics()

	stats := p.Stats()
	if stats.AllocationCount != 0 {
		t.Errorf("AllocationCount = %d after reset, want 0", stats.AllocationCount)
	}
	if stats.TotalAllocated != 128 {
		t.Errorf("TotalAllocated = %d after reset, want 128", stats.TotalAllocated)
	}
	if got := p.AllocatedBlocks(); got != 2 {
		t.Errorf("AllocatedBlocks() = %d after reset, want 2", got)
	}
}
