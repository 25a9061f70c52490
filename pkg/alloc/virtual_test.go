package alloc_test

import (
	"testing"

	"github.com/mwantia/ember/pkg/alloc"
)

func TestVirtualAllocateRoundsToPage(t *testing.T) {
	v := alloc.NewVirtual()
	defer v.Close()

	buf, err := v.Allocate(100, 8)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(buf) != 100 {
		t.Errorf("len = %d, want 100", len(buf))
	}
	if cap(buf) != v.PageSize() {
		t.Errorf("cap = %d, want one page (%d)", cap(buf), v.PageSize())
	}
	if got := v.Stats().TotalAllocated; got != uint64(v.PageSize()) {
		t.Errorf("TotalAllocated = %d, want %d", got, v.PageSize())
	}
}

func TestVirtualDeallocate(t *testing.T) {
	v := alloc.NewVirtual()
	defer v.Close()

	buf, err := v.Allocate(4096, 8)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	buf[0] = 0xAA
	buf[len(buf)-1] = 0xBB

	v.Deallocate(buf)
	if got := v.OutstandingRegions(); got != 0 {
		t.Errorf("OutstandingRegions() = %d, want 0", got)
	}
	if got := v.Stats().TotalAllocated; got != 0 {
		t.Errorf("TotalAllocated = %d after release, want 0", got)
	}
}

func TestVirtualUnknownPointer(t *testing.T) {
	v := alloc.NewVirtual()
	defer v.Close()

	v.Allocate(100, 8)
	before := v.OutstandingRegions()

	v.Deallocate(make([]byte, 100))
	if got := v.OutstandingRegions(); got != before {
		t.Errorf("OutstandingRegions() = %d after unknown free, want %d", got, before)
	}
}

func TestVirtualCloseReleasesAll(t *testing.T) {
	v := alloc.NewVirtual()

	v.Allocate(100, 8)
	v.Allocate(10000, 8)

	if err := v.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := v.OutstandingRegions(); got != 0 {
		t.Errorf("OutstandingRegions() = %d after close, want 0", got)
	}
}

func TestVirtualRejectsNonPositiveSize(t *testing.T) {
	v := alloc.NewVirtual()
	defer v.Close()

	if _, err := v.Allocate(0, 8); err == nil {
		t.Error("expected error for zero size")
	}
	if _, err := v.Allocate(-5, 8); err == nil {
		t.Error("expected error for negative size")
	}
}

func TestVirtualReallocateCopies(t *testing.T) {
	v := alloc.NewVirtual()
	defer v.Close()

	buf, _ := v.Allocate(64, 8)
	copy(buf, []byte("hello"))

	out, err := v.Reallocate(buf, 128)
	if err != nil {
		t.Fatalf("reallocate: %v", err)
	}
	if string(out[:5]) != "hello" {
		t.Error("reallocate did not preserve contents")
	}
	if got := v.OutstandingRegions(); got != 1 {
		t.Errorf("OutstandingRegions() = %d, want 1", got)
	}
}
