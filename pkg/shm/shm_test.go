package shm

import "testing"

func TestAllocRejectsNonPositiveSize(t *testing.T) {
	if _, err := Alloc(0); err == nil {
		t.Fatal("expected error for zero size")
	}
	if _, err := Alloc(-1); err == nil {
		t.Fatal("expected error for negative size")
	}
}

func TestAllocMapUnmapClose(t *testing.T) {
	seg, err := Alloc(4096)
	if err != nil {
		t.Skipf("memfd_create unavailable in this environment: %v", err)
	}
	defer seg.Close()

	if seg.Size != 4096 {
		t.Fatalf("size = %d, want 4096", seg.Size)
	}

	data, err := seg.Map()
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	data[0] = 0xAB
	if err := seg.Unmap(data); err != nil {
		t.Fatalf("Unmap: %v", err)
	}
}
