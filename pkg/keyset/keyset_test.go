package keyset

import "testing"

func TestAddRemoveIdempotent(t *testing.T) {
	s := New()

	if !s.Add(30) {
		t.Fatal("first Add should report added=true")
	}
	if s.Add(30) {
		t.Fatal("second Add of same code should report added=false")
	}
	if !s.Contains(30) {
		t.Fatal("expected 30 to be pressed")
	}

	if !s.Remove(30) {
		t.Fatal("first Remove should report removed=true")
	}
	if s.Remove(30) {
		t.Fatal("second Remove of same code should report removed=false")
	}
	if s.Contains(30) {
		t.Fatal("expected 30 to no longer be pressed")
	}
}

func TestZeroValueUsable(t *testing.T) {
	var s Set
	if s.Contains(1) {
		t.Fatal("zero value should contain nothing")
	}
	if !s.Add(1) {
		t.Fatal("zero value Set should accept Add")
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
}

func TestCodes(t *testing.T) {
	s := New()
	s.Add(1)
	s.Add(2)
	s.Add(3)

	codes := s.Codes()
	if len(codes) != 3 {
		t.Fatalf("len(Codes()) = %d, want 3", len(codes))
	}
	seen := map[int]bool{}
	for _, c := range codes {
		seen[c] = true
	}
	for _, want := range []int{1, 2, 3} {
		if !seen[want] {
			t.Fatalf("Codes() missing %d", want)
		}
	}
}
