// Package keyset provides a compact presence set over small, bounded integer
// key codes, used to track which keyboard codes are currently pressed.
package keyset

// Set is a sparse presence map over non-negative key codes. The zero value
// is ready to use. It is not safe for concurrent use; callers on the single
// event-loop thread don't need locking.
type Set struct {
	pressed map[int]struct{}
}

// New returns an empty Set.
func New() *Set {
	return &Set{pressed: make(map[int]struct{})}
}

// Add marks code as pressed. Idempotent: adding an already-pressed code is a
// no-op and reports false.
func (s *Set) Add(code int) (added bool) {
	if s.pressed == nil {
		s.pressed = make(map[int]struct{})
	}
	if _, ok := s.pressed[code]; ok {
		return false
	}
	s.pressed[code] = struct{}{}
	return true
}

// Remove marks code as released. Idempotent: removing an already-absent code
// is a no-op and reports false.
func (s *Set) Remove(code int) (removed bool) {
	if _, ok := s.pressed[code]; !ok {
		return false
	}
	delete(s.pressed, code)
	return true
}

// Contains reports whether code is currently pressed.
func (s *Set) Contains(code int) bool {
	_, ok := s.pressed[code]
	return ok
}

// Len returns the number of currently pressed codes.
func (s *Set) Len() int {
	return len(s.pressed)
}

// Codes returns the currently pressed codes in unspecified order. Used when
// force-releasing all keys (e.g. on client disconnect).
func (s *Set) Codes() []int {
	codes := make([]int, 0, len(s.pressed))
	for c := range s.pressed {
		codes = append(codes, c)
	}
	return codes
}
