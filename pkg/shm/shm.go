// Package shm allocates anonymous, file-descriptor-shareable memory segments
// for handing pixel buffers to the compositor across the wl_shm wire protocol.
package shm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Segment is a single anonymous memory-backed file descriptor. The caller owns
// the fd: share it with the compositor, then Close once the compositor has
// bound its own reference (e.g. after wl_shm.create_pool returns).
type Segment struct {
	Fd   int
	Size int64
}

// Alloc creates an anonymous, sealable memory segment of size bytes and
// truncates it to that size. It uses memfd_create so the segment needs no
// backing path and is automatically reclaimed when the last fd referencing
// it is closed.
func Alloc(size int64) (*Segment, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shm: invalid size %d", size)
	}

	fd, err := unix.MemfdCreate("wlrfb-shm", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return nil, fmt.Errorf("shm: memfd_create: %w", err)
	}

	if err := unix.Ftruncate(fd, size); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shm: ftruncate: %w", err)
	}

	// Seal shrink/grow so the compositor can rely on the size it was handed;
	// writes and mmaps against the existing size remain allowed.
	if _, _, errno := unix.Syscall(unix.SYS_FCNTL, uintptr(fd), unix.F_ADD_SEALS, uintptr(unix.F_SEAL_SHRINK|unix.F_SEAL_GROW)); errno != 0 {
		// Sealing is best-effort; some kernels or sandboxes disallow it.
		_ = errno
	}

	return &Segment{Fd: fd, Size: size}, nil
}

// Map maps the segment into this process's address space for reading and
// writing by the renderer or the SHM capture backend.
func (s *Segment) Map() ([]byte, error) {
	data, err := unix.Mmap(s.Fd, 0, int(s.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap: %w", err)
	}
	return data, nil
}

// Unmap releases a mapping previously returned by Map.
func (s *Segment) Unmap(data []byte) error {
	return Unmap(data)
}

// Unmap releases any mapping produced by Segment.Map. Valid after the
// segment's local fd has been closed; the mapping keeps the memory alive on
// its own.
func Unmap(data []byte) error {
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("shm: munmap: %w", err)
	}
	return nil
}

// Close closes the local fd. It does not affect any duplicate fd the
// compositor holds; callers must close their local copy immediately after
// the compositor has bound its own reference.
func (s *Segment) Close() error {
	if s.Fd < 0 {
		return nil
	}
	err := unix.Close(s.Fd)
	s.Fd = -1
	return err
}
