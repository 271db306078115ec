package capture

import "errors"

// Sentinel kinds a caller can match with errors.Is. A backend's Start always
// returns one of these, wrapped with protocol-specific detail.
var (
	// ErrAllocationFailure covers failure to obtain the buffer/fd the
	// capture needs (SHM pool creation, memfd_create, dmabuf import).
	ErrAllocationFailure = errors.New("capture: allocation failure")

	// ErrCompositorRefused means the compositor rejected the capture
	// request outright (e.g. capture_output errored before any buffer
	// event arrived). Retrying immediately is unlikely to help.
	ErrCompositorRefused = errors.New("capture: compositor refused")

	// ErrCaptureFailed is a single-cycle failure; the backend settles in
	// StatusFailed, and a subsequent Start begins a fresh cycle.
	ErrCaptureFailed = errors.New("capture: capture failed")

	// ErrCaptureFatal means the backend cannot produce frames anymore
	// (protocol object destroyed, global gone). The scheduler must fail
	// over to a different backend or give up.
	ErrCaptureFatal = errors.New("capture: capture fatal")

	// ErrInProgress is returned by Start when a capture cycle is already
	// outstanding on this backend.
	ErrInProgress = errors.New("capture: already in progress")
)
