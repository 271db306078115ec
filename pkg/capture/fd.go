package capture

import "golang.org/x/sys/unix"

// closeFd closes a raw fd, swallowing the error: callers use this only on
// cleanup paths where there is nothing left to do but log, and the caller
// already holds a *slog.Logger more suited to that than this helper.
func closeFd(fd int) {
	if fd >= 0 {
		_ = unix.Close(fd)
	}
}
