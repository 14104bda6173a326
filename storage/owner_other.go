//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package storage

// ownerOf is not supported on this OS, callers fall back to the defaults.
func ownerOf(name string) (links int, owner, group string, ok bool) {
	return 0, "", "", false
}
