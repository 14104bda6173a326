//go:build linux || darwin || freebsd || netbsd || openbsd

package storage

import (
	"strconv"

	"golang.org/x/sys/unix"
)

// ownerOf returns the link count and the numeric owner and group of a file on disk.
func ownerOf(name string) (links int, owner, group string, ok bool) {
	var stat unix.Stat_t
	if err := unix.Lstat(name, &stat); err != nil {
		return 0, "", "", false
	}
	return int(stat.Nlink),
		strconv.FormatUint(uint64(stat.Uid), 10),
		strconv.FormatUint(uint64(stat.Gid), 10),
		true
}
