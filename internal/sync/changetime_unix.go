//go:build linux || darwin || freebsd || openbsd

package sync

import (
	"io/fs"
	"time"

	"golang.org/x/sys/unix"
)

// statusChangeTime returns the inode change time. Copying a file with
// preserved mtime still bumps it.
func statusChangeTime(path string, info fs.FileInfo) time.Time {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return info.ModTime()
	}
	sec, nsec := st.Ctim.Unix()
	return time.Unix(sec, nsec)
}
