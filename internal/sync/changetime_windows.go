//go:build windows

package sync

import (
	"io/fs"
	"syscall"
	"time"
)

// statusChangeTime returns the creation time, which Windows resets when a
// file is copied.
func statusChangeTime(_ string, info fs.FileInfo) time.Time {
	if attr, ok := info.Sys().(*syscall.Win32FileAttributeData); ok {
		return time.Unix(0, attr.CreationTime.Nanoseconds())
	}
	return info.ModTime()
}
