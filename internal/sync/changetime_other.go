//go:build !(linux || darwin || freebsd || openbsd || windows)

package sync

import (
	"io/fs"
	"time"
)

func statusChangeTime(_ string, info fs.FileInfo) time.Time {
	return info.ModTime()
}
