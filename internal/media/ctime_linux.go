//go:build linux

package media

import (
	"io/fs"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

func createdAt(path string, fi fs.FileInfo) time.Time {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return time.Unix(int64(st.Ctim.Sec), int64(st.Ctim.Nsec))
	}
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return fi.ModTime()
	}
	return time.Unix(int64(st.Ctim.Sec), int64(st.Ctim.Nsec))
}
