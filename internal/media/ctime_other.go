//go:build !linux

package media

import (
	"io/fs"
	"time"
)

func createdAt(_ string, fi fs.FileInfo) time.Time { return fi.ModTime() }
