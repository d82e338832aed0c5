//go:build !linux

package cachefs

import (
	"os"
	"time"
)

// atimeOf falls back to mtime on platforms where this package does not
// decode a raw access-time field. Eviction still orders entries
// deterministically; it just uses a slightly coarser recency signal.
func atimeOf(fi os.FileInfo) time.Time {
	return fi.ModTime()
}
