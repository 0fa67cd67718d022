//go:build !darwin && !dragonfly && !freebsd && !linux && !netbsd && !openbsd

package backup

import "os"

// getUID returns 0 on platforms without Unix-style UIDs.
func getUID(fi os.FileInfo) int { return 0 }

// getGID returns 0 on platforms without Unix-style GIDs.
func getGID(fi os.FileInfo) int { return 0 }
