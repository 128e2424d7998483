package util

import "os"

// CheckFileExists reports whether fpath names an existing regular file.
// Directories and unreadable paths report false.
func CheckFileExists(fpath string) bool {
	info, err := os.Stat(fpath)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
