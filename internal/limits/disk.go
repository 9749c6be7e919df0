//go:build !windows

package limits

import "syscall"

// freeDiskBytes returns the bytes available to unprivileged processes on
// the filesystem containing path.
func freeDiskBytes(path string) (int64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}
