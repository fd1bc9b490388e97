//go:build unix

package delivery

import "golang.org/x/sys/unix"

// freeDiskBytes returns the bytes available to unprivileged users on the
// volume holding dir, or -1.
func freeDiskBytes(dir string) int64 {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return -1
	}
	return int64(st.Bavail) * int64(st.Bsize)
}

func canAccess(path string, write bool) bool {
	mode := uint32(unix.R_OK)
	if write {
		mode = unix.W_OK
	}
	return unix.Access(path, mode) == nil
}
