//go:build !unix

package delivery

import "os"

func freeDiskBytes(string) int64 { return -1 }

func canAccess(path string, write bool) bool {
	flag := os.O_RDONLY
	if write {
		flag = os.O_WRONLY
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}
