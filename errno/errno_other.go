//go:build !unix

package errno

import "syscall"

var errnoNames = map[syscall.Errno]string{
	syscall.EACCES:       "EACCES",
	syscall.EEXIST:       "EEXIST",
	syscall.EINVAL:       "EINVAL",
	syscall.EISDIR:       "EISDIR",
	syscall.ENOENT:       "ENOENT",
	syscall.ENOTDIR:      "ENOTDIR",
	syscall.ENOTEMPTY:    "ENOTEMPTY",
	syscall.EPERM:        "EPERM",
	syscall.EROFS:        "EROFS",
	syscall.EFBIG:        "EFBIG",
	syscall.ENAMETOOLONG: "ENAMETOOLONG",
	syscall.ENOSPC:       "ENOSPC",
	syscall.ETIMEDOUT:    "ETIMEDOUT",
	syscall.ECANCELED:    "ECANCELED",
	syscall.ECONNREFUSED: "ECONNREFUSED",
	syscall.ENOSYS:       "ENOSYS",
}

func errnoName(e syscall.Errno) string {
	return errnoNames[e]
}

func errnoDescription(e syscall.Errno) string {
	if _, ok := errnoNames[e]; !ok {
		return ""
	}
	return e.Error()
}
