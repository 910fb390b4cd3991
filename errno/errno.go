// Package errno translates platform error codes into structured error values
// that scripts can inspect.
//
// Codes follow the libuv convention: an OS error is the negated errno value
// (ENOENT is -2 on Linux), and a few runtime-specific failures live in ranges
// no OS uses (EOF is -4095, the resolver errors start at -3000).
//
// Every OS-facing binding reports failures through [Raise], so scripts always
// see the same shape:
//
//	ok, err = tjs.catch(tjs.fs_read, path = "/data/missing.txt")
//	err.code     # "ENOENT"
//	err.message  # "ENOENT: no such file or directory"
package errno

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"syscall"
)

// Code is a platform error code.
type Code int

// Codes that bindings in this module produce directly.
const (
	EACCES       = Code(-int(syscall.EACCES))
	EEXIST       = Code(-int(syscall.EEXIST))
	EINVAL       = Code(-int(syscall.EINVAL))
	EISDIR       = Code(-int(syscall.EISDIR))
	ENOENT       = Code(-int(syscall.ENOENT))
	ENOTDIR      = Code(-int(syscall.ENOTDIR))
	ENOTEMPTY    = Code(-int(syscall.ENOTEMPTY))
	EPERM        = Code(-int(syscall.EPERM))
	EROFS        = Code(-int(syscall.EROFS))
	EFBIG        = Code(-int(syscall.EFBIG))
	ENAMETOOLONG = Code(-int(syscall.ENAMETOOLONG))
	ENOSPC       = Code(-int(syscall.ENOSPC))
	ETIMEDOUT    = Code(-int(syscall.ETIMEDOUT))
	ECANCELED    = Code(-int(syscall.ECANCELED))
	ECONNREFUSED = Code(-int(syscall.ECONNREFUSED))
	ENOSYS       = Code(-int(syscall.ENOSYS))
)

// Runtime-specific codes with no errno counterpart.
const (
	EAI_ADDRFAMILY Code = -3000
	EAI_AGAIN      Code = -3001
	EAI_BADFLAGS   Code = -3002
	EAI_CANCELED   Code = -3003
	EAI_FAIL       Code = -3004
	EAI_FAMILY     Code = -3005
	EAI_MEMORY     Code = -3006
	EAI_NODATA     Code = -3007
	EAI_NONAME     Code = -3008
	EAI_SERVICE    Code = -3009
	EAI_SOCKTYPE   Code = -3010
	EAI_OVERFLOW   Code = -3011
	EAI_BADHINTS   Code = -3013
	EAI_PROTOCOL   Code = -3014

	EFTYPE   Code = -4028
	ECHARSET Code = -4080
	UNKNOWN  Code = -4094
	EOF      Code = -4095
)

type entry struct {
	name string
	desc string
}

var runtimeCodes = map[Code]entry{
	EAI_ADDRFAMILY: {"EAI_ADDRFAMILY", "address family not supported"},
	EAI_AGAIN:      {"EAI_AGAIN", "temporary failure"},
	EAI_BADFLAGS:   {"EAI_BADFLAGS", "bad ai_flags value"},
	EAI_CANCELED:   {"EAI_CANCELED", "request canceled"},
	EAI_FAIL:       {"EAI_FAIL", "permanent failure"},
	EAI_FAMILY:     {"EAI_FAMILY", "ai_family not supported"},
	EAI_MEMORY:     {"EAI_MEMORY", "out of memory"},
	EAI_NODATA:     {"EAI_NODATA", "no address"},
	EAI_NONAME:     {"EAI_NONAME", "unknown node or service"},
	EAI_SERVICE:    {"EAI_SERVICE", "service not available for socket type"},
	EAI_SOCKTYPE:   {"EAI_SOCKTYPE", "socket type not supported"},
	EAI_OVERFLOW:   {"EAI_OVERFLOW", "argument buffer overflow"},
	EAI_BADHINTS:   {"EAI_BADHINTS", "invalid value for hints"},
	EAI_PROTOCOL:   {"EAI_PROTOCOL", "resolved protocol is unknown"},
	EFTYPE:         {"EFTYPE", "inappropriate file type or format"},
	ECHARSET:       {"ECHARSET", "invalid Unicode character"},
	UNKNOWN:        {"UNKNOWN", "unknown error"},
	EOF:            {"EOF", "end of file"},
}

func unknown(code Code) string {
	return fmt.Sprintf("Unknown system error %d", int(code))
}

// Name returns the symbolic name of code, such as "ENOENT". Codes with no known
// name yield a placeholder.
func Name(code Code) string {
	if e, ok := runtimeCodes[code]; ok {
		return e.name
	}
	if code < 0 {
		if name := errnoName(syscall.Errno(-code)); name != "" {
			return name
		}
	}
	return unknown(code)
}

// Describe returns the human-readable description of code. Codes with no known
// description yield a placeholder.
func Describe(code Code) string {
	if e, ok := runtimeCodes[code]; ok {
		return e.desc
	}
	if code < 0 {
		if desc := errnoDescription(syscall.Errno(-code)); desc != "" {
			return desc
		}
	}
	return unknown(code)
}

// Known reports whether code has a symbolic name.
func Known(code Code) bool {
	if _, ok := runtimeCodes[code]; ok {
		return true
	}
	return code < 0 && errnoName(syscall.Errno(-code)) != ""
}

// FromErrno converts an OS errno into a Code.
func FromErrno(e syscall.Errno) Code {
	return Code(-int(e))
}

// FromError extracts a platform code from an error returned by the OS layer.
func FromError(err error) (Code, bool) {
	if err == nil {
		return 0, false
	}

	var exc *Exception
	if errors.As(err, &exc) {
		if e, ok := exc.Value.(*Error); ok {
			if c, ok := e.lookupCode(); ok {
				return c, true
			}
		}
	}

	var se syscall.Errno
	if errors.As(err, &se) && se != 0 {
		return FromErrno(se), true
	}

	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return EOF, true
	case errors.Is(err, fs.ErrNotExist):
		return ENOENT, true
	case errors.Is(err, fs.ErrPermission):
		return EACCES, true
	case errors.Is(err, fs.ErrExist):
		return EEXIST, true
	case errors.Is(err, fs.ErrInvalid):
		return EINVAL, true
	case errors.Is(err, context.DeadlineExceeded):
		return ETIMEDOUT, true
	case errors.Is(err, context.Canceled):
		return ECANCELED, true
	}
	return 0, false
}
