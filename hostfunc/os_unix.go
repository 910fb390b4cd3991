//go:build unix

package hostfunc

import "golang.org/x/sys/unix"

func uname() (map[string]any, error) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return nil, err
	}
	return map[string]any{
		"sysname": unix.ByteSliceToString(u.Sysname[:]),
		"release": unix.ByteSliceToString(u.Release[:]),
		"version": unix.ByteSliceToString(u.Version[:]),
		"machine": unix.ByteSliceToString(u.Machine[:]),
	}, nil
}
