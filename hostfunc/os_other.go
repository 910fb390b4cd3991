//go:build !unix

package hostfunc

import "runtime"

func uname() (map[string]any, error) {
	return map[string]any{
		"sysname": runtime.GOOS,
		"release": "",
		"version": "",
		"machine": runtime.GOARCH,
	}, nil
}
