//go:build !linux

package hostfunc

import (
	"runtime"

	"github.com/caffeineduck/tjs/errno"
)

func uptime() (float64, error) {
	return 0, errno.Raise(errno.ENOSYS)
}

func loadavg() ([3]float64, error) {
	return [3]float64{}, nil
}

func cpuInfo() ([]CPU, error) {
	return make([]CPU, runtime.NumCPU()), nil
}
