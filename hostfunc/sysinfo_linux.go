//go:build linux

package hostfunc

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Load averages from sysinfo(2) are fixed point with this many fraction bits.
const loadShift = 16

// clockTicks converts /proc/stat jiffies to milliseconds. USER_HZ is 100 on
// every Linux architecture Go supports.
const clockTicks = 1000 / 100

func uptime() (float64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, err
	}
	return float64(info.Uptime), nil
}

func loadavg() ([3]float64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return [3]float64{}, err
	}
	var avg [3]float64
	for i, l := range info.Loads {
		avg[i] = float64(l) / (1 << loadShift)
	}
	return avg, nil
}

func cpuInfo() ([]CPU, error) {
	cpus, err := cpuTimes()
	if err != nil {
		return nil, err
	}

	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return cpus, nil
	}
	defer f.Close()

	i := -1
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch key {
		case "processor":
			i++
		case "model name":
			if i >= 0 && i < len(cpus) {
				cpus[i].Model = value
			}
		case "cpu MHz":
			if i >= 0 && i < len(cpus) {
				mhz, _ := strconv.ParseFloat(value, 64)
				cpus[i].Speed = int64(mhz)
			}
		}
	}
	return cpus, nil
}

// cpuTimes reads the per-CPU lines of /proc/stat.
func cpuTimes() ([]CPU, error) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cpus []CPU
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 7 || !strings.HasPrefix(fields[0], "cpu") || fields[0] == "cpu" {
			continue
		}
		ms := func(i int) float64 {
			n, _ := strconv.ParseUint(fields[i], 10, 64)
			return float64(n * clockTicks)
		}
		cpus = append(cpus, CPU{Times: CPUTimes{
			User: ms(1),
			Nice: ms(2),
			Sys:  ms(3),
			Idle: ms(4),
			IRQ:  ms(6),
		}})
	}
	return cpus, sc.Err()
}
