//go:build linux

package access

import (
	"time"

	"golang.org/x/sys/unix"
)

func readClocks() (Clocks, error) {
	var boot, mono unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &boot); err != nil {
		return Clocks{}, err
	}
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &mono); err != nil {
		return Clocks{}, err
	}
	return Clocks{
		Boot:  time.Duration(boot.Nano()),
		Awake: time.Duration(mono.Nano()),
	}, nil
}
