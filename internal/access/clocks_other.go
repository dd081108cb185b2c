//go:build !linux

package access

func readClocks() (Clocks, error) { return Clocks{}, ErrUnsupported }
