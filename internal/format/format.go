// Package format renders telemetry values for compact and detail views.
package format

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Unavailable is shown when a reading could not be sampled.
const Unavailable = "—"

var printer = message.NewPrinter(language.English)

// Duration renders d with the two most significant units.
func Duration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	days := s / 86400
	hours := (s % 86400) / 3600
	mins := (s % 3600) / 60
	secs := s % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	case mins > 0:
		return fmt.Sprintf("%dm %ds", mins, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

// Millis is Duration for a millisecond count.
func Millis(ms int64) string { return Duration(time.Duration(ms) * time.Millisecond) }

// Bytes uses binary units.
func Bytes(b int64) string {
	switch {
	case b < 1024:
		return fmt.Sprintf("%d B", b)
	case b < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(b)/1024)
	case b < 1024*1024*1024:
		return fmt.Sprintf("%.1f MB", float64(b)/(1024*1024))
	default:
		return fmt.Sprintf("%.2f GB", float64(b)/(1024*1024*1024))
	}
}

// Speed renders a bytes-per-second rate.
func Speed(bps int64) string {
	switch {
	case bps < 1024:
		return fmt.Sprintf("%d B/s", bps)
	case bps < 1024*1024:
		return fmt.Sprintf("%.1f KB/s", float64(bps)/1024)
	default:
		return fmt.Sprintf("%.1f MB/s", float64(bps)/(1024*1024))
	}
}

func Pct(v float64) string {
	if math.IsNaN(v) {
		return Unavailable
	}
	return fmt.Sprintf("%.1f%%", v)
}

func Temp(c float64) string {
	if math.IsNaN(c) {
		return Unavailable
	}
	return fmt.Sprintf("%.1f°C", c)
}

// Number groups thousands, e.g. 12345 -> "12,345".
func Number(n int64) string {
	return printer.Sprintf("%d", n)
}

// Mbps renders a megabit rate with one decimal.
func Mbps(v float64) string {
	if math.IsNaN(v) || v < 0 {
		return Unavailable
	}
	return fmt.Sprintf("%.1f Mbps", v)
}
