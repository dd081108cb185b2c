package format

import (
	"math"
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m 5s"},
		{2*time.Hour + 7*time.Minute, "2h 7m"},
		{50 * time.Hour, "2d 2h"},
		{-time.Second, "0s"},
	}
	for _, c := range cases {
		if got := Duration(c.in); got != c.want {
			t.Errorf("Duration(%v)=%q want %q", c.in, got, c.want)
		}
	}
	if got := Millis(90_000); got != "1m 30s" {
		t.Fatalf("Millis: %q", got)
	}
}

func TestBytesAndSpeed(t *testing.T) {
	if got := Bytes(512); got != "512 B" {
		t.Fatalf("got %q", got)
	}
	if got := Bytes(1536); got != "1.5 KB" {
		t.Fatalf("got %q", got)
	}
	if got := Bytes(5 * 1024 * 1024); got != "5.0 MB" {
		t.Fatalf("got %q", got)
	}
	if got := Bytes(3 * 1024 * 1024 * 1024); got != "3.00 GB" {
		t.Fatalf("got %q", got)
	}
	if got := Speed(2048); got != "2.0 KB/s" {
		t.Fatalf("got %q", got)
	}
	if got := Speed(100); got != "100 B/s" {
		t.Fatalf("got %q", got)
	}
}

func TestPctTempNumber(t *testing.T) {
	if got := Pct(12.345); got != "12.3%" {
		t.Fatalf("got %q", got)
	}
	if got := Temp(math.NaN()); got != Unavailable {
		t.Fatalf("got %q", got)
	}
	if got := Temp(36.55); got != "36.5°C" && got != "36.6°C" {
		t.Fatalf("got %q", got)
	}
	if got := Number(1234567); got != "1,234,567" {
		t.Fatalf("got %q", got)
	}
}
