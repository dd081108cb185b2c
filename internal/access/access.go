// Package access is the capability handle modules sample the host through.
// Modules never touch /sys, /proc or gopsutil directly, which keeps them
// testable against Fake.
package access

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

// ErrUnsupported marks a reading this host cannot provide.
var ErrUnsupported = errors.New("not supported on this host")

// Tier is the privilege level the daemon runs with.
type Tier int

const (
	Normal Tier = iota
	Root
)

func (t Tier) String() string {
	if t == Root {
		return "root"
	}
	return "normal"
}

type Battery struct {
	Present    bool
	Level      int
	Status     string
	Charging   bool
	Plug       string
	TempC      float64
	VoltageMV  int
	CurrentMA  int
	ChargeFull int64 // µAh
	DesignFull int64 // µAh
	CycleCount int
	Technology string
	Health     string
	ChargeType string
}

// CPUSample holds cumulative CPU times; usage is derived from two samples.
type CPUSample struct {
	Busy  float64
	Total float64
	Cores int
}

type Memory struct {
	Total     uint64
	Available uint64
	Used      uint64
	SwapTotal uint64
	SwapUsed  uint64
}

type Disk struct {
	Path  string
	Total uint64
	Free  uint64
	Used  uint64
}

type NetCounter struct {
	Name    string
	RxBytes uint64
	TxBytes uint64
}

type Interface struct {
	Name  string
	Up    bool
	Addrs []string
	Kind  Kind
}

// Clocks are the two host clocks deep sleep is derived from: Boot keeps
// counting while suspended, Awake does not.
type Clocks struct {
	Boot  time.Duration
	Awake time.Duration
}

// Handle is the platform access handed to modules on Start.
type Handle interface {
	Tier() Tier
	Battery(ctx context.Context) (Battery, error)
	CPU(ctx context.Context) (CPUSample, error)
	// CPUTemp returns NaN when no sensor is found.
	CPUTemp(ctx context.Context) float64
	Memory(ctx context.Context) (Memory, error)
	Storage(ctx context.Context) (Disk, error)
	NetCounters(ctx context.Context) ([]NetCounter, error)
	Interfaces(ctx context.Context) ([]Interface, error)
	// WirelessSignal maps interface name to signal level in dBm.
	WirelessSignal(ctx context.Context) (map[string]int, error)
	BootTime(ctx context.Context) (time.Time, error)
	Clocks() (Clocks, error)
	StepSensor() bool
	SpeedTest() SpeedTestConfig
}

// SpeedTestConfig lists probe endpoints for the speed test module.
type SpeedTestConfig struct {
	DownloadURLs []string `toml:"download_urls" mapstructure:"download_urls"`
	UploadURL    string   `toml:"upload_url" mapstructure:"upload_url"`
	PingAddr     string   `toml:"ping_addr" mapstructure:"ping_addr"`
}

func DefaultSpeedTest() SpeedTestConfig {
	return SpeedTestConfig{
		DownloadURLs: []string{
			"https://speed.cloudflare.com/__down?bytes=5000000",
			"https://proof.ovh.net/files/1Mb.dat",
			"https://fsn1-speed.hetzner.com/1MB.bin",
		},
		UploadURL: "https://speed.cloudflare.com/__up",
		PingAddr:  "1.1.1.1:443",
	}
}

// Kind classifies a network interface.
type Kind int

const (
	KindOther Kind = iota
	KindWiFi
	KindMobile
	KindEthernet
	KindVPN
	KindLoopback
)

func (k Kind) String() string {
	switch k {
	case KindWiFi:
		return "WiFi"
	case KindMobile:
		return "Mobile"
	case KindEthernet:
		return "Ethernet"
	case KindVPN:
		return "VPN"
	case KindLoopback:
		return "Loopback"
	}
	return "Other"
}

var kindPrefixes = []struct {
	prefix string
	kind   Kind
}{
	{"lo", KindLoopback},
	{"wlan", KindWiFi}, {"wlp", KindWiFi}, {"wl", KindWiFi},
	{"rmnet", KindMobile}, {"ccmni", KindMobile}, {"wwan", KindMobile}, {"wwp", KindMobile}, {"ppp", KindMobile},
	{"eth", KindEthernet}, {"enp", KindEthernet}, {"eno", KindEthernet}, {"ens", KindEthernet}, {"enx", KindEthernet},
	{"tun", KindVPN}, {"tap", KindVPN}, {"wg", KindVPN}, {"ipsec", KindVPN},
}

// Classify guesses the interface kind from its name.
func Classify(name string) Kind {
	n := strings.ToLower(name)
	for _, p := range kindPrefixes {
		if strings.HasPrefix(n, p.prefix) {
			return p.kind
		}
	}
	return KindOther
}

// NaN is returned for readings that could not be taken.
var NaN = math.NaN()
