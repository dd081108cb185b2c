package access

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/sensors"
)

// Config selects host paths and external inputs.
type Config struct {
	SysRoot     string          `toml:"sys_root" mapstructure:"sys_root"`
	ProcRoot    string          `toml:"proc_root" mapstructure:"proc_root"`
	StoragePath string          `toml:"storage_path" mapstructure:"storage_path"`
	StepSensor  bool            `toml:"step_sensor" mapstructure:"step_sensor"`
	SpeedTest   SpeedTestConfig `toml:"speedtest" mapstructure:"speedtest"`
}

// Host samples the local machine.
type Host struct {
	cfg  Config
	tier Tier
	log  *slog.Logger
}

func NewHost(cfg Config, log *slog.Logger) *Host {
	if cfg.SysRoot == "" {
		cfg.SysRoot = "/sys"
	}
	if cfg.ProcRoot == "" {
		cfg.ProcRoot = "/proc"
	}
	if cfg.StoragePath == "" {
		cfg.StoragePath = "/"
	}
	def := DefaultSpeedTest()
	if len(cfg.SpeedTest.DownloadURLs) == 0 {
		cfg.SpeedTest.DownloadURLs = def.DownloadURLs
	}
	if cfg.SpeedTest.UploadURL == "" {
		cfg.SpeedTest.UploadURL = def.UploadURL
	}
	if cfg.SpeedTest.PingAddr == "" {
		cfg.SpeedTest.PingAddr = def.PingAddr
	}
	if log == nil {
		log = slog.Default()
	}
	t := Normal
	if os.Geteuid() == 0 {
		t = Root
	}
	return &Host{cfg: cfg, tier: t, log: log.With("component", "access")}
}

func (h *Host) Tier() Tier                 { return h.tier }
func (h *Host) StepSensor() bool           { return h.cfg.StepSensor }
func (h *Host) SpeedTest() SpeedTestConfig { return h.cfg.SpeedTest }
func (h *Host) CPUTemp(ctx context.Context) float64 {
	temps, err := sensors.TemperaturesWithContext(ctx)
	if err != nil && len(temps) == 0 {
		return NaN
	}
	best := NaN
	for _, t := range temps {
		k := strings.ToLower(t.SensorKey)
		if t.Temperature <= 0 {
			continue
		}
		if strings.Contains(k, "cpu") || strings.Contains(k, "core") || strings.Contains(k, "package") || strings.Contains(k, "k10temp") || strings.Contains(k, "soc") {
			if math.IsNaN(best) || t.Temperature > best {
				best = t.Temperature
			}
		}
	}
	return best
}

func (h *Host) CPU(ctx context.Context) (CPUSample, error) {
	ts, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return CPUSample{}, err
	}
	if len(ts) == 0 {
		return CPUSample{}, ErrUnsupported
	}
	t := ts[0]
	idle := t.Idle + t.Iowait
	total := t.User + t.Nice + t.System + t.Idle + t.Iowait + t.Irq + t.Softirq + t.Steal
	cores, _ := cpu.CountsWithContext(ctx, true)
	return CPUSample{Busy: total - idle, Total: total, Cores: cores}, nil
}

func (h *Host) Memory(ctx context.Context) (Memory, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Memory{}, err
	}
	out := Memory{Total: vm.Total, Available: vm.Available, Used: vm.Total - vm.Available}
	if sw, err := mem.SwapMemoryWithContext(ctx); err == nil {
		out.SwapTotal, out.SwapUsed = sw.Total, sw.Used
	}
	return out, nil
}

func (h *Host) Storage(ctx context.Context) (Disk, error) {
	u, err := disk.UsageWithContext(ctx, h.cfg.StoragePath)
	if err != nil {
		return Disk{}, err
	}
	return Disk{Path: u.Path, Total: u.Total, Free: u.Free, Used: u.Used}, nil
}

func (h *Host) NetCounters(ctx context.Context) ([]NetCounter, error) {
	cs, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]NetCounter, 0, len(cs))
	for _, c := range cs {
		out = append(out, NetCounter{Name: c.Name, RxBytes: c.BytesRecv, TxBytes: c.BytesSent})
	}
	return out, nil
}

func (h *Host) Interfaces(ctx context.Context) ([]Interface, error) {
	ifs, err := net.InterfacesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Interface, 0, len(ifs))
	for _, i := range ifs {
		it := Interface{Name: i.Name, Kind: Classify(i.Name)}
		for _, f := range i.Flags {
			if f == "up" {
				it.Up = true
			}
		}
		for _, a := range i.Addrs {
			it.Addrs = append(it.Addrs, a.Addr)
		}
		out = append(out, it)
	}
	return out, nil
}

// WirelessSignal parses <proc>/net/wireless.
func (h *Host) WirelessSignal(context.Context) (map[string]int, error) {
	b, err := os.ReadFile(filepath.Join(h.cfg.ProcRoot, "net", "wireless"))
	if err != nil {
		return nil, err
	}
	return parseWireless(string(b)), nil
}

func parseWireless(s string) map[string]int {
	out := map[string]int{}
	lines := strings.Split(s, "\n")
	for _, ln := range lines {
		name, rest, ok := strings.Cut(ln, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		f := strings.Fields(rest)
		// status link level noise ...
		if name == "" || len(f) < 3 || strings.Contains(name, "|") {
			continue
		}
		lvl, err := strconv.ParseFloat(strings.TrimSuffix(f[2], "."), 64)
		if err != nil {
			continue
		}
		out[name] = int(lvl)
	}
	return out
}

func (h *Host) BootTime(ctx context.Context) (time.Time, error) {
	bt, err := host.BootTimeWithContext(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(bt), 0), nil
}

func (h *Host) Clocks() (Clocks, error) { return readClocks() }

// Battery reads the first power_supply of type Battery and any online
// mains/USB supply under <sys>/class/power_supply.
func (h *Host) Battery(context.Context) (Battery, error) {
	return ReadPowerSupply(filepath.Join(h.cfg.SysRoot, "class", "power_supply"))
}

func ReadPowerSupply(dir string) (Battery, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Battery{}, fmt.Errorf("power_supply: %w", err)
	}
	var b Battery
	b.TempC = NaN
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		switch readStr(p, "type") {
		case "Battery":
			if b.Present {
				continue
			}
			b.Present = readStr(p, "present") != "0"
			b.Level = int(readInt(p, "capacity", -1))
			b.Status = readStr(p, "status")
			b.Technology = readStr(p, "technology")
			b.Health = readStr(p, "health")
			b.ChargeType = readStr(p, "charge_type")
			b.CycleCount = int(readInt(p, "cycle_count", 0))
			if t := readInt(p, "temp", -1<<31); t != -1<<31 {
				b.TempC = float64(t) / 10
			}
			b.VoltageMV = int(readInt(p, "voltage_now", 0) / 1000)
			b.CurrentMA = int(readInt(p, "current_now", 0) / 1000)
			b.ChargeFull = readInt(p, "charge_full", 0)
			b.DesignFull = readInt(p, "charge_full_design", 0)
			if b.ChargeFull == 0 {
				// energy-based gauges report µWh; keep ratios meaningful
				b.ChargeFull = readInt(p, "energy_full", 0)
				b.DesignFull = readInt(p, "energy_full_design", 0)
			}
		case "Mains":
			if readStr(p, "online") == "1" {
				b.Plug = "AC"
			}
		case "USB", "USB_C", "USB_PD":
			if readStr(p, "online") == "1" && b.Plug == "" {
				b.Plug = "USB"
			}
		}
	}
	if !b.Present {
		return b, ErrUnsupported
	}
	b.Charging = b.Status == "Charging" || (b.Status == "Full" && b.Plug != "")
	return b, nil
}

func readStr(dir, name string) string {
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func readInt(dir, name string, def int64) int64 {
	s := readStr(dir, name)
	if s == "" {
		return def
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return def
	}
	return n
}
