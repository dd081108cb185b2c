package metrics

import (
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// selfCollector reports the daemon's own footprint, sampled on scrape.
type selfCollector struct {
	once sync.Once
	proc *process.Process

	cpu     *prometheus.Desc
	rss     *prometheus.Desc
	threads *prometheus.Desc
}

func newSelfCollector() *selfCollector {
	return &selfCollector{
		cpu:     prometheus.NewDesc("extbox_self_cpu_percent", "CPU usage of the extbox daemon.", nil, nil),
		rss:     prometheus.NewDesc("extbox_self_memory_rss_bytes", "Resident memory of the extbox daemon.", nil, nil),
		threads: prometheus.NewDesc("extbox_self_threads", "OS threads used by the extbox daemon.", nil, nil),
	}
}

func (c *selfCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cpu
	ch <- c.rss
	ch <- c.threads
}

func (c *selfCollector) Collect(ch chan<- prometheus.Metric) {
	c.once.Do(func() {
		p, err := process.NewProcess(int32(os.Getpid()))
		if err == nil {
			c.proc = p
		}
	})
	if c.proc == nil {
		return
	}
	if pct, err := c.proc.CPUPercent(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.cpu, prometheus.GaugeValue, pct)
	}
	if mi, err := c.proc.MemoryInfo(); err == nil && mi != nil {
		ch <- prometheus.MustNewConstMetric(c.rss, prometheus.GaugeValue, float64(mi.RSS))
	}
	if n, err := c.proc.NumThreads(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.threads, prometheus.GaugeValue, float64(n))
	}
}
