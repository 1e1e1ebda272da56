package server

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/process"
)

type processStats struct {
	PID           int32   `json:"pid"`
	RSSBytes      uint64  `json:"rss_bytes"`
	CPUPercent    float64 `json:"cpu_percent"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Threads       int32   `json:"threads,omitempty"`
}

type hostStats struct {
	CPUCount int     `json:"cpu_count"`
	Load1    float64 `json:"load1"`
	Load5    float64 `json:"load5"`
	Load15   float64 `json:"load15"`
}

// readProcessStats reports on the exporter process itself. Fields that cannot be read on
// this platform stay zero.
func readProcessStats(started time.Time) processStats {
	st := processStats{
		PID:           int32(os.Getpid()),
		UptimeSeconds: time.Since(started).Seconds(),
	}
	p, err := process.NewProcess(st.PID)
	if err != nil {
		return st
	}
	if mem, err := p.MemoryInfo(); err == nil {
		st.RSSBytes = mem.RSS
	}
	if pct, err := p.CPUPercent(); err == nil {
		st.CPUPercent = pct
	}
	if n, err := p.NumThreads(); err == nil {
		st.Threads = n
	}
	return st
}

// readHostStats returns nil where load averages are unavailable.
func readHostStats() *hostStats {
	avg, err := load.Avg()
	if err != nil {
		return nil
	}
	n, _ := cpu.Counts(true)
	return &hostStats{CPUCount: n, Load1: avg.Load1, Load5: avg.Load5, Load15: avg.Load15}
}
