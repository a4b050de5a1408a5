// Package monitor samples system-wide resource usage on demand. Sampling is
// advisory: every operation substitutes safe zero values on measurement
// error instead of failing, so a broken metrics source can never stall
// compression progress.
package monitor

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

// Snapshot is a point-in-time resource measurement.
type Snapshot struct {
	CPUPercent     float64 `json:"cpu_percent"`
	DiskReadBytes  uint64  `json:"disk_read"`
	DiskWriteBytes uint64  `json:"disk_write"`
}

// Monitor provides on-demand resource measurements.
type Monitor interface {
	// Sample blocks briefly (up to about one second) to obtain a stable
	// CPU reading along with cumulative disk IO counters.
	Sample() Snapshot

	// AvailableMemory returns the available system memory in bytes,
	// or zero if it cannot be determined.
	AvailableMemory() uint64

	// NumCPU returns the number of available processing units.
	NumCPU() int
}

// SystemMonitor implements Monitor using gopsutil.
type SystemMonitor struct {
	log      *logrus.Logger
	interval time.Duration
}

// NewSystemMonitor returns a SystemMonitor logging snapshots to log.
func NewSystemMonitor(log *logrus.Logger) *SystemMonitor {
	return &SystemMonitor{log: log, interval: time.Second}
}

// NewInstantMonitor returns a SystemMonitor whose Sample does not block:
// CPU utilization is measured since the previous call instead of over a
// fixed interval. Suitable for per-job before/after snapshots, which must
// never sit on the job execution path for a full sampling interval.
func NewInstantMonitor(log *logrus.Logger) *SystemMonitor {
	return &SystemMonitor{log: log}
}

// Sample measures CPU utilization over the monitor's interval and sums disk
// IO counters across devices. Errors are logged and replaced with zeros.
func (m *SystemMonitor) Sample() Snapshot {
	var snap Snapshot

	percents, err := cpu.Percent(m.interval, false)
	if err != nil || len(percents) == 0 {
		m.log.WithError(err).Debug("cpu sampling failed, using zero reading")
	} else {
		snap.CPUPercent = percents[0]
	}

	counters, err := disk.IOCounters()
	if err != nil {
		m.log.WithError(err).Debug("disk IO sampling failed, using zero reading")
	} else {
		for _, c := range counters {
			snap.DiskReadBytes += c.ReadBytes
			snap.DiskWriteBytes += c.WriteBytes
		}
	}

	entry := m.log.WithFields(logrus.Fields{
		"cpu_percent": snap.CPUPercent,
		"disk_read":   snap.DiskReadBytes,
		"disk_write":  snap.DiskWriteBytes,
	})
	if m.interval > 0 {
		entry.Info("Resource usage sampled")
	} else {
		entry.Debug("Resource usage sampled")
	}

	return snap
}

// AvailableMemory returns available memory in bytes, or zero on error.
func (m *SystemMonitor) AvailableMemory() uint64 {
	vm, err := mem.VirtualMemory()
	if err != nil {
		m.log.WithError(err).Debug("memory sampling failed, using zero reading")
		return 0
	}
	return vm.Available
}

// NumCPU returns the number of logical CPUs available to the process.
func (m *SystemMonitor) NumCPU() int {
	return runtime.NumCPU()
}
