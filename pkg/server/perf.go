package server

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

const tpsHistorySize = 100

// PerfMonitor tracks tick rate and network throughput. Counters are atomic;
// the TPS history ring sits behind its own mutex.
type PerfMonitor struct {
	currentTPS atomic.Uint64 // float64 bits

	histMu    sync.Mutex
	tpsHist   [tpsHistorySize]float64
	tpsHistIx int

	packetCount atomic.Uint64
	byteCount   atomic.Uint64

	packetsPerSecond atomic.Uint64
	bytesPerSecond   atomic.Uint64

	activeConnections atomic.Int32

	netMu      sync.Mutex
	lastNetSum time.Time

	start time.Time
}

// NewPerfMonitor returns a monitor with a full 20 TPS history.
func NewPerfMonitor() *PerfMonitor {
	m := &PerfMonitor{start: time.Now(), lastNetSum: time.Now()}
	m.currentTPS.Store(math.Float64bits(20.0))
	for i := range m.tpsHist {
		m.tpsHist[i] = 20.0
	}
	return m
}

// RecordPacket counts one packet of the given byte size, in either
// direction.
func (m *PerfMonitor) RecordPacket(bytes int) {
	m.packetCount.Add(1)
	m.byteCount.Add(uint64(bytes))
}

// RecordTPS stores the tick rate measured by the scheduler and appends it to
// the history ring.
func (m *PerfMonitor) RecordTPS(tps float64) {
	m.currentTPS.Store(math.Float64bits(tps))

	m.histMu.Lock()
	m.tpsHist[m.tpsHistIx] = tps
	m.tpsHistIx = (m.tpsHistIx + 1) % tpsHistorySize
	m.histMu.Unlock()
}

// UpdateNetworkRates folds the window counters into per-second rates. Called
// by the scheduler about once per second.
func (m *PerfMonitor) UpdateNetworkRates() {
	m.netMu.Lock()
	defer m.netMu.Unlock()

	elapsed := time.Since(m.lastNetSum)
	if elapsed < time.Second {
		return
	}
	packets := m.packetCount.Swap(0)
	bytes := m.byteCount.Swap(0)
	ms := uint64(elapsed.Milliseconds())
	m.packetsPerSecond.Store(packets * 1000 / ms)
	m.bytesPerSecond.Store(bytes * 1000 / ms)
	m.lastNetSum = time.Now()
}

// SetActiveConnections publishes the current connection count.
func (m *PerfMonitor) SetActiveConnections(n int) {
	m.activeConnections.Store(int32(n))
}

// CurrentTPS returns the most recent tick rate.
func (m *PerfMonitor) CurrentTPS() float64 {
	return math.Float64frombits(m.currentTPS.Load())
}

// AverageTPS returns the mean over the history window.
func (m *PerfMonitor) AverageTPS() float64 {
	m.histMu.Lock()
	defer m.histMu.Unlock()

	sum := 0.0
	for _, tps := range m.tpsHist {
		sum += tps
	}
	return sum / tpsHistorySize
}

// MinTPS returns the worst tick rate in the history window.
func (m *PerfMonitor) MinTPS() float64 {
	m.histMu.Lock()
	defer m.histMu.Unlock()

	min := 20.0
	for _, tps := range m.tpsHist {
		if tps < min {
			min = tps
		}
	}
	return min
}

// PacketsPerSecond returns the last computed inbound+outbound packet rate.
func (m *PerfMonitor) PacketsPerSecond() uint64 { return m.packetsPerSecond.Load() }

// BytesPerSecond returns the last computed byte rate.
func (m *PerfMonitor) BytesPerSecond() uint64 { return m.bytesPerSecond.Load() }

// ActiveConnections returns the published connection count.
func (m *PerfMonitor) ActiveConnections() int { return int(m.activeConnections.Load()) }

// Uptime returns time since the monitor was created.
func (m *PerfMonitor) Uptime() time.Duration { return time.Since(m.start) }
