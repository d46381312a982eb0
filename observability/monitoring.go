package observability

import (
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/shirou/gopsutil/process"
)

// Stats is one snapshot of the relay's health, served by the health
// endpoint and logged by the telemetry worker.
type Stats struct {
	MessagesSent      uint64  `json:"messages_sent"`
	MessagesDelivered uint64  `json:"messages_delivered"`
	MessagesRead      uint64  `json:"messages_read"`
	OnlineUsers       int     `json:"online_users"`
	OpenConnections   int64   `json:"open_connections"`
	AllocMemMb        uint64  `json:"alloc_mem_mb"`
	NumGC             uint32  `json:"num_gc"`
	CPUPercent        float64 `json:"cpu_percent"`
	RSSBytes          uint64  `json:"rss_bytes"`
	Goroutines        int     `json:"goroutines"`
}

// Monitor aggregates delivery counters and process-level metrics.
// Counters are atomic; the process handle is lazily resolved once.
type Monitor struct {
	messagesSent      uint64
	messagesDelivered uint64
	messagesRead      uint64
	openConnections   int64

	once sync.Once
	proc *process.Process
}

func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) IncrSent()      { atomic.AddUint64(&m.messagesSent, 1) }
func (m *Monitor) IncrDelivered() { atomic.AddUint64(&m.messagesDelivered, 1) }
func (m *Monitor) IncrRead()      { atomic.AddUint64(&m.messagesRead, 1) }

func (m *Monitor) ConnOpened() { atomic.AddInt64(&m.openConnections, 1) }
func (m *Monitor) ConnClosed() { atomic.AddInt64(&m.openConnections, -1) }

// Snapshot assembles the current picture. onlineUsers comes from the
// registry because the monitor has no view on identities, only sockets.
func (m *Monitor) Snapshot(onlineUsers int) Stats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := Stats{
		MessagesSent:      atomic.LoadUint64(&m.messagesSent),
		MessagesDelivered: atomic.LoadUint64(&m.messagesDelivered),
		MessagesRead:      atomic.LoadUint64(&m.messagesRead),
		OnlineUsers:       onlineUsers,
		OpenConnections:   atomic.LoadInt64(&m.openConnections),
		AllocMemMb:        mem.Alloc / 1024 / 1024,
		NumGC:             mem.NumGC,
		Goroutines:        runtime.NumGoroutine(),
	}

	m.once.Do(func() {
		p, err := process.NewProcess(int32(os.Getpid()))
		if err == nil {
			m.proc = p
		}
	})
	if m.proc != nil {
		if cpu, err := m.proc.CPUPercent(); err == nil {
			stats.CPUPercent = cpu
		}
		if memInfo, err := m.proc.MemoryInfo(); err == nil {
			stats.RSSBytes = memInfo.RSS
		}
	}
	return stats
}
