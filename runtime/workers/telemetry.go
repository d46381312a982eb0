package workers

import (
	"context"
	"log/slog"
	"time"

	"chat-relay/observability"
)

// OnlineCounter is the registry view the telemetry worker needs.
type OnlineCounter interface {
	OnlineIDs() []string
}

// TelemetryWorker logs a relay health snapshot at a fixed interval.
type TelemetryWorker struct {
	log      *slog.Logger
	interval time.Duration
	monitor  *observability.Monitor
	online   OnlineCounter
}

func NewTelemetryWorker(log *slog.Logger, interval time.Duration,
	monitor *observability.Monitor, online OnlineCounter) *TelemetryWorker {
	return &TelemetryWorker{
		log:      log,
		interval: interval,
		monitor:  monitor,
		online:   online,
	}
}

func (w TelemetryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats := w.monitor.Snapshot(len(w.online.OnlineIDs()))
			w.log.Info("telemetry: relay health",
				"online_users", stats.OnlineUsers,
				"open_connections", stats.OpenConnections,
				"messages_sent", stats.MessagesSent,
				"messages_delivered", stats.MessagesDelivered,
				"messages_read", stats.MessagesRead,
				"alloc_mem_mb", stats.AllocMemMb,
				"rss_bytes", stats.RSSBytes,
				"cpu_percent", stats.CPUPercent,
				"goroutines", stats.Goroutines,
			)
		}
	}
}
