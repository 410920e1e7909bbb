package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"chat-hub/observability"

	"github.com/shirou/gopsutil/process"
)

// HeartbeatWorker logs process health (CPU, RSS, status) together with the
// hub's own counters at a fixed interval. Operators grep these lines instead
// of attaching a profiler to a live chat node.
type HeartbeatWorker struct {
	log        *slog.Logger
	monitoring *observability.Monitoring
	interval   time.Duration
}

func NewHeartbeatWorker(log *slog.Logger, monitoring *observability.Monitoring, interval time.Duration) *HeartbeatWorker {
	return &HeartbeatWorker{log: log, monitoring: monitoring, interval: interval}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting heartbeat worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rss, cpu, status, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}
			stats := w.monitoring.Snapshot()
			w.log.Info("heartbeat",
				"pid", os.Getpid(),
				"pid_status", status,
				"cpu_percent", cpu,
				"ram_bytes", rss,
				"online_users", stats.OnlineUsers,
				"messages_sent", stats.MessagesSent,
				"messages_delivered", stats.MessagesDelivered,
				"messages_read", stats.MessagesRead,
				"pushes_dropped", stats.PushesDropped,
			)
		}
	}
}

// selfStats retrieves technical metrics (memory, CPU and OS status) for the given process.
func selfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}
	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
