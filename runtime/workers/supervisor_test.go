package workers

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type crashOnceWorker struct {
	runs atomic.Int32
}

func (w *crashOnceWorker) Run(context.Context) error {
	if w.runs.Add(1) == 1 {
		panic("boom")
	}
	return nil
}

func TestSupervisorRestartsPanickedWorkerAfterInterval(t *testing.T) {
	req := require.New(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	// Given: a worker that panics on its first run
	worker := &crashOnceWorker{}
	supervisor := NewSupervisor(log, nil, 5*time.Millisecond)
	supervisor.Add(worker)

	// When: the supervisor runs it
	done := make(chan struct{})
	go func() {
		supervisor.Run(context.Background())
		close(done)
	}()

	// Then: the worker is restarted and finishes cleanly the second time
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not finish in time")
	}
	req.Equal(int32(2), worker.runs.Load())
}

func TestSupervisorZeroIntervalFallsBackToDefault(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	supervisor := NewSupervisor(log, nil, 0)
	require.Equal(t, defaultRestartInterval, supervisor.restartInterval)
}
