package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/cruciblehq/hap/internal/engine"
	"github.com/cruciblehq/hap/internal/manifest"
)

// Polls the application's readiness probe in the background until it
// succeeds or the launch ends.
//
// The probe command runs as an exec inside the launched container, so
// polling only produces results once the task is up; failures before
// that are expected and retried. Returns a stop function.
func (r *Runner) watchReadiness(ctx context.Context, containerID string, probe *manifest.Probe) func() {
	period := time.Duration(probe.PeriodSeconds) * time.Second
	if period <= 0 {
		period = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		ctr := r.eng.Container(containerID, engine.DefaultPlatform())
		ticker := time.NewTicker(period)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			result, err := ctr.ExecArgs(ctx, probe.Command)
			if err != nil {
				continue
			}
			if result.ExitCode == 0 {
				slog.Info("application ready", "id", containerID)
				return
			}
			slog.Debug("readiness probe failed", "id", containerID, "code", result.ExitCode)
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
