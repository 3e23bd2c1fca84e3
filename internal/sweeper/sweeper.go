package sweeper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"

	"agentboard/pkg/config"
	"agentboard/pkg/logger"
	"agentboard/pkg/registry"
	"agentboard/pkg/state"
)

// defaultStaleAfter bounds how long a silent agent stays visible when the
// config does not say otherwise.
const defaultStaleAfter = 5 * time.Minute

var (
	storedEff *config.EffectiveConfigResult
	storedReg *registry.Registry
)

// SetEffective stores the effective config and registry so tests (or admin
// triggers) can invoke sweep runs on-demand.
func SetEffective(eff config.EffectiveConfigResult, reg *registry.Registry) {
	storedEff = &eff
	storedReg = reg
}

// RunImmediate triggers a single sweep using the stored effective config.
// Returns an error if no effective config was registered.
func RunImmediate() error {
	if storedEff == nil || storedReg == nil {
		return fmt.Errorf("no effective config registered for sweep run")
	}
	if state.PathsVar.Sweep == "" {
		return fmt.Errorf("state paths not initialized")
	}
	return runOnce(context.Background(), *storedEff, storedReg, state.PathsVar.Sweep)
}

// Start starts the liveness sweep scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, eff config.EffectiveConfigResult, reg *registry.Registry) (context.CancelFunc, error) {
	sw := eff.Config.Sweep

	// if the sweep is not enabled, return no-op cancel
	if !sw.Enabled {
		logger.Info("sweep_disabled")
		return func() {}, nil
	}

	// Use a stable sweep folder under the DB path for snapshots:
	// <DBPath>/state/sweep.
	sweepPath := state.PathsVar.Sweep
	if err := os.MkdirAll(sweepPath, 0o700); err != nil {
		logger.Error("sweep_path_create_failed", "path", sweepPath, "error", err)
		return nil, err
	}

	// map empty cron to every minute
	cronExpr := sw.Cron
	if cronExpr == "" {
		cronExpr = "* * * * *"
	}
	// validate cron expression using gronx
	if !gronx.IsValid(cronExpr) {
		logger.Error("sweep_invalid_cron", "cron", sw.Cron)
		return nil, fmt.Errorf("invalid sweep cron expression: %s", sw.Cron)
	}

	logger.Info("sweep_enabled", "cron", cronExpr, "stale_after", sw.StaleAfter.Std().String(), "path", sweepPath)
	ctx2, cancel := context.WithCancel(ctx)

	go runScheduler(ctx2, eff, reg, sweepPath, cronExpr)

	logger.Info("sweep_scheduler_started", "path", sweepPath)
	return cancel, nil
}

// runScheduler uses gronx to compute the next tick for the configured cron
// expression and sleeps until that time. This yields sharp scheduling and
// supports full cron syntax.
func runScheduler(ctx context.Context, eff config.EffectiveConfigResult, reg *registry.Registry, sweepPath, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("sweep_scheduler_stopping")
			return
		default:
		}

		// compute next tick after now (UTC). allowCurrent=false so we get the
		// next future tick.
		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("sweep_nexttick_failed", "cron", cronExpr, "error", err)
			// fallback sleep then retry
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				logger.Info("sweep_scheduler_stopping")
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			// due now-ish; run immediately
			if err := runOnce(ctx, eff, reg, sweepPath); err != nil {
				logger.Error("sweep_run_error", "error", err)
			}
			// small sleep to avoid tight loop
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				logger.Info("sweep_scheduler_stopping")
				return
			}
			continue
		}

		// wait until the exact next tick or cancellation
		select {
		case <-time.After(wait):
			if err := runOnce(ctx, eff, reg, sweepPath); err != nil {
				logger.Error("sweep_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("sweep_scheduler_stopping")
			return
		}
	}
}

// runOnce flips agents whose last heartbeat is older than the configured
// window to offline and writes the diagnostics snapshot.
func runOnce(ctx context.Context, eff config.EffectiveConfigResult, reg *registry.Registry, sweepPath string) error {
	window := eff.Config.Sweep.StaleAfter.Std()
	if window <= 0 {
		window = defaultStaleAfter
	}

	flipped := reg.MarkStale(window)
	if len(flipped) > 0 {
		logger.Info("sweep_marked_offline", "count", len(flipped), "agents", flipped)
		if logger.Audit != nil {
			logger.Audit.Info("agents_marked_offline", "agents", flipped, "window", window.String())
		}
	} else {
		logger.Debug("sweep_no_stale_agents", "window", window.String())
	}

	snapshotPath := eff.Config.Sweep.SnapshotPath
	if snapshotPath == "" {
		if p := state.ArtifactPath("registry-snapshot.json"); p != "" {
			snapshotPath = p
		} else {
			snapshotPath = filepath.Join(sweepPath, "registry-snapshot.json")
		}
	}
	if err := reg.Snapshot(snapshotPath); err != nil {
		// snapshot is diagnostics only; log and carry on
		logger.Warn("sweep_snapshot_failed", "path", snapshotPath, "error", err)
	}
	return nil
}
