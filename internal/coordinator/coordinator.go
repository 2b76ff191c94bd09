// Package coordinator runs the event loop that merges the two plugin
// streams — route-spec snapshots and failed-IP snapshots — into the
// shared current state and triggers reconciliation passes.
package coordinator

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/hashicorp/go-uuid"
	"github.com/rs/zerolog/log"

	"github.com/vpcrouter/vpcrouter/internal/metrics"
	"github.com/vpcrouter/vpcrouter/internal/models"
	"github.com/vpcrouter/vpcrouter/internal/state"
	"github.com/vpcrouter/vpcrouter/pkg/plugins"
)

type Reconciler interface {
	Reconcile(ctx context.Context, spec models.RouteSpec, failed models.FailedIPSet) ([]string, error)
}

type Config struct {
	// Tick is the polling interval of the event loop.
	Tick time.Duration
	// MaxIterations bounds the loop for deterministic shutdown in
	// tests. Zero means run until the context is cancelled.
	MaxIterations int
}

type Coordinator struct {
	watcher plugins.Watcher
	monitor plugins.HealthMonitor
	st      *state.State
	rec     Reconciler
	mtr     metrics.Metrics
	cfg     Config

	// last IP list pushed to the health monitor, kept to avoid
	// re-sending an unchanged list on every spec update
	allIPs []string
}

func New(
	watcher plugins.Watcher,
	monitor plugins.HealthMonitor,
	st *state.State,
	rec Reconciler,
	mtr metrics.Metrics,
	cfg Config,
) *Coordinator {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if mtr == nil {
		mtr = metrics.NewNoop()
	}
	return &Coordinator{
		watcher: watcher,
		monitor: monitor,
		st:      st,
		rec:     rec,
		mtr:     mtr,
		cfg:     cfg,
	}
}

// Run starts both plugins, enters the watch loop and, once the context
// is cancelled or the iteration budget is spent, stops them again. A
// failing reconciliation pass never terminates the loop.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start route-spec watcher: %w", err)
	}
	if err := c.monitor.Start(ctx); err != nil {
		c.watcher.Stop()
		return fmt.Errorf("failed to start health monitor: %w", err)
	}
	defer func() {
		log.Debug().Msg("stopping health monitor")
		c.monitor.Stop()
		log.Debug().Msg("stopping route-spec watcher")
		c.watcher.Stop()
	}()

	// Give the plugins one tick to produce their first snapshots.
	if !c.sleep(ctx) {
		return nil
	}

	iterations := c.cfg.MaxIterations
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		c.tick(ctx)

		if c.cfg.MaxIterations > 0 {
			iterations--
			if iterations == 0 {
				return nil
			}
		}
		if !c.sleep(ctx) {
			return nil
		}
	}
}

// tick drains both snapshot channels latest-wins, updates shared state
// and runs one reconciliation pass if anything changed.
func (c *Coordinator) tick(ctx context.Context) {
	failed, gotFailed := drainLatest(c.monitor.FailedIPs())
	spec, gotSpec := drainLatest(c.watcher.RouteSpecs())

	if gotFailed {
		c.st.SetFailedIPs(failed)
		log.Debug().Msgf("health monitor reports failed ips: %v", failed.Sorted())
	}
	if gotSpec {
		c.st.SetRouteSpec(spec)
		c.pushMonitoredIPs(spec)
	}
	if !gotFailed && !gotSpec {
		return
	}

	reqID, err := uuid.GenerateUUID()
	if err != nil {
		// only happens when the entropy source is broken; reuse a
		// constant id rather than skip the pass
		reqID = "no-request-id"
	}

	curSpec, curFailed := c.st.Get()
	start := time.Now()
	msgs, err := c.rec.Reconcile(ctx, curSpec, curFailed)
	c.mtr.Duration("coordinator.pass", time.Since(start))
	if err != nil {
		c.mtr.Increment("coordinator.pass_failed")
		log.Error().Err(err).Msgf("reconciliation pass %s failed, retrying next tick", reqID)
		return
	}
	c.mtr.Increment("coordinator.pass_ok")
	for _, msg := range msgs {
		log.Info().Msgf("pass %s: %s", reqID, msg)
	}
}

// pushMonitoredIPs recomputes the set of IPs mentioned in the spec and
// forwards it to the health monitor only when the set actually changed.
// Comparison is by content: a new spec with the same addresses does not
// disturb the monitor.
func (c *Coordinator) pushMonitoredIPs(spec models.RouteSpec) {
	newAll := spec.AllIPs()
	if slices.Equal(newAll, c.allIPs) {
		log.Debug().Msg("new route spec, ip address list unchanged")
		return
	}
	c.allIPs = newAll
	c.mtr.Gauge("coordinator.monitored_ips", len(newAll))
	log.Debug().Msgf("new route spec, updating health monitor with %d ips", len(newAll))
	c.monitor.SetMonitoredIPs(newAll)
}

func (c *Coordinator) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.cfg.Tick):
		return true
	}
}

// drainLatest performs a non-blocking read of everything pending on ch
// and keeps only the newest value. Older messages are complete snapshots
// made stale by the newer one, so dropping them is safe.
func drainLatest[T any](ch <-chan T) (T, bool) {
	var (
		last T
		got  bool
	)
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return last, got
			}
			last, got = v, true
		default:
			return last, got
		}
	}
}
