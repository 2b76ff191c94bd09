// Package healthmon implements the health-monitor plugin: it probes a
// dynamically updated list of router IPs and publishes the set of
// currently failed ones whenever that set changes. The probing mechanism
// is a swappable Prober strategy (tcp connect, icmp echo, mock).
package healthmon

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vpcrouter/vpcrouter/internal/models"
	"github.com/vpcrouter/vpcrouter/pkg/coalesce"
)

// Prober checks a single IP once. A nil return means healthy.
type Prober interface {
	Probe(ctx context.Context, ip string) error
}

type Config struct {
	// Interval between probe rounds.
	Interval time.Duration
	// FailureThreshold is the number of consecutive failed probes
	// before an IP is reported as failed.
	FailureThreshold uint8
	// Concurrency bounds in-flight probes per round.
	Concurrency int
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 2
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 10
	}
}

type Monitor struct {
	prober Prober
	cfg    Config

	ips    *coalesce.Chan[[]string]
	failed *coalesce.Chan[models.FailedIPSet]

	started atomic.Bool
	stop    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

func NewMonitor(prober Prober, cfg Config) *Monitor {
	cfg.defaults()
	return &Monitor{
		prober: prober,
		cfg:    cfg,
		ips:    coalesce.New[[]string](),
		failed: coalesce.New[models.FailedIPSet](),
		stop:   make(chan struct{}),
	}
}

func (m *Monitor) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return nil
	}
	m.wg.Add(1)
	go m.run(ctx)
	return nil
}

func (m *Monitor) Stop() {
	m.stopped.Do(func() {
		close(m.stop)
	})
	m.wg.Wait()
	m.failed.Close()
}

func (m *Monitor) SetMonitoredIPs(ips []string) {
	m.ips.Send(slices.Clone(ips))
}

func (m *Monitor) FailedIPs() <-chan models.FailedIPSet {
	return m.failed.Recv()
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	var (
		monitored []string
		failures  = make(map[string]uint8)
		last      = models.FailedIPSet{}
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
		}

		if ips, ok := m.ips.TryRecv(); ok {
			monitored = ips
			// forget counters for IPs that left the spec
			for ip := range failures {
				if !slices.Contains(monitored, ip) {
					delete(failures, ip)
				}
			}
			log.Debug().Msgf("health monitor now watching %d ips", len(monitored))
		}
		if len(monitored) == 0 {
			continue
		}

		for i, err := range m.probeRound(ctx, monitored) {
			ip := monitored[i]
			if err == nil {
				delete(failures, ip)
				continue
			}
			if failures[ip] < m.cfg.FailureThreshold {
				failures[ip]++
			}
			log.Debug().Err(err).Msgf("probe failed for %s (%d consecutive)", ip, failures[ip])
		}

		current := models.FailedIPSet{}
		for ip, count := range failures {
			if count >= m.cfg.FailureThreshold {
				current[ip] = struct{}{}
			}
		}
		if current.Equal(last) {
			continue
		}
		last = current
		log.Info().Msgf("failed ip set changed: %v", current.Sorted())
		m.failed.Send(current)
	}
}

// probeRound probes every monitored IP, at most Concurrency in flight.
func (m *Monitor) probeRound(ctx context.Context, monitored []string) []error {
	var (
		results = make([]error, len(monitored))
		sem     = make(chan struct{}, m.cfg.Concurrency)
		wg      sync.WaitGroup
	)
	for i, ip := range monitored {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, ip string) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = m.prober.Probe(ctx, ip)
		}(i, ip)
	}
	wg.Wait()
	return results
}
