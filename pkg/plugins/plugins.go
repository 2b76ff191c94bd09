// Package plugins defines the contracts the coordinator consumes: a
// watcher that produces route-spec snapshots and a health monitor that
// turns a list of IPs to probe into failed-IP snapshots. Concrete
// implementations are selected by name at startup; the coordinator only
// ever sees these interfaces.
package plugins

import (
	"context"

	"github.com/vpcrouter/vpcrouter/internal/models"
)

// Watcher produces full route-spec snapshots on its channel. Start and
// Stop are idempotent and must not block the caller; production happens
// on the watcher's own goroutine.
type Watcher interface {
	Start(ctx context.Context) error
	Stop()
	RouteSpecs() <-chan models.RouteSpec
}

// HealthMonitor probes a dynamically updated list of IPs and publishes
// the set of currently failed ones whenever it changes.
// SetMonitoredIPs is non-blocking with latest-wins semantics: a newer
// list overwrites one the monitor has not picked up yet.
type HealthMonitor interface {
	Start(ctx context.Context) error
	Stop()
	SetMonitoredIPs(ips []string)
	FailedIPs() <-chan models.FailedIPSet
}

type WatcherName string

const (
	WatcherFile     WatcherName = "file"
	WatcherHTTP     WatcherName = "http"
	WatcherKafka    WatcherName = "kafka"
	WatcherEtcd     WatcherName = "etcd"
	WatcherPostgres WatcherName = "postgres"
)

type MonitorName string

const (
	MonitorTCP  MonitorName = "tcp"
	MonitorICMP MonitorName = "icmp"
	MonitorMock MonitorName = "mock"
)
