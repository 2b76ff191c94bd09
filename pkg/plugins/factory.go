package plugins

import (
	"context"
	"fmt"
	"time"

	"github.com/vpcrouter/vpcrouter/internal/healthmon"
	"github.com/vpcrouter/vpcrouter/internal/watchers/etcdwatcher"
	"github.com/vpcrouter/vpcrouter/internal/watchers/filewatcher"
	"github.com/vpcrouter/vpcrouter/internal/watchers/httpwatcher"
	"github.com/vpcrouter/vpcrouter/internal/watchers/kafkawatcher"
	"github.com/vpcrouter/vpcrouter/internal/watchers/pgwatcher"
)

type WatcherConfig struct {
	// file watcher
	SpecFile string
	// http watcher
	ListenAddr string
	// kafka watcher
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string
	// etcd watcher
	EtcdEndpoints []string
	EtcdKey       string
	// postgres watcher
	PostgresDSN  string
	PollInterval time.Duration
}

// NewWatcher builds the route-spec watcher selected by name.
func NewWatcher(ctx context.Context, name WatcherName, cfg WatcherConfig) (Watcher, error) {
	switch name {
	case WatcherFile:
		if cfg.SpecFile == "" {
			return nil, fmt.Errorf("file watcher needs a spec file path")
		}
		return filewatcher.New(cfg.SpecFile), nil
	case WatcherHTTP:
		if cfg.ListenAddr == "" {
			return nil, fmt.Errorf("http watcher needs a listen address")
		}
		return httpwatcher.New(cfg.ListenAddr), nil
	case WatcherKafka:
		if len(cfg.KafkaBrokers) == 0 || cfg.KafkaTopic == "" {
			return nil, fmt.Errorf("kafka watcher needs brokers and a topic")
		}
		return kafkawatcher.New(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID), nil
	case WatcherEtcd:
		if len(cfg.EtcdEndpoints) == 0 || cfg.EtcdKey == "" {
			return nil, fmt.Errorf("etcd watcher needs endpoints and a key")
		}
		return etcdwatcher.New(cfg.EtcdEndpoints, cfg.EtcdKey)
	case WatcherPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres watcher needs a dsn")
		}
		return pgwatcher.New(ctx, cfg.PostgresDSN, cfg.PollInterval)
	default:
		return nil, fmt.Errorf("unknown watcher %q", name)
	}
}

type MonitorConfig struct {
	ProbeInterval    time.Duration
	ProbeTimeout     time.Duration
	FailureThreshold uint8
	Concurrency      int
	// tcp monitor only
	TCPPort uint16
}

// NewHealthMonitor builds the health monitor selected by name.
func NewHealthMonitor(name MonitorName, cfg MonitorConfig) (HealthMonitor, error) {
	mcfg := healthmon.Config{
		Interval:         cfg.ProbeInterval,
		FailureThreshold: cfg.FailureThreshold,
		Concurrency:      cfg.Concurrency,
	}
	switch name {
	case MonitorICMP:
		return healthmon.NewMonitor(healthmon.NewICMPProber(cfg.ProbeTimeout), mcfg), nil
	case MonitorTCP:
		if cfg.TCPPort == 0 {
			return nil, fmt.Errorf("tcp monitor needs a probe port")
		}
		return healthmon.NewMonitor(healthmon.NewTCPProber(cfg.TCPPort, cfg.ProbeTimeout), mcfg), nil
	case MonitorMock:
		return healthmon.NewMonitor(healthmon.NewMockProber(), mcfg), nil
	default:
		return nil, fmt.Errorf("unknown health monitor %q", name)
	}
}
