package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vrischmann/envconfig"

	"github.com/vpcrouter/vpcrouter/internal/connector/awsconn"
	"github.com/vpcrouter/vpcrouter/internal/coordinator"
	"github.com/vpcrouter/vpcrouter/internal/metrics"
	"github.com/vpcrouter/vpcrouter/internal/reconciler"
	"github.com/vpcrouter/vpcrouter/internal/state"
	"github.com/vpcrouter/vpcrouter/pkg/plugins"
)

type Config struct {
	LoggerLevel string `envconfig:"LOGGER_LEVEL,default=info"`
	NodeName    string `envconfig:"NODE_NAME,default=vpcrouter-0"`

	Region string `envconfig:"AWS_REGION,default=ap-southeast-2"`
	VPCID  string `envconfig:"VPC_ID"`

	Watcher       string `envconfig:"WATCHER,default=file"`
	HealthMonitor string `envconfig:"HEALTH_MONITOR,default=icmp"`

	Tick time.Duration `envconfig:"TICK,default=1s"`

	SpecFile      string        `envconfig:"SPEC_FILE,optional"`
	ListenAddr    string        `envconfig:"LISTEN_ADDR,default=localhost:33289"`
	KafkaBrokers  string        `envconfig:"KAFKA_BROKERS,optional"`
	KafkaTopic    string        `envconfig:"KAFKA_TOPIC,optional"`
	EtcdEndpoints string        `envconfig:"ETCD_ENDPOINTS,optional"`
	EtcdKey       string        `envconfig:"ETCD_KEY,default=/vpcrouter/route_spec"`
	PostgresDSN   string        `envconfig:"POSTGRES_DSN,optional"`
	PollInterval  time.Duration `envconfig:"POLL_INTERVAL,default=5s"`

	ProbeInterval    time.Duration `envconfig:"PROBE_INTERVAL,default=2s"`
	ProbeTimeout     time.Duration `envconfig:"PROBE_TIMEOUT,default=2s"`
	FailureThreshold uint8         `envconfig:"FAILURE_THRESHOLD,default=2"`
	ProbeConcurrency int           `envconfig:"PROBE_CONCURRENCY,default=10"`
	TCPProbePort     uint16        `envconfig:"TCP_PROBE_PORT,optional"`

	StatsdAddr string `envconfig:"STATSD_ADDR,optional"`
	ProbeAddr  string `envconfig:"PROBE_ADDR,default=0.0.0.0:8080"`
}

func loggerLevelFromString(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "error":
		return zerolog.ErrorLevel
	case "warn":
		return zerolog.WarnLevel
	case "info":
		return zerolog.InfoLevel
	case "debug":
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	appCfg := Config{}
	if err := envconfig.Init(&appCfg); err != nil {
		log.Fatal().Err(err).Msg("failed to read app config")
	}
	log.Logger = log.Level(loggerLevelFromString(appCfg.LoggerLevel))

	mtr := metrics.NewNoop()
	if appCfg.StatsdAddr != "" {
		mtr = metrics.NewStatsd(appCfg.NodeName, appCfg.StatsdAddr)
	}

	conn, err := awsconn.New(ctx, appCfg.Region)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create ec2 connector")
	}

	watcher, err := plugins.NewWatcher(ctx, plugins.WatcherName(appCfg.Watcher), plugins.WatcherConfig{
		SpecFile:      appCfg.SpecFile,
		ListenAddr:    appCfg.ListenAddr,
		KafkaBrokers:  splitList(appCfg.KafkaBrokers),
		KafkaTopic:    appCfg.KafkaTopic,
		KafkaGroupID:  appCfg.NodeName,
		EtcdEndpoints: splitList(appCfg.EtcdEndpoints),
		EtcdKey:       appCfg.EtcdKey,
		PostgresDSN:   appCfg.PostgresDSN,
		PollInterval:  appCfg.PollInterval,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create route spec watcher")
	}

	monitor, err := plugins.NewHealthMonitor(plugins.MonitorName(appCfg.HealthMonitor), plugins.MonitorConfig{
		ProbeInterval:    appCfg.ProbeInterval,
		ProbeTimeout:     appCfg.ProbeTimeout,
		FailureThreshold: appCfg.FailureThreshold,
		Concurrency:      appCfg.ProbeConcurrency,
		TCPPort:          appCfg.TCPProbePort,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create health monitor")
	}

	serverClose := startProbeServer(appCfg.ProbeAddr)
	defer serverClose()

	log.Info().Msgf("starting vpcrouter for vpc %s in %s (watcher=%s monitor=%s)",
		appCfg.VPCID, appCfg.Region, appCfg.Watcher, appCfg.HealthMonitor)

	engine := reconciler.New(conn, appCfg.VPCID, mtr)
	crd := coordinator.New(watcher, monitor, state.New(), engine, mtr, coordinator.Config{
		Tick: appCfg.Tick,
	})
	if err := crd.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("coordinator failed")
	}
	log.Info().Msg("vpcrouter stopped")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func startProbeServer(addr string) func() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		w.WriteHeader(http.StatusOK)
	})
	srv := http.Server{
		Handler: mux,
		Addr:    addr,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to start probe server")
		}
	}()
	return func() {
		_ = srv.Close()
	}
}
