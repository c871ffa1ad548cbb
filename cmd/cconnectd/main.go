// Command cconnectd is the cosmic-connectd daemon: it discovers peers on
// the local network, negotiates mutually-authenticated sessions with them,
// and dispatches packets to per-device plugins for the lifetime of each
// connection.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/olafkfreund/cosmic-connectd/internal/config"
	"github.com/olafkfreund/cosmic-connectd/internal/metrics"
	"github.com/olafkfreund/cosmic-connectd/internal/version"
	"github.com/olafkfreund/cosmic-connectd/pkg/deviceconfig"
	"github.com/olafkfreund/cosmic-connectd/pkg/identity"
	"github.com/olafkfreund/cosmic-connectd/pkg/trust"
	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// Exit codes (spec section 6.4).
const (
	exitOK            = 0
	exitConfigError   = 1
	exitIdentityError = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cconnectd: load configuration: %v\n", err)
		return exitConfigError
	}

	loggerFactory := logging.NewDefaultLoggerFactory()
	loggerFactory.DefaultLogLevel = logLevelFromString(cfg.Log.Level)
	log := loggerFactory.NewLogger("cconnectd")

	log.Infof("cosmic-connectd %s starting (device=%s state=%s)", version.Version, cfg.Identity.DeviceName, cfg.State.Root)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	idStore, err := identity.Open(identity.StoreConfig{
		Dir:           cfg.State.Root,
		DeviceName:    cfg.Identity.DeviceName,
		DeviceType:    identity.DeviceType(cfg.Identity.DeviceType),
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		log.Errorf("open identity store: %v", err)
		return exitIdentityError
	}

	trustStore, err := trust.Open(trust.StoreConfig{
		Path:          filepath.Join(cfg.State.Root, "trusted_peers.json"),
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		log.Errorf("open trust store: %v", err)
		return exitIdentityError
	}

	deviceCfgStore, err := deviceconfig.Open(deviceconfig.StoreConfig{
		Path:          filepath.Join(cfg.State.Root, "devices.json"),
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		log.Errorf("open device config store: %v", err)
		return exitIdentityError
	}

	d, err := newDaemon(cfg, idStore, trustStore, deviceCfgStore, collector, loggerFactory)
	if err != nil {
		log.Errorf("build daemon: %v", err)
		return exitConfigError
	}

	if err := runDaemon(d, reg, cfg, log); err != nil {
		log.Errorf("cconnectd exited with error: %v", err)
		return exitConfigError
	}

	log.Info("cconnectd stopped")
	return exitOK
}

// runDaemon wires the daemon's own run loop alongside the metrics HTTP
// server under a single errgroup, cancelled on SIGINT/SIGTERM.
func runDaemon(d *daemon, reg *prometheus.Registry, cfg *config.Config, log logging.LeveledLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	g.Go(func() error {
		log.Infof("metrics listening on %s%s", cfg.Metrics.Addr, cfg.Metrics.Path)
		return listenAndServe(metricsSrv)
	})

	g.Go(func() error {
		return d.Run(gCtx)
	})

	g.Go(func() error {
		<-gCtx.Done()
		return d.Shutdown(metricsSrv)
	})

	if err := g.Wait(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func listenAndServe(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// logLevelFromString maps a configuration log level string to a pion/logging
// level. Unknown values default to LogLevelInfo.
func logLevelFromString(level string) logging.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logging.LogLevelDebug
	case "warn":
		return logging.LogLevelWarn
	case "error":
		return logging.LogLevelError
	case "info":
		return logging.LogLevelInfo
	default:
		return logging.LogLevelInfo
	}
}
