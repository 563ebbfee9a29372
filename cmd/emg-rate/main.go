package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pako-23/emg-rate/internal/config"
	"github.com/pako-23/emg-rate/internal/hub"
	"github.com/pako-23/emg-rate/internal/logging"
	"github.com/pako-23/emg-rate/internal/monitor"
	"github.com/pako-23/emg-rate/internal/reporter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout)
	stop()

	os.Exit(code)
}

// run returns the process exit status: 0 once ctx is cancelled, 1 on any
// setup or run failure.
func run(ctx context.Context, args []string, stdout io.Writer) int {
	flags := flag.NewFlagSet("emg-rate", flag.ContinueOnError)
	configPath := flags.String("config", "", "Path to configuration file")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.JSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	h, err := hub.Listen(
		hub.WithAddress(cfg.Receiver.Address),
		hub.WithBuffer(cfg.Receiver.Buffer),
		hub.WithLogger(logger))
	if err != nil {
		logger.Error("error", zap.Error(err))
		return 1
	}
	defer h.Close()

	reporters := []reporter.Reporter{reporter.NewConsole(stdout)}
	serveErr := make(chan error, 1)

	if cfg.Metrics.Address != "" {
		prom, err := reporter.NewPrometheus(prometheus.DefaultRegisterer)
		if err != nil {
			logger.Error("failed to register metrics", zap.Error(err))
			return 1
		}

		lis, err := net.Listen("tcp", cfg.Metrics.Address)
		if err != nil {
			logger.Error("error", zap.Error(fmt.Errorf("metrics listener: %w", err)))
			return 1
		}

		snapshot := reporter.NewSnapshot()
		reporters = append(reporters, prom, snapshot)

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		ctx = runCtx

		server := metricsServer(snapshot)
		go func() {
			logger.Info("metrics server listening", zap.String("address", lis.Addr().String()))
			if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
				cancel()
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown", zap.Error(err))
			}
		}()
	}

	mon, err := monitor.NewMonitor(h,
		monitor.WithReporters(reporters...),
		monitor.WithLogger(logger))
	if err != nil {
		logger.Error("error", zap.Error(err))
		return 1
	}

	if err := mon.Run(ctx); err != nil {
		if !errors.Is(err, hub.ErrNoDevice) {
			logger.Error("error", zap.Error(err))
		}
		return 1
	}

	select {
	case err := <-serveErr:
		logger.Error("metrics server exited", zap.Error(err))
		return 1
	default:
	}

	fmt.Fprintln(stdout)
	return 0
}

// metricsServer serves the Prometheus collectors on /metrics and the last
// estimate as plain text on /.
func metricsServer(snapshot *reporter.Snapshot) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, snapshot.String())
	})

	return &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
}
