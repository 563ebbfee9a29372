package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pako-23/emg-rate/internal/emitter"
	"github.com/pako-23/emg-rate/internal/logging"
	"github.com/pako-23/emg-rate/internal/receiver"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()

	os.Exit(code)
}

// run streams synthetic samples until ctx is cancelled and returns the
// process exit status.
func run(ctx context.Context, args []string) int {
	flags := flag.NewFlagSet("emg-sim", flag.ContinueOnError)
	address := flags.String("address", "localhost:4317", "OTLP receiver address")
	device := flags.String("device", emitter.DefaultDevice, "Device identifier to report")
	rate := flags.Float64("rate", 200, "EMG samples per second")
	batch := flags.Int("batch", 10, "Samples per export")
	compress := flags.Bool("gzip", false, "Compress exports")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	logger, err := logging.New("info", false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	if *rate <= 0 || *batch < 1 {
		logger.Error("rate and batch must be positive",
			zap.Float64("rate", *rate), zap.Int("batch", *batch))
		return 1
	}

	options := []emitter.Option{emitter.WithDevice(*device), emitter.WithName("emg-sim")}
	if *compress {
		options = append(options, emitter.WithCompression())
	}

	emit, err := emitter.NewEmitter(*address, options...)
	if err != nil {
		logger.Error("failed to create emitter", zap.Error(err))
		return 1
	}
	defer emit.Close()

	hz := *rate
	period := time.Duration(float64(*batch) / hz * float64(time.Second))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	logger.Info("streaming synthetic emg",
		zap.String("address", *address),
		zap.String("device", *device),
		zap.Float64("rate", *rate))

	start := time.Now()
	base := float64(start.UnixNano()) / 1e9
	sent := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("stopped", zap.Int("samples", sent))
			return 0
		case <-ticker.C:
		}

		samples := make([]*receiver.Sample, *batch)
		for i := range samples {
			samples[i] = synthesize(*device, base+float64(sent+i)/hz)
		}

		if err := emit.Emit(ctx, samples); err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Error("export failed", zap.Error(err))
			return 1
		}
		sent += len(samples)

		logger.Debug("exported", zap.Int("samples", sent), zap.Duration("elapsed", time.Since(start)))
	}
}

// synthesize produces a noisy muscle burst signal for every pod.
func synthesize(device string, timestamp float64) *receiver.Sample {
	sample := &receiver.Sample{Device: device, Timestamp: timestamp}
	envelope := 40 * (1 + math.Sin(2*math.Pi*0.5*timestamp))

	for pod := range sample.EMG {
		value := envelope*math.Sin(2*math.Pi*(80+float64(pod)*5)*timestamp) + rand.NormFloat64()*4
		sample.EMG[pod] = int8(math.Max(math.MinInt8, math.Min(math.MaxInt8, value)))
	}

	return sample
}
