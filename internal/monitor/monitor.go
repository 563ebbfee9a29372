package monitor

import (
	"context"
	"os"
	"time"

	"github.com/pako-23/emg-rate/internal/hub"
	"github.com/pako-23/emg-rate/internal/rate"
	"github.com/pako-23/emg-rate/internal/reporter"
	"go.uber.org/zap"
)

const (
	DiscoveryTimeout = time.Second
	WindowCapacity   = 50
	PollInterval     = 100 * time.Millisecond
)

// EventSource is the device hub the monitor reads samples from.
type EventSource interface {
	WaitForDevice(ctx context.Context, timeout time.Duration) (*hub.Device, error)
	SetStreamEmg(device *hub.Device, enabled bool) error
	AddListener(listener hub.Listener)
	Run(ctx context.Context, window time.Duration) error
}

type Monitor struct {
	Interval  time.Duration
	Timeout   time.Duration
	Window    *rate.IntervalWindow
	capacity  int
	source    EventSource
	reporters []reporter.Reporter
	logger    *zap.Logger
}

type Option func(*Monitor)

func NewMonitor(source EventSource, options ...Option) (*Monitor, error) {
	monitor := &Monitor{
		Interval:  PollInterval,
		Timeout:   DiscoveryTimeout,
		capacity:  WindowCapacity,
		source:    source,
		reporters: []reporter.Reporter{reporter.NewConsole(os.Stdout)},
		logger:    zap.NewNop(),
	}

	for _, opt := range options {
		opt(monitor)
	}

	window, err := rate.NewIntervalWindow(monitor.capacity)
	if err != nil {
		return nil, err
	}
	monitor.Window = window

	return monitor, nil
}

func WithInterval(interval time.Duration) Option {
	return func(monitor *Monitor) {
		monitor.Interval = interval
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(monitor *Monitor) {
		monitor.Timeout = timeout
	}
}

func WithCapacity(capacity int) Option {
	return func(monitor *Monitor) {
		monitor.capacity = capacity
	}
}

// WithReporters replaces the default console reporter.
func WithReporters(reporters ...reporter.Reporter) Option {
	return func(monitor *Monitor) {
		monitor.reporters = reporters
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(monitor *Monitor) {
		monitor.logger = logger
	}
}
