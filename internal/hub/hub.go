package hub

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pako-23/emg-rate/internal/receiver"
	"go.uber.org/zap"
)

const DefaultBuffer = 256

var (
	ErrNoDevice      = errors.New("no device found")
	ErrUnknownDevice = errors.New("unknown device")
	ErrClosed        = errors.New("hub closed")
)

// Device is the armband found by WaitForDevice.
type Device struct {
	ID string
}

// Listener receives the EMG samples of the streaming device.
type Listener interface {
	OnEmgData(timestamp float64, emg []int8)
}

type ListenerFunc func(timestamp float64, emg []int8)

func (f ListenerFunc) OnEmgData(timestamp float64, emg []int8) {
	f(timestamp, emg)
}

// Hub delivers the samples received from a bridge to its listeners. Samples
// are only dispatched from within Run, on the calling goroutine.
type Hub struct {
	samples   <-chan *receiver.Sample
	errs      <-chan error
	stop      func()
	addr      net.Addr
	stopOnce  sync.Once
	listeners []Listener
	device    *Device
	streaming bool
	err       error
	address   string
	buffer    int
	logger    *zap.Logger
}

type Option func(*Hub)

// NewHub returns a hub reading samples from ch.
func NewHub(ch <-chan *receiver.Sample, options ...Option) *Hub {
	hub := &Hub{
		samples: ch,
		address: receiver.DefaultAddress,
		buffer:  DefaultBuffer,
		logger:  zap.NewNop(),
	}

	for _, option := range options {
		option(hub)
	}

	return hub
}

// Listen starts an OTLP receiver and returns a hub fed by it.
func Listen(options ...Option) (*Hub, error) {
	hub := NewHub(nil, options...)

	ch := make(chan *receiver.Sample, hub.buffer)
	recv := receiver.NewOTLPReceiver(
		receiver.WithChannel(ch),
		receiver.WithAddress(hub.address),
		receiver.WithLogger(hub.logger))

	lis, errs := recv.Start()
	if lis == nil {
		return nil, fmt.Errorf("start receiver: %w", <-errs)
	}

	hub.samples = ch
	hub.errs = errs
	hub.stop = recv.Stop
	hub.addr = lis.Addr()

	return hub, nil
}

func WithAddress(address string) Option {
	return func(hub *Hub) {
		hub.address = address
	}
}

func WithBuffer(size int) Option {
	return func(hub *Hub) {
		hub.buffer = size
	}
}

// WithErrors makes the hub fail once the transport reports on errs.
func WithErrors(errs <-chan error) Option {
	return func(hub *Hub) {
		hub.errs = errs
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(hub *Hub) {
		hub.logger = logger
	}
}

// Addr is the address the receiver of a hub created by Listen is bound to.
func (h *Hub) Addr() net.Addr {
	return h.addr
}

func (h *Hub) AddListener(listener Listener) {
	h.listeners = append(h.listeners, listener)
}

// WaitForDevice blocks until a device sends its first sample, timeout
// expires or ctx is done.
func (h *Hub) WaitForDevice(ctx context.Context, timeout time.Duration) (*Device, error) {
	if h.err != nil {
		return nil, h.err
	}

	if h.device != nil {
		return h.device, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case sample, ok := <-h.samples:
		if !ok {
			return nil, h.fail(nil)
		}

		h.device = &Device{ID: sample.Device}
		h.logger.Info("device connected", zap.String("device", sample.Device))
		return h.device, nil

	case err := <-h.errs:
		return nil, h.fail(err)

	case <-timer.C:
		return nil, ErrNoDevice

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) SetStreamEmg(device *Device, enabled bool) error {
	if h.err != nil {
		return h.err
	}

	if device == nil || h.device == nil || device.ID != h.device.ID {
		return ErrUnknownDevice
	}

	h.streaming = enabled
	h.logger.Debug("emg streaming changed",
		zap.String("device", device.ID),
		zap.Bool("enabled", enabled))

	return nil
}

// Run dispatches the samples received within window to the listeners. It
// returns early, without error, once ctx is done.
func (h *Hub) Run(ctx context.Context, window time.Duration) error {
	if h.err != nil {
		return h.err
	}

	timer := time.NewTimer(window)
	defer timer.Stop()

	for {
		select {
		case sample, ok := <-h.samples:
			if !ok {
				return h.fail(nil)
			}

			h.dispatch(sample)

		case err := <-h.errs:
			return h.fail(err)

		case <-timer.C:
			return nil

		case <-ctx.Done():
			return nil
		}
	}
}

func (h *Hub) dispatch(sample *receiver.Sample) {
	if !h.streaming || h.device == nil || sample.Device != h.device.ID {
		return
	}

	for _, listener := range h.listeners {
		listener.OnEmgData(sample.Timestamp, sample.EMG[:])
	}
}

func (h *Hub) fail(err error) error {
	if err == nil {
		h.err = ErrClosed
	} else {
		h.err = fmt.Errorf("%w: %w", ErrClosed, err)
	}

	return h.err
}

func (h *Hub) Close() {
	h.stopOnce.Do(func() {
		if h.stop != nil {
			h.stop()
		}
	})
}
