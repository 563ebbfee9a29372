package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/pako-23/emg-rate/internal/hub"
	"go.uber.org/zap"
)

// Run connects to a device and reports the sample rate after every poll
// until ctx is cancelled. Cancelling ctx is not an error, even before a
// device is found.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("searching for device", zap.Duration("timeout", m.Timeout))

	device, err := m.source.WaitForDevice(ctx, m.Timeout)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}

		if errors.Is(err, hub.ErrNoDevice) {
			m.logger.Error("no device found")
		}

		return err
	}

	if err := m.source.SetStreamEmg(device, true); err != nil {
		return fmt.Errorf("enable emg streaming on %s: %w", device.ID, err)
	}

	m.source.AddListener(m.Window)
	for _, rep := range m.reporters {
		if listener, ok := rep.(hub.Listener); ok {
			m.source.AddListener(listener)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := m.source.Run(ctx, m.Interval); err != nil {
			return fmt.Errorf("process events: %w", err)
		}

		if ctx.Err() != nil {
			return nil
		}

		estimate := m.Window.Rate()
		for _, rep := range m.reporters {
			if err := rep.Report(estimate); err != nil {
				m.logger.Warn("failed to report rate", zap.Error(err))
			}
		}
	}
}
