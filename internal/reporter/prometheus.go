package reporter

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "emg_rate"

// Prometheus exports the estimate and the number of samples and ticks it
// has seen.
type Prometheus struct {
	rate    prometheus.Gauge
	ticks   prometheus.Counter
	samples prometheus.Counter
}

func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	rate, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "samples_per_second",
		Help:      "Estimated EMG sample rate over the sliding window.",
	}))
	if err != nil {
		return nil, err
	}

	ticks, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ticks_total",
		Help:      "Total number of polling ticks reported.",
	}))
	if err != nil {
		return nil, err
	}

	samples, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "samples_total",
		Help:      "Total number of EMG samples dispatched by the hub.",
	}))
	if err != nil {
		return nil, err
	}

	return &Prometheus{
		rate:    rate.(prometheus.Gauge),
		ticks:   ticks.(prometheus.Counter),
		samples: samples.(prometheus.Counter),
	}, nil
}

func register(reg prometheus.Registerer, collector prometheus.Collector) (prometheus.Collector, error) {
	if err := reg.Register(collector); err != nil {
		var registered prometheus.AlreadyRegisteredError
		if errors.As(err, &registered) {
			return registered.ExistingCollector, nil
		}

		return nil, err
	}

	return collector, nil
}

func (p *Prometheus) Report(rate float64) error {
	p.rate.Set(rate)
	p.ticks.Inc()
	return nil
}

// OnEmgData counts the samples dispatched to the estimator.
func (p *Prometheus) OnEmgData(float64, []int8) {
	p.samples.Inc()
}
