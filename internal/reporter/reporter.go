package reporter

// Reporter receives the rate estimate once per polling tick.
type Reporter interface {
	Report(rate float64) error
}

type NullReporter struct{}

func (n *NullReporter) Report(float64) error {
	return nil
}
