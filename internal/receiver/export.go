package receiver

import (
	"context"
	"fmt"
	"math"

	semconv "go.opentelemetry.io/otel/semconv/v1.25.0"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	"go.uber.org/zap"
)

func (s *server) Export(
	ctx context.Context, in *colmetricspb.ExportMetricsServiceRequest,
) (*colmetricspb.ExportMetricsServiceResponse, error) {
	var rejected int64

	for _, resourceMetrics := range in.ResourceMetrics {
		device := extractDevice(resourceMetrics)

		for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
			for _, metric := range scopeMetrics.Metrics {
				if metric.Name != EMGMetricName {
					continue
				}

				points := metric.GetGauge().GetDataPoints()
				if device == "" {
					rejected += int64(len(points))
					continue
				}

				samples, invalid := decodeSamples(device, points)
				rejected += invalid

				if s.ch == nil {
					continue
				}

				for _, sample := range samples {
					select {
					case s.ch <- sample:
					case <-ctx.Done():
						return nil, ctx.Err()
					}
				}
			}
		}
	}

	partial := &colmetricspb.ExportMetricsPartialSuccess{RejectedDataPoints: rejected}
	if rejected > 0 {
		partial.ErrorMessage = fmt.Sprintf("rejected %d malformed %s data points", rejected, EMGMetricName)
		s.logger.Debug("rejected data points", zap.Int64("count", rejected))
	}

	return &colmetricspb.ExportMetricsServiceResponse{PartialSuccess: partial}, nil
}

// decodeSamples groups the data points sharing a timestamp into samples, in
// the order their timestamps first appear.
func decodeSamples(device string, points []*metricspb.NumberDataPoint) ([]*Sample, int64) {
	var rejected int64

	samples := []*Sample{}
	byTime := map[uint64]*Sample{}

	for _, point := range points {
		pod, ok := podIndex(point.Attributes)
		if !ok || point.TimeUnixNano == 0 {
			rejected++
			continue
		}

		value, ok := point.Value.(*metricspb.NumberDataPoint_AsInt)
		if !ok || value.AsInt < math.MinInt8 || value.AsInt > math.MaxInt8 {
			rejected++
			continue
		}

		sample, ok := byTime[point.TimeUnixNano]
		if !ok {
			sample = &Sample{
				Device:    device,
				Timestamp: float64(point.TimeUnixNano) / 1e9,
			}
			byTime[point.TimeUnixNano] = sample
			samples = append(samples, sample)
		}

		sample.EMG[pod] = int8(value.AsInt)
	}

	return samples, rejected
}

func podIndex(attributes []*commonpb.KeyValue) (int, bool) {
	for _, attribute := range attributes {
		if attribute.Key != PodAttribute {
			continue
		}

		value, ok := attribute.Value.GetValue().(*commonpb.AnyValue_IntValue)
		if !ok || value.IntValue < 0 || value.IntValue >= PodCount {
			return 0, false
		}

		return int(value.IntValue), true
	}

	return 0, false
}

func extractDevice(metrics *metricspb.ResourceMetrics) string {
	if metrics.Resource == nil || metrics.Resource.Attributes == nil {
		return ""
	}

	serviceName := ""
	for _, attribute := range metrics.Resource.Attributes {
		switch attribute.Key {
		case string(semconv.DeviceIDKey):
			if id := attribute.Value.GetStringValue(); id != "" {
				return id
			}
		case string(semconv.ServiceNameKey):
			serviceName = attribute.Value.GetStringValue()
		}
	}

	return serviceName
}
