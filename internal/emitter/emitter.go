package emitter

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/pako-23/emg-rate/internal/receiver"
	semconv "go.opentelemetry.io/otel/semconv/v1.25.0"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding/gzip"
)

const (
	DefaultDevice = "myo-sim"
	scopeName     = "github.com/pako-23/emg-rate/internal/emitter"
)

var ErrRejected = errors.New("receiver rejected data points")

// Emitter exports EMG samples of one device to an OTLP metrics receiver.
type Emitter struct {
	conn     *grpc.ClientConn
	client   colmetricspb.MetricsServiceClient
	device   string
	name     string
	compress bool
}

type Option func(*Emitter)

func NewEmitter(address string, options ...Option) (*Emitter, error) {
	emitter := &Emitter{device: DefaultDevice}

	for _, option := range options {
		option(emitter)
	}

	conn, err := grpc.NewClient(address,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	emitter.conn = conn
	emitter.client = colmetricspb.NewMetricsServiceClient(conn)

	return emitter, nil
}

func WithDevice(id string) Option {
	return func(emitter *Emitter) {
		emitter.device = id
	}
}

// WithName sets the service.name resource attribute sent with every export.
func WithName(name string) Option {
	return func(emitter *Emitter) {
		emitter.name = name
	}
}

func WithCompression() Option {
	return func(emitter *Emitter) {
		emitter.compress = true
	}
}

func (e *Emitter) Emit(ctx context.Context, samples []*receiver.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	var opts []grpc.CallOption
	if e.compress {
		opts = append(opts, grpc.UseCompressor(gzip.Name))
	}

	res, err := e.client.Export(ctx, EncodeSamples(e.device, e.name, samples), opts...)
	if err != nil {
		return err
	}

	if partial := res.GetPartialSuccess(); partial.GetRejectedDataPoints() > 0 {
		return fmt.Errorf("%w: %s", ErrRejected, partial.GetErrorMessage())
	}

	return nil
}

func (e *Emitter) Close() error {
	return e.conn.Close()
}

// EncodeSamples builds an export request holding one gauge data point per
// pod of every sample.
func EncodeSamples(device string, name string, samples []*receiver.Sample) *colmetricspb.ExportMetricsServiceRequest {
	points := make([]*metricspb.NumberDataPoint, 0, len(samples)*receiver.PodCount)

	for _, sample := range samples {
		timestamp := uint64(math.Round(sample.Timestamp * 1e9))

		for pod, value := range sample.EMG {
			points = append(points, &metricspb.NumberDataPoint{
				Attributes: []*commonpb.KeyValue{
					intAttribute(receiver.PodAttribute, int64(pod)),
				},
				TimeUnixNano: timestamp,
				Value:        &metricspb.NumberDataPoint_AsInt{AsInt: int64(value)},
			})
		}
	}

	attributes := []*commonpb.KeyValue{
		stringAttribute(string(semconv.DeviceIDKey), device),
	}
	if name != "" {
		attributes = append(attributes, stringAttribute(string(semconv.ServiceNameKey), name))
	}

	return &colmetricspb.ExportMetricsServiceRequest{
		ResourceMetrics: []*metricspb.ResourceMetrics{{
			Resource: &resourcepb.Resource{Attributes: attributes},
			ScopeMetrics: []*metricspb.ScopeMetrics{{
				Scope: &commonpb.InstrumentationScope{Name: scopeName},
				Metrics: []*metricspb.Metric{{
					Name: receiver.EMGMetricName,
					Unit: "1",
					Data: &metricspb.Metric_Gauge{
						Gauge: &metricspb.Gauge{DataPoints: points},
					},
				}},
			}},
		}},
	}
}

func stringAttribute(key string, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key: key,
		Value: &commonpb.AnyValue{
			Value: &commonpb.AnyValue_StringValue{StringValue: value},
		},
	}
}

func intAttribute(key string, value int64) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key: key,
		Value: &commonpb.AnyValue{
			Value: &commonpb.AnyValue_IntValue{IntValue: value},
		},
	}
}
