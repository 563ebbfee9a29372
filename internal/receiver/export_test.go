package receiver_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/pako-23/emg-rate/internal/receiver"
	semconv "go.opentelemetry.io/otel/semconv/v1.25.0"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"gotest.tools/v3/assert"
)

const (
	noResource = iota
	nilAttributes
	emptyAttributes
	deviceID
	serviceNameOnly
	deviceIDAndServiceName
)

func stringValue(key string, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key: key,
		Value: &commonpb.AnyValue{
			Value: &commonpb.AnyValue_StringValue{StringValue: value},
		},
	}
}

func podValue(pod int64) []*commonpb.KeyValue {
	return []*commonpb.KeyValue{{
		Key: receiver.PodAttribute,
		Value: &commonpb.AnyValue{
			Value: &commonpb.AnyValue_IntValue{IntValue: pod},
		},
	}}
}

func generateResource(t *testing.T, generateOption int) (string, *resourcepb.Resource) {
	switch generateOption {
	case noResource:
		return "", nil
	case nilAttributes:
		return "", &resourcepb.Resource{}
	case emptyAttributes:
		return "", &resourcepb.Resource{Attributes: []*commonpb.KeyValue{}}
	case deviceID:
		return "armband-1", &resourcepb.Resource{
			Attributes: []*commonpb.KeyValue{
				stringValue("some key", "some value"),
				stringValue(string(semconv.DeviceIDKey), "armband-1"),
			},
		}
	case serviceNameOnly:
		return "bridge", &resourcepb.Resource{
			Attributes: []*commonpb.KeyValue{
				stringValue(string(semconv.ServiceNameKey), "bridge"),
			},
		}
	case deviceIDAndServiceName:
		return "armband-2", &resourcepb.Resource{
			Attributes: []*commonpb.KeyValue{
				stringValue(string(semconv.ServiceNameKey), "bridge"),
				stringValue(string(semconv.DeviceIDKey), "armband-2"),
			},
		}
	default:
		t.Fatal("Unrecognized generation option")
	}

	return "", nil
}

// generatePoints returns interleaved pod readings for count samples spaced
// 5ms apart, together with the samples they encode.
func generatePoints(device string, count int) ([]*metricspb.NumberDataPoint, []*receiver.Sample) {
	samples := make([]*receiver.Sample, count)
	points := []*metricspb.NumberDataPoint{}

	for pod := 0; pod < receiver.PodCount; pod++ {
		for i := 0; i < count; i++ {
			if samples[i] == nil {
				samples[i] = &receiver.Sample{
					Device:    device,
					Timestamp: float64(1_000_000_000+i*5_000_000) / 1e9,
				}
			}

			value := int8(rand.Intn(256) - 128)
			samples[i].EMG[pod] = value
			points = append(points, &metricspb.NumberDataPoint{
				Attributes:   podValue(int64(pod)),
				TimeUnixNano: uint64(1_000_000_000 + i*5_000_000),
				Value:        &metricspb.NumberDataPoint_AsInt{AsInt: int64(value)},
			})
		}
	}

	return points, samples
}

func emgRequest(resource *resourcepb.Resource, metrics ...*metricspb.Metric) *colmetricspb.ExportMetricsServiceRequest {
	return &colmetricspb.ExportMetricsServiceRequest{
		ResourceMetrics: []*metricspb.ResourceMetrics{{
			Resource:     resource,
			ScopeMetrics: []*metricspb.ScopeMetrics{{Metrics: metrics}},
		}},
	}
}

func gauge(name string, points []*metricspb.NumberDataPoint) *metricspb.Metric {
	return &metricspb.Metric{
		Name: name,
		Data: &metricspb.Metric_Gauge{Gauge: &metricspb.Gauge{DataPoints: points}},
	}
}

func startReceiver(t *testing.T) (<-chan *receiver.Sample, colmetricspb.MetricsServiceClient) {
	t.Helper()

	ch := make(chan *receiver.Sample, 64)
	recv := receiver.NewOTLPReceiver(
		receiver.WithChannel(ch),
		receiver.WithAddress("127.0.0.1:0"))
	lis, errCh := recv.Start()
	assert.Assert(t, isListening(lis))

	conn, err := grpc.NewClient(lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	assert.NilError(t, err)

	t.Cleanup(func() {
		conn.Close()
		recv.Stop()
		assert.NilError(t, <-errCh)
	})

	return ch, colmetricspb.NewMetricsServiceClient(conn)
}

func drain(ch <-chan *receiver.Sample) []*receiver.Sample {
	samples := []*receiver.Sample{}

	for {
		select {
		case sample := <-ch:
			samples = append(samples, sample)
		default:
			return samples
		}
	}
}

func submitSamplesTest(t *testing.T, generateOption int) {
	t.Parallel()

	ch, client := startReceiver(t)
	device, resource := generateResource(t, generateOption)
	points, expected := generatePoints(device, 4)

	res, err := client.Export(context.Background(),
		emgRequest(resource, gauge(receiver.EMGMetricName, points)))
	assert.NilError(t, err)

	if device == "" {
		assert.Equal(t, res.PartialSuccess.RejectedDataPoints, int64(len(points)))
		assert.Assert(t, res.PartialSuccess.ErrorMessage != "")
		assert.Equal(t, len(drain(ch)), 0)

		return
	}

	assert.Equal(t, res.PartialSuccess.RejectedDataPoints, int64(0))
	assert.Equal(t, res.PartialSuccess.ErrorMessage, "")
	assert.DeepEqual(t, drain(ch), expected)
}

func TestMissingResource(t *testing.T) {
	submitSamplesTest(t, noResource)
}

func TestMissingAttributes(t *testing.T) {
	submitSamplesTest(t, nilAttributes)
}

func TestEmptyAttributes(t *testing.T) {
	submitSamplesTest(t, emptyAttributes)
}

func TestDeviceID(t *testing.T) {
	submitSamplesTest(t, deviceID)
}

func TestServiceNameFallback(t *testing.T) {
	submitSamplesTest(t, serviceNameOnly)
}

func TestDeviceIDPreferred(t *testing.T) {
	submitSamplesTest(t, deviceIDAndServiceName)
}

func TestOtherMetricsIgnored(t *testing.T) {
	t.Parallel()

	ch, client := startReceiver(t)
	_, resource := generateResource(t, deviceID)
	points, _ := generatePoints("armband-1", 2)

	res, err := client.Export(context.Background(), emgRequest(resource,
		gauge("myo.imu.orientation", points),
		&metricspb.Metric{Name: receiver.EMGMetricName}))
	assert.NilError(t, err)
	assert.Equal(t, res.PartialSuccess.RejectedDataPoints, int64(0))
	assert.Equal(t, len(drain(ch)), 0)
}

func TestMalformedDataPoints(t *testing.T) {
	t.Parallel()

	ch, client := startReceiver(t)
	_, resource := generateResource(t, deviceID)

	points := []*metricspb.NumberDataPoint{
		{
			Attributes:   podValue(0),
			TimeUnixNano: 2_000_000_000,
			Value:        &metricspb.NumberDataPoint_AsInt{AsInt: -7},
		},
		{
			TimeUnixNano: 2_000_000_000,
			Value:        &metricspb.NumberDataPoint_AsInt{AsInt: 1},
		},
		{
			Attributes:   podValue(receiver.PodCount),
			TimeUnixNano: 2_000_000_000,
			Value:        &metricspb.NumberDataPoint_AsInt{AsInt: 1},
		},
		{
			Attributes:   podValue(1),
			TimeUnixNano: 2_000_000_000,
			Value:        &metricspb.NumberDataPoint_AsInt{AsInt: 300},
		},
		{
			Attributes:   podValue(2),
			TimeUnixNano: 2_000_000_000,
			Value:        &metricspb.NumberDataPoint_AsDouble{AsDouble: 1.5},
		},
		{
			Attributes: podValue(3),
			Value:      &metricspb.NumberDataPoint_AsInt{AsInt: 1},
		},
		{
			Attributes:   podValue(7),
			TimeUnixNano: 2_000_000_000,
			Value:        &metricspb.NumberDataPoint_AsInt{AsInt: 127},
		},
	}

	res, err := client.Export(context.Background(),
		emgRequest(resource, gauge(receiver.EMGMetricName, points)))
	assert.NilError(t, err)
	assert.Equal(t, res.PartialSuccess.RejectedDataPoints, int64(5))

	expected := &receiver.Sample{Device: "armband-1", Timestamp: 2.0}
	expected.EMG[0] = -7
	expected.EMG[7] = 127
	assert.DeepEqual(t, drain(ch), []*receiver.Sample{expected})
}

func TestNoChannel(t *testing.T) {
	t.Parallel()

	recv := receiver.NewOTLPReceiver(receiver.WithAddress("127.0.0.1:0"))
	lis, errCh := recv.Start()
	assert.Assert(t, isListening(lis))

	conn, err := grpc.NewClient(lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	assert.NilError(t, err)
	defer conn.Close()

	_, resource := generateResource(t, deviceID)
	points, _ := generatePoints("armband-1", 3)
	res, err := colmetricspb.NewMetricsServiceClient(conn).Export(context.Background(),
		emgRequest(resource, gauge(receiver.EMGMetricName, points)))
	assert.NilError(t, err)
	assert.Equal(t, res.PartialSuccess.RejectedDataPoints, int64(0))

	recv.Stop()
	assert.NilError(t, <-errCh)
}
