package receiver

import (
	"net"

	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	_ "google.golang.org/grpc/encoding/gzip"
)

const DefaultAddress = ":4317"

const (
	// EMGMetricName is the gauge carrying one data point per armband pod.
	EMGMetricName = "myo.emg"
	// PodAttribute holds the pod index, 0 to PodCount-1, of a data point.
	PodAttribute = "myo.emg.pod"
	PodCount     = 8
)

// Sample is a single EMG reading of all the pods of a device.
type Sample struct {
	Device    string
	Timestamp float64
	EMG       [PodCount]int8
}

type OTLPReceiver struct {
	server  *grpc.Server
	ch      chan<- *Sample
	address string
	logger  *zap.Logger
}

type server struct {
	colmetricspb.UnimplementedMetricsServiceServer
	ch     chan<- *Sample
	logger *zap.Logger
}

type Option func(*OTLPReceiver)

func NewOTLPReceiver(options ...Option) *OTLPReceiver {
	receiver := &OTLPReceiver{
		server:  grpc.NewServer(),
		address: DefaultAddress,
		logger:  zap.NewNop(),
	}

	for _, option := range options {
		option(receiver)
	}

	colmetricspb.RegisterMetricsServiceServer(receiver.server, &server{
		ch:     receiver.ch,
		logger: receiver.logger,
	})
	return receiver
}

func WithChannel(ch chan<- *Sample) Option {
	return func(receiver *OTLPReceiver) {
		receiver.ch = ch
	}
}

func WithAddress(address string) Option {
	return func(receiver *OTLPReceiver) {
		receiver.address = address
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(receiver *OTLPReceiver) {
		receiver.logger = logger
	}
}

func (o *OTLPReceiver) Start() (net.Listener, <-chan error) {
	ch := make(chan error, 1)

	lis, err := net.Listen("tcp", o.address)
	if err != nil {
		ch <- err

		return nil, ch
	}

	o.logger.Info("otlp receiver listening", zap.String("address", lis.Addr().String()))
	go func() {
		ch <- o.server.Serve(lis)
	}()

	return lis, ch
}

func (o *OTLPReceiver) Stop() {
	o.server.Stop()
}
