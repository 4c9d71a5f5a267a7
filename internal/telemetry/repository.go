package telemetry

import (
	"context"

	"codeberg.org/mutker/templogger/internal/errors"
	"codeberg.org/mutker/templogger/internal/recorder"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Repository writes points to one bucket.
type Repository interface {
	Store(ctx context.Context, s recorder.Sample) error
	Close() error
}

type influxRepository struct {
	client influxdb2.Client
	writer PointWriter
	cfg    Config
}

// NewRepository connects to InfluxDB. A non-nil writer replaces the client's
// blocking write API.
func NewRepository(cfg Config, writer PointWriter) Repository {
	r := &influxRepository{cfg: cfg, writer: writer}
	if writer == nil {
		r.client = influxdb2.NewClient(cfg.URL, cfg.Token)
		r.writer = r.client.WriteAPIBlocking(cfg.Org, cfg.Bucket)
	}
	return r
}

// Point builds the point for one sample.
func Point(cfg Config, s recorder.Sample) *write.Point {
	measurement := cfg.Measurement
	if measurement == "" {
		measurement = defaultMeasurement
	}
	tags := map[string]string{}
	if cfg.Endpoint != "" {
		tags["endpoint"] = cfg.Endpoint
	}
	return influxdb2.NewPoint(measurement, tags, map[string]interface{}{"value": s.Value}, s.Timestamp)
}

func (r *influxRepository) Store(ctx context.Context, s recorder.Sample) error {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	if err := r.writer.WritePoint(ctx, Point(r.cfg, s)); err != nil {
		return errors.New().Wrap(ErrExport, err).WithData(r.cfg.Bucket)
	}
	return nil
}

func (r *influxRepository) Close() error {
	if r.client != nil {
		r.client.Close()
	}
	return nil
}
