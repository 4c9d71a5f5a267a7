package telemetry

import (
	"context"

	"codeberg.org/mutker/templogger/internal/recorder"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Collector exports samples. It satisfies recorder.Recorder.
type Collector interface {
	Append(ctx context.Context, s recorder.Sample) error
	Close() error
}

// PointWriter is the part of the InfluxDB blocking write API the exporter
// uses.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}
