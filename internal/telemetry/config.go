package telemetry

import (
	"time"

	"codeberg.org/mutker/templogger/internal/errors"
)

const (
	defaultMeasurement = "temperature"
	defaultTimeout     = 5 * time.Second
)

type Config struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
	// Endpoint is attached to every point as the "endpoint" tag.
	Endpoint string
	// Timeout bounds one write.
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Measurement: defaultMeasurement,
		Timeout:     defaultTimeout,
	}
}

// Enabled reports whether an InfluxDB URL is configured.
func (c Config) Enabled() bool {
	return c.URL != ""
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if !c.Enabled() {
		return nil
	}
	if c.Org == "" || c.Bucket == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "influx export needs an organization and a bucket")
	}
	if c.Timeout < 0 {
		return errFactory.WithData(ErrInvalidConfig, c.Timeout)
	}
	return nil
}
