package telemetry

import (
	"context"

	"codeberg.org/mutker/templogger/internal/errors"
	"codeberg.org/mutker/templogger/internal/logger"
	"codeberg.org/mutker/templogger/internal/recorder"
)

type service struct {
	repo Repository
	cfg  Config
	log  logger.Logger
}

type noopCollector struct{}

type Option func(*options)

type options struct {
	writer PointWriter
	log    logger.Logger
}

// WithWriter sends points to w instead of an InfluxDB client.
func WithWriter(w PointWriter) Option {
	return func(o *options) { o.writer = w }
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// NewService returns an exporter, or a collector that drops everything when
// no URL is configured.
func NewService(cfg Config, opts ...Option) (Collector, error) {
	errFactory := errors.New()

	o := &options{log: logger.Nop()}
	for _, opt := range opts {
		opt(o)
	}
	log := o.log.With("telemetry")

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}
	if !cfg.Enabled() {
		log.Debug().Msg("InfluxDB export disabled, using no-op collector")
		return &noopCollector{}, nil
	}

	log.Info().
		Str("url", cfg.URL).
		Str("org", cfg.Org).
		Str("bucket", cfg.Bucket).
		Msg("InfluxDB export enabled")

	return &service{
		repo: NewRepository(cfg, o.writer),
		cfg:  cfg,
		log:  log,
	}, nil
}

func (s *service) Append(ctx context.Context, sample recorder.Sample) error {
	errFactory := errors.New()

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
	}

	if err := s.repo.Store(ctx, sample); err != nil {
		s.log.Debug().Err(err).Msg("Export failed")
		return err
	}
	return nil
}

func (s *service) Close() error {
	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(ErrServiceShutdown, err)
	}
	return nil
}

func (*noopCollector) Append(_ context.Context, _ recorder.Sample) error {
	return nil
}

func (*noopCollector) Close() error {
	return nil
}
