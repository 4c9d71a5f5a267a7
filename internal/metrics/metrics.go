package metrics

import (
	"context"

	"codeberg.org/mutker/templogger/internal/errors"
	"codeberg.org/mutker/templogger/internal/logger"
	"codeberg.org/mutker/templogger/internal/recorder"
)

type service struct {
	repo Repository
	cfg  Config
}

// No-op implementation
type noopCollector struct{}

// NewService opens the metrics database, or returns a collector that drops
// everything when metrics are disabled.
func NewService(cfg Config, log logger.Logger) (Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("metrics")

	if !cfg.Enabled {
		log.Debug().Msg("Metrics collection disabled, using no-op collector")
		return &noopCollector{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create metrics repository")
		return nil, err
	}

	log.Debug().
		Str("db_path", cfg.DBPath).
		Bool("enabled", cfg.Enabled).
		Msg("Metrics service initialized successfully")

	return &service{
		repo: repo,
		cfg:  cfg,
	}, nil
}

func (s *service) Append(ctx context.Context, sample recorder.Sample) error {
	errFactory := errors.New()

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.Record(sample); err != nil {
			return errFactory.Wrap(ErrSampleWrite, err)
		}
	}

	return nil
}

func (s *service) Flush() error {
	if err := s.repo.Flush(); err != nil {
		return errors.New().Wrap(ErrSampleWrite, err)
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

func (*noopCollector) Flush() error {
	return nil
}

func (*noopCollector) Close() error {
	return nil
}
