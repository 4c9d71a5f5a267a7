package recorder

import (
	"context"

	"go.uber.org/multierr"
)

// Multi writes each sample to a primary recorder and then to every mirror.
// All sinks are attempted; their errors are combined.
type Multi struct {
	primary Recorder
	mirrors []Recorder
}

func NewMulti(primary Recorder, mirrors ...Recorder) *Multi {
	m := &Multi{primary: primary}
	for _, r := range mirrors {
		if r != nil {
			m.mirrors = append(m.mirrors, r)
		}
	}
	return m
}

func (m *Multi) Append(ctx context.Context, s Sample) error {
	err := m.primary.Append(ctx, s)
	for _, r := range m.mirrors {
		err = multierr.Append(err, r.Append(ctx, s))
	}
	return err
}

// Errors splits an error returned by Multi into the individual failures.
func Errors(err error) []error {
	return multierr.Errors(err)
}
