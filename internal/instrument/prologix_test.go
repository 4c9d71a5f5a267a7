package instrument

import (
	"bytes"
	"strings"
	"testing"

	"codeberg.org/mutker/templogger/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPort struct {
	bytes.Buffer
	closed bool
}

func (r *recordingPort) Close() error {
	r.closed = true
	return nil
}

func TestPrologixFraming(t *testing.T) {
	port := &recordingPort{}

	p, err := newPrologix(port, 12, logger.Nop())
	require.NoError(t, err)

	setup := port.String()
	assert.Contains(t, setup, "++addr 12\n")
	assert.Contains(t, setup, "++mode 1\n")
	assert.Contains(t, setup, "++auto 0\n")
	port.Reset()

	_, err = p.Write([]byte("READ:DEV:MB1.T1:TEMP:SIG:TEMP\n"))
	require.NoError(t, err)
	assert.Equal(t, "READ:DEV:MB1.T1:TEMP:SIG:TEMP\n++read eoi\n", port.String())
	port.Reset()

	require.NoError(t, p.Close())
	assert.True(t, strings.HasPrefix(port.String(), "++loc\n"))
	assert.True(t, port.closed)
}
