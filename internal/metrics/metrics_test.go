package metrics_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/templogger/internal/errors"
	"codeberg.org/mutker/templogger/internal/logger"
	"codeberg.org/mutker/templogger/internal/metrics"
	"codeberg.org/mutker/templogger/internal/recorder"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func enabledConfig(t *testing.T) metrics.Config {
	t.Helper()
	cfg := metrics.DefaultConfig()
	cfg.Enabled = true
	cfg.DBPath = filepath.Join(t.TempDir(), "db", "samples.db")
	cfg.Endpoint = "SIM::INSTR"
	return cfg
}

type row struct {
	ts       int64
	value    float64
	endpoint string
}

func readRows(t *testing.T, path string) []row {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.Query("SELECT timestamp, value, endpoint FROM samples ORDER BY id")
	require.NoError(t, err)
	defer rows.Close()

	var out []row
	for rows.Next() {
		var r row
		require.NoError(t, rows.Scan(&r.ts, &r.value, &r.endpoint))
		out = append(out, r)
	}
	require.NoError(t, rows.Err())
	return out
}

func TestDisabledServiceIsNoop(t *testing.T) {
	c, err := metrics.NewService(metrics.DefaultConfig(), logger.Nop())
	require.NoError(t, err)

	assert.NoError(t, c.Append(context.Background(), recorder.Sample{Timestamp: t0, Value: 1}))
	assert.NoError(t, c.Flush())
	assert.NoError(t, c.Close())
}

func TestInvalidConfig(t *testing.T) {
	cfg := metrics.DefaultConfig()
	cfg.Enabled = true

	_, err := metrics.NewService(cfg, nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, metrics.ErrInvalidDBPath))
}

func TestSamplesAreBatchedAndFlushedOnClose(t *testing.T) {
	cfg := enabledConfig(t)
	cfg.BatchSize = 2
	cfg.BatchTimeout = 0

	c, err := metrics.NewService(cfg, logger.Nop())
	require.NoError(t, err)

	for i, v := range []float64{10.0, 10.5, 11.0} {
		require.NoError(t, c.Append(context.Background(), recorder.Sample{Timestamp: t0.Add(time.Duration(i) * 5 * time.Second), Value: v}))
	}
	assert.Len(t, readRows(t, cfg.DBPath), 2, "third sample still buffered")

	require.NoError(t, c.Close())

	rows := readRows(t, cfg.DBPath)
	require.Len(t, rows, 3)
	assert.Equal(t, row{t0.UnixMilli(), 10.0, "SIM::INSTR"}, rows[0])
	assert.Equal(t, row{t0.Add(10 * time.Second).UnixMilli(), 11.0, "SIM::INSTR"}, rows[2])

	err = c.Append(context.Background(), recorder.Sample{Timestamp: t0, Value: 1})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, metrics.ErrClosed))
}

func TestTimedFlush(t *testing.T) {
	cfg := enabledConfig(t)
	cfg.BatchSize = 100
	cfg.BatchTimeout = 20 * time.Millisecond

	c, err := metrics.NewService(cfg, logger.Nop())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Append(context.Background(), recorder.Sample{Timestamp: t0, Value: 4.2}))

	assert.Eventually(t, func() bool {
		return len(readRows(t, cfg.DBPath)) == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestCanceledContext(t *testing.T) {
	cfg := enabledConfig(t)
	c, err := metrics.NewService(cfg, logger.Nop())
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = c.Append(ctx, recorder.Sample{Timestamp: t0, Value: 1})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, metrics.ErrOperationTimeout))
}

func TestSchemaMismatchIsBackedUp(t *testing.T) {
	cfg := enabledConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755))

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions VALUES (99, datetime('now'));
		CREATE TABLE samples (legacy TEXT);`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	repo, err := metrics.NewRepository(cfg, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, repo.Record(recorder.Sample{Timestamp: t0, Value: 1.5}))
	require.NoError(t, repo.Flush())
	require.NoError(t, repo.Close())

	backups, err := filepath.Glob(filepath.Join(filepath.Dir(cfg.DBPath), "backups", "samples_v99_*.db"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	rows := readRows(t, cfg.DBPath)
	require.Len(t, rows, 1)
	assert.InDelta(t, 1.5, rows[0].value, 1e-9)

	db, err = sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()
	version, err := metrics.GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, metrics.SchemaVersion, version)
}
