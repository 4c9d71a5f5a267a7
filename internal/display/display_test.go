package display

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeriesBounds(t *testing.T) {
	var s Series
	_, ok := s.Bounds()
	assert.False(t, ok)

	s.Add(0, 10.0)
	s.Add(5*time.Second, 10.5)
	s.Add(10*time.Second, 11.0)

	b, ok := s.Bounds()
	require.True(t, ok)
	assert.Equal(t, Bounds{MinX: -1, MaxX: 11, MinY: 9, MaxY: 12}, b)

	s.Add(15*time.Second, 8.0)
	b, _ = s.Bounds()
	assert.Equal(t, Bounds{MinX: -1, MaxX: 16, MinY: 7, MaxY: 12}, b)

	assert.Equal(t, []Point{{0, 10}, {5, 10.5}, {10, 11}, {15, 8}}, s.Points())
}

func TestChartRender(t *testing.T) {
	var s Series
	assert.Equal(t, noData, Chart{}.Render(&s))

	s.Add(0, 1)
	s.Add(10*time.Second, 3)

	out := Chart{Width: 20, Height: 5}.Render(&s)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 7)

	assert.Contains(t, lines[0], "4.000 |")
	assert.Contains(t, lines[4], "0.000 |")
	assert.Contains(t, lines[5], "+"+strings.Repeat("-", 20))
	assert.Contains(t, lines[6], "-1s")
	assert.Contains(t, lines[6], "11s")
	assert.Equal(t, 2, strings.Count(out, "*"))
	assert.Contains(t, out, ".")
}

func TestPanelScrollsToNewest(t *testing.T) {
	p := NewPanel(3)
	for _, l := range []string{"a", "b", "c", "d", "e"} {
		p.Append(l)
	}

	assert.Equal(t, 3, p.Len())
	assert.Equal(t, []string{"c", "d", "e"}, p.View(0))
	assert.Equal(t, []string{"d", "e"}, p.View(2))
	assert.Equal(t, []string{"c", "d", "e"}, p.View(10))
}

type recordingSink struct {
	mu     sync.Mutex
	values []float64
}

func (r *recordingSink) Update(_ time.Duration, v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

func TestQueuePreservesOrder(t *testing.T) {
	q := NewQueue(4)
	target := &recordingSink{}
	sink := q.Sink(target)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(done)
	}()

	for i := 0; i < 50; i++ {
		sink.Update(time.Duration(i)*time.Second, float64(i))
	}
	cancel()
	<-done

	require.Len(t, target.values, 50)
	for i, v := range target.values {
		assert.Equal(t, float64(i), v)
	}
	assert.False(t, q.Post(func() {}), "closed queue rejects work")
}

func TestQueueRunsOnOneGoroutine(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var running, overlap int
	var mu sync.Mutex
	go q.Run(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				q.Post(func() {
					mu.Lock()
					running++
					if running > 1 {
						overlap++
					}
					mu.Unlock()
					time.Sleep(10 * time.Microsecond)
					mu.Lock()
					running--
					mu.Unlock()
				})
			}
		}()
	}
	wg.Wait()
	q.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, overlap)
}

func TestTerminalRender(t *testing.T) {
	var out bytes.Buffer
	fixed := time.Date(2024, 3, 1, 14, 5, 9, 0, time.Local)
	term := NewTerminal(&out, WithChartSize(30, 6), WithPanel(10, 2), withNow(func() time.Time { return fixed }))

	view := term.Render()
	assert.Contains(t, view, "Stopped")
	assert.Contains(t, view, "no port selected")
	assert.Contains(t, view, noData)

	term.SetStatus(true, "ASRL/dev/ttyACM0::INSTR", "", false)
	term.Update(0, 10.0)
	term.Update(5*time.Second, 10.5)
	term.Update(10*time.Second, 11.0)

	view = term.Render()
	assert.Contains(t, view, "Logging...")
	assert.Contains(t, view, "ASRL/dev/ttyACM0::INSTR")
	assert.NotContains(t, view, "0.0s  10.0000", "scrolled out of the visible panel")
	assert.Contains(t, view, "2024-03-01 14:05:09      10.0s  11.0000")
	assert.Equal(t, 3, term.Series().Len())
	assert.Equal(t, 3, term.Panel().Len())

	term.SetStatus(false, "ASRL/dev/ttyACM0::INSTR", "Unexpected instrument ID", true)
	assert.Contains(t, term.Render(), "Unexpected instrument ID")
	assert.Contains(t, out.String(), "Logging...")
}
