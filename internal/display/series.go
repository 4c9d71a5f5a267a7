package display

import (
	"math"
	"time"
)

// Series is an ordered list of points. It is not safe for concurrent use.
type Series struct {
	points []Point
}

func (s *Series) Add(elapsed time.Duration, value float64) {
	s.points = append(s.points, Point{X: elapsed.Seconds(), Y: value})
}

func (s *Series) Len() int {
	return len(s.points)
}

// Points returns a copy of the points in insertion order.
func (s *Series) Points() []Point {
	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

func (s *Series) Reset() {
	s.points = nil
}

// Bounds covers every point with a margin of one unit: x from -1 to the
// largest x plus one, y from the smallest y minus one to the largest plus
// one. It returns false for an empty series.
func (s *Series) Bounds() (Bounds, bool) {
	if len(s.points) == 0 {
		return Bounds{}, false
	}

	maxX := math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, p := range s.points {
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}

	return Bounds{
		MinX: -1,
		MaxX: maxX + 1,
		MinY: minY - 1,
		MaxY: maxY + 1,
	}, true
}
