package display

import (
	"fmt"
	"math"
	"strings"
)

const (
	DefaultChartWidth  = 60
	DefaultChartHeight = 12

	labelWidth = 10
	noData     = "(no data)"
)

// Chart draws a series as an ASCII line plot.
type Chart struct {
	Width  int
	Height int
}

func (c Chart) size() (int, int) {
	w, h := c.Width, c.Height
	if w < 2 {
		w = DefaultChartWidth
	}
	if h < 2 {
		h = DefaultChartHeight
	}
	return w, h
}

// Render returns Height plot rows followed by an x axis row and a label row.
func (c Chart) Render(s *Series) string {
	b, ok := s.Bounds()
	if !ok {
		return noData
	}
	w, h := c.size()

	grid := make([][]rune, h)
	for r := range grid {
		grid[r] = []rune(strings.Repeat(" ", w))
	}

	col := func(x float64) int {
		return clamp(int(math.Round((x-b.MinX)/(b.MaxX-b.MinX)*float64(w-1))), 0, w-1)
	}
	row := func(y float64) int {
		return clamp(h-1-int(math.Round((y-b.MinY)/(b.MaxY-b.MinY)*float64(h-1))), 0, h-1)
	}

	points := s.points
	for i, p := range points {
		c0, r0 := col(p.X), row(p.Y)
		grid[r0][c0] = '*'
		if i == 0 {
			continue
		}
		prev := points[i-1]
		pc, pr := col(prev.X), row(prev.Y)
		for x := pc + 1; x < c0; x++ {
			t := float64(x-pc) / float64(c0-pc)
			y := pr + int(math.Round(t*float64(r0-pr)))
			if grid[y][x] == ' ' {
				grid[y][x] = '.'
			}
		}
	}

	var sb strings.Builder
	for r := 0; r < h; r++ {
		y := b.MaxY - float64(r)*(b.MaxY-b.MinY)/float64(h-1)
		fmt.Fprintf(&sb, "%*.3f |%s\n", labelWidth-2, y, string(grid[r]))
	}
	fmt.Fprintf(&sb, "%*s +%s\n", labelWidth-2, "", strings.Repeat("-", w))

	left := fmt.Sprintf("%.0fs", b.MinX)
	right := fmt.Sprintf("%.0fs", b.MaxX)
	gap := w - len(left) - len(right)
	if gap < 1 {
		gap = 1
	}
	fmt.Fprintf(&sb, "%*s  %s%s%s", labelWidth-2, "", left, strings.Repeat(" ", gap), right)

	return sb.String()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
