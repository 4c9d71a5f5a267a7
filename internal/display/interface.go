// Package display presents samples live: a plot of the series, a scrolling
// log panel and a status line. Its state is owned by a single goroutine that
// drains a Queue.
package display

import "time"

// Sink receives samples for presentation.
type Sink interface {
	Update(elapsed time.Duration, value float64)
}

// Point is one plotted sample; X is elapsed seconds.
type Point struct {
	X float64
	Y float64
}

// Bounds is the visible plot range.
type Bounds struct {
	MinX, MaxX float64
	MinY, MaxY float64
}
