package analysis

import (
	"fmt"
	"math"
	"strings"
)

type Point struct{ X, Y float64 }

// Portrait holds the simulated and planned paths in the plane of two state
// components. Planned may be empty.
type Portrait struct {
	XIndex, YIndex int
	Simulated      []Point
	Planned        []Point
}

// NewPortrait projects states and planned onto components xIdx and yIdx.
func NewPortrait(states, planned [][]float64, xIdx, yIdx int) (*Portrait, error) {
	if len(states) == 0 {
		return nil, fmt.Errorf("analysis: no states")
	}
	if xIdx < 0 || yIdx < 0 || xIdx >= len(states[0]) || yIdx >= len(states[0]) {
		return nil, fmt.Errorf("analysis: axes (%d, %d) out of range for %d-dimensional state", xIdx, yIdx, len(states[0]))
	}

	portrait := &Portrait{
		XIndex:    xIdx,
		YIndex:    yIdx,
		Simulated: project(states, xIdx, yIdx),
	}
	if len(planned) > 0 {
		portrait.Planned = project(planned, xIdx, yIdx)
	}
	return portrait, nil
}

func project(rows [][]float64, xIdx, yIdx int) []Point {
	points := make([]Point, 0, len(rows))
	for _, r := range rows {
		if xIdx < len(r) && yIdx < len(r) {
			points = append(points, Point{X: r[xIdx], Y: r[yIdx]})
		}
	}
	return points
}

// MaxDeviation is the largest distance between a simulated point and the
// planned point of the same sample.
func (p *Portrait) MaxDeviation() float64 {
	worst := 0.0
	for i := 0; i < len(p.Simulated) && i < len(p.Planned); i++ {
		d := math.Hypot(p.Simulated[i].X-p.Planned[i].X, p.Simulated[i].Y-p.Planned[i].Y)
		worst = math.Max(worst, d)
	}
	return worst
}

// Bounds covers both paths.
func (p *Portrait) Bounds() (minX, maxX, minY, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, path := range [][]Point{p.Simulated, p.Planned} {
		for _, pt := range path {
			minX, maxX = math.Min(minX, pt.X), math.Max(maxX, pt.X)
			minY, maxY = math.Min(minY, pt.Y), math.Max(maxY, pt.Y)
		}
	}
	return minX, maxX, minY, maxY
}

// ASCII draws the planned path with '·' and the simulated path over it with
// '•', each row of the result ending in a newline.
func (p *Portrait) ASCII(width, height int) string {
	if len(p.Simulated) == 0 || width < 2 || height < 2 {
		return ""
	}

	minX, maxX, minY, maxY := p.Bounds()
	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.05
	minY -= rangeY * 0.05
	rangeX *= 1.1
	rangeY *= 1.1

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", width))
	}

	plot := func(path []Point, glyph rune) {
		for _, pt := range path {
			col := int((pt.X - minX) / rangeX * float64(width-1))
			row := height - 1 - int((pt.Y-minY)/rangeY*float64(height-1))
			if row >= 0 && row < height && col >= 0 && col < width {
				canvas[row][col] = glyph
			}
		}
	}
	plot(p.Planned, '·')
	plot(p.Simulated, '•')

	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}
