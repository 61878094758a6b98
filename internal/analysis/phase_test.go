package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPortrait(t *testing.T) {
	states := [][]float64{{0, 0, 1}, {1, 1, 1}, {2, 4, 1}}
	planned := [][]float64{{0, 0, 1}, {1, 1.5, 1}, {2, 4, 1}}

	p, err := NewPortrait(states, planned, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []Point{{0, 0}, {1, 1}, {2, 4}}, p.Simulated)
	assert.Len(t, p.Planned, 3)
	assert.InDelta(t, 0.5, p.MaxDeviation(), 1e-12)

	minX, maxX, minY, maxY := p.Bounds()
	assert.Equal(t, []float64{0, 2, 0, 4}, []float64{minX, maxX, minY, maxY})

	_, err = NewPortrait(states, nil, 0, 3)
	assert.Error(t, err)
	_, err = NewPortrait(nil, nil, 0, 1)
	assert.Error(t, err)
}

func TestPortraitASCII(t *testing.T) {
	states := [][]float64{{0, 0}, {1, 1}}
	p, err := NewPortrait(states, [][]float64{{0, 1}}, 0, 1)
	require.NoError(t, err)

	out := p.ASCII(20, 10)
	rows := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, rows, 10)
	for _, r := range rows {
		assert.Equal(t, 20, len([]rune(r)))
	}
	assert.Equal(t, 2, strings.Count(out, "•"))
	assert.Equal(t, 1, strings.Count(out, "·"))

	// the simulated path starts in the lower left corner
	assert.Equal(t, '•', []rune(rows[len(rows)-1])[0])

	assert.Empty(t, (&Portrait{}).ASCII(20, 10))
}
