package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFluxCubeIndexing(t *testing.T) {
	cube := FluxCube{Shape: [3]int{2, 3, 2}}
	for i := 0; i < cube.Len(); i++ {
		cube.Data = append(cube.Data, float64(i))
	}

	assert.Equal(t, 12, cube.Len())
	assert.Equal(t, 0.0, cube.At(0, 0, 0))
	assert.Equal(t, 7.0, cube.At(1, 0, 1))
	assert.Equal(t, []float64{10, 11}, cube.Row(1, 2))

	for ti := 0; ti < 2; ti++ {
		for w := 0; w < 3; w++ {
			row := cube.Row(ti, w)
			for a, v := range row {
				assert.Equal(t, cube.At(ti, w, a), v)
			}
		}
	}
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "point-source", TopologyPoint.String())
	assert.Equal(t, "plane-source", TopologyPlane.String())
	assert.Equal(t, "two", WindTwo.String())
}
