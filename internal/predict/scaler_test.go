package predict

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestScalerFit(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 7,
		2, 7,
		3, 7,
		4, 7,
	})

	s := NewStandardScaler()
	assert.False(t, s.Fitted())

	s.Fit(X)
	require.True(t, s.Fitted())

	assert.InDelta(t, 2.5, s.Mean[0], 1e-9)
	assert.InDelta(t, 7.0, s.Mean[1], 1e-9)

	// Constant column gets unit scale so it transforms to zeros.
	assert.Equal(t, 1.0, s.Scale[1])
	assert.Greater(t, s.Scale[0], 0.0)
}

func TestScalerTransform(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{
		1, 5,
		2, 5,
		3, 5,
	})

	s := NewStandardScaler()
	s.Fit(X)

	scaled := s.Transform(X)

	// Column means move to zero.
	col := make([]float64, 3)
	for j := 0; j < 2; j++ {
		mat.Col(col, j, scaled)
		sum := 0.0
		for _, v := range col {
			sum += v
		}
		assert.InDelta(t, 0, sum/3, 1e-9)
	}

	// TransformRow agrees with the matrix transform.
	row := s.TransformRow([]float64{1, 5})
	assert.InDelta(t, scaled.At(0, 0), row[0], 1e-9)
	assert.InDelta(t, scaled.At(0, 1), row[1], 1e-9)
}

func TestScalerSaveLoad(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{
		1, 10,
		2, 20,
		3, 30,
	})

	s := NewStandardScaler()
	s.Fit(X)

	path := filepath.Join(t.TempDir(), "scaler.json")
	require.NoError(t, s.Save(path))

	loaded, err := LoadScaler(path)
	require.NoError(t, err)

	assert.Equal(t, s.Mean, loaded.Mean)
	assert.Equal(t, s.Scale, loaded.Scale)

	original := s.TransformRow([]float64{2, 20})
	restored := loaded.TransformRow([]float64{2, 20})
	assert.Equal(t, original, restored)
}

func TestLoadScalerMissingFile(t *testing.T) {
	_, err := LoadScaler(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
