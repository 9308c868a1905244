package predict

import (
	"encoding/json"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers and scales each feature column to zero mean and unit
// variance. It is fit once per training run and reapplied verbatim at
// inference time; model and scaler are persisted together as a unit.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// NewStandardScaler creates an unfitted scaler
func NewStandardScaler() *StandardScaler {
	return &StandardScaler{}
}

// Fit computes per-column mean and standard deviation from X.
func (s *StandardScaler) Fit(X *mat.Dense) {
	rows, cols := X.Dims()

	s.Mean = make([]float64, cols)
	s.Scale = make([]float64, cols)

	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, X)
		s.Mean[j] = stat.Mean(col, nil)
		sd := stat.StdDev(col, nil)
		// Constant columns scale by 1 so they map to plain zeros.
		if sd == 0 {
			sd = 1
		}
		s.Scale[j] = sd
	}
}

// Fitted reports whether Fit has been called.
func (s *StandardScaler) Fitted() bool {
	return len(s.Mean) > 0
}

// TransformRow normalizes a single row in place.
func (s *StandardScaler) TransformRow(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out
}

// Transform returns a normalized copy of X.
func (s *StandardScaler) Transform(X *mat.Dense) *mat.Dense {
	rows, cols := X.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.Set(i, j, (X.At(i, j)-s.Mean[j])/s.Scale[j])
		}
	}
	return out
}

// Save writes the fitted transform as JSON.
func (s *StandardScaler) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create scaler file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s); err != nil {
		return fmt.Errorf("failed to encode scaler: %w", err)
	}

	return nil
}

// LoadScaler reads a fitted transform from JSON.
func LoadScaler(path string) (*StandardScaler, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scaler file: %w", err)
	}
	defer file.Close()

	var s StandardScaler
	if err := json.NewDecoder(file).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode scaler: %w", err)
	}

	if len(s.Mean) != len(s.Scale) {
		return nil, fmt.Errorf("scaler file is corrupt: %d means, %d scales", len(s.Mean), len(s.Scale))
	}

	return &s, nil
}
