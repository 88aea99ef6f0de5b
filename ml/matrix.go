package ml

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Matrix represents a dense row-major matrix with a flat data slice for performance.
// The gonum view shares the same backing slice.
type Matrix struct {
	rows, cols int
	data       []float64
	dense      *mat.Dense
}

// -------- CONSTRUCTORS ------- //
func NewMatrix(rows, cols int) *Matrix {
	data := make([]float64, rows*cols)
	return &Matrix{
		rows:  rows,
		cols:  cols,
		data:  data,
		dense: mat.NewDense(rows, cols, data),
	}
}

// NewMatrixFromSlice wraps data without copying it.
func NewMatrixFromSlice(rows, cols int, data []float64) (*Matrix, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: matrix dims [%d, %d]", ErrShapeMismatch, rows, cols)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("%w: slice length %d for [%d, %d]", ErrShapeMismatch, len(data), rows, cols)
	}

	return &Matrix{
		rows:  rows,
		cols:  cols,
		data:  data,
		dense: mat.NewDense(rows, cols, data),
	}, nil
}

// NewMatrixFromRows copies equally sized rows into a new matrix.
func NewMatrixFromRows(rows [][]float64) (*Matrix, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyDataset
	}
	cols := len(rows[0])
	for i, r := range rows {
		if len(r) != cols {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrShapeMismatch, i, len(r), cols)
		}
	}
	return NewMatrixFromSlice(len(rows), cols, Flatten(rows))
}

// ------- ACCESSORS ------ //
func (m *Matrix) Rows() int { return m.rows }
func (m *Matrix) Cols() int { return m.cols }

// Data exposes the backing slice. Writes are visible through the matrix.
func (m *Matrix) Data() []float64 { return m.data }

func (m *Matrix) At(i, j int) float64 { return m.data[i*m.cols+j] }

func (m *Matrix) Set(i, j int, v float64) { m.data[i*m.cols+j] = v }

// Row returns a view of row i.
func (m *Matrix) Row(i int) []float64 { return m.data[i*m.cols : (i+1)*m.cols] }

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	out := NewMatrix(m.rows, m.cols)
	copy(out.data, m.data)
	return out
}

// ------- MATRIX METHODS ------ //
func (m *Matrix) GobEncode() ([]byte, error) {
	w := new(bytes.Buffer)
	encoder := gob.NewEncoder(w)
	if err := encoder.Encode(m.rows); err != nil {
		return nil, err
	}
	if err := encoder.Encode(m.cols); err != nil {
		return nil, err
	}
	if err := encoder.Encode(m.data); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func (m *Matrix) GobDecode(buf []byte) error {
	r := bytes.NewBuffer(buf)
	decoder := gob.NewDecoder(r)
	if err := decoder.Decode(&m.rows); err != nil {
		return err
	}
	if err := decoder.Decode(&m.cols); err != nil {
		return err
	}
	if err := decoder.Decode(&m.data); err != nil {
		return err
	}

	// mat.NewDense panics on bad dims, so check before re-creating the wrapper
	if m.rows <= 0 || m.cols <= 0 || len(m.data) != m.rows*m.cols {
		return fmt.Errorf("%w: matrix [%d, %d] with %d values", ErrCorruptModel, m.rows, m.cols, len(m.data))
	}
	m.dense = mat.NewDense(m.rows, m.cols, m.data)

	return nil
}

// RandomizeSmall draws N(0, 1) values scaled by 0.01.
func (m *Matrix) RandomizeSmall(rng *rand.Rand) {
	for i := range m.data {
		m.data[i] = rng.NormFloat64() * 0.01
	}
}

func (m *Matrix) RandomizeXavier(rng *rand.Rand) {
	// limit = sqrt(6 / (fan_in + fan_out))
	limit := math.Sqrt(6.0 / float64(m.rows+m.cols))
	for i := range m.data {
		m.data[i] = (rng.Float64()*2 - 1) * limit
	}
}

func (m *Matrix) Reset() {
	for i := range m.data {
		m.data[i] = 0.0
	}
}

// AddVector adds the row vector v to every row.
func (m *Matrix) AddVector(v *Matrix) {
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			m.data[i*m.cols+j] += v.data[j]
		}
	}
}

func (m *Matrix) ApplyFunc(fn func(float64) float64) {
	for i := range m.data {
		m.data[i] = fn(m.data[i])
	}
}

// ColSums writes the column sums of m into out (1 x cols).
func (m *Matrix) ColSums(out *Matrix) {
	out.Reset()
	for r := 0; r < m.rows; r++ {
		rowOffset := r * m.cols
		for c := 0; c < m.cols; c++ {
			out.data[c] += m.data[rowOffset+c]
		}
	}
}

// ------ UTILITY FUNCTIONS ------
func MatMul(a, b mat.Matrix, out *Matrix) {
	out.dense.Mul(a, b)
}

// reuse returns a rows x cols matrix backed by buf when it has room, so
// per-batch buffers survive a short final batch without reallocating.
func reuse(buf *Matrix, rows, cols int) *Matrix {
	if buf == nil || buf.cols != cols || cap(buf.data) < rows*cols {
		return NewMatrix(rows, cols)
	}
	if buf.rows == rows {
		return buf
	}
	data := buf.data[:rows*cols]
	return &Matrix{
		rows:  rows,
		cols:  cols,
		data:  data,
		dense: mat.NewDense(rows, cols, data),
	}
}

func Flatten(input [][]float64) []float64 {
	if len(input) == 0 {
		return nil
	}
	rows, cols := len(input), len(input[0])
	flat := make([]float64, rows*cols)
	for i, row := range input {
		copy(flat[i*cols:], row)
	}
	return flat
}
