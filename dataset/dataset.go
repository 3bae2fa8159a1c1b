// Package dataset loads and prepares binary-classification data in the column-major
// layout the network consumes: features × samples and a 1 × samples label row.
package dataset

import (
	"io"
	"math"
	"math/rand/v2"
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Dataset is a labelled set of samples.
type Dataset struct {
	X        *mat.Dense
	Y        *mat.Dense
	Features []string
}

// Len is the number of samples.
func (d *Dataset) Len() int {
	_, m := d.X.Dims()
	return m
}

// Dim is the number of features.
func (d *Dataset) Dim() int {
	n, _ := d.X.Dims()
	return n
}

// LoadCSV reads a headed CSV where every column is numeric. label names the 0/1
// target column; an empty label selects the last column.
func LoadCSV(r io.Reader, label string) (*Dataset, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.Float))
	if df.Err != nil {
		return nil, errors.Wrap(df.Err, "reading csv")
	}
	return FromDataFrame(df, label)
}

// ReadCSVFile is LoadCSV on a file.
func ReadCSVFile(path, label string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	d, err := LoadCSV(f, label)
	if err != nil {
		return nil, errors.WithMessage(err, path)
	}
	return d, nil
}

// FromDataFrame converts df into a Dataset, one column per sample.
func FromDataFrame(df dataframe.DataFrame, label string) (*Dataset, error) {
	names := df.Names()
	if len(names) < 2 {
		return nil, errors.Errorf("need at least one feature and a label column, got %d columns", len(names))
	}
	if label == "" {
		label = names[len(names)-1]
	}
	m := df.Nrow()
	if m == 0 {
		return nil, errors.New("no samples")
	}

	var features []string
	for _, name := range names {
		if name != label {
			features = append(features, name)
		}
	}
	if len(features) == len(names) {
		return nil, errors.Errorf("label column %q not found in %v", label, names)
	}

	x := mat.NewDense(len(features), m, nil)
	for i, name := range features {
		values := df.Col(name).Float()
		for j, v := range values {
			if math.IsNaN(v) {
				return nil, errors.Errorf("row %d: column %q is not numeric", j+1, name)
			}
		}
		x.SetRow(i, values)
	}
	y := mat.NewDense(1, m, nil)
	for j, v := range df.Col(label).Float() {
		if v != 0 && v != 1 {
			return nil, errors.Errorf("row %d: label %v is not 0 or 1", j+1, v)
		}
		y.Set(0, j, v)
	}
	return &Dataset{X: x, Y: y, Features: features}, nil
}

// XOR is the four-sample exclusive-or problem.
func XOR() *Dataset {
	return &Dataset{
		X: mat.NewDense(2, 4, []float64{
			0, 0, 1, 1,
			0, 1, 0, 1,
		}),
		Y:        mat.NewDense(1, 4, []float64{0, 1, 1, 0}),
		Features: []string{"a", "b"},
	}
}

// Blobs draws n two-dimensional samples from two unit-variance clusters centred on
// (-2,-2), labelled 0, and (2,2), labelled 1, alternating. A nil rng uses the global
// source.
func Blobs(n int, rng *rand.Rand) *Dataset {
	normal := rand.NormFloat64
	if rng != nil {
		normal = rng.NormFloat64
	}
	x := mat.NewDense(2, n, nil)
	y := mat.NewDense(1, n, nil)
	for j := 0; j < n; j++ {
		center := -2.0
		if j%2 == 1 {
			center = 2
			y.Set(0, j, 1)
		}
		x.Set(0, j, center+normal())
		x.Set(1, j, center+normal())
	}
	return &Dataset{X: x, Y: y, Features: []string{"x0", "x1"}}
}

// Scaler holds per-feature statistics used to standardise inputs.
type Scaler struct {
	Mean, Std []float64
}

// Fit computes the population mean and standard deviation of every feature.
// Constant features get a standard deviation of 1 so they map to 0.
func Fit(d *Dataset) Scaler {
	n := d.Dim()
	s := Scaler{Mean: make([]float64, n), Std: make([]float64, n)}
	for i := 0; i < n; i++ {
		s.Mean[i], s.Std[i] = stat.PopMeanStdDev(mat.Row(nil, i, d.X), nil)
		if s.Std[i] == 0 {
			s.Std[i] = 1
		}
	}
	return s
}

// Apply standardises the features of d in place.
func (s Scaler) Apply(d *Dataset) error {
	r, c := d.X.Dims()
	if r != len(s.Mean) {
		return errors.Errorf("scaler fitted on %d features, dataset has %d", len(s.Mean), r)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d.X.Set(i, j, (d.X.At(i, j)-s.Mean[i])/s.Std[i])
		}
	}
	return nil
}

// Standardize fits a Scaler on d, applies it and returns it.
func (d *Dataset) Standardize() (Scaler, error) {
	s := Fit(d)
	if err := s.Apply(d); err != nil {
		return Scaler{}, err
	}
	return s, nil
}

// Split keeps the first samples for training and returns the last
// round(devFraction·m) as a dev set. The dev set is nil when it would be empty.
func (d *Dataset) Split(devFraction float64) (train, dev *Dataset, err error) {
	if devFraction < 0 || devFraction >= 1 {
		return nil, nil, errors.Errorf("dev fraction %g not in [0, 1)", devFraction)
	}
	r, m := d.X.Dims()
	devSize := int(math.Round(devFraction * float64(m)))
	if devSize == 0 {
		return d, nil, nil
	}
	cut := m - devSize
	if cut <= 0 {
		return nil, nil, errors.Errorf("dev fraction %g leaves no training samples out of %d", devFraction, m)
	}
	part := func(from, to int) *Dataset {
		return &Dataset{
			X:        mat.DenseCopyOf(d.X.Slice(0, r, from, to)),
			Y:        mat.DenseCopyOf(d.Y.Slice(0, 1, from, to)),
			Features: d.Features,
		}
	}
	return part(0, cut), part(cut, m), nil
}
