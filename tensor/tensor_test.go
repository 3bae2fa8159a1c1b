package tensor

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestNewShape(t *testing.T) {
	t1 := New(2, 3)
	if len(t1.Data) != 6 {
		t.Fatalf("expected 6 elements, got %d", len(t1.Data))
	}
	if len(t1.Shape) != 2 || t1.Shape[0] != 2 || t1.Shape[1] != 3 {
		t.Fatalf("unexpected shape: %v", t1.Shape)
	}
}

func TestAtSet(t *testing.T) {
	t1 := New(2, 3)
	t1.Set(7, 1, 2)
	if got := t1.At(1, 2); got != 7 {
		t.Errorf("At(1, 2) = %f, want 7", got)
	}
	if t1.Data[5] != 7 {
		t.Errorf("row-major layout broken: %v", t1.Data)
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic for out-of-range index")
		}
	}()
	t1.At(2, 0)
}

func TestFromDense(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	ten := FromDense(m.T())
	want := []float64{1, 3, 2, 4}
	for i := range want {
		if ten.Data[i] != want[i] {
			t.Errorf("at %d, got %f, want %f", i, ten.Data[i], want[i])
		}
	}
}

func TestDense(t *testing.T) {
	m, err := (&Tensor{Data: []float64{1, 2, 3, 4, 5, 6}, Shape: []int{2, 3}}).Dense()
	if err != nil {
		t.Fatal(err)
	}
	if r, c := m.Dims(); r != 2 || c != 3 || m.At(1, 0) != 4 {
		t.Errorf("got %dx%d with m[1][0]=%f", r, c, m.At(1, 0))
	}

	col, err := NewWithData([]float64{1, 2, 3}).Dense()
	if err != nil {
		t.Fatal(err)
	}
	if r, c := col.Dims(); r != 3 || c != 1 {
		t.Errorf("1-D tensor became %dx%d, want 3x1", r, c)
	}
}

func TestDenseRejectsBadTensors(t *testing.T) {
	for _, ten := range []*Tensor{
		{Data: make([]float64, 8), Shape: []int{2, 2, 2}},
		{Data: make([]float64, 5), Shape: []int{2, 3}},
		{Data: nil, Shape: []int{0, 3}},
	} {
		if _, err := ten.Dense(); err == nil {
			t.Errorf("shape %v with %d elements: expected error", ten.Shape, len(ten.Data))
		}
	}
}
