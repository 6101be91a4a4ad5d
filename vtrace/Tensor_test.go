package vtrace

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/govtrace/utils/tensorutils"
)

// toTensor64 copies a gonum matrix into a float64 tensor
func toTensor64(m *mat.Dense) *tensor.Dense {
	r, c := m.Dims()
	backing := make([]float64, r*c)
	copy(backing, m.RawMatrix().Data)
	return tensor.New(tensor.WithShape(r, c),
		tensor.WithBacking(backing))
}

// toTensor32 copies a gonum matrix into a float32 tensor
func toTensor32(m *mat.Dense) *tensor.Dense {
	r, c := m.Dims()
	backing := make([]float32, r*c)
	for i, v := range m.RawMatrix().Data {
		backing[i] = float32(v)
	}
	return tensor.New(tensor.WithShape(r, c),
		tensor.WithBacking(backing))
}

func vecToTensor64(v *mat.VecDense) *tensor.Dense {
	backing := make([]float64, v.Len())
	copy(backing, v.RawVector().Data)
	return tensor.New(tensor.WithShape(v.Len()),
		tensor.WithBacking(backing))
}

func vecToTensor32(v *mat.VecDense) *tensor.Dense {
	backing := make([]float32, v.Len())
	for i := 0; i < v.Len(); i++ {
		backing[i] = float32(v.AtVec(i))
	}
	return tensor.New(tensor.WithShape(v.Len()),
		tensor.WithBacking(backing))
}

// TestFromTensorsFloat64 checks that the float64 tensor front-end
// produces exactly the gonum kernel's output.
func TestFromTensorsFloat64(t *testing.T) {
	behaviour, target, discounts, rewards, values, bootstrap :=
		randomTrajectory(12, 3, 10)

	want, err := FromImportanceWeights(behaviour, target, discounts,
		rewards, values, bootstrap, NewConfig())
	if err != nil {
		t.Fatalf("could not compute targets: %v", err)
	}

	have, err := FromTensors(toTensor64(behaviour), toTensor64(target),
		toTensor64(discounts), toTensor64(rewards), toTensor64(values),
		vecToTensor64(bootstrap), NewConfig())
	if err != nil {
		t.Fatalf("could not compute tensor targets: %v", err)
	}

	wantVS := want.VS.RawMatrix().Data
	haveVS := have.VS.Data().([]float64)
	for i := range wantVS {
		if wantVS[i] != haveVS[i] {
			t.Fatalf("illegal vs at %v \n\twant(%v)\n\thave(%v)", i,
				wantVS[i], haveVS[i])
		}
	}

	wantAdv := want.PGAdvantages.RawMatrix().Data
	haveAdv := have.PGAdvantages.Data().([]float64)
	for i := range wantAdv {
		if wantAdv[i] != haveAdv[i] {
			t.Fatalf("illegal pg advantage at %v "+
				"\n\twant(%v)\n\thave(%v)", i, wantAdv[i], haveAdv[i])
		}
	}
}

// TestFromTensorsFloat32 checks that the float32 kernel agrees with
// the float64 kernel to within single precision.
func TestFromTensorsFloat32(t *testing.T) {
	behaviour, target, discounts, rewards, values, bootstrap :=
		randomTrajectory(12, 3, 11)

	want, err := FromImportanceWeights(behaviour, target, discounts,
		rewards, values, bootstrap, NewConfig())
	if err != nil {
		t.Fatalf("could not compute targets: %v", err)
	}

	have, err := FromTensors(toTensor32(behaviour), toTensor32(target),
		toTensor32(discounts), toTensor32(rewards), toTensor32(values),
		vecToTensor32(bootstrap), NewConfig())
	if err != nil {
		t.Fatalf("could not compute tensor targets: %v", err)
	}

	const tolerance32 = 1e-3
	wantVS := want.VS.RawMatrix().Data
	haveVS := have.VS.Data().([]float32)
	for i := range wantVS {
		if math.Abs(wantVS[i]-float64(haveVS[i])) > tolerance32 {
			t.Errorf("illegal vs at %v \n\twant(%v)\n\thave(%v)", i,
				wantVS[i], haveVS[i])
		}
	}

	wantAdv := want.PGAdvantages.RawMatrix().Data
	haveAdv := have.PGAdvantages.Data().([]float32)
	for i := range wantAdv {
		if math.Abs(wantAdv[i]-float64(haveAdv[i])) > tolerance32 {
			t.Errorf("illegal pg advantage at %v "+
				"\n\twant(%v)\n\thave(%v)", i, wantAdv[i], haveAdv[i])
		}
	}
}

func TestFromTensorsValidation(t *testing.T) {
	behaviour, target, discounts, rewards, values, bootstrap :=
		randomTrajectory(4, 2, 12)

	// Mixed dtypes
	_, err := FromTensors(toTensor64(behaviour), toTensor32(target),
		toTensor64(discounts), toTensor64(rewards), toTensor64(values),
		vecToTensor64(bootstrap), NewConfig())
	if err == nil {
		t.Error("expected error for mixed dtypes")
	}

	// Mismatched shape
	badValues := tensor.New(tensor.WithShape(3, 2),
		tensor.WithBacking(make([]float64, 6)))
	_, err = FromTensors(toTensor64(behaviour), toTensor64(target),
		toTensor64(discounts), toTensor64(rewards), badValues,
		vecToTensor64(bootstrap), NewConfig())
	if err == nil {
		t.Error("expected error for mismatched values shape")
	}

	// Bootstrap with the wrong rank
	badBootstrap := tensor.New(tensor.WithShape(2, 1),
		tensor.WithBacking(make([]float64, 2)))
	_, err = FromTensors(toTensor64(behaviour), toTensor64(target),
		toTensor64(discounts), toTensor64(rewards), toTensor64(values),
		badBootstrap, NewConfig())
	if err == nil {
		t.Error("expected error for rank-2 bootstrap value")
	}

	// Unsupported dtype
	badDtype := tensor.New(tensor.WithShape(4, 2),
		tensor.WithBacking(make([]int, 8)))
	_, err = FromTensors(badDtype, badDtype, badDtype, badDtype,
		badDtype, tensor.New(tensor.WithShape(2),
			tensor.WithBacking(make([]int, 2))), NewConfig())
	if err == nil {
		t.Error("expected error for int dtype")
	}
}

// TestFromTensorsSlice checks that the returned tensors support
// row slicing, which callers use to peel off individual timesteps.
func TestFromTensorsSlice(t *testing.T) {
	behaviour, target, discounts, rewards, values, bootstrap :=
		randomTrajectory(5, 2, 13)

	ret, err := FromTensors(toTensor64(behaviour), toTensor64(target),
		toTensor64(discounts), toTensor64(rewards), toTensor64(values),
		vecToTensor64(bootstrap), NewConfig())
	if err != nil {
		t.Fatalf("could not compute tensor targets: %v", err)
	}

	final, err := ret.VS.Slice(tensorutils.NewIndex(4))
	if err != nil {
		t.Fatalf("could not slice vs: %v", err)
	}

	for j := 0; j < 2; j++ {
		have, err := final.At(j)
		if err != nil {
			t.Fatalf("could not index sliced vs: %v", err)
		}
		want := ret.VS.Data().([]float64)[4*2+j]
		if have.(float64) != want {
			t.Errorf("illegal sliced vs at %v "+
				"\n\twant(%v)\n\thave(%v)", j, want, have)
		}
	}
}
