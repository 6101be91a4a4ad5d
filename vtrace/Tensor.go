package vtrace

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/govtrace/utils/floatutils"
)

// TensorReturns holds the output of a V-trace computation on dense
// tensors. The VS and PGAdvantages tensors have shape [T, B] and the
// same Dtype as the inputs they were computed from.
type TensorReturns struct {
	VS           *tensor.Dense
	PGAdvantages *tensor.Dense
}

// FromTensors calculates the V-trace actor-critic targets from dense
// [T, B] tensors, with a [B] bootstrap value tensor. All inputs must
// share a single Dtype, either tensor.Float64 or tensor.Float32.
//
// The Float64 case delegates to FromImportanceWeights. The Float32
// case runs a dedicated kernel so that the entire computation stays in
// 32-bit floats, matching the precision of the reference
// implementation.
func FromTensors(behaviourLogProbs, targetLogProbs, discounts, rewards,
	values, bootstrapValue *tensor.Dense, c Config) (*TensorReturns,
	error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("fromTensors: %v", err)
	}
	err := validateTensorShapes(behaviourLogProbs, targetLogProbs,
		discounts, rewards, values, bootstrapValue)
	if err != nil {
		return nil, fmt.Errorf("fromTensors: %v", err)
	}
	timesteps := behaviourLogProbs.Shape()[0]
	batchSize := behaviourLogProbs.Shape()[1]

	switch behaviourLogProbs.Dtype() {
	case tensor.Float64:
		ret, err := FromImportanceWeights(
			asDense(behaviourLogProbs),
			asDense(targetLogProbs),
			asDense(discounts),
			asDense(rewards),
			asDense(values),
			mat.NewVecDense(batchSize,
				bootstrapValue.Data().([]float64)),
			c,
		)
		if err != nil {
			return nil, fmt.Errorf("fromTensors: %v", err)
		}
		return &TensorReturns{
			VS: tensor.New(
				tensor.WithShape(timesteps, batchSize),
				tensor.WithBacking(ret.VS.RawMatrix().Data),
			),
			PGAdvantages: tensor.New(
				tensor.WithShape(timesteps, batchSize),
				tensor.WithBacking(ret.PGAdvantages.RawMatrix().Data),
			),
		}, nil

	case tensor.Float32:
		vs, pgAdvantages := fromImportanceWeights32(
			behaviourLogProbs.Data().([]float32),
			targetLogProbs.Data().([]float32),
			discounts.Data().([]float32),
			rewards.Data().([]float32),
			values.Data().([]float32),
			bootstrapValue.Data().([]float32),
			timesteps, batchSize, c,
		)
		return &TensorReturns{
			VS: tensor.New(
				tensor.WithShape(timesteps, batchSize),
				tensor.WithBacking(vs),
			),
			PGAdvantages: tensor.New(
				tensor.WithShape(timesteps, batchSize),
				tensor.WithBacking(pgAdvantages),
			),
		}, nil

	default:
		return nil, fmt.Errorf("fromTensors: illegal dtype %v, only "+
			"float64 and float32 tensors are supported",
			behaviourLogProbs.Dtype())
	}
}

// fromImportanceWeights32 is the float32 V-trace kernel. All slices
// are flat row-major [T, B] buffers, except bootstrap which has
// length B. The returned buffers are freshly allocated.
func fromImportanceWeights32(behaviour, target, discounts, rewards,
	values, bootstrap []float32, timesteps, batchSize int,
	c Config) (vs, pgAdvantages []float32) {
	clipRho := float32(c.ClipRhoThreshold)
	clipPGRho := float32(c.ClipPGRhoThreshold)

	// Importance weights, computed in log-space before exponentiating
	rhos := make([]float32, timesteps*batchSize)
	for i := range rhos {
		rhos[i] = floatutils.Exp32(target[i] - behaviour[i])
	}

	// The backward scan and the addition of V(x_s) fuse into a single
	// pass from the final timestep to the first, since
	// vs_t = acc_t + V(x_t)
	vs = make([]float32, timesteps*batchSize)
	acc := make([]float32, batchSize)
	for t := timesteps - 1; t >= 0; t-- {
		row := t * batchSize
		for j := 0; j < batchSize; j++ {
			i := row + j

			nextValue := bootstrap[j]
			if t < timesteps-1 {
				nextValue = values[i+batchSize]
			}

			clippedRho := floatutils.Min32(rhos[i], clipRho)
			cs := floatutils.Min32(rhos[i], 1.0)
			delta := clippedRho *
				(rewards[i] + discounts[i]*nextValue - values[i])

			acc[j] = delta + discounts[i]*cs*acc[j]
			vs[i] = acc[j] + values[i]
		}
	}

	pgAdvantages = make([]float32, timesteps*batchSize)
	for t := 0; t < timesteps; t++ {
		row := t * batchSize
		for j := 0; j < batchSize; j++ {
			i := row + j

			nextVS := bootstrap[j]
			if t < timesteps-1 {
				nextVS = vs[i+batchSize]
			}

			clippedPGRho := floatutils.Min32(rhos[i], clipPGRho)
			pgAdvantages[i] = clippedPGRho *
				(rewards[i] + discounts[i]*nextVS - values[i])
		}
	}
	return vs, pgAdvantages
}

// asDense wraps a contiguous [T, B] float64 tensor as a gonum matrix
// without copying. Callees must not modify the wrapped data.
func asDense(t *tensor.Dense) *mat.Dense {
	return mat.NewDense(t.Shape()[0], t.Shape()[1],
		t.Data().([]float64))
}

// validateTensorShapes ensures all trajectory tensors share a single
// [T, B] shape and Dtype, and that the bootstrap value is a [B]
// tensor of the same Dtype.
func validateTensorShapes(behaviourLogProbs, targetLogProbs, discounts,
	rewards, values, bootstrapValue *tensor.Dense) error {
	if behaviourLogProbs.Dims() != 2 {
		return fmt.Errorf("validateTensorShapes: trajectory tensors "+
			"must have rank 2 \n\thave(%v)", behaviourLogProbs.Dims())
	}
	timesteps := behaviourLogProbs.Shape()[0]
	batchSize := behaviourLogProbs.Shape()[1]
	if timesteps < 1 || batchSize < 1 {
		return fmt.Errorf("validateTensorShapes: trajectory must "+
			"have at least one timestep and one batch lane "+
			"\n\thave(%v, %v)", timesteps, batchSize)
	}
	dtype := behaviourLogProbs.Dtype()

	inputs := []struct {
		name string
		t    *tensor.Dense
	}{
		{"target log probs", targetLogProbs},
		{"discounts", discounts},
		{"rewards", rewards},
		{"values", values},
	}
	for _, input := range inputs {
		if !input.t.Shape().Eq(behaviourLogProbs.Shape()) {
			return fmt.Errorf("validateTensorShapes: illegal %v "+
				"shape \n\twant%v\n\thave%v", input.name,
				behaviourLogProbs.Shape(), input.t.Shape())
		}
		if input.t.Dtype() != dtype {
			return fmt.Errorf("validateTensorShapes: illegal %v "+
				"dtype \n\twant(%v)\n\thave(%v)", input.name, dtype,
				input.t.Dtype())
		}
	}

	if bootstrapValue.Dims() != 1 ||
		bootstrapValue.Shape()[0] != batchSize {
		return fmt.Errorf("validateTensorShapes: illegal bootstrap "+
			"value shape \n\twant(%v)\n\thave%v", batchSize,
			bootstrapValue.Shape())
	}
	if bootstrapValue.Dtype() != dtype {
		return fmt.Errorf("validateTensorShapes: illegal bootstrap "+
			"value dtype \n\twant(%v)\n\thave(%v)", dtype,
			bootstrapValue.Dtype())
	}
	return nil
}
