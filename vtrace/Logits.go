package vtrace

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/govtrace/utils/floatutils"
)

// ActionLogProbs computes log π(a_t | x_t) for the actions actually
// taken along a trajectory, from the raw [T, B, NumActions] policy
// logits of a softmax policy. The actions argument holds the index of
// the taken action for each timestep and batch lane, so that
// actions[t][b] indexes the final axis of logits.
//
// The log-softmax is computed stably through a log-sum-exp shifted by
// the maximum logit. The returned tensor has shape [T, B] and the same
// Dtype as logits, which must be tensor.Float64 or tensor.Float32.
func ActionLogProbs(logits *tensor.Dense, actions [][]int) (
	*tensor.Dense, error) {
	if logits.Dims() != 3 {
		return nil, fmt.Errorf("actionLogProbs: logits must have "+
			"rank 3 \n\thave(%v)", logits.Dims())
	}
	timesteps := logits.Shape()[0]
	batchSize := logits.Shape()[1]
	numActions := logits.Shape()[2]

	if len(actions) != timesteps {
		return nil, fmt.Errorf("actionLogProbs: illegal actions "+
			"length \n\twant(%v)\n\thave(%v)", timesteps, len(actions))
	}
	for t := range actions {
		if len(actions[t]) != batchSize {
			return nil, fmt.Errorf("actionLogProbs: illegal actions "+
				"length at timestep %v \n\twant(%v)\n\thave(%v)", t,
				batchSize, len(actions[t]))
		}
		for b, action := range actions[t] {
			if action < 0 || action >= numActions {
				return nil, fmt.Errorf("actionLogProbs: action at "+
					"(%v, %v) out of range \n\twant[0, %v)\n\thave"+
					"(%v)", t, b, numActions, action)
			}
		}
	}

	switch logits.Dtype() {
	case tensor.Float64:
		data := logits.Data().([]float64)
		logProbs := make([]float64, timesteps*batchSize)
		for t := 0; t < timesteps; t++ {
			for b := 0; b < batchSize; b++ {
				start := (t*batchSize + b) * numActions
				row := data[start : start+numActions]
				logProbs[t*batchSize+b] = row[actions[t][b]] -
					floats.LogSumExp(row)
			}
		}
		return tensor.New(
			tensor.WithShape(timesteps, batchSize),
			tensor.WithBacking(logProbs),
		), nil

	case tensor.Float32:
		data := logits.Data().([]float32)
		logProbs := make([]float32, timesteps*batchSize)
		for t := 0; t < timesteps; t++ {
			for b := 0; b < batchSize; b++ {
				start := (t*batchSize + b) * numActions
				row := data[start : start+numActions]
				logProbs[t*batchSize+b] = row[actions[t][b]] -
					floatutils.LogSumExp32(row)
			}
		}
		return tensor.New(
			tensor.WithShape(timesteps, batchSize),
			tensor.WithBacking(logProbs),
		), nil

	default:
		return nil, fmt.Errorf("actionLogProbs: illegal dtype %v, "+
			"only float64 and float32 tensors are supported",
			logits.Dtype())
	}
}

// FromLogits calculates the V-trace actor-critic targets for softmax
// policies directly from the [T, B, NumActions] behaviour and target
// policy logits and the [T, B] indices of the taken actions. It is a
// composition of ActionLogProbs for both policies with FromTensors.
func FromLogits(behaviourLogits, targetLogits *tensor.Dense,
	actions [][]int, discounts, rewards, values,
	bootstrapValue *tensor.Dense, c Config) (*TensorReturns, error) {
	if !behaviourLogits.Shape().Eq(targetLogits.Shape()) {
		return nil, fmt.Errorf("fromLogits: illegal target logits "+
			"shape \n\twant%v\n\thave%v", behaviourLogits.Shape(),
			targetLogits.Shape())
	}

	behaviourLogProbs, err := ActionLogProbs(behaviourLogits, actions)
	if err != nil {
		return nil, fmt.Errorf("fromLogits: %v", err)
	}
	targetLogProbs, err := ActionLogProbs(targetLogits, actions)
	if err != nil {
		return nil, fmt.Errorf("fromLogits: %v", err)
	}

	ret, err := FromTensors(behaviourLogProbs, targetLogProbs,
		discounts, rewards, values, bootstrapValue, c)
	if err != nil {
		return nil, fmt.Errorf("fromLogits: %v", err)
	}
	return ret, nil
}
