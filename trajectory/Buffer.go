// Package trajectory implements fixed-length batched trajectory
// buffers that assemble the dense [T, B] arrays consumed by the
// vtrace package from per-timestep actor output.
package trajectory

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	"github.com/samuelfneumann/govtrace/utils/floatutils"
	"github.com/samuelfneumann/govtrace/vtrace"
)

// Step packages together a single timestep of actor output across all
// batch lanes. Every slice must have length equal to the buffer's
// batch size. Discounts are the per-step discount factor and should be
// 0 at episode boundaries.
type Step struct {
	BehaviourLogProbs []float64
	TargetLogProbs    []float64
	Discounts         []float64
	Rewards           []float64
	Values            []float64
}

// Option configures a Buffer
type Option func(*Buffer)

// WithRewardBounds clips every stored reward into bounds, element-wise
// at store time. Reward clipping is the convention of the IMPALA
// setup this package serves.
func WithRewardBounds(bounds r1.Interval) Option {
	return func(b *Buffer) {
		b.rewardBounds = &bounds
	}
}

// Buffer accumulates a fixed number of timesteps of batched actor
// output and emits the five [T, B] matrices that the vtrace package
// consumes. A Buffer must be filled completely before its contents
// can be read, and Reset before being refilled.
//
// Buffer is not safe for concurrent use.
type Buffer struct {
	timesteps  int
	batchSize  int
	currentPos int

	rewardBounds *r1.Interval

	behaviourLogProbs []float64
	targetLogProbs    []float64
	discounts         []float64
	rewards           []float64
	values            []float64
}

// NewBuffer returns a Buffer holding timesteps steps of batchSize
// batch lanes each.
func NewBuffer(timesteps, batchSize int, opts ...Option) (*Buffer,
	error) {
	if timesteps < 1 || batchSize < 1 {
		return nil, fmt.Errorf("newBuffer: buffer must have at least "+
			"one timestep and one batch lane \n\thave(%v, %v)",
			timesteps, batchSize)
	}

	b := &Buffer{
		timesteps: timesteps,
		batchSize: batchSize,
	}
	b.alloc()

	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *Buffer) alloc() {
	size := b.timesteps * b.batchSize
	b.behaviourLogProbs = make([]float64, size)
	b.targetLogProbs = make([]float64, size)
	b.discounts = make([]float64, size)
	b.rewards = make([]float64, size)
	b.values = make([]float64, size)
}

// Store appends one timestep of batched actor output to the Buffer
func (b *Buffer) Store(step Step) error {
	if b.Full() {
		return fmt.Errorf("store: cannot add new timestep, buffer at " +
			"maximum capacity")
	}

	lanes := []struct {
		name string
		data []float64
	}{
		{"behaviour log probs", step.BehaviourLogProbs},
		{"target log probs", step.TargetLogProbs},
		{"discounts", step.Discounts},
		{"rewards", step.Rewards},
		{"values", step.Values},
	}
	for _, lane := range lanes {
		if len(lane.data) != b.batchSize {
			return fmt.Errorf("store: illegal %v length "+
				"\n\twant(%v)\n\thave(%v)", lane.name, b.batchSize,
				len(lane.data))
		}
	}

	start := b.currentPos * b.batchSize
	stop := start + b.batchSize
	copy(b.behaviourLogProbs[start:stop], step.BehaviourLogProbs)
	copy(b.targetLogProbs[start:stop], step.TargetLogProbs)
	copy(b.discounts[start:stop], step.Discounts)
	copy(b.values[start:stop], step.Values)

	if b.rewardBounds != nil {
		for i, reward := range step.Rewards {
			b.rewards[start+i] = floatutils.ClipInterval(reward,
				*b.rewardBounds)
		}
	} else {
		copy(b.rewards[start:stop], step.Rewards)
	}

	b.currentPos++
	return nil
}

// Full returns whether the Buffer holds its full complement of
// timesteps
func (b *Buffer) Full() bool {
	return b.currentPos >= b.timesteps
}

// Reset empties the Buffer so that it can be refilled. Matrices
// previously returned by Arrays remain valid: Reset allocates fresh
// backing storage rather than zeroing the old.
func (b *Buffer) Reset() {
	b.currentPos = 0
	b.alloc()
}

// Arrays returns the accumulated behaviour log probabilities, target
// log probabilities, discounts, rewards, and values as [T, B]
// matrices. The Buffer must be full.
//
// The matrices share backing storage with the Buffer; call Reset
// before refilling to detach them.
func (b *Buffer) Arrays() (behaviourLogProbs, targetLogProbs, discounts,
	rewards, values *mat.Dense, err error) {
	if !b.Full() {
		return nil, nil, nil, nil, nil, fmt.Errorf("arrays: buffer " +
			"must be full before reading")
	}

	t, n := b.timesteps, b.batchSize
	return mat.NewDense(t, n, b.behaviourLogProbs),
		mat.NewDense(t, n, b.targetLogProbs),
		mat.NewDense(t, n, b.discounts),
		mat.NewDense(t, n, b.rewards),
		mat.NewDense(t, n, b.values),
		nil
}

// Compute runs the V-trace computation on the Buffer's contents,
// bootstrapping from the [B] value estimates one step past the final
// stored timestep. The Buffer must be full. Compute does not Reset
// the Buffer.
func (b *Buffer) Compute(bootstrapValues []float64,
	c vtrace.Config) (*vtrace.Returns, error) {
	if len(bootstrapValues) != b.batchSize {
		return nil, fmt.Errorf("compute: illegal bootstrap values "+
			"length \n\twant(%v)\n\thave(%v)", b.batchSize,
			len(bootstrapValues))
	}

	behaviourLogProbs, targetLogProbs, discounts, rewards, values,
		err := b.Arrays()
	if err != nil {
		return nil, fmt.Errorf("compute: %v", err)
	}

	ret, err := vtrace.FromImportanceWeights(behaviourLogProbs,
		targetLogProbs, discounts, rewards, values,
		mat.NewVecDense(b.batchSize, bootstrapValues), c)
	if err != nil {
		return nil, fmt.Errorf("compute: %v", err)
	}
	return ret, nil
}
