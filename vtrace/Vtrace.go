// Package vtrace computes V-trace actor-critic targets for off-policy
// learning, as described in
//
// "Espeholt L, Soyer H, Munos R, et al. IMPALA: Scalable distributed
// deep-rl with importance weighted actor-learner architectures[J].
// arXiv preprint arXiv:1802.01561, 2018."
//
// The target policy is the policy being improved, and the behaviour
// policy is the policy that generated the trajectory. Throughout the
// package, T refers to the time dimension and B to the batch
// dimension: trajectories are dense [T, B] matrices with one row per
// timestep and one column per batch lane.
//
// Adapted from
// https://github.com/deepmind/scalable_agent/blob/master/vtrace.py
package vtrace

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/samuelfneumann/govtrace/utils/floatutils"
	"github.com/samuelfneumann/govtrace/utils/matutils"
)

// NoClip disables an importance weight clipping threshold. Passing
// NoClip for a threshold is equivalent to clipping at +∞, which leaves
// every importance weight unchanged.
var NoClip = math.Inf(1)

// Config sets the clipping thresholds for a V-trace computation
type Config struct {
	// ClipRhoThreshold is the clipping threshold for the importance
	// weights (ρ) used when calculating the baseline targets (vs).
	// This is ρ̄ in the IMPALA paper.
	ClipRhoThreshold float64

	// ClipPGRhoThreshold is the clipping threshold on the importance
	// weights used in the policy gradient advantages. It is
	// independent of ClipRhoThreshold and may differ from it.
	ClipPGRhoThreshold float64
}

// NewConfig returns a Config with the default clipping thresholds of
// the IMPALA paper, ρ̄ = 1 and a policy gradient threshold of 1.
func NewConfig() Config {
	return Config{ClipRhoThreshold: 1.0, ClipPGRhoThreshold: 1.0}
}

// Validate returns an error if any clipping threshold is invalid. A
// threshold must be either NoClip or a positive value.
func (c Config) Validate() error {
	if math.IsNaN(c.ClipRhoThreshold) || c.ClipRhoThreshold <= 0 {
		return fmt.Errorf("validate: clip rho threshold must be "+
			"positive \n\thave(%v)", c.ClipRhoThreshold)
	}
	if math.IsNaN(c.ClipPGRhoThreshold) || c.ClipPGRhoThreshold <= 0 {
		return fmt.Errorf("validate: clip pg rho threshold must be "+
			"positive \n\thave(%v)", c.ClipPGRhoThreshold)
	}
	return nil
}

// Returns holds the output of a V-trace computation
type Returns struct {
	// VS are the [T, B] corrected value targets v_s. They can be used
	// as the regression target when training a baseline, minimizing
	// (V(x_s) - v_s)².
	VS *mat.Dense

	// PGAdvantages are the [T, B] advantages to use as the
	// coefficient of ∇log π(a_s|x_s) in the policy gradient.
	PGAdvantages *mat.Dense
}

// NormalizedPGAdvantages returns a copy of the policy gradient
// advantages standardized to zero mean and unit standard deviation
// across all timesteps and batch lanes.
func (r *Returns) NormalizedPGAdvantages() *mat.Dense {
	rows, cols := r.PGAdvantages.Dims()

	data := make([]float64, rows*cols)
	copy(data, r.PGAdvantages.RawMatrix().Data)

	mean := stat.Mean(data, nil)
	std := stat.StdDev(data, nil) + 1e-8
	for i := range data {
		data[i] = (data[i] - mean) / std
	}
	return mat.NewDense(rows, cols, data)
}

// FromImportanceWeights calculates the V-trace actor-critic targets
// from action log probabilities under the behaviour and target
// policies.
//
// All of behaviourLogProbs, targetLogProbs, discounts, rewards, and
// values must be [T, B] matrices of the same shape: the log
// probability of the action actually taken, the discount encountered
// when following the behaviour policy (0 at episode boundaries), the
// reward generated by following the behaviour policy, and the value
// function estimates with respect to the target policy. The
// bootstrapValue is the [B] value function estimate at time T, one
// step past the end of the trajectory.
//
// FromImportanceWeights is stateless and deterministic. It never
// modifies its inputs, and the returned matrices are freshly
// allocated, so concurrent calls with independent inputs are safe.
func FromImportanceWeights(behaviourLogProbs, targetLogProbs, discounts,
	rewards, values *mat.Dense, bootstrapValue *mat.VecDense,
	c Config) (*Returns, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("fromImportanceWeights: %v", err)
	}
	err := validateShapes(behaviourLogProbs, targetLogProbs, discounts,
		rewards, values, bootstrapValue)
	if err != nil {
		return nil, fmt.Errorf("fromImportanceWeights: %v", err)
	}
	timesteps, batchSize := behaviourLogProbs.Dims()

	// V-trace performs operations on the importance weights in
	// log-space for numerical stability
	logRhos := mat.NewDense(timesteps, batchSize, nil)
	logRhos.Sub(targetLogProbs, behaviourLogProbs)
	rhos := matutils.DenseApply(logRhos, math.Exp)

	clippedRhos := clipAbove(rhos, c.ClipRhoThreshold)

	// The trace cutting coefficients c̄ are always clipped at 1
	cs := clipAbove(rhos, 1.0)

	// Shift the value estimates one step forward in time, appending
	// the bootstrap value to get [V(x_1), ..., V(x_T)]
	valuesTPlus1 := matutils.RowShiftUp(values, bootstrapValue)

	// Clipped temporal difference residuals
	// δ_s = ρ_s (r_s + γ_s V(x_s+1) - V(x_s))
	deltas := mat.NewDense(timesteps, batchSize, nil)
	for t := 0; t < timesteps; t++ {
		delta := mat.NewVecDense(batchSize, deltas.RawRowView(t))
		delta.MulElemVec(discounts.RowView(t), valuesTPlus1.RowView(t))
		delta.AddVec(delta, rewards.RowView(t))
		delta.SubVec(delta, values.RowView(t))
		delta.MulElemVec(delta, clippedRhos.RowView(t))
	}

	// Backward scan along the time axis. The accumulator one step
	// past the final timestep is the zero vector, and
	// acc_t = δ_t + γ_t c_t acc_t+1. The scan is sequential in T but
	// element-wise in B. A discount of 0 cuts the trace, so episode
	// boundaries need no special casing.
	vsMinusVXs := mat.NewDense(timesteps, batchSize, nil)
	acc := mat.NewVecDense(batchSize, nil)
	carry := mat.NewVecDense(batchSize, nil)
	for t := timesteps - 1; t >= 0; t-- {
		carry.MulElemVec(discounts.RowView(t), cs.RowView(t))
		carry.MulElemVec(carry, acc)
		acc.AddVec(deltas.RowView(t), carry)
		vsMinusVXs.SetRow(t, acc.RawVector().Data)
	}

	// Add V(x_s) to get v_s
	vs := mat.NewDense(timesteps, batchSize, nil)
	vs.Add(vsMinusVXs, values)

	// Advantage for the policy gradient, bootstrapping from the
	// corrected targets one step ahead
	vsTPlus1 := matutils.RowShiftUp(vs, bootstrapValue)
	clippedPGRhos := clipAbove(rhos, c.ClipPGRhoThreshold)

	pgAdvantages := mat.NewDense(timesteps, batchSize, nil)
	for t := 0; t < timesteps; t++ {
		adv := mat.NewVecDense(batchSize, pgAdvantages.RawRowView(t))
		adv.MulElemVec(discounts.RowView(t), vsTPlus1.RowView(t))
		adv.AddVec(adv, rewards.RowView(t))
		adv.SubVec(adv, values.RowView(t))
		adv.MulElemVec(adv, clippedPGRhos.RowView(t))
	}

	return &Returns{VS: vs, PGAdvantages: pgAdvantages}, nil
}

// clipAbove returns a copy of m with every element clipped from above
// at threshold. No lower clip is applied.
func clipAbove(m *mat.Dense, threshold float64) *mat.Dense {
	return matutils.DenseApply(m, func(v float64) float64 {
		return floatutils.Min(v, threshold)
	})
}

// validateShapes ensures that all trajectory matrices share a single
// [T, B] shape and that the bootstrap value has exactly B elements.
// The reference implementation asserts only matching ranks; exact
// shape equality is enforced here instead, since a mismatch is always
// a caller bug.
func validateShapes(behaviourLogProbs, targetLogProbs, discounts,
	rewards, values *mat.Dense, bootstrapValue *mat.VecDense) error {
	timesteps, batchSize := behaviourLogProbs.Dims()
	if timesteps < 1 || batchSize < 1 {
		return fmt.Errorf("validateShapes: trajectory must have at "+
			"least one timestep and one batch lane \n\thave(%v, %v)",
			timesteps, batchSize)
	}

	inputs := []struct {
		name string
		m    *mat.Dense
	}{
		{"target log probs", targetLogProbs},
		{"discounts", discounts},
		{"rewards", rewards},
		{"values", values},
	}
	for _, input := range inputs {
		r, c := input.m.Dims()
		if r != timesteps || c != batchSize {
			return fmt.Errorf("validateShapes: illegal %v shape "+
				"\n\twant(%v, %v)\n\thave(%v, %v)", input.name,
				timesteps, batchSize, r, c)
		}
	}

	if bootstrapValue.Len() != batchSize {
		return fmt.Errorf("validateShapes: illegal bootstrap value "+
			"length \n\twant(%v)\n\thave(%v)", batchSize,
			bootstrapValue.Len())
	}
	return nil
}
