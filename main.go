package main

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/govtrace/examples"
	"github.com/samuelfneumann/govtrace/utils/matutils"
	"github.com/samuelfneumann/govtrace/vtrace"
)

func main() {
	// A two-step, two-lane trajectory. Lane 0 is on-policy and lane 1
	// puts more probability mass on the taken actions under the
	// target policy.
	behaviourLogProbs := mat.NewDense(2, 2, []float64{
		-1.0, -1.0,
		-1.0, -1.0,
	})
	targetLogProbs := mat.NewDense(2, 2, []float64{
		-1.0, -0.5,
		-1.0, -0.5,
	})
	discounts := mat.NewDense(2, 2, []float64{
		0.99, 0.99,
		0.99, 0.99,
	})
	rewards := mat.NewDense(2, 2, []float64{
		1.0, 1.0,
		-1.0, -1.0,
	})
	values := mat.NewDense(2, 2, []float64{
		0.5, 0.5,
		0.25, 0.25,
	})
	bootstrapValue := mat.NewVecDense(2, []float64{0.1, 0.1})

	ret, err := vtrace.FromImportanceWeights(behaviourLogProbs,
		targetLogProbs, discounts, rewards, values, bootstrapValue,
		vtrace.NewConfig())
	if err != nil {
		panic(err)
	}

	fmt.Println("vs:")
	fmt.Println(matutils.Format(ret.VS))
	fmt.Println("pg advantages:")
	fmt.Println(matutils.Format(ret.PGAdvantages))
	fmt.Println()

	examples.Vtrace()
}
