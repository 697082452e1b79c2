// Package training drives the optimization and evaluation loops over
// minibatch sources, combining the network, the loss criterion, the
// optimizer and the hyperparameter schedules.
package training

import (
	"fmt"
	"math"
)

// Metrics aggregates criterion results. Loss and Errors are sums so
// metrics from multiple minibatches can be added together.
type Metrics struct {
	Loss    float64 // summed sample losses
	Errors  int     // misclassified samples
	Samples int
}

// Add accumulates another result into the metrics.
func (m *Metrics) Add(other Metrics) {
	m.Loss += other.Loss
	m.Errors += other.Errors
	m.Samples += other.Samples
}

// AvgLoss returns the mean loss per sample.
func (m Metrics) AvgLoss() float64 {
	if m.Samples == 0 {
		return 0
	}
	return m.Loss / float64(m.Samples)
}

// ErrorRate returns the fraction of misclassified samples.
func (m Metrics) ErrorRate() float64 {
	if m.Samples == 0 {
		return 0
	}
	return float64(m.Errors) / float64(m.Samples)
}

// CrossEntropyCriterion scores per-token logits against target label
// indices with softmax cross entropy, and reports classification errors
// from the argmax prediction.
type CrossEntropyCriterion struct{}

// Evaluate computes loss and error metrics without gradients.
func (c CrossEntropyCriterion) Evaluate(logits [][][]float32, targets [][]int32) (Metrics, error) {
	metrics, _, err := c.score(logits, targets, false)
	return metrics, err
}

// ForwardBackward computes loss and error metrics plus the gradient of the
// summed loss with respect to the logits.
func (c CrossEntropyCriterion) ForwardBackward(logits [][][]float32, targets [][]int32) (Metrics, [][][]float32, error) {
	return c.score(logits, targets, true)
}

func (c CrossEntropyCriterion) score(logits [][][]float32, targets [][]int32, withGrad bool) (Metrics, [][][]float32, error) {
	if len(logits) != len(targets) {
		return Metrics{}, nil, fmt.Errorf("have %d logit sequences for %d target sequences", len(logits), len(targets))
	}

	var metrics Metrics
	var dLogits [][][]float32
	if withGrad {
		dLogits = make([][][]float32, len(logits))
	}

	for s, seq := range logits {
		if len(seq) != len(targets[s]) {
			return Metrics{}, nil, fmt.Errorf("sequence %d: %d logit steps for %d targets", s, len(seq), len(targets[s]))
		}
		var dSeq [][]float32
		if withGrad {
			dSeq = make([][]float32, len(seq))
			dLogits[s] = dSeq
		}

		for step, vec := range seq {
			target := int(targets[s][step])
			if target < 0 || target >= len(vec) {
				return Metrics{}, nil, fmt.Errorf("sequence %d step %d: target %d out of range for %d classes",
					s, step, target, len(vec))
			}

			// Max-shifted softmax for numerical stability.
			maxVal := vec[0]
			argmax := 0
			for j, v := range vec {
				if v > maxVal {
					maxVal = v
					argmax = j
				}
			}
			var sumExp float64
			for _, v := range vec {
				sumExp += math.Exp(float64(v - maxVal))
			}
			logSumExp := float64(maxVal) + math.Log(sumExp)

			metrics.Loss += logSumExp - float64(vec[target])
			metrics.Samples++
			if argmax != target {
				metrics.Errors++
			}

			if withGrad {
				d := make([]float32, len(vec))
				for j, v := range vec {
					d[j] = float32(math.Exp(float64(v-maxVal)) / sumExp)
				}
				d[target] -= 1
				dSeq[step] = d
			}
		}
	}

	return metrics, dLogits, nil
}
