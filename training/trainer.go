package training

import (
	"fmt"

	"github.com/tsawler/go-tagger/corpus"
	"github.com/tsawler/go-tagger/engine"
	"github.com/tsawler/go-tagger/optimizer"
)

// TrainerConfig selects the minibatch streams feeding the model and the
// hyperparameter schedules applied before every update.
type TrainerConfig struct {
	QueryStream string
	LabelStream string

	// LearningRate is required. Momentum may be nil to leave the
	// optimizer's momentum untouched.
	LearningRate Schedule
	Momentum     Schedule
}

// Trainer runs optimization steps over labeled token sequences.
type Trainer struct {
	net       *engine.Network
	opt       optimizer.Optimizer
	criterion CrossEntropyCriterion
	config    TrainerConfig

	samplesSeen int64
}

// NewTrainer wires a network and an optimizer to the given streams and
// schedules.
func NewTrainer(net *engine.Network, opt optimizer.Optimizer, config TrainerConfig) (*Trainer, error) {
	if net == nil {
		return nil, fmt.Errorf("network cannot be nil")
	}
	if opt == nil {
		return nil, fmt.Errorf("optimizer cannot be nil")
	}
	if config.QueryStream == "" || config.LabelStream == "" {
		return nil, fmt.Errorf("query and label stream names are required")
	}
	if config.LearningRate == nil {
		return nil, fmt.Errorf("learning rate schedule is required")
	}
	return &Trainer{net: net, opt: opt, config: config}, nil
}

// SamplesSeen returns the number of samples trained on so far.
func (t *Trainer) SamplesSeen() int64 { return t.samplesSeen }

// SetSamplesSeen restores the sample position, typically from a
// checkpoint, so schedules resume at the right point.
func (t *Trainer) SetSamplesSeen(n int64) { t.samplesSeen = n }

// Network returns the model being trained.
func (t *Trainer) Network() *engine.Network { return t.net }

// Optimizer returns the update rule in use.
func (t *Trainer) Optimizer() optimizer.Optimizer { return t.opt }

// extractStreams pulls the query and label batches out of a minibatch and
// checks that they align token for token.
func (t *Trainer) extractStreams(mb corpus.Minibatch) (*corpus.SequenceBatch, *corpus.SequenceBatch, error) {
	query, ok := mb[t.config.QueryStream]
	if !ok {
		return nil, nil, fmt.Errorf("minibatch has no stream %q", t.config.QueryStream)
	}
	labels, ok := mb[t.config.LabelStream]
	if !ok {
		return nil, nil, fmt.Errorf("minibatch has no stream %q", t.config.LabelStream)
	}
	if query.NumSequences() != labels.NumSequences() {
		return nil, nil, fmt.Errorf("stream %q has %d sequences, stream %q has %d",
			t.config.QueryStream, query.NumSequences(), t.config.LabelStream, labels.NumSequences())
	}
	for i := range query.Sequences {
		if len(query.Sequences[i]) != len(labels.Sequences[i]) {
			return nil, nil, fmt.Errorf("sequence %d: %d query tokens but %d labels",
				i, len(query.Sequences[i]), len(labels.Sequences[i]))
		}
	}
	return query, labels, nil
}

// TrainMinibatch runs one forward/backward pass and one optimizer step,
// with the schedules evaluated at the current sample position.
func (t *Trainer) TrainMinibatch(mb corpus.Minibatch) (Metrics, error) {
	query, labels, err := t.extractStreams(mb)
	if err != nil {
		return Metrics{}, err
	}

	t.opt.UpdateLearningRate(t.config.LearningRate.ValueAt(t.samplesSeen))
	if t.config.Momentum != nil {
		t.opt.UpdateMomentum(t.config.Momentum.ValueAt(t.samplesSeen))
	}

	t.net.ZeroGradients()
	logits, state, err := t.net.Forward(query.Sequences)
	if err != nil {
		return Metrics{}, fmt.Errorf("forward pass failed: %v", err)
	}
	metrics, dLogits, err := t.criterion.ForwardBackward(logits, labels.Sequences)
	if err != nil {
		return Metrics{}, fmt.Errorf("criterion failed: %v", err)
	}
	if err := t.net.Backward(dLogits, state); err != nil {
		return Metrics{}, fmt.Errorf("backward pass failed: %v", err)
	}
	if err := t.opt.Step(t.net.Parameters(), t.net.Gradients(), metrics.Samples); err != nil {
		return Metrics{}, fmt.Errorf("optimizer step failed: %v", err)
	}

	t.samplesSeen += int64(metrics.Samples)
	return metrics, nil
}

// Evaluator scores a model over labeled token sequences without updating
// it.
type Evaluator struct {
	net       *engine.Network
	criterion CrossEntropyCriterion

	queryStream string
	labelStream string
}

// NewEvaluator wires a network to the given minibatch streams.
func NewEvaluator(net *engine.Network, queryStream, labelStream string) (*Evaluator, error) {
	if net == nil {
		return nil, fmt.Errorf("network cannot be nil")
	}
	if queryStream == "" || labelStream == "" {
		return nil, fmt.Errorf("query and label stream names are required")
	}
	return &Evaluator{net: net, queryStream: queryStream, labelStream: labelStream}, nil
}

// TestMinibatch computes loss and error metrics for one minibatch.
func (e *Evaluator) TestMinibatch(mb corpus.Minibatch) (Metrics, error) {
	query, ok := mb[e.queryStream]
	if !ok {
		return Metrics{}, fmt.Errorf("minibatch has no stream %q", e.queryStream)
	}
	labels, ok := mb[e.labelStream]
	if !ok {
		return Metrics{}, fmt.Errorf("minibatch has no stream %q", e.labelStream)
	}

	logits, _, err := e.net.Forward(query.Sequences)
	if err != nil {
		return Metrics{}, fmt.Errorf("forward pass failed: %v", err)
	}
	metrics, err := e.criterion.Evaluate(logits, labels.Sequences)
	if err != nil {
		return Metrics{}, fmt.Errorf("criterion failed: %v", err)
	}
	return metrics, nil
}
