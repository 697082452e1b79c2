package corpus

import (
	"fmt"
	"math/rand"
)

// SequenceBatch is one stream's view of a minibatch: a set of variable-length
// sequences of sparse one-hot indices, all encoded against the same width.
type SequenceBatch struct {
	Width     int
	Sequences [][]int32
}

// NumSamples returns the total number of entries (tokens) in the batch.
func (b *SequenceBatch) NumSamples() int {
	n := 0
	for _, seq := range b.Sequences {
		n += len(seq)
	}
	return n
}

// NumSequences returns the number of sequences in the batch.
func (b *SequenceBatch) NumSequences() int {
	return len(b.Sequences)
}

// Minibatch maps stream name to that stream's packed sequences. An empty
// minibatch signals reader exhaustion in full-sweep mode.
type Minibatch map[string]*SequenceBatch

// Empty reports whether the minibatch carries no data.
func (m Minibatch) Empty() bool {
	return len(m) == 0
}

// MinibatchSource produces successive minibatches from a corpus file. In
// training mode the corpus is reshuffled and replayed indefinitely; in
// full-sweep mode each sequence is served exactly once and exhaustion is
// signalled with an empty minibatch.
type MinibatchSource struct {
	defs      StreamDefs
	sequences []Sequence

	randomize bool
	repeat    bool
	rng       *rand.Rand

	order     []int
	pos       int
	exhausted bool
}

// SourceOptions configures a MinibatchSource.
type SourceOptions struct {
	// Randomize reshuffles the sequence order at the start of every sweep.
	Randomize bool
	// InfinitelyRepeat starts a new sweep whenever the previous one ends.
	// When false the source performs a single full sweep.
	InfinitelyRepeat bool
	// Seed drives the shuffle; the same seed replays the same order.
	Seed int64
}

// NewMinibatchSource reads the corpus at path and prepares it for minibatch
// iteration. Training readers typically use
// SourceOptions{Randomize: true, InfinitelyRepeat: true}.
func NewMinibatchSource(path string, defs StreamDefs, opts SourceOptions) (*MinibatchSource, error) {
	sequences, err := ReadCorpus(path, defs)
	if err != nil {
		return nil, err
	}

	s := &MinibatchSource{
		defs:      defs,
		sequences: sequences,
		randomize: opts.Randomize,
		repeat:    opts.InfinitelyRepeat,
		rng:       rand.New(rand.NewSource(opts.Seed)),
		order:     make([]int, len(sequences)),
	}
	for i := range s.order {
		s.order[i] = i
	}
	if s.randomize {
		s.shuffle()
	}
	return s, nil
}

// StreamDefs returns the stream schema this source was built with.
func (s *MinibatchSource) StreamDefs() StreamDefs {
	return s.defs
}

// NumSequences returns the total number of sequences in the corpus.
func (s *MinibatchSource) NumSequences() int {
	return len(s.sequences)
}

func (s *MinibatchSource) shuffle() {
	s.rng.Shuffle(len(s.order), func(i, j int) {
		s.order[i], s.order[j] = s.order[j], s.order[i]
	})
}

// NextMinibatch returns the next minibatch holding whole sequences with a
// total sample count of at most maxSamples; a single sequence longer than
// maxSamples is served alone. An empty minibatch means the corpus is
// exhausted (full-sweep mode only).
func (s *MinibatchSource) NextMinibatch(maxSamples int) (Minibatch, error) {
	if maxSamples <= 0 {
		return nil, fmt.Errorf("minibatch size must be positive, got %d", maxSamples)
	}
	if s.exhausted {
		return Minibatch{}, nil
	}

	batch := make(Minibatch, len(s.defs))
	for _, def := range s.defs {
		batch[def.Name] = &SequenceBatch{Width: def.Width}
	}

	taken := 0
	samples := 0
	for {
		if s.pos >= len(s.order) {
			if !s.repeat {
				if taken == 0 {
					s.exhausted = true
					return Minibatch{}, nil
				}
				break
			}
			if s.randomize {
				s.shuffle()
			}
			s.pos = 0
		}

		seq := &s.sequences[s.order[s.pos]]
		n := seq.numSamples()
		if taken > 0 && samples+n > maxSamples {
			break
		}

		for _, def := range s.defs {
			batch[def.Name].Sequences = append(batch[def.Name].Sequences, seq.Streams[def.Name])
		}
		taken++
		samples += n
		s.pos++

		if samples >= maxSamples {
			break
		}
	}

	return batch, nil
}
