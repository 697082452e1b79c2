package training

import "fmt"

// Schedule maps a position in the training run, measured in samples seen
// so far, to a hyperparameter value. Schedules are pure functions of the
// sample position so restoring a run mid-stream reproduces the same values.
type Schedule interface {
	// ValueAt returns the value in effect at the given sample position.
	ValueAt(sample int64) float32

	// GetName returns the schedule name for logging.
	GetName() string
}

// ConstantSchedule holds a single value for the whole run.
type ConstantSchedule struct {
	Value float32
}

// NewConstantSchedule creates a schedule that never changes.
func NewConstantSchedule(value float32) *ConstantSchedule {
	return &ConstantSchedule{Value: value}
}

func (s *ConstantSchedule) ValueAt(sample int64) float32 { return s.Value }

func (s *ConstantSchedule) GetName() string { return "Constant" }

// ScheduleEntry pairs a value with the number of samples it stays in
// effect. The final entry's value applies forever regardless of Samples.
type ScheduleEntry struct {
	Value   float32
	Samples int64
}

// PiecewiseSchedule steps through a list of values, each held for a fixed
// number of samples.
type PiecewiseSchedule struct {
	entries []ScheduleEntry
}

// NewPiecewiseSchedule creates a schedule from value/duration pairs.
func NewPiecewiseSchedule(entries []ScheduleEntry) (*PiecewiseSchedule, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("schedule requires at least one entry")
	}
	for i, e := range entries[:len(entries)-1] {
		if e.Samples <= 0 {
			return nil, fmt.Errorf("schedule entry %d has non-positive duration %d", i, e.Samples)
		}
	}
	copied := make([]ScheduleEntry, len(entries))
	copy(copied, entries)
	return &PiecewiseSchedule{entries: copied}, nil
}

func (s *PiecewiseSchedule) ValueAt(sample int64) float32 {
	pos := sample
	for _, e := range s.entries[:len(s.entries)-1] {
		if pos < e.Samples {
			return e.Value
		}
		pos -= e.Samples
	}
	return s.entries[len(s.entries)-1].Value
}

func (s *PiecewiseSchedule) GetName() string { return "Piecewise" }
