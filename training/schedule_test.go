package training

import "testing"

func TestConstantSchedule(t *testing.T) {
	s := NewConstantSchedule(0.003)
	if s.ValueAt(0) != 0.003 || s.ValueAt(1_000_000) != 0.003 {
		t.Error("constant schedule must return the same value everywhere")
	}
}

func TestPiecewiseSchedule(t *testing.T) {
	s, err := NewPiecewiseSchedule([]ScheduleEntry{
		{Value: 0.003, Samples: 10},
		{Value: 0.0015, Samples: 20},
		{Value: 0.0003},
	})
	if err != nil {
		t.Fatalf("failed to create schedule: %v", err)
	}

	cases := []struct {
		sample int64
		want   float32
	}{
		{0, 0.003},
		{9, 0.003},
		{10, 0.0015},
		{29, 0.0015},
		{30, 0.0003},
		{1_000_000, 0.0003},
	}
	for _, tc := range cases {
		if got := s.ValueAt(tc.sample); got != tc.want {
			t.Errorf("ValueAt(%d) = %g, want %g", tc.sample, got, tc.want)
		}
	}
}

func TestPiecewiseScheduleValidation(t *testing.T) {
	if _, err := NewPiecewiseSchedule(nil); err == nil {
		t.Error("expected error for empty schedule")
	}
	if _, err := NewPiecewiseSchedule([]ScheduleEntry{
		{Value: 1, Samples: 0},
		{Value: 2},
	}); err == nil {
		t.Error("expected error for non-positive duration before the last entry")
	}
}
