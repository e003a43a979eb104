package scoring

import (
	"math"
	"testing"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name       string
		correct    []int
		selected   []int
		numOptions int
		want       string
		wantRaw    float64
		wrong      int
	}{
		{"all correct", []int{0, 1}, []int{0, 1}, 4, "2/2", 2, 0},
		{"one right one wrong", []int{0, 1}, []int{0, 2}, 4, "0/2", 0, 1},
		{"nothing selected", []int{0, 1}, nil, 4, "0/2", 0, 0},
		{"only wrong clamps at zero", []int{0}, []int{1, 2}, 4, "0/1", -2.0 / 3.0, 2},
		{"partial credit", []int{0, 1, 2}, []int{0, 1, 3}, 6, "1/3", 1, 1},
		{"fractional", []int{0, 1}, []int{0, 1, 2}, 6, "1.5/2", 1.5, 1},
		{"every option selected", []int{0}, []int{0, 1, 2, 3}, 4, "0/1", 0, 3},
		{"all options correct", []int{0, 1, 2}, []int{0, 2}, 3, "2/3", 2, 0},
		{"duplicates count once", []int{1, 1}, []int{1, 1}, 2, "1/1", 1, 0},
		{"no correct answers", nil, []int{0}, 4, "0/0", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Compute(tt.correct, tt.selected, tt.numOptions)
			if got := s.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if math.Abs(s.Raw-tt.wantRaw) > 1e-9 {
				t.Errorf("Raw = %v, want %v", s.Raw, tt.wantRaw)
			}
			if s.WronglySelected != tt.wrong {
				t.Errorf("WronglySelected = %d, want %d", s.WronglySelected, tt.wrong)
			}
		})
	}
}

func TestComputeBoundaryDetail(t *testing.T) {
	s := Compute([]int{0, 1}, []int{0, 2}, 4)
	if s.CorrectlySelected != 1 || s.WronglySelected != 1 || s.IncorrectCount != 2 || s.Penalty != -1 {
		t.Errorf("Compute() = %+v", s)
	}
}

func TestUndefinedIsNotZero(t *testing.T) {
	undefined := Compute(nil, nil, 3)
	zero := Compute([]int{0}, []int{1}, 3)
	if undefined.Defined() {
		t.Error("score without correct answers should be undefined")
	}
	if !zero.Defined() {
		t.Error("failing score should be defined")
	}
	if undefined.String() == zero.String() {
		t.Errorf("undefined and zero render the same: %q", undefined.String())
	}
}

func TestTally(t *testing.T) {
	total := Tally([]Score{
		Compute([]int{0, 1}, []int{0, 1}, 4),
		Compute([]int{0, 1}, []int{0, 2}, 4),
		Compute(nil, nil, 4),
		Compute([]int{2}, []int{2}, 3),
	})
	if got := total.String(); got != "3/5" {
		t.Errorf("String() = %q, want %q", got, "3/5")
	}
	if total.Graded != 4 {
		t.Errorf("Graded = %d, want 4", total.Graded)
	}
	if got := total.Percent(); math.Abs(got-60) > 1e-9 {
		t.Errorf("Percent() = %v, want 60", got)
	}

	empty := Tally(nil)
	if empty.Defined() || empty.String() != "0/0" || empty.Percent() != 0 {
		t.Errorf("empty total = %+v", empty)
	}
}
