// Package scoring grades multiple-answer quiz questions with partial credit
// and a deduction for wrong picks.
package scoring

import (
	"fmt"
	"math"
	"strconv"
)

// Score is the result for one question.
type Score struct {
	CorrectlySelected int     `json:"correctlySelected"`
	WronglySelected   int     `json:"wronglySelected"`
	IncorrectCount    int     `json:"incorrectCount"`
	CorrectTotal      int     `json:"correctTotal"`
	Penalty           float64 `json:"penaltyPerIncorrect"`
	Raw               float64 `json:"raw"`
	Final             float64 `json:"final"`
}

// Compute scores one answer. Each correct pick is worth one point; each wrong
// pick costs correct/incorrect points, so picking every option nets zero.
// Duplicate indices count once.
func Compute(correct, selected []int, numOptions int) Score {
	key := toSet(correct)
	picked := toSet(selected)

	s := Score{CorrectTotal: len(key)}
	for idx := range picked {
		if key[idx] {
			s.CorrectlySelected++
		} else {
			s.WronglySelected++
		}
	}
	s.IncorrectCount = max(0, numOptions-s.CorrectTotal)
	if s.IncorrectCount > 0 && s.CorrectTotal > 0 {
		s.Penalty = -float64(s.CorrectTotal) / float64(s.IncorrectCount)
	}
	s.Raw = float64(s.CorrectlySelected) + float64(s.WronglySelected)*s.Penalty
	s.Final = math.Max(0, s.Raw)
	return s
}

// Defined reports whether the question had any correct answer. An undefined
// score is not a zero score.
func (s Score) Defined() bool { return s.CorrectTotal > 0 }

// String renders "final/correct", e.g. "1.5/2" or "0/0".
func (s Score) String() string {
	return fmt.Sprintf("%s/%d", formatPoints(s.Final), s.CorrectTotal)
}

// Total sums graded questions.
type Total struct {
	Earned   float64 `json:"earned"`
	Possible int     `json:"possible"`
	Graded   int     `json:"graded"`
}

// Add folds one score into the total.
func (t *Total) Add(s Score) {
	t.Earned += s.Final
	t.Possible += s.CorrectTotal
	t.Graded++
}

// Tally sums a list of scores.
func Tally(scores []Score) Total {
	var t Total
	for _, s := range scores {
		t.Add(s)
	}
	return t
}

// Defined reports whether any graded question had a correct answer.
func (t Total) Defined() bool { return t.Possible > 0 }

// Percent is Earned/Possible as a percentage, or 0 when undefined.
func (t Total) Percent() float64 {
	if !t.Defined() {
		return 0
	}
	return t.Earned / float64(t.Possible) * 100
}

func (t Total) String() string {
	return fmt.Sprintf("%s/%d", formatPoints(t.Earned), t.Possible)
}

func toSet(idx []int) map[int]bool {
	m := make(map[int]bool, len(idx))
	for _, i := range idx {
		m[i] = true
	}
	return m
}

func formatPoints(f float64) string {
	return strconv.FormatFloat(math.Round(f*100)/100, 'f', -1, 64)
}
