package engine

import "time"

// Rules holds the scoring constants. The magnitudes are configuration, not
// behavior; see config for the flags that feed them.
type Rules struct {
	// BasePoints is awarded for any correct answer.
	BasePoints int

	// MaxSpeedBonus is the speed bonus for an instant answer. It decays
	// linearly to zero at the question deadline.
	MaxSpeedBonus int

	// FirstCorrectBonus goes to the single player whose correct answer was
	// accepted first, by server arrival order.
	FirstCorrectBonus int
}

// DefaultRules returns the stock scoring constants.
func DefaultRules() Rules {
	return Rules{
		BasePoints:        100,
		MaxSpeedBonus:     100,
		FirstCorrectBonus: 50,
	}
}

// Score computes the point award for one recorded answer. It is a pure
// function: wrong answers score zero, correct answers score base plus a
// linearly decaying speed bonus, and the first accepted correct answer gets
// the fixed first-correct bonus on top. Fractions round down.
func Score(elapsed, duration time.Duration, correct, first bool, r Rules) int {
	if !correct {
		return 0
	}
	if elapsed < 0 {
		elapsed = 0
	}

	points := r.BasePoints
	if duration > 0 && elapsed < duration {
		points += int(int64(r.MaxSpeedBonus) * int64(duration-elapsed) / int64(duration))
	}
	if first {
		points += r.FirstCorrectBonus
	}
	return points
}
