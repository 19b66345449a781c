package optimize

import "fmt"

// Threshold is the uniqueness ratio, in percent, at or below which a text
// column is stored categorically.
type Threshold float64

// DefaultThreshold is the canonical uniqueness threshold.
const DefaultThreshold Threshold = 50

// Validate rejects thresholds outside [0, 100].
func (t Threshold) Validate() error {
	if t < 0 || t > 100 {
		return fmt.Errorf("threshold %v outside [0, 100]", float64(t))
	}
	return nil
}

// Allows reports whether distinct/total <= t/100. An empty column (0/0) is
// never eligible.
func (t Threshold) Allows(distinct, total int) bool {
	if total <= 0 {
		return false
	}
	return float64(distinct)*100 <= float64(t)*float64(total)
}
