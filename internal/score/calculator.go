// Package score computes the transparent credit-risk proxy score.
//
// The formulas are heuristics chosen to be explainable to an applicant,
// not a statistically calibrated risk model.
package score

import (
	"math"

	"github.com/opensource-finance/merlin/internal/domain"
)

const (
	// Base is added to the sum of sub-scores.
	Base = 500
	// Max is the upper bound of the final score.
	Max = 850
	// SubScoreCap bounds every sub-score.
	SubScoreCap = 30
)

// Result is the outcome of a score computation.
type Result struct {
	Repayment   int `json:"repayment"`
	Utilization int `json:"utilization"`
	Outstanding int `json:"outstanding"`
	Inquiries   int `json:"inquiries"`
	Final       int `json:"credit_score_estimate"`
}

// Inputs are the numeric profile fields the score depends on.
type Inputs struct {
	DelayedPayments  int
	DaysPastDue      int
	UtilizationRatio float64
	OutstandingDebt  float64
	CreditLines      int
}

// Calculator computes scores from profiles.
type Calculator struct{}

// NewCalculator returns a Calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Compute parses the scoring fields of profile and scores them.
// Missing or unparseable fields return an error wrapping domain.ErrInvalidInput.
func (c *Calculator) Compute(profile domain.Profile) (*Result, error) {
	in, err := ParseInputs(profile)
	if err != nil {
		return nil, err
	}
	r := Score(in)
	return &r, nil
}

// ParseInputs extracts the scoring fields from profile.
func ParseInputs(profile domain.Profile) (Inputs, error) {
	var in Inputs
	var err error

	if in.DelayedPayments, err = profile.Int(domain.FieldNumOfDelayedPayment); err != nil {
		return in, err
	}
	if in.DaysPastDue, err = profile.Int(domain.FieldDelayFromDueDate); err != nil {
		return in, err
	}
	if in.UtilizationRatio, err = profile.Float(domain.FieldCreditUtilization); err != nil {
		return in, err
	}
	if in.OutstandingDebt, err = profile.Float(domain.FieldOutstandingDebt); err != nil {
		return in, err
	}
	if in.CreditLines, err = profile.Int(domain.FieldNumCreditCard); err != nil {
		return in, err
	}
	return in, nil
}

// Score applies the scoring formulas. Every sub-score lies in [0, 30] and
// the final score in [500, 850].
func Score(in Inputs) Result {
	repayment := clamp(float64(SubScoreCap - in.DelayedPayments - floorDiv(in.DaysPastDue, 10)))
	utilization := clamp(SubScoreCap - math.Floor(in.UtilizationRatio/3))
	outstanding := clamp(SubScoreCap - in.OutstandingDebt/1000)
	inquiries := clamp(float64(SubScoreCap - in.CreditLines))

	total := Base + repayment + utilization + outstanding + inquiries
	final := int(math.Round(math.Min(total, Max)))

	return Result{
		Repayment:   int(repayment),
		Utilization: int(utilization),
		Outstanding: int(outstanding),
		Inquiries:   int(inquiries),
		Final:       final,
	}
}

// clamp bounds v to [0, SubScoreCap]. NaN counts as 0.
func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(SubScoreCap, v))
}

// floorDiv rounds toward negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
