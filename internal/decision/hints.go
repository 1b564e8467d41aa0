package decision

import "github.com/opensource-finance/merlin/internal/domain"

// Hint texts.
const (
	HintUtilization = "Reduce credit utilization below 30%"
	HintDelayed     = "Avoid delayed payments by enabling auto-pay"
	HintDebt        = "Consolidate loans if outstanding debt is high"
	HintDefault     = "Maintain current credit habits for gradual improvement."
)

// Hints derives presentation hints from fixed thresholds. They never affect
// the verdict. Unparseable fields do not produce a hint.
func Hints(p domain.Profile, cfg domain.HintConfig) []string {
	var hints []string

	if v, err := p.Float(domain.FieldCreditUtilization); err == nil && v > cfg.UtilizationAbove {
		hints = append(hints, HintUtilization)
	}
	if v, err := p.Float(domain.FieldNumOfDelayedPayment); err == nil && v > float64(cfg.DelayedPaymentsAbove) {
		hints = append(hints, HintDelayed)
	}
	if v, err := p.Float(domain.FieldOutstandingDebt); err == nil && v > cfg.DebtAbove {
		hints = append(hints, HintDebt)
	}

	if len(hints) == 0 {
		hints = append(hints, HintDefault)
	}
	return hints
}
