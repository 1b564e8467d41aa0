package explain

import (
	"strings"
	"text/template"

	"github.com/opensource-finance/merlin/internal/domain"
)

// SystemPrompt frames the model as a credit analyst.
const SystemPrompt = "You are a credit analyst helping users understand their credit risk briefly and clearly."

var profileTemplate = template.Must(template.New("profile").Parse(`Based on this financial profile:
- Name: {{.Name}}
- Age: {{.Age}}
- Occupation: {{.Occupation}}
- Annual Income: {{.AnnualIncome}}
- Credit Utilization Ratio: {{.Utilization}}
- Number of Delayed Payments: {{.DelayedPayments}}
- Outstanding Debt: {{.OutstandingDebt}}

Summarize their credit risk and recommend the most important steps to improve their score.`))

// ProfilePrompt renders the explanation prompt for p. Missing fields render empty.
func ProfilePrompt(p domain.Profile) string {
	var b strings.Builder
	// Execute only fails on writer errors, which a Builder never returns.
	_ = profileTemplate.Execute(&b, struct {
		Name, Age, Occupation, AnnualIncome, Utilization, DelayedPayments, OutstandingDebt string
	}{
		Name:            p.Get(domain.FieldName),
		Age:             p.Get(domain.FieldAge),
		Occupation:      p.Get(domain.FieldOccupation),
		AnnualIncome:    p.Get(domain.FieldAnnualIncome),
		Utilization:     p.Get(domain.FieldCreditUtilization),
		DelayedPayments: p.Get(domain.FieldNumOfDelayedPayment),
		OutstandingDebt: p.Get(domain.FieldOutstandingDebt),
	})
	return b.String()
}
