package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Profile is an applicant's financial profile as raw field values.
// It is built once per request and treated as read-only afterwards.
type Profile map[string]string

// Known profile fields.
const (
	FieldCustomerID          = "customer_id"
	FieldName                = "name"
	FieldAge                 = "age"
	FieldOccupation          = "occupation"
	FieldAnnualIncome        = "annual_income"
	FieldMonthlySalary       = "monthly_inhand_salary"
	FieldNumBankAccounts     = "num_bank_accounts"
	FieldNumCreditCard       = "num_credit_card"
	FieldInterestRate        = "interest_rate"
	FieldNumOfLoan           = "num_of_loan"
	FieldTypeOfLoan          = "type_of_loan"
	FieldDelayFromDueDate    = "delay_from_due_date"
	FieldNumOfDelayedPayment = "num_of_delayed_payment"
	FieldCreditMix           = "credit_mix"
	FieldOutstandingDebt     = "outstanding_debt"
	FieldCreditUtilization   = "credit_utilization_ratio"
	FieldCreditHistoryAge    = "credit_history_age"
	FieldTotalEMIPerMonth    = "total_emi_per_month"
	FieldRecentApplications  = "recent_applications"
)

// NewProfile converts decoded JSON values into a Profile.
// Strings are kept verbatim, numbers and booleans use their canonical form.
// Objects and arrays are rejected.
func NewProfile(raw map[string]any) (Profile, error) {
	p := make(Profile, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			p[k] = val
		case bool:
			p[k] = strconv.FormatBool(val)
		case float64:
			p[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case int:
			p[k] = strconv.Itoa(val)
		case int64:
			p[k] = strconv.FormatInt(val, 10)
		case fmt.Stringer:
			p[k] = val.String()
		default:
			return nil, fmt.Errorf("%w: field %q must be a scalar", ErrInvalidInput, k)
		}
	}
	return p, nil
}

// Lookup returns the value of field, matching the exact key first, then the
// lower-cased key, then any other case variant.
func (p Profile) Lookup(field string) (string, bool) {
	if v, ok := p[field]; ok {
		return v, true
	}
	if lower := strings.ToLower(field); lower != field {
		if v, ok := p[lower]; ok {
			return v, true
		}
	}
	// Among several case variants the lexically smallest key wins.
	var (
		match string
		value string
		found bool
	)
	for k, v := range p {
		if strings.EqualFold(k, field) && (!found || k < match) {
			match, value, found = k, v, true
		}
	}
	return value, found
}

// Get returns the value of field or an empty string.
func (p Profile) Get(field string) string {
	v, _ := p.Lookup(field)
	return v
}

// Int parses field as an integer. Whole-valued decimals such as "3.0" are accepted.
func (p Profile) Int(field string) (int, error) {
	v, ok := p.Lookup(field)
	if !ok {
		return 0, fmt.Errorf("%w: missing field %s", ErrInvalidInput, field)
	}
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.Abs(f) > 1<<53 || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: field %s is not an integer: %q", ErrInvalidInput, field, v)
	}
	return int(f), nil
}

// Float parses field as a finite floating point number. NaN and infinities
// are rejected.
func (p Profile) Float(field string) (float64, error) {
	v, ok := p.Lookup(field)
	if !ok {
		return 0, fmt.Errorf("%w: missing field %s", ErrInvalidInput, field)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: field %s is not a finite number: %q", ErrInvalidInput, field, v)
	}
	return f, nil
}

// Applicant identifies who submitted the profile: the customer id when
// present, otherwise the name.
func (p Profile) Applicant() string {
	if id := strings.TrimSpace(p.Get(FieldCustomerID)); id != "" {
		return id
	}
	return strings.TrimSpace(p.Get(FieldName))
}

// With returns a copy of the profile with field set to value.
func (p Profile) With(field, value string) Profile {
	out := make(Profile, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	out[field] = value
	return out
}
