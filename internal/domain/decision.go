package domain

import (
	"encoding/json"
	"time"
)

// Decision statuses.
const (
	StatusRejected = "rejected"
	StatusFlagged  = "flagged"
	StatusOK       = "ok"
)

// Summary statuses.
const (
	SummaryGenerated    = "generated"
	SummaryUnavailable  = "unavailable"
	SummaryUnconfigured = "unconfigured"
)

// Decision is the outcome of processing one application.
type Decision struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status"`

	// Rejection
	Reason      string `json:"reason,omitempty"`
	Description string `json:"description,omitempty"`

	Flags []Flag `json:"flags,omitempty"`

	// Scoring
	CreditScore *int `json:"credit_score_estimate,omitempty"`
	Repayment   *int `json:"repayment,omitempty"`
	Utilization *int `json:"utilization,omitempty"`
	Outstanding *int `json:"outstanding,omitempty"`
	Inquiries   *int `json:"inquiries,omitempty"`

	Summary         string   `json:"summary,omitempty"`
	SummaryStatus   string   `json:"summary_status,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`

	// External scoring
	AnomalyScore           *float64        `json:"anomaly_score,omitempty"`
	ExternalRecommendation json.RawMessage `json:"external_recommendation,omitempty"`
	ExternalScoringError   string          `json:"external_scoring_error,omitempty"`

	ProcessMs int64 `json:"processMs,omitempty"`
}

// Application is the persisted record of a scored application.
type Application struct {
	ID        string    `json:"id"`
	Applicant string    `json:"applicant"`
	Profile   Profile   `json:"profile"`
	Decision  *Decision `json:"decision"`
	CreatedAt time.Time `json:"createdAt"`
}
