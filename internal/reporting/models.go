package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// UsageSummaryRequest requests aggregated call metrics.
// OtomoID optionally narrows the summary to one companion.

type UsageSummaryRequest struct {
	Range   TimeRange `json:"range"`
	OtomoID string    `json:"otomo_id,omitempty"`
}

type UsageSummary struct {
	OtomoID string `json:"otomo_id,omitempty"`

	TotalCalls    int `json:"total_calls"`
	EndedCalls    int `json:"ended_calls"`
	RejectedCalls int `json:"rejected_calls"`
	FailedCalls   int `json:"failed_calls"`
	// OpenCalls counts sessions that were still in flight at read time.
	OpenCalls int `json:"open_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	TotalBilledUnits   int   `json:"total_billed_units"`
	TotalChargedPoints int64 `json:"total_charged_points"`
}

// SpendSummaryRequest requests aggregated point movement for one user.
// Spend is derived from immutable wallet ledger entries.

type SpendSummaryRequest struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`
}

type SpendSummary struct {
	UserID string `json:"user_id"`

	TotalDebitPoints  int64 `json:"total_debit_points"`
	TotalCreditPoints int64 `json:"total_credit_points"`
	NetDeltaPoints    int64 `json:"net_delta_points"`
}
