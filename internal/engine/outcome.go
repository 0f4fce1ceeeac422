package engine

// OutcomeStatus is the per-plan result of one tick.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomeSkipped OutcomeStatus = "skipped"
)

// Skip and failure reasons surfaced in the batch response and logs.
const (
	ReasonNoExternalRef       = "no external reference"
	ReasonInsufficientBalance = "insufficient balance"
	ReasonInsufficientAuth    = "insufficient authorization"
	ReasonLedgerUnavailable   = "ledger unavailable"
	ReasonClaimedElsewhere    = "claimed by another run"
	ReasonInterrupted         = "interrupted before submission"
	ReasonAlreadyHandled      = "already handled"
	ReasonSubmissionRejected  = "submission rejected"
	ReasonConfirmationTimeout = "confirmation timeout"
	ReasonSettlementReverted  = "settlement reverted"
	ReasonConfirmationFailed  = "confirmation failed"
)

// Outcome is transient per-plan state; it is never persisted beyond
// the batch summary and the notification it causes.
type Outcome struct {
	PlanID        string        `json:"planId"`
	Status        OutcomeStatus `json:"status"`
	Reason        string        `json:"reason,omitempty"`
	SettlementRef string        `json:"settlementRef,omitempty"`
}

func Success(planID, settlementRef string) Outcome {
	return Outcome{PlanID: planID, Status: OutcomeSuccess, SettlementRef: settlementRef}
}

func Failed(planID, reason string) Outcome {
	return Outcome{PlanID: planID, Status: OutcomeFailed, Reason: reason}
}

func Skipped(planID, reason string) Outcome {
	return Outcome{PlanID: planID, Status: OutcomeSkipped, Reason: reason}
}

// Summary aggregates one tick's outcomes.
type Summary struct {
	Processed int       `json:"processed"`
	Executed  int       `json:"executed"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Results   []Outcome `json:"results"`
}

// Summarize folds outcomes into counters in one pass.
func Summarize(results []Outcome) Summary {
	summary := Summary{Processed: len(results), Results: results}
	for _, outcome := range results {
		switch outcome.Status {
		case OutcomeSuccess:
			summary.Executed++
		case OutcomeFailed:
			summary.Failed++
		case OutcomeSkipped:
			summary.Skipped++
		}
	}
	return summary
}
