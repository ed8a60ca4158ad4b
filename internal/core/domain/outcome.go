package domain

import "time"

type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeSoldOut         Outcome = "sold_out"
	OutcomeFailure         Outcome = "failure"
	OutcomeSystemError     Outcome = "system_error"
	OutcomeProductNotFound Outcome = "product_not_found"
)

// Retryable reports whether a caller may safely repeat the request. Both
// cases leave the gate counter at its pre-attempt value.
func (o Outcome) Retryable() bool {
	return o == OutcomeFailure || o == OutcomeSystemError
}

// PurchaseResult describes how one purchase attempt terminated.
// GateRemaining and DurableRemaining are set only on success.
type PurchaseResult struct {
	Outcome          Outcome
	ProductID        int64
	AttemptID        string
	GateRemaining    int64
	DurableRemaining int64
	ErrorDetail      string
	CompletedAt      time.Time
}

type ResyncResult struct {
	Outcome     Outcome
	ProductID   int64
	Stock       int64
	ErrorDetail string
}
