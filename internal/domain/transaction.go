/**
 * @description
 * This file defines the transaction record produced when a wizard run reaches
 * its terminal step, plus the DTOs used by the history and admin endpoints.
 * Reaching the Success step is the sole commit point: a record is an immutable
 * snapshot of a completed run, never of a partial one.
 *
 * @notes
 * - Amounts are int64 FCFA. Fee is the commission computed by the pricing
 *   engine; Total = Amount + Fee.
 * - Flow-specific detail fields (plan, payment method, operator) are nullable
 *   because each flow fills a different subset.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Flow identifies which wizard variant produced a transaction.
type Flow string

const (
	FlowTransfer     Flow = "transfer"
	FlowSubscription Flow = "subscription"
	FlowAirtime      Flow = "airtime"
)

// ParseFlow converts a URL segment into a Flow. Empty means unrecognized.
func ParseFlow(s string) Flow {
	switch s {
	case "transfer":
		return FlowTransfer
	case "subscription":
		return FlowSubscription
	case "airtime":
		return FlowAirtime
	default:
		return ""
	}
}

// Transaction is the persisted snapshot of a completed wizard run. It maps
// directly to the `transactions` table.
type Transaction struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	Reference      string    `json:"reference"`
	Flow           Flow      `json:"flow"`
	Status         string    `json:"status"` // 'completed', 'failed'
	RecipientPhone string    `json:"recipient_phone"`
	Operator       Operator  `json:"operator,omitempty"`
	Amount         int64     `json:"amount"` // FCFA
	Fee            int64     `json:"fee"`    // commission, FCFA
	Total          int64     `json:"total"`  // FCFA
	PaymentMethod  *string   `json:"payment_method,omitempty"`
	PlanID         *string   `json:"plan_id,omitempty"`
	PlanName       *string   `json:"plan_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// TransactionListOptions controls pagination and filtering for history reads.
type TransactionListOptions struct {
	Limit  int
	Offset int
	Flow   Flow
	Status string
}

// TransactionStats aggregates counts and volumes for the admin dashboard.
// Analytical precision is explicitly out of scope; these are plain counts.
type TransactionStats struct {
	TotalCount     int64            `json:"total_count"`
	CompletedCount int64            `json:"completed_count"`
	FailedCount    int64            `json:"failed_count"`
	TotalVolume    int64            `json:"total_volume"` // sum of Total, FCFA
	CountByFlow    map[string]int64 `json:"count_by_flow"`
}
