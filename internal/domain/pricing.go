/**
 * @description
 * Commission pricing for wizard flows. Every flow charges a small percentage
 * commission on top of the base amount: 3% for transfers and airtime
 * recharges, 2% for bundle subscriptions. The rate is a flow-level constant
 * configured at startup, never user input.
 *
 * @notes
 * - Amounts are int64 in FCFA, the smallest currency unit, so commission is
 *   computed with integer arithmetic: (base*rate + 50) / 100 is round-half-up
 *   of base*rate/100 without ever touching floating point.
 */

package domain

// Quote is the derived pricing pair for a wizard run. It must be recomputed
// synchronously whenever the priced base changes; a run never displays a
// stale Commission/Total for the currently entered base.
type Quote struct {
	Commission int64 `json:"commission"`
	Total      int64 `json:"total"`
}

// PriceQuote computes the commission and total for a base amount at the given
// percentage rate. Commission rounds half-up; a zero or negative base yields a
// zero quote rather than an error.
func PriceQuote(base int64, ratePercent int) Quote {
	if base <= 0 || ratePercent <= 0 {
		return Quote{}
	}
	commission := (base*int64(ratePercent) + 50) / 100
	return Quote{
		Commission: commission,
		Total:      base + commission,
	}
}
