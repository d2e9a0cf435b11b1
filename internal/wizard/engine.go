/**
 * @description
 * The wizard engine: one parameterized step state machine backing all three
 * transactional flows (transfer, subscription, airtime recharge). A Run walks
 * an ordered list of steps; each step has a validation predicate gating the
 * forward transition and an optional blocking effect (eligibility check,
 * payment processing) that must resolve before the step index moves.
 *
 * The three flows used to exist as near-duplicate implementations; a single
 * engine instantiated with flow-specific step descriptors and commission
 * rates removes that duplication without changing any per-flow behavior.
 *
 * @notes
 * - A Run is owned by exactly one caller. The engine does not lock: the
 *   IsProcessing flag exists so the caller can refuse a second Advance while
 *   an effect is pending, which is the whole concurrency contract.
 * - Field edits recompute Commission/Total synchronously, so the quote is
 *   never stale for the entered base.
 */

package wizard

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sikapay/wallet-service/internal/domain"
)

// Step is one entry of a flow's ordered step list.
type Step struct {
	// Name identifies the step ("recipient", "amount", ...).
	Name string
	// Validate gates the forward transition. A nil Validate always passes.
	Validate func(r *Run) *ValidationError
	// Effect runs after validation succeeds and must complete before the
	// step index advances. A failing effect keeps the run on this step.
	Effect func(ctx context.Context, r *Run) error
}

// Fields holds the values a run accumulates across steps. Retreating never
// discards any of them.
type Fields struct {
	RecipientPhone string                 `json:"recipient_phone"`
	Amount         string                 `json:"amount"` // raw user input, validated per step
	PlanType       domain.PlanType        `json:"plan_type,omitempty"`
	SelectedPlan   *domain.Plan           `json:"selected_plan,omitempty"`
	PaymentMethod  domain.PaymentMethodID `json:"payment_method,omitempty"`
	PaymentNumber  string                 `json:"payment_number"`
}

// Run is the mutable state of one in-progress transaction.
type Run struct {
	ID          uuid.UUID   `json:"id"`
	Reference   string      `json:"reference"`
	Flow        domain.Flow `json:"flow"`
	RatePercent int         `json:"rate_percent"`
	// StepIndex is 1-based and bounded by the flow's step count.
	StepIndex    int          `json:"step_index"`
	Fields       Fields       `json:"fields"`
	Quote        domain.Quote `json:"quote"`
	IsProcessing bool         `json:"is_processing"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`

	steps []Step
}

func newRun(flow domain.Flow, ratePercent int, steps []Step) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:          uuid.New(),
		Reference:   newReference(flow),
		Flow:        flow,
		RatePercent: ratePercent,
		StepIndex:   1,
		CreatedAt:   now,
		UpdatedAt:   now,
		steps:       steps,
	}
}

// newReference generates the flow-unique correlation reference handed to the
// gateway. Generated exactly once, at run creation.
func newReference(flow domain.Flow) string {
	prefix := map[domain.Flow]string{
		domain.FlowTransfer:     "TRF",
		domain.FlowSubscription: "SUB",
		domain.FlowAirtime:      "AIR",
	}[flow]
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return prefix + "-" + strings.ToUpper(raw[:12])
}

// TotalSteps returns the flow's step count.
func (r *Run) TotalSteps() int { return len(r.steps) }

// StepName returns the current step's name.
func (r *Run) StepName() string { return r.steps[r.StepIndex-1].Name }

// StepNames lists the flow's steps in order.
func (r *Run) StepNames() []string {
	names := make([]string, len(r.steps))
	for i, s := range r.steps {
		names[i] = s.Name
	}
	return names
}

// AtTerminal reports whether the run has reached its Success step.
func (r *Run) AtTerminal() bool { return r.StepIndex == len(r.steps) }

// Advance runs the current step's validation and effect, then increments the
// step index. On a validation failure the returned *ValidationError names the
// field and the run does not move. A failing effect keeps the run on the
// current step and returns the effect's taxonomy error. Advance on the
// terminal step returns ErrRunComplete.
func (r *Run) Advance(ctx context.Context) error {
	if r.IsProcessing {
		return ErrRunBusy
	}
	if r.AtTerminal() {
		return ErrRunComplete
	}

	step := r.steps[r.StepIndex-1]
	if step.Validate != nil {
		if verr := step.Validate(r); verr != nil {
			return verr
		}
	}

	if step.Effect != nil {
		r.IsProcessing = true
		err := step.Effect(ctx, r)
		r.IsProcessing = false
		if err != nil {
			return coerceEffectError(err)
		}
	}

	r.StepIndex++
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// coerceEffectError keeps taxonomy errors as-is and wraps anything else as a
// transport failure, so no raw gateway error ever crosses the engine boundary.
func coerceEffectError(err error) error {
	switch err.(type) {
	case *ValidationError, *EligibilityError, *TransportError, *ProcessingError:
		return err
	}
	return &TransportError{Err: err}
}

// Retreat moves one step back, preserving every entered field. At step 1 it
// reports true: the run is abandoned and the caller discards it.
func (r *Run) Retreat() (abandoned bool) {
	if r.StepIndex <= 1 {
		return true
	}
	r.StepIndex--
	r.UpdatedAt = time.Now().UTC()
	return false
}

// SetRecipientPhone records the target phone number. In the subscription flow
// a recipient change clears the selected plan unconditionally, since the
// operator may have changed and invalidated the previous choice.
func (r *Run) SetRecipientPhone(phone string) {
	r.Fields.RecipientPhone = strings.TrimSpace(phone)
	if r.Flow == domain.FlowSubscription {
		r.clearSelectedPlan()
	}
	r.touch()
}

// SetAmount records the raw amount input and reprices synchronously from the
// flow's base quantity. In the subscription flow the base is the selected
// plan's price, so a stray amount edit never perturbs the quote there. A
// non-numeric value simply yields a zero quote; the amount step's validator
// is what reports it to the user.
func (r *Run) SetAmount(amount string) {
	r.Fields.Amount = strings.TrimSpace(amount)
	r.Quote = domain.PriceQuote(r.BaseAmount(), r.RatePercent)
	r.touch()
}

// SetPlanType records the bundle type and clears any selection made under the
// previous type.
func (r *Run) SetPlanType(t domain.PlanType) {
	r.Fields.PlanType = t
	r.clearSelectedPlan()
	r.touch()
}

// SelectPlan resolves a plan id within the bucket of the current recipient's
// operator and the chosen plan type, then reprices against the plan's price.
func (r *Run) SelectPlan(planID string) *ValidationError {
	op := domain.Classify(r.Fields.RecipientPhone)
	plan, ok := domain.PlanByID(op, r.Fields.PlanType, planID)
	if !ok {
		return &ValidationError{Field: "plan", Message: "Ce forfait n'est pas disponible pour cet opérateur"}
	}
	r.Fields.SelectedPlan = &plan
	r.Quote = domain.PriceQuote(plan.Price, r.RatePercent)
	r.touch()
	return nil
}

// SetPaymentMethod records the payment channel and clears any previously
// entered payment number, so a stale number is never validated against the
// new method's rule.
func (r *Run) SetPaymentMethod(id domain.PaymentMethodID) {
	r.Fields.PaymentMethod = id
	r.Fields.PaymentNumber = ""
	r.touch()
}

// SetPaymentNumber records the payment-source phone number.
func (r *Run) SetPaymentNumber(number string) {
	r.Fields.PaymentNumber = strings.TrimSpace(number)
	r.touch()
}

// Operator classifies the current recipient phone.
func (r *Run) Operator() domain.Operator {
	return domain.Classify(r.Fields.RecipientPhone)
}

// BaseAmount returns the priced quantity: the parsed amount for transfer and
// airtime runs, the selected plan's price for subscription runs.
func (r *Run) BaseAmount() int64 {
	if r.Flow == domain.FlowSubscription {
		if r.Fields.SelectedPlan == nil {
			return 0
		}
		return r.Fields.SelectedPlan.Price
	}
	base, _ := strconv.ParseInt(r.Fields.Amount, 10, 64)
	return base
}

func (r *Run) clearSelectedPlan() {
	r.Fields.SelectedPlan = nil
	r.Quote = domain.Quote{}
}

func (r *Run) touch() {
	r.UpdatedAt = time.Now().UTC()
}
