/**
 * @description
 * Flow definitions: the three instantiations of the wizard engine. Each
 * constructor assembles the flow's ordered step descriptors around the
 * shared validators and wires in the flow's external collaborators.
 *
 * Step sequences:
 *   transfer      recipient → amount → payment → confirmation → success
 *   subscription  recipient → plan-type → plan → payment → confirmation → success
 *   airtime       recipient(eligibility) → amount → confirmation(recharge) → success
 */

package wizard

import (
	"context"

	"github.com/sikapay/wallet-service/internal/domain"
)

// Step names, shared across flows.
const (
	StepRecipient    = "recipient"
	StepAmount       = "amount"
	StepPlanType     = "plan-type"
	StepPlan         = "plan"
	StepPayment      = "payment"
	StepConfirmation = "confirmation"
	StepSuccess      = "success"
)

// Processor executes the payment-processing effect at the confirmation step.
// For transfer and subscription runs this is the simulated processing window;
// a failure surfaces as a ProcessingError and the run stays put.
type Processor interface {
	Process(ctx context.Context, r *Run) error
}

// AirtimeGateway is the aggregator boundary consumed only by airtime runs.
// Implementations return *EligibilityError for explicit business rejections
// of CheckEligibility and *ProcessingError for rejected recharges; any other
// error is treated as a transport failure by the engine.
type AirtimeGateway interface {
	CheckEligibility(ctx context.Context, msisdn string) error
	Recharge(ctx context.Context, msisdn string, amount int64, reference string) error
}

// NewTransferRun creates an airtime-transfer run. Recipient validation is
// lenient here: an unrecognized prefix classifies as "Inconnu" without
// blocking the flow.
func NewTransferRun(ratePercent int, processor Processor) *Run {
	return newRun(domain.FlowTransfer, ratePercent, []Step{
		{Name: StepRecipient, Validate: validateRecipientLenient},
		{Name: StepAmount, Validate: validateAmount},
		{Name: StepPayment, Validate: validatePaymentMethod},
		{Name: StepConfirmation, Effect: processingEffect(processor)},
		{Name: StepSuccess},
	})
}

// NewSubscriptionRun creates a bundle-subscription run.
func NewSubscriptionRun(ratePercent int, processor Processor) *Run {
	return newRun(domain.FlowSubscription, ratePercent, []Step{
		{Name: StepRecipient, Validate: validateRecipientStrict},
		{Name: StepPlanType, Validate: validatePlanType},
		{Name: StepPlan, Validate: validatePlanSelected},
		{Name: StepPayment, Validate: validatePaymentMethod},
		{Name: StepConfirmation, Effect: processingEffect(processor)},
		{Name: StepSuccess},
	})
}

// NewAirtimeRun creates an airtime-recharge run. The recipient step carries
// the gateway eligibility check as its blocking effect; the confirmation
// step executes the actual recharge, correlated by the run's reference.
func NewAirtimeRun(ratePercent int, gateway AirtimeGateway) *Run {
	return newRun(domain.FlowAirtime, ratePercent, []Step{
		{Name: StepRecipient, Validate: validateRecipientStrict, Effect: eligibilityEffect(gateway)},
		{Name: StepAmount, Validate: validateAmount},
		{Name: StepConfirmation, Effect: rechargeEffect(gateway)},
		{Name: StepSuccess},
	})
}

func processingEffect(processor Processor) func(context.Context, *Run) error {
	return func(ctx context.Context, r *Run) error {
		if err := processor.Process(ctx, r); err != nil {
			switch err.(type) {
			case *EligibilityError, *TransportError, *ProcessingError:
				return err
			}
			return &ProcessingError{Err: err}
		}
		return nil
	}
}

func eligibilityEffect(gateway AirtimeGateway) func(context.Context, *Run) error {
	return func(ctx context.Context, r *Run) error {
		msisdn := domain.Internationalize(r.Fields.RecipientPhone)
		return gateway.CheckEligibility(ctx, msisdn)
	}
}

func rechargeEffect(gateway AirtimeGateway) func(context.Context, *Run) error {
	return func(ctx context.Context, r *Run) error {
		msisdn := domain.Internationalize(r.Fields.RecipientPhone)
		return gateway.Recharge(ctx, msisdn, r.BaseAmount(), r.Reference)
	}
}
