package wizard

import (
	"context"
	"errors"
	"testing"

	"github.com/sikapay/wallet-service/internal/domain"
)

type fakeProcessor struct {
	err   error
	calls int
}

func (f *fakeProcessor) Process(ctx context.Context, r *Run) error {
	f.calls++
	return f.err
}

type fakeGateway struct {
	eligibilityErr error
	rechargeErr    error
	lastMSISDN     string
	lastAmount     int64
	lastReference  string
}

func (f *fakeGateway) CheckEligibility(ctx context.Context, msisdn string) error {
	f.lastMSISDN = msisdn
	return f.eligibilityErr
}

func (f *fakeGateway) Recharge(ctx context.Context, msisdn string, amount int64, reference string) error {
	f.lastMSISDN = msisdn
	f.lastAmount = amount
	f.lastReference = reference
	return f.rechargeErr
}

func mustAdvance(t *testing.T, r *Run) {
	t.Helper()
	if err := r.Advance(context.Background()); err != nil {
		t.Fatalf("advance from step %d (%s) failed: %v", r.StepIndex, r.StepName(), err)
	}
}

func TestTransferFlowEndToEnd(t *testing.T) {
	proc := &fakeProcessor{}
	r := NewTransferRun(3, proc)

	if r.TotalSteps() != 5 {
		t.Fatalf("expected 5 transfer steps, got %d", r.TotalSteps())
	}
	if r.Reference == "" {
		t.Fatal("expected a reference generated at creation")
	}

	r.SetRecipientPhone("0712345678")
	if got := r.Operator(); got != domain.OperatorOrange {
		t.Fatalf("expected orange recipient, got %q", got)
	}
	mustAdvance(t, r)

	r.SetAmount("5000")
	if r.Quote.Commission != 150 || r.Quote.Total != 5150 {
		t.Fatalf("expected commission 150 / total 5150, got %+v", r.Quote)
	}
	mustAdvance(t, r)

	r.SetPaymentMethod(domain.PaymentOrangeMoney)
	r.SetPaymentNumber("0798765432")
	mustAdvance(t, r)

	// Confirmation runs the processing effect before reaching Success.
	mustAdvance(t, r)
	if proc.calls != 1 {
		t.Fatalf("expected processing effect to run once, ran %d times", proc.calls)
	}
	if !r.AtTerminal() || r.StepName() != StepSuccess {
		t.Fatalf("expected terminal success step, at %d (%s)", r.StepIndex, r.StepName())
	}
	if r.Quote.Commission != 150 || r.Quote.Total != 5150 {
		t.Fatalf("terminal quote changed: %+v", r.Quote)
	}

	// Advancing past the terminal step signals completion, nothing more.
	if err := r.Advance(context.Background()); !errors.Is(err, ErrRunComplete) {
		t.Fatalf("expected ErrRunComplete, got %v", err)
	}
}

func TestTransferToleratesUnknownPrefix(t *testing.T) {
	r := NewTransferRun(3, &fakeProcessor{})
	r.SetRecipientPhone("0212345678")
	if err := r.Advance(context.Background()); err != nil {
		t.Fatalf("transfer flow must tolerate unrecognized prefixes, got %v", err)
	}
	if got := r.Operator().DisplayName(); got != "Inconnu" {
		t.Fatalf("expected operator badge Inconnu, got %q", got)
	}
}

func TestRecipientValidation(t *testing.T) {
	tests := []struct {
		name      string
		phone     string
		wantField string
	}{
		{name: "valid", phone: "0712345678"},
		{name: "unrecognized_prefix", phone: "0212345678", wantField: "recipientPhone"},
		{name: "nine_digits", phone: "071234567", wantField: "recipientPhone"},
		{name: "empty", phone: "", wantField: "recipientPhone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewSubscriptionRun(2, &fakeProcessor{})
			r.SetRecipientPhone(tt.phone)
			err := r.Advance(context.Background())
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("expected %q to validate, got %v", tt.phone, err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error for %q, got %v", tt.phone, err)
			}
			if verr.Field != tt.wantField {
				t.Fatalf("expected field %q, got %q", tt.wantField, verr.Field)
			}
			if r.StepIndex != 1 {
				t.Fatalf("run moved off step 1 on a validation failure: %d", r.StepIndex)
			}
		})
	}
}

func TestAmountBounds(t *testing.T) {
	tests := []struct {
		amount string
		valid  bool
	}{
		{amount: "99", valid: false},
		{amount: "100", valid: true},
		{amount: "100000", valid: true},
		{amount: "100001", valid: false},
		{amount: "", valid: false},
		{amount: "abc", valid: false},
	}

	for _, tt := range tests {
		t.Run("amount_"+tt.amount, func(t *testing.T) {
			r := NewTransferRun(3, &fakeProcessor{})
			r.SetRecipientPhone("0712345678")
			mustAdvance(t, r)

			r.SetAmount(tt.amount)
			err := r.Advance(context.Background())
			if tt.valid && err != nil {
				t.Fatalf("expected %q to be a valid amount, got %v", tt.amount, err)
			}
			if !tt.valid {
				var verr *ValidationError
				if !errors.As(err, &verr) || verr.Field != "amount" {
					t.Fatalf("expected amount validation error for %q, got %v", tt.amount, err)
				}
			}
		})
	}
}

func TestPaymentMethodChangeClearsNumber(t *testing.T) {
	r := NewTransferRun(3, &fakeProcessor{})
	r.SetPaymentMethod(domain.PaymentOrangeMoney)
	r.SetPaymentNumber("0712345678")
	r.SetPaymentMethod(domain.PaymentWave)
	if r.Fields.PaymentNumber != "" {
		t.Fatalf("payment number not cleared on method change: %q", r.Fields.PaymentNumber)
	}
}

func TestSubscriptionRecipientChangeClearsPlan(t *testing.T) {
	r := NewSubscriptionRun(2, &fakeProcessor{})
	r.SetRecipientPhone("0712345678")
	r.SetPlanType(domain.PlanTypeInternet)
	if verr := r.SelectPlan("org-net-300"); verr != nil {
		t.Fatalf("plan selection failed: %v", verr)
	}
	if r.Fields.SelectedPlan == nil {
		t.Fatal("expected a selected plan")
	}

	r.SetRecipientPhone("0512345678")
	if r.Fields.SelectedPlan != nil {
		t.Fatal("selected plan survived a recipient change")
	}
	if r.Quote != (domain.Quote{}) {
		t.Fatalf("quote not reset with the plan: %+v", r.Quote)
	}
}

func TestSubscriptionEndToEndPayLater(t *testing.T) {
	r := NewSubscriptionRun(2, &fakeProcessor{})

	r.SetRecipientPhone("0712345678")
	mustAdvance(t, r)

	r.SetPlanType(domain.PlanTypeInternet)
	mustAdvance(t, r)

	if verr := r.SelectPlan("org-net-300"); verr != nil {
		t.Fatalf("plan selection failed: %v", verr)
	}
	if r.Quote.Commission != 6 || r.Quote.Total != 306 {
		t.Fatalf("expected commission 6 / total 306, got %+v", r.Quote)
	}
	mustAdvance(t, r)

	// Pay Later requires no payment number at all.
	r.SetPaymentMethod(domain.PaymentPayLater)
	mustAdvance(t, r)

	mustAdvance(t, r)
	if !r.AtTerminal() {
		t.Fatalf("expected terminal step, at %d", r.StepIndex)
	}
	if r.BaseAmount() != 300 {
		t.Fatalf("expected plan price as base, got %d", r.BaseAmount())
	}
}

func TestSelectPlanRejectsWrongOperator(t *testing.T) {
	r := NewSubscriptionRun(2, &fakeProcessor{})
	r.SetRecipientPhone("0512345678") // MTN
	r.SetPlanType(domain.PlanTypeInternet)
	if verr := r.SelectPlan("org-net-300"); verr == nil {
		t.Fatal("orange plan selected for an mtn recipient")
	}
}

func TestRetreatPreservesFieldsAndIsIdempotentWithAdvance(t *testing.T) {
	r := NewTransferRun(3, &fakeProcessor{})
	r.SetRecipientPhone("0712345678")
	mustAdvance(t, r)
	r.SetAmount("5000")
	mustAdvance(t, r)

	before := r.Fields
	quoteBefore := r.Quote
	stepBefore := r.StepIndex

	if abandoned := r.Retreat(); abandoned {
		t.Fatal("retreat from step 3 must not abandon the run")
	}
	if r.Fields != before {
		t.Fatalf("fields changed across retreat: %+v != %+v", r.Fields, before)
	}
	mustAdvance(t, r)

	if r.StepIndex != stepBefore {
		t.Fatalf("retreat+advance landed on step %d, expected %d", r.StepIndex, stepBefore)
	}
	if r.Fields != before || r.Quote != quoteBefore {
		t.Fatal("retreat+advance round trip mutated run state")
	}
}

func TestRetreatAtFirstStepAbandons(t *testing.T) {
	r := NewTransferRun(3, &fakeProcessor{})
	if abandoned := r.Retreat(); !abandoned {
		t.Fatal("retreat at step 1 must signal abandonment")
	}
	if r.StepIndex != 1 {
		t.Fatalf("abandoned run moved to step %d", r.StepIndex)
	}
}

func TestAdvanceWhileProcessingIsRefused(t *testing.T) {
	r := NewTransferRun(3, &fakeProcessor{})
	r.IsProcessing = true
	if err := r.Advance(context.Background()); !errors.Is(err, ErrRunBusy) {
		t.Fatalf("expected ErrRunBusy, got %v", err)
	}
}

func TestProcessingFailureStaysOnConfirmation(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("issuer timeout")}
	r := NewTransferRun(3, proc)
	r.SetRecipientPhone("0712345678")
	mustAdvance(t, r)
	r.SetAmount("5000")
	mustAdvance(t, r)
	r.SetPaymentMethod(domain.PaymentPayLater)
	mustAdvance(t, r)

	err := r.Advance(context.Background())
	var perr *ProcessingError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProcessingError, got %v", err)
	}
	if r.StepName() != StepConfirmation {
		t.Fatalf("run moved off confirmation after a processing failure: %s", r.StepName())
	}
	if r.IsProcessing {
		t.Fatal("IsProcessing flag left set after a failed effect")
	}
}

func TestSubscriptionAmountEditDoesNotRepriceQuote(t *testing.T) {
	r := NewSubscriptionRun(2, &fakeProcessor{})
	r.SetRecipientPhone("0712345678")
	r.SetPlanType(domain.PlanTypeInternet)
	if verr := r.SelectPlan("org-net-300"); verr != nil {
		t.Fatalf("select plan failed: %v", verr)
	}
	if r.Quote.Commission != 6 || r.Quote.Total != 306 {
		t.Fatalf("expected quote 6/306 after selection, got %+v", r.Quote)
	}

	// A stray amount edit must not perturb the plan-priced quote.
	r.SetAmount("100000")

	if r.Quote.Commission != 6 || r.Quote.Total != 306 {
		t.Fatalf("amount edit repriced a subscription quote: %+v", r.Quote)
	}
	base := r.BaseAmount()
	if base != 300 {
		t.Fatalf("expected base to stay at the plan price 300, got %d", base)
	}
	if r.Quote.Total != base+r.Quote.Commission {
		t.Fatalf("total %d != base %d + commission %d", r.Quote.Total, base, r.Quote.Commission)
	}
}
