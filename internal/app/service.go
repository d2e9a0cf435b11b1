/**
 * @description
 * This file contains the core business logic of the wallet-service. The
 * `Service` struct owns the in-progress wizard runs, wires each flow's
 * external collaborators (airtime gateway, simulated payment processing),
 * records the snapshot of a completed run through the repository, and
 * publishes completion events to RabbitMQ.
 *
 * Key features:
 * - One session per run, owned by exactly one user. The engine itself does
 *   no locking; the service owns the concurrency contract. A per-session
 *   mutex serializes every run mutation, and a second caller arriving while
 *   an effect is in flight gets ErrRunBusy instead of blocking.
 * - Recording is fire-and-forget relative to the run: the terminal Success
 *   state is inherent to wizard completion, not to the insert succeeding.
 *
 * @dependencies
 * - context, errors, log, sync, time: Standard Go libraries.
 * - github.com/google/uuid: For run and transaction identifiers.
 * - internal/domain, internal/store, internal/wizard: Domain models, data access, the step engine.
 * - pkg/rabbitmq, pkg/topupclient: External service communication.
 */

package app

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sikapay/wallet-service/internal/domain"
	"github.com/sikapay/wallet-service/internal/store"
	"github.com/sikapay/wallet-service/internal/wizard"
	"github.com/sikapay/wallet-service/pkg/rabbitmq"
	"github.com/sikapay/wallet-service/pkg/topupclient"
)

var (
	// ErrRunNotFound is returned when a run id does not resolve to a live
	// session owned by the caller.
	ErrRunNotFound = errors.New("wizard run not found")
	// ErrUnknownFlow is returned for a flow segment outside the three variants.
	ErrUnknownFlow = errors.New("unknown wizard flow")
	// ErrGatewayNotConfigured is returned when an airtime run is requested
	// but no aggregator client was configured at startup.
	ErrGatewayNotConfigured = errors.New("airtime gateway is not configured")
	// ErrEligibilityRateLimited is returned when the per-number eligibility
	// check budget is exhausted.
	ErrEligibilityRateLimited = errors.New("too many eligibility checks for this number")
)

// Rates carries the flow-level commission percentages.
type Rates struct {
	Transfer     int
	Subscription int
	Airtime      int
}

// RateLimiter throttles eligibility checks. Implemented by the Redis limiter;
// a nil limiter disables throttling.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

type runSession struct {
	userID uuid.UUID
	run    *wizard.Run
	// mu serializes all mutations of run. Mutators acquire it with TryLock:
	// a failed acquisition means an effect is in flight and surfaces as
	// ErrRunBusy rather than blocking the caller.
	mu sync.Mutex
}

// Service provides the core business logic for wizard runs and transactions.
type Service struct {
	repo            store.Repository
	gateway         *topupclient.Client
	producer        rabbitmq.Publisher
	eventExchange   string
	rates           Rates
	processingDelay time.Duration
	runTTL          time.Duration

	rateLimiter          RateLimiter
	eligibilityPerMinute int

	mu   sync.Mutex
	runs map[uuid.UUID]*runSession
}

// NewService creates a new wallet service instance. gateway may be nil, in
// which case airtime runs are refused while the other flows keep working.
func NewService(
	repo store.Repository,
	gateway *topupclient.Client,
	producer rabbitmq.Publisher,
	eventExchange string,
	rates Rates,
	processingDelay time.Duration,
	runTTL time.Duration,
) *Service {
	return &Service{
		repo:            repo,
		gateway:         gateway,
		producer:        producer,
		eventExchange:   eventExchange,
		rates:           rates,
		processingDelay: processingDelay,
		runTTL:          runTTL,
		runs:            make(map[uuid.UUID]*runSession),
	}
}

// SetEligibilityRateLimiter enables per-number throttling of gateway
// eligibility checks.
func (s *Service) SetEligibilityRateLimiter(limiter RateLimiter, perMinute int) {
	s.rateLimiter = limiter
	s.eligibilityPerMinute = perMinute
}

// StartRun creates a new wizard run of the requested flow for the user.
func (s *Service) StartRun(userID uuid.UUID, flow domain.Flow) (*wizard.Run, error) {
	var run *wizard.Run
	switch flow {
	case domain.FlowTransfer:
		run = wizard.NewTransferRun(s.rates.Transfer, s)
	case domain.FlowSubscription:
		run = wizard.NewSubscriptionRun(s.rates.Subscription, s)
	case domain.FlowAirtime:
		if s.gateway == nil {
			return nil, ErrGatewayNotConfigured
		}
		run = wizard.NewAirtimeRun(s.rates.Airtime, &airtimeGateway{client: s.gateway})
	default:
		return nil, ErrUnknownFlow
	}

	s.mu.Lock()
	s.runs[run.ID] = &runSession{userID: userID, run: run}
	s.mu.Unlock()

	log.Printf("level=info component=app op=start_run flow=%s run_id=%s reference=%s", flow, run.ID, run.Reference)
	return run, nil
}

// GetRun returns a live run owned by the user.
func (s *Service) GetRun(userID, runID uuid.UUID) (*wizard.Run, error) {
	session, err := s.session(userID, runID)
	if err != nil {
		return nil, err
	}
	return session.run, nil
}

func (s *Service) session(userID, runID uuid.UUID) (*runSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.runs[runID]
	if !ok || session.userID != userID {
		return nil, ErrRunNotFound
	}
	return session, nil
}

// RunPatch carries partial field edits for a run. Nil fields are untouched.
type RunPatch struct {
	RecipientPhone *string `json:"recipient_phone,omitempty"`
	Amount         *string `json:"amount,omitempty"`
	PlanType       *string `json:"plan_type,omitempty"`
	PlanID         *string `json:"plan_id,omitempty"`
	PaymentMethod  *string `json:"payment_method,omitempty"`
	PaymentNumber  *string `json:"payment_number,omitempty"`
}

// UpdateRun applies field edits to a run. Edits are applied in dependency
// order (recipient before plan, method before number) so that the engine's
// clearing rules fire the way a user interacting step by step would see them.
func (s *Service) UpdateRun(userID, runID uuid.UUID, patch RunPatch) (*wizard.Run, error) {
	session, err := s.session(userID, runID)
	if err != nil {
		return nil, err
	}
	if !session.mu.TryLock() {
		return nil, wizard.ErrRunBusy
	}
	defer session.mu.Unlock()
	run := session.run

	if patch.RecipientPhone != nil {
		run.SetRecipientPhone(*patch.RecipientPhone)
	}
	if patch.PlanType != nil {
		t := domain.ParsePlanType(*patch.PlanType)
		if t == "" {
			return nil, &wizard.ValidationError{Field: "planType", Message: "Type de forfait invalide"}
		}
		run.SetPlanType(t)
	}
	if patch.PlanID != nil {
		if verr := run.SelectPlan(*patch.PlanID); verr != nil {
			return nil, verr
		}
	}
	if patch.Amount != nil {
		run.SetAmount(*patch.Amount)
	}
	if patch.PaymentMethod != nil {
		run.SetPaymentMethod(domain.PaymentMethodID(*patch.PaymentMethod))
	}
	if patch.PaymentNumber != nil {
		run.SetPaymentNumber(*patch.PaymentNumber)
	}
	return run, nil
}

// Advance moves a run forward one step. When the run reaches its terminal
// step the completed snapshot is recorded and a completion event published;
// advancing past the terminal step discards the run and reports completed.
func (s *Service) Advance(ctx context.Context, userID, runID uuid.UUID) (run *wizard.Run, completed bool, err error) {
	session, err := s.session(userID, runID)
	if err != nil {
		return nil, false, err
	}
	if !session.mu.TryLock() {
		return session.run, false, wizard.ErrRunBusy
	}
	defer session.mu.Unlock()
	run = session.run

	if err := s.consumeEligibilityBudget(ctx, run); err != nil {
		return run, false, err
	}

	wasTerminal := run.AtTerminal()
	if err := run.Advance(ctx); err != nil {
		if errors.Is(err, wizard.ErrRunComplete) {
			s.discard(runID)
			return run, true, nil
		}
		return run, false, err
	}

	if !wasTerminal && run.AtTerminal() {
		s.commitRun(ctx, userID, run)
	}
	return run, false, nil
}

// Retreat moves a run one step back. At step 1 the run is abandoned and
// discarded, per the engine contract.
func (s *Service) Retreat(userID, runID uuid.UUID) (run *wizard.Run, abandoned bool, err error) {
	session, err := s.session(userID, runID)
	if err != nil {
		return nil, false, err
	}
	if !session.mu.TryLock() {
		return session.run, false, wizard.ErrRunBusy
	}
	defer session.mu.Unlock()
	run = session.run
	if run.Retreat() {
		s.discard(runID)
		return run, true, nil
	}
	return run, false, nil
}

// Abandon discards a run without awaiting any outstanding effect, which is
// safe because effects are single-shot and never retried by the engine.
func (s *Service) Abandon(userID, runID uuid.UUID) error {
	if _, err := s.GetRun(userID, runID); err != nil {
		return err
	}
	s.discard(runID)
	return nil
}

// ExpireStaleRuns discards runs that have not been touched within the run
// TTL. Called by the janitor job.
func (s *Service) ExpireStaleRuns(now time.Time) int {
	cutoff := now.Add(-s.runTTL)
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	for id, session := range s.runs {
		// A run the janitor cannot lock has a mutation in flight and is by
		// definition not stale.
		if !session.mu.TryLock() {
			continue
		}
		if session.run.UpdatedAt.Before(cutoff) && !session.run.IsProcessing {
			delete(s.runs, id)
			expired++
		}
		session.mu.Unlock()
	}
	return expired
}

// LiveRunCount reports the number of in-progress runs, for the health view.
func (s *Service) LiveRunCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

// ListUserTransactions returns a user's history.
func (s *Service) ListUserTransactions(ctx context.Context, userID uuid.UUID, opts domain.TransactionListOptions) ([]domain.Transaction, error) {
	return s.repo.FindTransactionsByUserID(ctx, userID, opts)
}

// ListAllTransactions returns transactions across users for the back office.
func (s *Service) ListAllTransactions(ctx context.Context, opts domain.TransactionListOptions) ([]domain.Transaction, error) {
	return s.repo.ListTransactions(ctx, opts)
}

// GetTransactionStats returns the admin dashboard aggregates.
func (s *Service) GetTransactionStats(ctx context.Context) (*domain.TransactionStats, error) {
	return s.repo.GetTransactionStats(ctx)
}

// Process implements wizard.Processor: the fixed-duration processing window
// standing in for the payment leg of transfer and subscription runs.
func (s *Service) Process(ctx context.Context, r *wizard.Run) error {
	select {
	case <-time.After(s.processingDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// commitRun snapshots a run that just reached its terminal step. Recording
// or publishing failures are logged and never roll the run back.
func (s *Service) commitRun(ctx context.Context, userID uuid.UUID, run *wizard.Run) {
	tx := snapshotRun(userID, run)

	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		log.Printf("level=error component=app op=commit_run msg=\"failed to record transaction\" run_id=%s reference=%s err=%v", run.ID, run.Reference, err)
	}

	if s.producer != nil {
		event := rabbitmq.TransactionCompletedEvent{
			TransactionID: tx.ID,
			UserID:        userID,
			Flow:          string(tx.Flow),
			Reference:     tx.Reference,
			Amount:        tx.Amount,
			Fee:           tx.Fee,
			Total:         tx.Total,
			Timestamp:     tx.CreatedAt,
		}
		if err := s.producer.PublishTransactionCompleted(ctx, s.eventExchange, event); err != nil {
			log.Printf("level=warn component=app op=commit_run msg=\"failed to publish completion event\" transaction_id=%s err=%v", tx.ID, err)
		}
	}

	log.Printf("level=info component=app op=commit_run flow=%s reference=%s amount=%d fee=%d total=%d", tx.Flow, tx.Reference, tx.Amount, tx.Fee, tx.Total)
}

// snapshotRun converts a completed run into its immutable transaction record.
func snapshotRun(userID uuid.UUID, run *wizard.Run) *domain.Transaction {
	tx := &domain.Transaction{
		ID:             uuid.New(),
		UserID:         userID,
		Reference:      run.Reference,
		Flow:           run.Flow,
		Status:         "completed",
		RecipientPhone: run.Fields.RecipientPhone,
		Operator:       run.Operator(),
		Amount:         run.BaseAmount(),
		Fee:            run.Quote.Commission,
		Total:          run.Quote.Total,
		CreatedAt:      time.Now().UTC(),
	}
	if run.Fields.PaymentMethod != "" {
		method := string(run.Fields.PaymentMethod)
		tx.PaymentMethod = &method
	}
	if plan := run.Fields.SelectedPlan; plan != nil {
		planID, planName := plan.ID, plan.Name
		tx.PlanID = &planID
		tx.PlanName = &planName
	}
	return tx
}

// consumeEligibilityBudget throttles the airtime recipient step, which is the
// only step whose effect burns aggregator eligibility quota.
func (s *Service) consumeEligibilityBudget(ctx context.Context, run *wizard.Run) error {
	if s.rateLimiter == nil || s.eligibilityPerMinute <= 0 {
		return nil
	}
	if run.Flow != domain.FlowAirtime || run.StepName() != wizard.StepRecipient {
		return nil
	}

	count, _, err := s.rateLimiter.ConsumeRateLimit(ctx, "eligibility", run.Fields.RecipientPhone, s.eligibilityPerMinute, time.Minute)
	if err != nil {
		// Throttling is protective, not load-bearing: fail open.
		log.Printf("level=warn component=app op=rate_limit msg=\"limiter unavailable; allowing request\" err=%v", err)
		return nil
	}
	if count > s.eligibilityPerMinute {
		return ErrEligibilityRateLimited
	}
	return nil
}

func (s *Service) discard(runID uuid.UUID) {
	s.mu.Lock()
	delete(s.runs, runID)
	s.mu.Unlock()
}

// airtimeGateway adapts the aggregator client to the engine's taxonomy:
// explicit business rejections become EligibilityError (checks) or
// ProcessingError (recharges); everything else is left for the engine to
// treat as a transport failure.
type airtimeGateway struct {
	client *topupclient.Client
}

func (g *airtimeGateway) CheckEligibility(ctx context.Context, msisdn string) error {
	_, err := g.client.CheckEligibility(ctx, msisdn)
	var apiErr *topupclient.APIError
	if errors.As(err, &apiErr) {
		return &wizard.EligibilityError{Message: apiErr.Message}
	}
	return err
}

func (g *airtimeGateway) Recharge(ctx context.Context, msisdn string, amount int64, reference string) error {
	_, err := g.client.Recharge(ctx, msisdn, amount, reference)
	var apiErr *topupclient.APIError
	if errors.As(err, &apiErr) {
		return &wizard.ProcessingError{Err: apiErr}
	}
	return err
}
