package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sikapay/wallet-service/internal/domain"
	"github.com/sikapay/wallet-service/internal/wizard"
	"github.com/sikapay/wallet-service/pkg/rabbitmq"
	"github.com/sikapay/wallet-service/pkg/topupclient"
)

type fakeRepo struct {
	mu        sync.Mutex
	created   []*domain.Transaction
	createErr error
}

func (f *fakeRepo) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, tx)
	return nil
}

func (f *fakeRepo) FindTransactionsByUserID(ctx context.Context, userID uuid.UUID, opts domain.TransactionListOptions) ([]domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Transaction
	for _, tx := range f.created {
		if tx.UserID == userID {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (f *fakeRepo) FindTransactionByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRepo) FindTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRepo) ListTransactions(ctx context.Context, opts domain.TransactionListOptions) ([]domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Transaction
	for _, tx := range f.created {
		out = append(out, *tx)
	}
	return out, nil
}

func (f *fakeRepo) GetTransactionStats(ctx context.Context) (*domain.TransactionStats, error) {
	return &domain.TransactionStats{}, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []rabbitmq.TransactionCompletedEvent
}

func (f *fakePublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return nil
}

func (f *fakePublisher) PublishTransactionCompleted(ctx context.Context, exchange string, event rabbitmq.TransactionCompletedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) Close() {}

type fakeLimiter struct {
	count int
	err   error
}

func (f *fakeLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	f.count++
	return f.count, 30, f.err
}

func newTestService(repo *fakeRepo, producer *fakePublisher, gateway *topupclient.Client) *Service {
	return NewService(repo, gateway, producer, "wallet_events",
		Rates{Transfer: 3, Subscription: 2, Airtime: 3},
		time.Millisecond, 30*time.Minute)
}

func advance(t *testing.T, s *Service, userID, runID uuid.UUID) (*wizard.Run, bool) {
	t.Helper()
	run, completed, err := s.Advance(context.Background(), userID, runID)
	if err != nil {
		t.Fatalf("advance at step %q: %v", run.StepName(), err)
	}
	return run, completed
}

func TestStartRunUnknownFlow(t *testing.T) {
	s := newTestService(&fakeRepo{}, &fakePublisher{}, nil)
	if _, err := s.StartRun(uuid.New(), domain.Flow("loan")); !errors.Is(err, ErrUnknownFlow) {
		t.Fatalf("expected ErrUnknownFlow, got %v", err)
	}
}

func TestAirtimeRequiresGateway(t *testing.T) {
	s := newTestService(&fakeRepo{}, &fakePublisher{}, nil)
	if _, err := s.StartRun(uuid.New(), domain.FlowAirtime); !errors.Is(err, ErrGatewayNotConfigured) {
		t.Fatalf("expected ErrGatewayNotConfigured, got %v", err)
	}
}

func TestRunOwnership(t *testing.T) {
	s := newTestService(&fakeRepo{}, &fakePublisher{}, nil)
	owner := uuid.New()
	run, err := s.StartRun(owner, domain.FlowTransfer)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}

	if _, err := s.GetRun(uuid.New(), run.ID); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected foreign user to get ErrRunNotFound, got %v", err)
	}
	if _, err := s.GetRun(owner, run.ID); err != nil {
		t.Fatalf("owner lookup failed: %v", err)
	}
}

func TestTransferCompletionRecordsAndPublishes(t *testing.T) {
	repo := &fakeRepo{}
	producer := &fakePublisher{}
	s := newTestService(repo, producer, nil)
	userID := uuid.New()

	run, err := s.StartRun(userID, domain.FlowTransfer)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}

	phone, amount, method, number := "0712345678", "5000", "orange-money", "0712345679"
	if _, err := s.UpdateRun(userID, run.ID, RunPatch{RecipientPhone: &phone, Amount: &amount}); err != nil {
		t.Fatalf("update run: %v", err)
	}
	advance(t, s, userID, run.ID) // recipient
	advance(t, s, userID, run.ID) // amount
	if _, err := s.UpdateRun(userID, run.ID, RunPatch{PaymentMethod: &method, PaymentNumber: &number}); err != nil {
		t.Fatalf("update run: %v", err)
	}
	advance(t, s, userID, run.ID) // payment
	got, completed := advance(t, s, userID, run.ID)
	if completed || !got.AtTerminal() {
		t.Fatalf("expected run on terminal step, step=%d completed=%v", got.StepIndex, completed)
	}

	if len(repo.created) != 1 {
		t.Fatalf("expected one recorded transaction, got %d", len(repo.created))
	}
	tx := repo.created[0]
	if tx.Amount != 5000 || tx.Fee != 150 || tx.Total != 5150 {
		t.Fatalf("unexpected snapshot amounts: %+v", tx)
	}
	if tx.Reference != run.Reference || tx.Flow != domain.FlowTransfer || tx.Status != "completed" {
		t.Fatalf("unexpected snapshot identity: %+v", tx)
	}
	if tx.PaymentMethod == nil || *tx.PaymentMethod != "orange-money" {
		t.Fatalf("expected payment method on snapshot, got %+v", tx.PaymentMethod)
	}

	if len(producer.events) != 1 || producer.events[0].Reference != run.Reference {
		t.Fatalf("expected one completion event for %s, got %+v", run.Reference, producer.events)
	}

	// Advancing past the terminal step discards the run.
	_, completed, err = s.Advance(context.Background(), userID, run.ID)
	if err != nil || !completed {
		t.Fatalf("expected completion discard, got completed=%v err=%v", completed, err)
	}
	if _, err := s.GetRun(userID, run.ID); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected discarded run to be gone, got %v", err)
	}
}

func TestRepositoryFailureDoesNotBlockCompletion(t *testing.T) {
	repo := &fakeRepo{createErr: errors.New("db down")}
	s := newTestService(repo, &fakePublisher{}, nil)
	userID := uuid.New()

	run, _ := s.StartRun(userID, domain.FlowTransfer)
	phone, amount, method, number := "0512345678", "1000", "wave", "0512345678"
	s.UpdateRun(userID, run.ID, RunPatch{RecipientPhone: &phone, Amount: &amount})
	advance(t, s, userID, run.ID)
	advance(t, s, userID, run.ID)
	s.UpdateRun(userID, run.ID, RunPatch{PaymentMethod: &method, PaymentNumber: &number})
	advance(t, s, userID, run.ID)

	got, _ := advance(t, s, userID, run.ID)
	if !got.AtTerminal() {
		t.Fatalf("expected run to reach terminal despite insert failure, step=%d", got.StepIndex)
	}
}

func TestUpdateRunRejectsBadPlanType(t *testing.T) {
	s := newTestService(&fakeRepo{}, &fakePublisher{}, nil)
	userID := uuid.New()
	run, _ := s.StartRun(userID, domain.FlowSubscription)

	bad := "roaming"
	_, err := s.UpdateRun(userID, run.ID, RunPatch{PlanType: &bad})
	var verr *wizard.ValidationError
	if !errors.As(err, &verr) || verr.Field != "planType" {
		t.Fatalf("expected planType validation error, got %v", err)
	}
}

func TestAirtimeEligibilityRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(topupclient.Envelope{Status: "success"})
	}))
	defer server.Close()

	s := newTestService(&fakeRepo{}, &fakePublisher{}, topupclient.NewClient(server.URL, "key", ""))
	limiter := &fakeLimiter{count: 10} // next consume reports 11 > limit
	s.SetEligibilityRateLimiter(limiter, 10)
	userID := uuid.New()

	run, err := s.StartRun(userID, domain.FlowAirtime)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	phone := "0112345678"
	s.UpdateRun(userID, run.ID, RunPatch{RecipientPhone: &phone})

	_, _, err = s.Advance(context.Background(), userID, run.ID)
	if !errors.Is(err, ErrEligibilityRateLimited) {
		t.Fatalf("expected ErrEligibilityRateLimited, got %v", err)
	}
	if run.StepIndex != 1 {
		t.Fatalf("throttled run must not move, step=%d", run.StepIndex)
	}
}

func TestRateLimiterFailureFailsOpen(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(topupclient.Envelope{Status: "success"})
	}))
	defer server.Close()

	s := newTestService(&fakeRepo{}, &fakePublisher{}, topupclient.NewClient(server.URL, "key", ""))
	s.SetEligibilityRateLimiter(&fakeLimiter{err: errors.New("redis down")}, 10)
	userID := uuid.New()

	run, _ := s.StartRun(userID, domain.FlowAirtime)
	phone := "0112345678"
	s.UpdateRun(userID, run.ID, RunPatch{RecipientPhone: &phone})

	if _, _, err := s.Advance(context.Background(), userID, run.ID); err != nil {
		t.Fatalf("limiter outage must not block the run, got %v", err)
	}
}

func TestAirtimeGatewayRejectionSurfacesAsEligibilityError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(topupclient.Envelope{Status: "error", Message: "numéro non éligible"})
	}))
	defer server.Close()

	s := newTestService(&fakeRepo{}, &fakePublisher{}, topupclient.NewClient(server.URL, "key", ""))
	userID := uuid.New()

	run, _ := s.StartRun(userID, domain.FlowAirtime)
	phone := "0112345678"
	s.UpdateRun(userID, run.ID, RunPatch{RecipientPhone: &phone})

	_, _, err := s.Advance(context.Background(), userID, run.ID)
	var elig *wizard.EligibilityError
	if !errors.As(err, &elig) {
		t.Fatalf("expected EligibilityError, got %v", err)
	}
	if elig.Message != "numéro non éligible" {
		t.Fatalf("expected gateway message to pass through, got %q", elig.Message)
	}
}

func TestRetreatAtFirstStepAbandonsRun(t *testing.T) {
	s := newTestService(&fakeRepo{}, &fakePublisher{}, nil)
	userID := uuid.New()
	run, _ := s.StartRun(userID, domain.FlowTransfer)

	_, abandoned, err := s.Retreat(userID, run.ID)
	if err != nil || !abandoned {
		t.Fatalf("expected abandonment at step 1, abandoned=%v err=%v", abandoned, err)
	}
	if _, err := s.GetRun(userID, run.ID); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("abandoned run should be discarded, got %v", err)
	}
}

func TestExpireStaleRuns(t *testing.T) {
	s := newTestService(&fakeRepo{}, &fakePublisher{}, nil)
	userID := uuid.New()

	stale, _ := s.StartRun(userID, domain.FlowTransfer)
	fresh, _ := s.StartRun(userID, domain.FlowTransfer)
	stale.UpdatedAt = time.Now().Add(-time.Hour)

	if expired := s.ExpireStaleRuns(time.Now()); expired != 1 {
		t.Fatalf("expected 1 expired run, got %d", expired)
	}
	if _, err := s.GetRun(userID, stale.ID); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("stale run should be gone, got %v", err)
	}
	if _, err := s.GetRun(userID, fresh.ID); err != nil {
		t.Fatalf("fresh run should survive, got %v", err)
	}
}

func TestSubscriptionSnapshotKeepsTotalInvariantAfterAmountPatch(t *testing.T) {
	repo := &fakeRepo{}
	s := newTestService(repo, &fakePublisher{}, nil)
	userID := uuid.New()

	run, err := s.StartRun(userID, domain.FlowSubscription)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}

	phone, planType, planID, method := "0712345678", "internet", "org-net-300", "pay-later"
	if _, err := s.UpdateRun(userID, run.ID, RunPatch{RecipientPhone: &phone}); err != nil {
		t.Fatalf("update run: %v", err)
	}
	advance(t, s, userID, run.ID) // recipient
	if _, err := s.UpdateRun(userID, run.ID, RunPatch{PlanType: &planType}); err != nil {
		t.Fatalf("update run: %v", err)
	}
	advance(t, s, userID, run.ID) // plan type
	if _, err := s.UpdateRun(userID, run.ID, RunPatch{PlanID: &planID}); err != nil {
		t.Fatalf("update run: %v", err)
	}
	advance(t, s, userID, run.ID) // plan
	// A rogue amount patch on a plan-priced run must not skew the quote.
	amount := "100000"
	if _, err := s.UpdateRun(userID, run.ID, RunPatch{Amount: &amount, PaymentMethod: &method}); err != nil {
		t.Fatalf("update run: %v", err)
	}
	advance(t, s, userID, run.ID) // payment
	advance(t, s, userID, run.ID) // confirmation

	if len(repo.created) != 1 {
		t.Fatalf("expected one recorded transaction, got %d", len(repo.created))
	}
	tx := repo.created[0]
	if tx.Amount != 300 || tx.Fee != 6 || tx.Total != 306 {
		t.Fatalf("unexpected snapshot amounts: %+v", tx)
	}
	if tx.Total != tx.Amount+tx.Fee {
		t.Fatalf("total %d != amount %d + fee %d", tx.Total, tx.Amount, tx.Fee)
	}
}

func TestConcurrentAdvanceDuringEffectIsRefused(t *testing.T) {
	repo := &fakeRepo{}
	s := NewService(repo, nil, &fakePublisher{}, "wallet_events",
		Rates{Transfer: 3, Subscription: 2, Airtime: 3},
		200*time.Millisecond, 30*time.Minute)
	userID := uuid.New()

	run, _ := s.StartRun(userID, domain.FlowTransfer)
	phone, amount, method := "0712345678", "5000", "pay-later"
	s.UpdateRun(userID, run.ID, RunPatch{RecipientPhone: &phone, Amount: &amount})
	advance(t, s, userID, run.ID)
	advance(t, s, userID, run.ID)
	s.UpdateRun(userID, run.ID, RunPatch{PaymentMethod: &method})
	advance(t, s, userID, run.ID)

	// First advance holds the run for the duration of the processing effect.
	done := make(chan error, 1)
	go func() {
		_, _, err := s.Advance(context.Background(), userID, run.ID)
		done <- err
	}()

	// Give the first advance time to enter its effect, then race it.
	time.Sleep(50 * time.Millisecond)
	if _, _, err := s.Advance(context.Background(), userID, run.ID); !errors.Is(err, wizard.ErrRunBusy) {
		t.Fatalf("expected ErrRunBusy for a concurrent advance, got %v", err)
	}
	if _, err := s.UpdateRun(userID, run.ID, RunPatch{Amount: &amount}); !errors.Is(err, wizard.ErrRunBusy) {
		t.Fatalf("expected ErrRunBusy for a patch during an effect, got %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("first advance failed: %v", err)
	}
	if !run.AtTerminal() {
		t.Fatalf("expected run on terminal step, step=%d", run.StepIndex)
	}
}
