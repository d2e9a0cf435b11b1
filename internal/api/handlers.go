/**
 * @description
 * This file contains the HTTP handlers for the wallet-service's API endpoints.
 * Handlers parse incoming requests, call the application service, and write
 * the HTTP response. The error-mapping table at the bottom is the single place
 * where the engine's error taxonomy becomes HTTP status codes.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/app, internal/domain, internal/wizard: Service logic, models, engine errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sikapay/wallet-service/internal/app"
	"github.com/sikapay/wallet-service/internal/domain"
	"github.com/sikapay/wallet-service/internal/wizard"
)

// WalletHandlers holds the application service that handlers will use.
type WalletHandlers struct {
	service *app.Service
}

// NewWalletHandlers creates a new instance of WalletHandlers.
func NewWalletHandlers(service *app.Service) *WalletHandlers {
	return &WalletHandlers{service: service}
}

// runResponse is the wire representation of an in-progress wizard run,
// mirroring what the mobile client renders per step.
type runResponse struct {
	ID           string        `json:"id"`
	Reference    string        `json:"reference"`
	Flow         string        `json:"flow"`
	StepIndex    int           `json:"step_index"`
	StepName     string        `json:"step_name"`
	TotalSteps   int           `json:"total_steps"`
	Steps        []string      `json:"steps"`
	Fields       wizard.Fields `json:"fields"`
	Operator     string        `json:"operator"`
	OperatorName string        `json:"operator_name"`
	Quote        domain.Quote  `json:"quote"`
	IsProcessing bool          `json:"is_processing"`
	Completed    bool          `json:"completed,omitempty"`
	Abandoned    bool          `json:"abandoned,omitempty"`
}

func buildRunResponse(run *wizard.Run) runResponse {
	op := run.Operator()
	return runResponse{
		ID:           run.ID.String(),
		Reference:    run.Reference,
		Flow:         string(run.Flow),
		StepIndex:    run.StepIndex,
		StepName:     run.StepName(),
		TotalSteps:   run.TotalSteps(),
		Steps:        run.StepNames(),
		Fields:       run.Fields,
		Operator:     string(op),
		OperatorName: op.DisplayName(),
		Quote:        run.Quote,
		IsProcessing: run.IsProcessing,
	}
}

// StartRunHandler creates a new wizard run of the flow named in the URL.
func (h *WalletHandlers) StartRunHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUserID(w, r)
	if !ok {
		return
	}

	flowSegment := chi.URLParam(r, "flow")
	flow := domain.ParseFlow(flowSegment)
	if flow == "" {
		h.writeError(w, http.StatusBadRequest, "Unknown flow: "+flowSegment)
		return
	}

	run, err := h.service.StartRun(userID, flow)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, buildRunResponse(run))
}

// GetRunHandler returns the current state of a run.
func (h *WalletHandlers) GetRunHandler(w http.ResponseWriter, r *http.Request) {
	userID, runID, ok := h.runRequest(w, r)
	if !ok {
		return
	}

	run, err := h.service.GetRun(userID, runID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, buildRunResponse(run))
}

// UpdateRunHandler applies partial field edits to a run.
func (h *WalletHandlers) UpdateRunHandler(w http.ResponseWriter, r *http.Request) {
	userID, runID, ok := h.runRequest(w, r)
	if !ok {
		return
	}

	var patch app.RunPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	run, err := h.service.UpdateRun(userID, runID, patch)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, buildRunResponse(run))
}

// AdvanceRunHandler moves a run one step forward.
func (h *WalletHandlers) AdvanceRunHandler(w http.ResponseWriter, r *http.Request) {
	userID, runID, ok := h.runRequest(w, r)
	if !ok {
		return
	}

	run, completed, err := h.service.Advance(r.Context(), userID, runID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	resp := buildRunResponse(run)
	resp.Completed = completed
	h.writeJSON(w, http.StatusOK, resp)
}

// RetreatRunHandler moves a run one step back; at the first step the run is
// abandoned and discarded.
func (h *WalletHandlers) RetreatRunHandler(w http.ResponseWriter, r *http.Request) {
	userID, runID, ok := h.runRequest(w, r)
	if !ok {
		return
	}

	run, abandoned, err := h.service.Retreat(userID, runID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	resp := buildRunResponse(run)
	resp.Abandoned = abandoned
	h.writeJSON(w, http.StatusOK, resp)
}

// AbandonRunHandler discards a run explicitly.
func (h *WalletHandlers) AbandonRunHandler(w http.ResponseWriter, r *http.Request) {
	userID, runID, ok := h.runRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.Abandon(userID, runID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClassifyHandler resolves a phone number to its operator, for the live
// operator badge next to the recipient input.
func (h *WalletHandlers) ClassifyHandler(w http.ResponseWriter, r *http.Request) {
	phone := r.URL.Query().Get("phone")
	op := domain.Classify(phone)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"phone":         phone,
		"operator":      string(op),
		"operator_name": op.DisplayName(),
		"known":         op.IsKnown(),
		"msisdn":        domain.Internationalize(phone),
	})
}

// PaymentMethodsHandler lists the payment method catalog in display order.
func (h *WalletHandlers) PaymentMethodsHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"payment_methods": domain.PaymentMethods(),
	})
}

// PlansHandler lists the subscription plans for an operator and plan type,
// optionally filtered to one category. The operator may be given directly or
// derived from a recipient phone.
func (h *WalletHandlers) PlansHandler(w http.ResponseWriter, r *http.Request) {
	op, planType, ok := h.planBucket(w, r)
	if !ok {
		return
	}

	plans := domain.PlansFor(op, planType)
	if category := r.URL.Query().Get("category"); category != "" {
		plans = domain.PlansForCategory(op, planType, category)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"operator":   string(op),
		"plan_type":  string(planType),
		"categories": domain.CategoriesFor(op, planType),
		"plans":      plans,
	})
}

// PlanCategoriesHandler lists the distinct categories of a plan bucket, in
// catalog order.
func (h *WalletHandlers) PlanCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	op, planType, ok := h.planBucket(w, r)
	if !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"operator":   string(op),
		"plan_type":  string(planType),
		"categories": domain.CategoriesFor(op, planType),
	})
}

func (h *WalletHandlers) planBucket(w http.ResponseWriter, r *http.Request) (domain.Operator, domain.PlanType, bool) {
	q := r.URL.Query()
	op := domain.ParseOperator(q.Get("operator"))
	if !op.IsKnown() {
		op = domain.Classify(q.Get("phone"))
	}
	if !op.IsKnown() {
		h.writeError(w, http.StatusUnprocessableEntity, "Préfixe opérateur non reconnu (01, 05 ou 07 attendu)")
		return "", "", false
	}

	planType := domain.ParsePlanType(q.Get("type"))
	if planType == "" {
		h.writeError(w, http.StatusBadRequest, "Type de forfait invalide")
		return "", "", false
	}
	return op, planType, true
}

// ListTransactionsHandler returns the authenticated user's history.
func (h *WalletHandlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUserID(w, r)
	if !ok {
		return
	}

	txs, err := h.service.ListUserTransactions(r.Context(), userID, listOptionsFromQuery(r))
	if err != nil {
		log.Printf("level=error component=api endpoint=list_transactions err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load transactions")
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": txs})
}

// AdminListTransactionsHandler returns transactions across users.
func (h *WalletHandlers) AdminListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	txs, err := h.service.ListAllTransactions(r.Context(), listOptionsFromQuery(r))
	if err != nil {
		log.Printf("level=error component=api endpoint=admin_list_transactions err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load transactions")
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": txs})
}

// AdminStatsHandler returns the dashboard aggregates plus the live run count.
func (h *WalletHandlers) AdminStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetTransactionStats(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=admin_stats err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load stats")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":     stats,
		"live_runs": h.service.LiveRunCount(),
	})
}

func listOptionsFromQuery(r *http.Request) domain.TransactionListOptions {
	var opts domain.TransactionListOptions
	q := r.URL.Query()
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		opts.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		opts.Offset = v
	}
	opts.Flow = domain.Flow(q.Get("flow"))
	opts.Status = q.Get("status")
	return opts
}

func (h *WalletHandlers) authenticatedUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userIDStr, ok := GetAuthUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "Invalid user ID format")
		return uuid.Nil, false
	}
	return userID, true
}

func (h *WalletHandlers) runRequest(w http.ResponseWriter, r *http.Request) (userID, runID uuid.UUID, ok bool) {
	userID, ok = h.authenticatedUserID(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid run ID")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, runID, true
}

// writeServiceError maps service and engine errors to HTTP responses. A
// validation failure carries the offending field so the client can highlight
// the input; eligibility rejections are distinguished from transport faults.
func (h *WalletHandlers) writeServiceError(w http.ResponseWriter, err error) {
	var verr *wizard.ValidationError
	if errors.As(err, &verr) {
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": verr.Message,
			"field": verr.Field,
			"kind":  "validation",
		})
		return
	}

	var elig *wizard.EligibilityError
	if errors.As(err, &elig) {
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": elig.Message,
			"kind":  "eligibility",
		})
		return
	}

	var proc *wizard.ProcessingError
	if errors.As(err, &proc) {
		h.writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": "Le traitement du paiement a échoué. Veuillez réessayer.",
			"kind":  "processing",
		})
		return
	}

	var transport *wizard.TransportError
	if errors.As(err, &transport) {
		h.writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": "Service temporairement indisponible. Veuillez réessayer.",
			"kind":  "transport",
		})
		return
	}

	switch {
	case errors.Is(err, app.ErrRunNotFound):
		h.writeError(w, http.StatusNotFound, "Run not found")
	case errors.Is(err, wizard.ErrRunBusy):
		h.writeError(w, http.StatusConflict, "Run is processing")
	case errors.Is(err, app.ErrEligibilityRateLimited):
		h.writeError(w, http.StatusTooManyRequests, "Trop de vérifications pour ce numéro. Réessayez dans une minute.")
	case errors.Is(err, app.ErrGatewayNotConfigured):
		h.writeError(w, http.StatusServiceUnavailable, "Airtime service is unavailable")
	case errors.Is(err, app.ErrUnknownFlow):
		h.writeError(w, http.StatusBadRequest, "Unknown flow")
	default:
		log.Printf("level=error component=api msg=\"unhandled service error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *WalletHandlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}

func (h *WalletHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
