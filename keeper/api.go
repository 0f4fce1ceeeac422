package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/indexr-labs/indexr-go/internal/domain"
	"github.com/indexr-labs/indexr-go/internal/engine"
	"github.com/indexr-labs/indexr-go/internal/platform/auth"
	"github.com/indexr-labs/indexr-go/internal/platform/httpserver"
	"github.com/indexr-labs/indexr-go/internal/repo"
	"github.com/indexr-labs/indexr-go/internal/reports"
)

type tickRunner interface {
	Run(ctx context.Context, now time.Time) (engine.Summary, error)
}

type planAuditor interface {
	AppendPlanEvent(ctx context.Context, action, planID string, payload map[string]any) error
}

type keeperAPI struct {
	logger        *slog.Logger
	plans         repo.PlanRepository
	notifications repo.NotificationRepository
	baskets       repo.BasketRepository
	runner        tickRunner
	cron          *auth.CronVerifier
	operator      auth.Middleware
	archiver      *reports.Archiver
	audit         planAuditor
}

func newKeeperAPI(
	logger *slog.Logger,
	plans repo.PlanRepository,
	notifications repo.NotificationRepository,
	baskets repo.BasketRepository,
	runner tickRunner,
	cron *auth.CronVerifier,
	operator auth.Middleware,
	archiver *reports.Archiver,
	audit planAuditor,
) *keeperAPI {
	return &keeperAPI{
		logger:        logger,
		plans:         plans,
		notifications: notifications,
		baskets:       baskets,
		runner:        runner,
		cron:          cron,
		operator:      operator,
		archiver:      archiver,
		audit:         audit,
	}
}

func (api *keeperAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /cron/execute-plans", api.handleExecutePlans)
	mux.HandleFunc("GET /cron/execute-plans", api.handleExecutePlans)

	mux.HandleFunc("GET /plans", api.handleListPlans)
	mux.HandleFunc("POST /plans", api.handleCreatePlan)
	mux.HandleFunc("GET /plans/{plan_id}", api.handleGetPlan)
	mux.HandleFunc("PATCH /plans/{plan_id}", api.handleUpdatePlan)
	mux.HandleFunc("DELETE /plans/{plan_id}", api.handleCancelPlan)
	mux.Handle("POST /plans/{plan_id}/reactivate", api.operator.Wrap(http.HandlerFunc(api.handleReactivatePlan)))

	mux.HandleFunc("GET /baskets", api.handleListBaskets)
	mux.HandleFunc("GET /baskets/{basket_id}", api.handleGetBasket)

	mux.HandleFunc("GET /notifications", api.handleListNotifications)
	mux.HandleFunc("POST /notifications/{notification_id}/read", api.handleMarkNotificationRead)
}

type executeResponse struct {
	Message   string           `json:"message"`
	Processed int              `json:"processed"`
	Executed  int              `json:"executed"`
	Failed    int              `json:"failed"`
	Skipped   int              `json:"skipped"`
	Results   []engine.Outcome `json:"results"`
}

// handleExecutePlans is the scheduler trigger. GET is accepted for
// manual runs; both verbs require the pre-shared cron secret.
func (api *keeperAPI) handleExecutePlans(w http.ResponseWriter, r *http.Request) {
	if err := api.cron.Verify(r); err != nil {
		api.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if api.runner == nil {
		api.writeError(w, http.StatusServiceUnavailable, "keeper not configured")
		return
	}

	now := time.Now().UTC()
	summary, err := api.runner.Run(r.Context(), now)
	if err != nil {
		// Scanner failure: the tick aborted before touching any plan.
		api.logger.Error("tick aborted", "error", err)
		api.writeError(w, http.StatusInternalServerError, "batch scan failed")
		return
	}

	if api.archiver != nil {
		if key, err := api.archiver.Archive(r.Context(), now, summary); err != nil {
			api.logger.Error("tick report archive failed", "error", err)
		} else {
			api.logger.Info("tick report archived", "object_key", key)
		}
	}

	api.writeJSON(w, http.StatusOK, executeResponse{
		Message:   fmt.Sprintf("Processed %d plans", summary.Processed),
		Processed: summary.Processed,
		Executed:  summary.Executed,
		Failed:    summary.Failed,
		Skipped:   summary.Skipped,
		Results:   summary.Results,
	})
}

type planPayload struct {
	PlanID          string     `json:"plan_id"`
	WalletAddress   string     `json:"wallet_address"`
	BasketID        string     `json:"basket_id"`
	AmountUSDC      string     `json:"amount_usdc"`
	Frequency       string     `json:"frequency"`
	MonthlyCapUSDC  string     `json:"monthly_cap_usdc"`
	NextRunAt       time.Time  `json:"next_run_at"`
	LastExecutedAt  *time.Time `json:"last_executed_at,omitempty"`
	Status          string     `json:"status"`
	TotalInvested   string     `json:"total_invested"`
	ExecutionCount  int64      `json:"execution_count"`
	ExternalPlanRef string     `json:"external_plan_ref,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func planToPayload(p domain.Plan) planPayload {
	return planPayload{
		PlanID:          p.ID,
		WalletAddress:   p.WalletAddress,
		BasketID:        p.BasketID,
		AmountUSDC:      p.AmountPerRun.String(),
		Frequency:       string(p.Frequency),
		MonthlyCapUSDC:  p.MonthlyCap.String(),
		NextRunAt:       p.NextRunAt,
		LastExecutedAt:  p.LastExecutedAt,
		Status:          string(p.Status),
		TotalInvested:   p.TotalInvested.String(),
		ExecutionCount:  p.ExecutionCount,
		ExternalPlanRef: p.ExternalPlanRef,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

type createPlanRequest struct {
	WalletAddress   string      `json:"wallet_address"`
	BasketID        string      `json:"basket_id"`
	AmountUSDC      json.Number `json:"amount_usdc"`
	Frequency       string      `json:"frequency"`
	NextRunAt       *time.Time  `json:"next_run_at,omitempty"`
	ExternalPlanRef string      `json:"external_plan_ref,omitempty"`
}

func (api *keeperAPI) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wallet := domain.NormalizeWallet(req.WalletAddress)
	if wallet == "" {
		api.writeError(w, http.StatusBadRequest, "wallet_address is required")
		return
	}
	frequency, err := domain.ParseFrequency(req.Frequency)
	if err != nil {
		api.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := domain.ParseAmount(req.AmountUSDC.String())
	if err != nil {
		api.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !amount.IsPositive() {
		api.writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}
	if _, err := api.baskets.Get(r.Context(), req.BasketID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			api.writeError(w, http.StatusBadRequest, "unknown basket")
			return
		}
		api.logger.Error("basket lookup failed", "basket_id", req.BasketID, "error", err)
		api.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	nextRunAt := time.Now().UTC()
	if req.NextRunAt != nil && !req.NextRunAt.IsZero() {
		nextRunAt = req.NextRunAt.UTC()
	}

	plan := domain.Plan{
		ID:              uuid.NewString(),
		WalletAddress:   wallet,
		BasketID:        strings.TrimSpace(req.BasketID),
		AmountPerRun:    amount,
		Frequency:       frequency,
		NextRunAt:       nextRunAt,
		Status:          domain.PlanStatusActive,
		ExternalPlanRef: strings.TrimSpace(req.ExternalPlanRef),
	}
	plan.MonthlyCap = plan.DeriveMonthlyCap()

	if err := api.plans.Create(r.Context(), plan); err != nil {
		api.logger.Error("plan create failed", "error", err)
		api.writeError(w, http.StatusInternalServerError, "failed to create plan")
		return
	}

	created, err := api.plans.Get(r.Context(), plan.ID)
	if err != nil {
		api.logger.Error("plan readback failed", "plan_id", plan.ID, "error", err)
		api.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	api.writeJSON(w, http.StatusCreated, map[string]any{"plan": planToPayload(created)})
}

func (api *keeperAPI) handleListPlans(w http.ResponseWriter, r *http.Request) {
	wallet := domain.NormalizeWallet(r.URL.Query().Get("wallet"))
	if wallet == "" {
		api.writeError(w, http.StatusBadRequest, "wallet query parameter is required")
		return
	}
	plans, err := api.plans.List(r.Context(), repo.PlanFilter{WalletAddress: wallet})
	if err != nil {
		api.logger.Error("plan list failed", "error", err)
		api.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]planPayload, 0, len(plans))
	for _, p := range plans {
		out = append(out, planToPayload(p))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"plans": out})
}

func (api *keeperAPI) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	plan, ok := api.lookupPlan(w, r)
	if !ok {
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"plan": planToPayload(plan)})
}

type updatePlanRequest struct {
	Status          string `json:"status,omitempty"`
	WalletAddress   string `json:"wallet_address,omitempty"`
	ExternalPlanRef string `json:"external_plan_ref,omitempty"`
}

func (api *keeperAPI) handleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	plan, ok := api.lookupPlan(w, r)
	if !ok {
		return
	}
	var req updatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.WalletAddress != "" && domain.NormalizeWallet(req.WalletAddress) != plan.WalletAddress {
		api.writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	if ref := strings.TrimSpace(req.ExternalPlanRef); ref != "" {
		if err := api.plans.SetExternalPlanRef(r.Context(), plan.ID, ref); err != nil {
			api.logger.Error("set external plan ref failed", "plan_id", plan.ID, "error", err)
			api.writeError(w, http.StatusInternalServerError, "failed to update plan")
			return
		}
	}

	if req.Status != "" {
		to, err := domain.ParsePlanStatus(req.Status)
		if err != nil {
			api.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		// Self-service covers pause/resume/cancel only; recovering a
		// failed plan goes through the operator reactivation endpoint.
		switch to {
		case domain.PlanStatusActive, domain.PlanStatusPaused, domain.PlanStatusCancelled:
		default:
			api.writeError(w, http.StatusBadRequest, "status must be one of: active, paused, cancelled")
			return
		}
		if plan.Status == domain.PlanStatusFailed {
			api.writeError(w, http.StatusConflict, "failed plans require operator reactivation")
			return
		}
		if !plan.Status.CanTransition(to) {
			api.writeError(w, http.StatusConflict,
				fmt.Sprintf("cannot change status from %s to %s", plan.Status, to))
			return
		}
		applied, err := api.plans.UpdateStatus(r.Context(), plan.ID, plan.Status, to)
		if err != nil {
			api.logger.Error("plan status update failed", "plan_id", plan.ID, "error", err)
			api.writeError(w, http.StatusInternalServerError, "failed to update plan")
			return
		}
		if !applied {
			api.writeError(w, http.StatusConflict, "plan was concurrently modified")
			return
		}
	}

	updated, err := api.plans.Get(r.Context(), plan.ID)
	if err != nil {
		api.logger.Error("plan readback failed", "plan_id", plan.ID, "error", err)
		api.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"plan": planToPayload(updated)})
}

func (api *keeperAPI) handleCancelPlan(w http.ResponseWriter, r *http.Request) {
	plan, ok := api.lookupPlan(w, r)
	if !ok {
		return
	}
	if wallet := domain.NormalizeWallet(r.URL.Query().Get("wallet")); wallet != "" && wallet != plan.WalletAddress {
		api.writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if plan.Status == domain.PlanStatusCancelled {
		api.writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}
	if !plan.Status.CanTransition(domain.PlanStatusCancelled) {
		api.writeError(w, http.StatusConflict,
			fmt.Sprintf("cannot cancel plan in status %s", plan.Status))
		return
	}
	applied, err := api.plans.UpdateStatus(r.Context(), plan.ID, plan.Status, domain.PlanStatusCancelled)
	if err != nil {
		api.logger.Error("plan cancel failed", "plan_id", plan.ID, "error", err)
		api.writeError(w, http.StatusInternalServerError, "failed to cancel plan")
		return
	}
	if !applied {
		api.writeError(w, http.StatusConflict, "plan was concurrently modified")
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleReactivatePlan is the deliberate, operator-only path out of
// the fail-closed failed state.
func (api *keeperAPI) handleReactivatePlan(w http.ResponseWriter, r *http.Request) {
	plan, ok := api.lookupPlan(w, r)
	if !ok {
		return
	}
	if plan.Status != domain.PlanStatusFailed {
		api.writeError(w, http.StatusConflict, "only failed plans can be reactivated")
		return
	}
	applied, err := api.plans.UpdateStatus(r.Context(), plan.ID, domain.PlanStatusFailed, domain.PlanStatusActive)
	if err != nil {
		api.logger.Error("plan reactivate failed", "plan_id", plan.ID, "error", err)
		api.writeError(w, http.StatusInternalServerError, "failed to reactivate plan")
		return
	}
	if !applied {
		api.writeError(w, http.StatusConflict, "plan was concurrently modified")
		return
	}

	actor := "operator"
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.Subject != "" {
		actor = identity.Subject
	}
	if api.audit != nil {
		requestID, _ := httpserver.RequestIDFromContext(r.Context())
		if err := api.audit.AppendPlanEvent(r.Context(), "plan.reactivated", plan.ID, map[string]any{
			"actor":      actor,
			"request_id": requestID,
		}); err != nil {
			api.logger.Error("audit append failed", "plan_id", plan.ID, "error", err)
		}
	}
	api.logger.Info("plan reactivated", "plan_id", plan.ID, "actor", actor)

	updated, err := api.plans.Get(r.Context(), plan.ID)
	if err != nil {
		api.logger.Error("plan readback failed", "plan_id", plan.ID, "error", err)
		api.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"plan": planToPayload(updated)})
}

type basketPayload struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Description  string               `json:"description,omitempty"`
	VaultAddress string               `json:"vault_address"`
	Category     string               `json:"category,omitempty"`
	RiskLevel    string               `json:"risk_level,omitempty"`
	Tokens       []basketTokenPayload `json:"tokens"`
	Active       bool                 `json:"active"`
}

type basketTokenPayload struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name,omitempty"`
	Weight int    `json:"weight"`
}

func basketToPayload(b domain.Basket) basketPayload {
	out := basketPayload{
		ID:           b.ID,
		Name:         b.Name,
		Description:  b.Description,
		VaultAddress: b.VaultAddress,
		Category:     b.Category,
		RiskLevel:    b.RiskLevel,
		Active:       b.Active,
	}
	for _, tok := range b.Tokens {
		out.Tokens = append(out.Tokens, basketTokenPayload{
			Symbol: tok.Symbol,
			Name:   tok.Name,
			Weight: tok.Weight,
		})
	}
	return out
}

func (api *keeperAPI) handleListBaskets(w http.ResponseWriter, r *http.Request) {
	baskets, err := api.baskets.List(r.Context())
	if err != nil {
		api.logger.Error("basket list failed", "error", err)
		api.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]basketPayload, 0, len(baskets))
	for _, b := range baskets {
		out = append(out, basketToPayload(b))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"baskets": out})
}

func (api *keeperAPI) handleGetBasket(w http.ResponseWriter, r *http.Request) {
	basket, err := api.baskets.Get(r.Context(), r.PathValue("basket_id"))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			api.writeError(w, http.StatusNotFound, "basket not found")
			return
		}
		api.logger.Error("basket lookup failed", "error", err)
		api.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"basket": basketToPayload(basket)})
}

type notificationPayload struct {
	ID            string    `json:"id"`
	WalletAddress string    `json:"wallet_address"`
	PlanID        string    `json:"plan_id,omitempty"`
	Kind          string    `json:"kind"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"created_at"`
}

func (api *keeperAPI) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	wallet := domain.NormalizeWallet(r.URL.Query().Get("wallet"))
	if wallet == "" {
		api.writeError(w, http.StatusBadRequest, "wallet query parameter is required")
		return
	}
	filter := repo.NotificationFilter{
		WalletAddress: wallet,
		UnreadOnly:    r.URL.Query().Get("unread") == "true",
	}
	notifications, err := api.notifications.List(r.Context(), filter)
	if err != nil {
		api.logger.Error("notification list failed", "error", err)
		api.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]notificationPayload, 0, len(notifications))
	for _, n := range notifications {
		out = append(out, notificationPayload{
			ID:            n.ID,
			WalletAddress: n.WalletAddress,
			PlanID:        n.PlanID,
			Kind:          string(n.Kind),
			Title:         n.Title,
			Message:       n.Message,
			Read:          n.Read,
			CreatedAt:     n.CreatedAt,
		})
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"notifications": out})
}

type markReadRequest struct {
	WalletAddress string `json:"wallet_address"`
}

func (api *keeperAPI) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ok, err := api.notifications.MarkRead(r.Context(), r.PathValue("notification_id"), req.WalletAddress)
	if err != nil {
		api.logger.Error("mark notification read failed", "error", err)
		api.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		api.writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (api *keeperAPI) lookupPlan(w http.ResponseWriter, r *http.Request) (domain.Plan, bool) {
	plan, err := api.plans.Get(r.Context(), r.PathValue("plan_id"))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			api.writeError(w, http.StatusNotFound, "plan not found")
			return domain.Plan{}, false
		}
		api.logger.Error("plan lookup failed", "error", err)
		api.writeError(w, http.StatusInternalServerError, "internal error")
		return domain.Plan{}, false
	}
	return plan, true
}

func (api *keeperAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *keeperAPI) writeError(w http.ResponseWriter, status int, message string) {
	api.writeJSON(w, status, map[string]any{"error": message})
}
