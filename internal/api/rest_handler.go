package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"marketplace_ledger/internal/domain"
	"marketplace_ledger/internal/ledger"
	"marketplace_ledger/internal/notify"
	"marketplace_ledger/pkg/crypto"
	"marketplace_ledger/pkg/metrics"
	"marketplace_ledger/pkg/validator"
)

type Handler struct {
	ledger         *ledger.Ledger
	metrics        *metrics.Collector
	signer         *crypto.Signer
	notifier       *notify.Notifier
	limiter        *callerLimiter
	logger         *slog.Logger
	requestTimeout time.Duration
}

type Options struct {
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewHandler(
	engine *ledger.Ledger,
	collector *metrics.Collector,
	signer *crypto.Signer,
	notifier *notify.Notifier,
	opts Options,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		ledger:         engine,
		metrics:        collector,
		signer:         signer,
		notifier:       notifier,
		limiter:        newCallerLimiter(opts.RateLimitRPS, opts.RateLimitBurst, 10*time.Minute),
		logger:         logger,
		requestTimeout: 30 * time.Second,
	}
}

// Routes assembles the full API surface. Everything under /api/v1
// requires an authenticated caller.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)

	r.Get("/api/health", h.HealthCheckHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.callerAuthMiddleware)
		r.Use(h.rateLimitMiddleware)

		r.Post("/accounts", h.CreateAccountHandler)
		r.Get("/accounts/{id}", h.GetAccountHandler)
		r.Get("/accounts/{id}/balance", h.GetBalanceHandler)
		r.Get("/accounts/{id}/transactions", h.ListAccountTransactionsHandler)
		r.Post("/accounts/{id}/mint", h.MintHandler)
		r.Post("/accounts/{id}/burn", h.BurnHandler)

		r.Post("/transfers", h.TransferHandler)
		r.Get("/transactions/{id}", h.GetTransactionHandler)

		r.Post("/escrows", h.CreateEscrowHandler)
		r.Get("/escrows/{id}", h.GetEscrowHandler)
		r.Get("/escrows/{id}/transactions", h.ListEscrowTransactionsHandler)
		r.Post("/escrows/{id}/approve/buyer", h.BuyerApproveHandler)
		r.Post("/escrows/{id}/approve/seller", h.SellerApproveHandler)
		r.Post("/escrows/{id}/release", h.ReleaseHandler)
		r.Post("/escrows/{id}/dispute", h.RaiseDisputeHandler)
		r.Post("/escrows/{id}/resolve", h.ResolveDisputeHandler)
		r.Post("/escrows/{id}/refund", h.RefundHandler)
		r.Post("/escrows/{id}/cancel", h.CancelHandler)

		r.Get("/stats", h.StatsHandler)
		r.Get("/fees", h.FeeStatsHandler)
		r.Post("/fees/withdraw", h.WithdrawFeesHandler)
	})

	return r
}

type CreateAccountRequest struct {
	ID string `json:"id"`
}

type AmountRequest struct {
	Amount    int64  `json:"amount"`
	Signature string `json:"signature,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type TransferRequest struct {
	To        string `json:"to"`
	Amount    int64  `json:"amount"`
	Memo      string `json:"memo,omitempty"`
	Signature string `json:"signature,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type CreateEscrowRequest struct {
	Beneficiary string    `json:"beneficiary"`
	Arbitrator  string    `json:"arbitrator,omitempty"`
	Amount      int64     `json:"amount"`
	Deadline    time.Time `json:"deadline"`
	Description string    `json:"description,omitempty"`
	Signature   string    `json:"signature,omitempty"`
	Timestamp   int64     `json:"timestamp,omitempty"`
}

type ReleaseRequest struct {
	Amount int64 `json:"amount"`
}

type ResolveRequest struct {
	FavorBeneficiary bool `json:"favor_beneficiary"`
}

type RefundRequest struct {
	Reason string `json:"reason,omitempty"`
}

type BalanceResponse struct {
	AccountID string `json:"account_id"`
	Balance   int64  `json:"balance"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}
	h.sendJSON(w, response, http.StatusOK)
}

func (h *Handler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	account, err := h.withMetrics("create_account", func() (interface{}, error) {
		return h.ledger.CreateAccount(ctx, req.ID)
	})
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	h.sendJSON(w, account, http.StatusCreated)
}

func (h *Handler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	account, err := h.ledger.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}
	h.sendJSON(w, account, http.StatusOK)
}

func (h *Handler) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	balance, err := h.ledger.GetBalance(r.Context(), accountID)
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}
	h.sendJSON(w, BalanceResponse{AccountID: accountID, Balance: balance}, http.StatusOK)
}

func (h *Handler) ListAccountTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.sendError(w, "Invalid limit", http.StatusBadRequest, "INVALID_REQUEST")
			return
		}
		limit = parsed
	}

	transactions, err := h.ledger.GetTransactionsForAccount(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}
	h.sendJSON(w, transactions, http.StatusOK)
}

func (h *Handler) MintHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	accountID := chi.URLParam(r, "id")
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	if !h.verifySignature(w, ctx, "mint", req.Amount, req.Timestamp, req.Signature) {
		return
	}

	tx, err := h.withMetrics("mint", func() (interface{}, error) {
		return h.ledger.Mint(ctx, accountID, req.Amount)
	})
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	h.sendJSON(w, tx, http.StatusCreated)
}

func (h *Handler) BurnHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	accountID := chi.URLParam(r, "id")
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	if !h.verifySignature(w, ctx, "burn", req.Amount, req.Timestamp, req.Signature) {
		return
	}

	tx, err := h.withMetrics("burn", func() (interface{}, error) {
		return h.ledger.Burn(ctx, accountID, req.Amount)
	})
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	h.sendJSON(w, tx, http.StatusCreated)
}

// TransferHandler moves funds out of the caller's own account; the
// source is always the authenticated identity.
func (h *Handler) TransferHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	if !h.verifySignature(w, ctx, "transfer", req.Amount, req.Timestamp, req.Signature) {
		return
	}

	caller := callerFromContext(ctx)
	tx, err := h.withMetrics("transfer", func() (interface{}, error) {
		return h.ledger.Transfer(ctx, caller, req.To, req.Amount, req.Memo)
	})
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	h.sendJSON(w, tx, http.StatusCreated)
}

func (h *Handler) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	tx, err := h.ledger.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}
	h.sendJSON(w, tx, http.StatusOK)
}

// CreateEscrowHandler opens an escrow funded by the caller's account.
func (h *Handler) CreateEscrowHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req CreateEscrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	if !h.verifySignature(w, ctx, "create_escrow", req.Amount, req.Timestamp, req.Signature) {
		return
	}

	caller := callerFromContext(ctx)
	result, err := h.withMetrics("create_escrow", func() (interface{}, error) {
		return h.ledger.CreateEscrow(ctx, ledger.CreateEscrowInput{
			Depositor:   caller,
			Beneficiary: req.Beneficiary,
			Arbitrator:  req.Arbitrator,
			Amount:      req.Amount,
			Deadline:    req.Deadline,
			Description: req.Description,
		})
	})
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	agreement := result.(*domain.EscrowAgreement)
	h.notifyEscrow(ctx, agreement, notify.EventEscrowCreated)
	h.sendJSON(w, agreement, http.StatusCreated)
}

func (h *Handler) GetEscrowHandler(w http.ResponseWriter, r *http.Request) {
	agreement, err := h.ledger.GetEscrow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}
	h.sendJSON(w, agreement, http.StatusOK)
}

func (h *Handler) ListEscrowTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	transactions, err := h.ledger.GetEscrowTransactions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}
	h.sendJSON(w, transactions, http.StatusOK)
}

func (h *Handler) BuyerApproveHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	agreement, err := h.withMetrics("buyer_approve", func() (interface{}, error) {
		return h.ledger.BuyerApprove(ctx, chi.URLParam(r, "id"), callerFromContext(ctx))
	})
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}
	h.sendJSON(w, agreement, http.StatusOK)
}

func (h *Handler) SellerApproveHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	agreement, err := h.withMetrics("seller_approve", func() (interface{}, error) {
		return h.ledger.SellerApprove(ctx, chi.URLParam(r, "id"), callerFromContext(ctx))
	})
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}
	h.sendJSON(w, agreement, http.StatusOK)
}

func (h *Handler) ReleaseHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	escrowID := chi.URLParam(r, "id")
	var req ReleaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	tx, err := h.withMetrics("release", func() (interface{}, error) {
		return h.ledger.Release(ctx, escrowID, callerFromContext(ctx), req.Amount)
	})
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	if agreement, getErr := h.ledger.GetEscrow(ctx, escrowID); getErr == nil {
		kind := notify.EventEscrowReleased
		if agreement.Status == domain.EscrowCompleted {
			kind = notify.EventEscrowCompleted
		}
		h.notifyEscrow(ctx, agreement, kind)
	}
	h.sendJSON(w, tx, http.StatusOK)
}

func (h *Handler) RaiseDisputeHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	caller := callerFromContext(ctx)
	result, err := h.withMetrics("raise_dispute", func() (interface{}, error) {
		return h.ledger.RaiseDispute(ctx, chi.URLParam(r, "id"), caller)
	})
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	agreement := result.(*domain.EscrowAgreement)
	if h.notifier != nil {
		if notifyErr := h.notifier.DisputeAlert(ctx, agreement, caller); notifyErr != nil {
			h.logger.Error("Failed to queue dispute alert",
				slog.String("escrow_id", agreement.ID),
				slog.String("error", notifyErr.Error()))
		}
	}
	h.sendJSON(w, agreement, http.StatusOK)
}

func (h *Handler) ResolveDisputeHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	escrowID := chi.URLParam(r, "id")
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	tx, err := h.withMetrics("resolve_dispute", func() (interface{}, error) {
		return h.ledger.ResolveDispute(ctx, escrowID, callerFromContext(ctx), req.FavorBeneficiary)
	})
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	if agreement, getErr := h.ledger.GetEscrow(ctx, escrowID); getErr == nil {
		h.notifyEscrow(ctx, agreement, notify.EventEscrowResolved)
	}
	h.sendJSON(w, tx, http.StatusOK)
}

func (h *Handler) RefundHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	escrowID := chi.URLParam(r, "id")
	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	tx, err := h.withMetrics("refund", func() (interface{}, error) {
		return h.ledger.Refund(ctx, escrowID, callerFromContext(ctx), req.Reason)
	})
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	if agreement, getErr := h.ledger.GetEscrow(ctx, escrowID); getErr == nil {
		h.notifyEscrow(ctx, agreement, notify.EventEscrowRefunded)
	}
	h.sendJSON(w, tx, http.StatusOK)
}

func (h *Handler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	result, err := h.withMetrics("cancel", func() (interface{}, error) {
		return h.ledger.Cancel(ctx, chi.URLParam(r, "id"), callerFromContext(ctx))
	})
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	agreement := result.(*domain.EscrowAgreement)
	h.notifyEscrow(ctx, agreement, notify.EventEscrowCancelled)
	h.sendJSON(w, agreement, http.StatusOK)
}

func (h *Handler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.Stats(r.Context())
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}
	h.sendJSON(w, stats, http.StatusOK)
}

func (h *Handler) FeeStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.PlatformFeeStats(r.Context())
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}
	h.sendJSON(w, stats, http.StatusOK)
}

func (h *Handler) WithdrawFeesHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	if !h.verifySignature(w, ctx, "withdraw_fees", req.Amount, req.Timestamp, req.Signature) {
		return
	}

	record, err := h.withMetrics("withdraw_fees", func() (interface{}, error) {
		return h.ledger.WithdrawPlatformFee(ctx, req.Amount)
	})
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	h.sendJSON(w, record, http.StatusOK)
}

// withMetrics wraps one engine call with operation counters and timing.
func (h *Handler) withMetrics(operation string, fn func() (interface{}, error)) (interface{}, error) {
	startTime := time.Now()
	result, err := fn()
	if h.metrics != nil {
		h.metrics.RecordOperation(operation, time.Since(startTime), err)
	}
	return result, err
}

func (h *Handler) notifyEscrow(ctx context.Context, agreement *domain.EscrowAgreement, kind notify.EventKind) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.EscrowEvent(ctx, agreement, kind); err != nil {
		h.logger.Error("Failed to queue escrow notification",
			slog.String("escrow_id", agreement.ID),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()))
	}
}

// verifySignature enforces the optional request signature. Returns false
// after writing the error response when verification fails.
func (h *Handler) verifySignature(w http.ResponseWriter, ctx context.Context, operation string, amount, timestamp int64, signature string) bool {
	if signature == "" || h.signer == nil {
		return true
	}
	caller := callerFromContext(ctx)
	if valid, err := h.signer.VerifyOperation(caller, operation, amount, timestamp, signature); !valid || err != nil {
		h.sendError(w, "Invalid signature", http.StatusUnauthorized, "INVALID_SIGNATURE")
		return false
	}
	return true
}

func (h *Handler) sendLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		h.sendError(w, err.Error(), http.StatusNotFound, "NOT_FOUND")
	case errors.Is(err, ledger.ErrAlreadyExists):
		h.sendError(w, err.Error(), http.StatusConflict, "ALREADY_EXISTS")
	case errors.Is(err, ledger.ErrInvalidAmount):
		h.sendError(w, err.Error(), http.StatusBadRequest, "INVALID_AMOUNT")
	case errors.Is(err, ledger.ErrInvalidDeadline):
		h.sendError(w, err.Error(), http.StatusBadRequest, "INVALID_DEADLINE")
	case errors.Is(err, ledger.ErrInsufficientBalance):
		h.sendError(w, err.Error(), http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE")
	case errors.Is(err, ledger.ErrInvalidState):
		h.sendError(w, err.Error(), http.StatusConflict, "INVALID_STATE")
	case errors.Is(err, ledger.ErrAlreadyApproved):
		h.sendError(w, err.Error(), http.StatusConflict, "ALREADY_APPROVED")
	case errors.Is(err, ledger.ErrNoArbitratorAssigned):
		h.sendError(w, err.Error(), http.StatusConflict, "NO_ARBITRATOR")
	case errors.Is(err, ledger.ErrOnlyArbitratorCanResolve):
		h.sendError(w, err.Error(), http.StatusForbidden, "ONLY_ARBITRATOR")
	case errors.Is(err, ledger.ErrUnauthorized):
		h.sendError(w, err.Error(), http.StatusForbidden, "FORBIDDEN")
	case errors.Is(err, validator.ErrEmptyAccountID),
		errors.Is(err, validator.ErrAccountIDFormat),
		errors.Is(err, validator.ErrSameAccount):
		h.sendError(w, err.Error(), http.StatusBadRequest, "INVALID_REQUEST")
	default:
		h.sendError(w, "Internal error", http.StatusInternalServerError, "SERVER_ERROR")
	}
}

func (h *Handler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func (h *Handler) sendError(w http.ResponseWriter, message string, statusCode int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code})

	h.logger.Warn("API error response",
		slog.String("message", message),
		slog.String("code", code),
		slog.Int("status", statusCode))
}
