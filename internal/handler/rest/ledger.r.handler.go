package hrest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"ledger-service/internal/auth"
	"ledger-service/internal/domain"
	"ledger-service/internal/repository"
	"ledger-service/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
)

// idempotencyHeader lets callers retry a mutation without double-applying it.
const idempotencyHeader = "Idempotency-Key"

// LedgerRestHandler exposes the mutation and query surface over HTTP.
type LedgerRestHandler struct {
	accountUC  *usecase.AccountUsecase
	ledgerUC   *usecase.LedgerUsecase
	transferUC *usecase.TransferUsecase
	metrics    *usecase.MetricsRecorder
	roles      repository.RoleRepository
}

// NewLedgerRestHandler creates the REST handler.
func NewLedgerRestHandler(
	accountUC *usecase.AccountUsecase,
	ledgerUC *usecase.LedgerUsecase,
	transferUC *usecase.TransferUsecase,
	metrics *usecase.MetricsRecorder,
	roles repository.RoleRepository,
) *LedgerRestHandler {
	return &LedgerRestHandler{
		accountUC:  accountUC,
		ledgerUC:   ledgerUC,
		transferUC: transferUC,
		metrics:    metrics,
		roles:      roles,
	}
}

// Routes mounts the handler behind the verified-identity middleware.
func (h *LedgerRestHandler) Routes(authMW func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(authMW)

	r.Post("/accounts", h.OpenAccount)
	r.Get("/accounts/{accountID}", h.GetAccount)
	r.Get("/accounts/{accountID}/entries", h.ListEntries)
	r.Get("/accounts/{accountID}/transfers", h.ListTransfers)
	r.Post("/accounts/{accountID}/deposit", h.Deposit)
	r.Post("/accounts/{accountID}/withdraw", h.Withdraw)
	r.Post("/transfers", h.Transfer)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAdmin)
		r.Get("/admin/metrics", h.RecentMetrics)
		r.Post("/admin/roles", h.AssignRole)
	})

	return r
}

type amountJSON struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type transferJSON struct {
	FromAccountID   int64           `json:"from_account_id"`
	ToAccountNumber string          `json:"to_account_number"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
}

func (h *LedgerRestHandler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	var in domain.OpenAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, domain.ErrInvalidRequest)
		return
	}
	if in.AccountType == "" {
		in.AccountType = domain.AccountTypeSavings
	}
	// Customers open accounts only for themselves; admins may open on
	// behalf of any owner.
	if id, ok := auth.FromContext(r.Context()); ok {
		if in.OwnerID == "" {
			in.OwnerID = id.UserID
		} else if in.OwnerID != id.UserID && id.Role != domain.RoleAdmin {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	account, err := h.accountUC.OpenAccount(r.Context(), &in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

func (h *LedgerRestHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "accountID")
	if err != nil {
		writeError(w, domain.ErrInvalidRequest)
		return
	}

	account, err := h.accountUC.GetAccount(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *LedgerRestHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "accountID")
	if err != nil {
		writeError(w, domain.ErrInvalidRequest)
		return
	}

	filter, err := entryFilterFromQuery(r)
	if err != nil {
		writeError(w, domain.ErrInvalidRequest)
		return
	}

	entries, err := h.accountUC.ListEntries(r.Context(), accountID, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *LedgerRestHandler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "accountID")
	if err != nil {
		writeError(w, domain.ErrInvalidRequest)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	transfers, err := h.accountUC.ListTransfers(r.Context(), accountID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transfers)
}

func (h *LedgerRestHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.directOperation(w, r, h.ledgerUC.Deposit)
}

func (h *LedgerRestHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.directOperation(w, r, h.ledgerUC.Withdraw)
}

type directOp func(ctx context.Context, accountID int64, amount decimal.Decimal, description, idempotencyKey string) (*domain.OperationResult, error)

func (h *LedgerRestHandler) directOperation(w http.ResponseWriter, r *http.Request, op directOp) {
	accountID, err := pathID(r, "accountID")
	if err != nil {
		writeError(w, domain.ErrInvalidRequest)
		return
	}

	var in amountJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, domain.ErrInvalidRequest)
		return
	}

	result, err := op(r.Context(), accountID, in.Amount, in.Description, r.Header.Get(idempotencyHeader))
	if err != nil {
		writeOutcome(w, err, domain.ErrOutcome(err))
		return
	}
	writeOutcome(w, nil, domain.OkOutcome(result.NewBalance, result.EntryID))
}

func (h *LedgerRestHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var in transferJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, domain.ErrInvalidRequest)
		return
	}

	result, err := h.transferUC.ExecuteTransfer(r.Context(), in.FromAccountID, in.ToAccountNumber, in.Amount, in.Description, r.Header.Get(idempotencyHeader))
	if err != nil {
		writeOutcome(w, err, domain.ErrOutcome(err))
		return
	}
	writeOutcome(w, nil, domain.OkOutcome(result.NewBalance, result.TransferID))
}

type roleJSON struct {
	UserID string      `json:"user_id"`
	Role   domain.Role `json:"role"`
}

// AssignRole upserts a role assignment. This is the only path that grants
// admin privilege; the claim itself is always re-read from the assignment
// table on each request.
func (h *LedgerRestHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	var in roleJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, domain.ErrInvalidRequest)
		return
	}
	if in.UserID == "" || (in.Role != domain.RoleCustomer && in.Role != domain.RoleAdmin) {
		writeError(w, domain.ErrInvalidRequest)
		return
	}

	if err := h.roles.Assign(r.Context(), in.UserID, in.Role); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (h *LedgerRestHandler) RecentMetrics(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	metrics, err := h.metrics.RecentMetrics(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func entryFilterFromQuery(r *http.Request) (*domain.EntryFilter, error) {
	q := r.URL.Query()
	f := &domain.EntryFilter{}

	if v := q.Get("type"); v != "" {
		t := domain.EntryType(v)
		f.EntryType = &t
	}
	if v := q.Get("date_from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, err
		}
		f.DateFrom = &ts
	}
	if v := q.Get("date_to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, err
		}
		f.DateTo = &ts
	}
	if v := q.Get("min_amount"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, err
		}
		f.MinAmount = &d
	}
	if v := q.Get("max_amount"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, err
		}
		f.MaxAmount = &d
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return nil, err
		}
		f.Limit = limit
	}

	return f, nil
}
