package deposits

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/coopfin/coopfin/internal/finance/accrual"
	"github.com/coopfin/coopfin/internal/ledger/journal"
	ledgershared "github.com/coopfin/coopfin/internal/ledger/shared"
	"github.com/coopfin/coopfin/internal/platform/httpx"
	internalShared "github.com/coopfin/coopfin/internal/shared"
)

type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/products", h.createProduct)
	r.Get("/products", h.listProducts)
	r.Post("/accounts", h.openAccount)
	r.Get("/accounts/{id}", h.getAccount)
	r.Post("/accounts/{id}/deposits", h.deposit)
	r.Post("/accounts/{id}/withdrawals", h.withdraw)
	r.Post("/accounts/{id}/close", h.closeAccount)
	r.Post("/interest-runs", h.runInterest)
}

type createProductRequest struct {
	Code                string          `json:"code" validate:"required"`
	Name                string          `json:"name" validate:"required"`
	Kind                string          `json:"kind" validate:"required,oneof=SAVINGS FIXED_DEPOSIT"`
	AnnualRate          decimal.Decimal `json:"annualRatePercent"`
	PostingFrequency    string          `json:"postingFrequency" validate:"required,oneof=MONTHLY QUARTERLY ANNUALLY"`
	DayCountBasis       int             `json:"dayCountBasis"`
	TaxRate             decimal.Decimal `json:"taxRatePercent"`
	InterestExpenseCode string          `json:"interestExpenseCode" validate:"required"`
	TaxPayableCode      string          `json:"taxPayableCode"`
	TermMonths          int             `json:"termMonths"`
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	scope, ok := internalShared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant scope missing")
		return
	}
	var req createProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	product, err := h.service.CreateProduct(r.Context(), Product{
		TenantID:            scope.TenantID,
		Code:                req.Code,
		Name:                req.Name,
		Kind:                ProductKind(req.Kind),
		AnnualRatePercent:   req.AnnualRate,
		PostingFrequency:    accrual.PostingFrequency(req.PostingFrequency),
		DayCountBasis:       req.DayCountBasis,
		TaxRatePercent:      req.TaxRate,
		InterestExpenseCode: req.InterestExpenseCode,
		TaxPayableCode:      req.TaxPayableCode,
		TermMonths:          req.TermMonths,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	scope, ok := internalShared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant scope missing")
		return
	}
	products, err := h.service.repo.ListProducts(r.Context(), scope.TenantID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}

type openAccountRequest struct {
	MemberID  int64 `json:"memberId" validate:"required"`
	ProductID int64 `json:"productId" validate:"required"`
}

func (h *Handler) openAccount(w http.ResponseWriter, r *http.Request) {
	scope, ok := internalShared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant scope missing")
		return
	}
	var req openAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.OpenAccount(r.Context(), OpenInput{
		TenantID:  scope.TenantID,
		MemberID:  req.MemberID,
		ProductID: req.ProductID,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.scopeAndID(w, r)
	if !ok {
		return
	}
	account, balance, err := h.service.GetAccount(r.Context(), scope.TenantID, id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"account": account, "balance": balance})
}

type movementRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
	Date   string          `json:"date"`
}

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.service.Deposit)
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.service.Withdraw)
}

type movementOp func(ctx context.Context, tenantID, accountID, actorID int64, amount decimal.Decimal, date time.Time) (journal.JournalEntry, error)

func (h *Handler) move(w http.ResponseWriter, r *http.Request, op movementOp) {
	scope, id, ok := h.scopeAndID(w, r)
	if !ok {
		return
	}
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var date time.Time
	if req.Date != "" {
		var err error
		if date, err = time.Parse("2006-01-02", req.Date); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "date must be YYYY-MM-DD")
			return
		}
	}
	entry, err := op(r.Context(), scope.TenantID, id, scope.ActorID, req.Amount, date)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"entryNumber": entry.Number, "entryId": entry.ID})
}

func (h *Handler) closeAccount(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.scopeAndID(w, r)
	if !ok {
		return
	}
	if err := h.service.CloseAccount(r.Context(), scope.TenantID, id, scope.ActorID); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) runInterest(w http.ResponseWriter, r *http.Request) {
	scope, ok := internalShared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant scope missing")
		return
	}
	var body struct {
		AsOf string `json:"asOf"`
	}
	_ = httpx.DecodeJSON(r, &body)
	var asOf time.Time
	if body.AsOf != "" {
		var err error
		if asOf, err = time.Parse("2006-01-02", body.AsOf); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "asOf must be YYYY-MM-DD")
			return
		}
	}
	summary, err := h.service.RunInterest(r.Context(), RunInput{TenantID: scope.TenantID, AsOf: asOf, ActorID: scope.ActorID})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) scopeAndID(w http.ResponseWriter, r *http.Request) (internalShared.Scope, int64, bool) {
	scope, ok := internalShared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant scope missing")
		return internalShared.Scope{}, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return internalShared.Scope{}, 0, false
	}
	return scope, id, true
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ledgershared.ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrAccountClosed),
		errors.Is(err, ErrNotMatured):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ledgershared.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("deposits handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
