package loans

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/coopfin/coopfin/internal/finance/amort"
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
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
	r.Post("/{id}/disburse", h.disburse)
	r.Post("/{id}/repayments", h.repay)
}

type createLoanRequest struct {
	MemberID     int64           `json:"memberId" validate:"required"`
	Amount       decimal.Decimal `json:"amount" validate:"required"`
	AnnualRate   decimal.Decimal `json:"annualRatePercent"`
	TenureMonths int             `json:"tenureMonths" validate:"required,min=1"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	scope, ok := internalShared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant scope missing")
		return
	}
	var req createLoanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	loan, err := h.service.CreateApplication(r.Context(), CreateInput{
		TenantID:          scope.TenantID,
		MemberID:          req.MemberID,
		Amount:            req.Amount,
		AnnualRatePercent: req.AnnualRate,
		TenureMonths:      req.TenureMonths,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, loan)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	scope, ok := internalShared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant scope missing")
		return
	}
	out, err := h.service.List(r.Context(), scope.TenantID, LoanStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.scopeAndID(w, r)
	if !ok {
		return
	}
	loan, schedule, err := h.service.Get(r.Context(), scope.TenantID, id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"loan": loan, "schedule": schedule})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.scopeAndID(w, r)
	if !ok {
		return
	}
	var body struct {
		DisbursementDate string `json:"disbursementDate"`
	}
	_ = httpx.DecodeJSON(r, &body)
	var date time.Time
	if body.DisbursementDate != "" {
		var err error
		if date, err = time.Parse("2006-01-02", body.DisbursementDate); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "disbursementDate must be YYYY-MM-DD")
			return
		}
	}
	loan, schedule, err := h.service.Approve(r.Context(), scope.TenantID, id, date)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"loan": loan, "schedule": schedule})
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.scopeAndID(w, r)
	if !ok {
		return
	}
	if err := h.service.Reject(r.Context(), scope.TenantID, id); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) disburse(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.scopeAndID(w, r)
	if !ok {
		return
	}
	loan, err := h.service.Disburse(r.Context(), scope.TenantID, id, scope.ActorID, time.Time{})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loan)
}

func (h *Handler) repay(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.scopeAndID(w, r)
	if !ok {
		return
	}
	var body struct {
		Number int `json:"installmentNumber"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil || body.Number <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "installmentNumber required")
		return
	}
	installment, err := h.service.RecordRepayment(r.Context(), RepaymentInput{
		TenantID: scope.TenantID,
		LoanID:   id,
		Number:   body.Number,
		ActorID:  scope.ActorID,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, installment)
}

func (h *Handler) scopeAndID(w http.ResponseWriter, r *http.Request) (internalShared.Scope, int64, bool) {
	scope, ok := internalShared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant scope missing")
		return internalShared.Scope{}, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid loan id")
		return internalShared.Scope{}, 0, false
	}
	return scope, id, true
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrLoanNotFound), errors.Is(err, ErrInstallmentNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrInstallmentPaid):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, amort.ErrInvalidPrincipal),
		errors.Is(err, amort.ErrInvalidTenure),
		errors.Is(err, amort.ErrInvalidRate),
		errors.Is(err, ledgershared.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("loans handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
