package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/avelar-fin/loan-service/internal/models"
	"github.com/avelar-fin/loan-service/internal/service"
)

type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

// Register handles staff registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	staff, err := h.svc.RegisterStaff(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to register staff user")
		return
	}
	writeJSON(w, http.StatusCreated, staff)
}

// Login handles staff authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// PaymentWebhook receives installment status updates from the payment
// processor. Deliveries are at-least-once; the transition gate makes
// duplicates harmless.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LoanID        int64   `json:"loan_id"`
		InstallmentID int64   `json:"installment_id"`
		Status        string  `json:"status"`
		TransactionID *string `json:"transaction_id"`
		ErrorCode     *string `json:"error_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook body")
		return
	}

	res := h.svc.Transition(r.Context(), service.TransitionInput{
		LoanID:                req.LoanID,
		InstallmentID:         req.InstallmentID,
		NewStatus:             models.InstallmentStatus(req.Status),
		ExternalTransactionID: req.TransactionID,
		ErrorCode:             req.ErrorCode,
	})
	if !res.Success {
		writeJSON(w, transitionStatus(res), res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// TransitionInstallment lets back-office staff drive a status change by
// hand, optionally overriding contract terms for loans without one.
func (h *Handler) TransitionInstallment(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid loan id")
		return
	}
	installmentID, err := pathID(r, "installmentID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid installment id")
		return
	}

	var req struct {
		Status        string           `json:"status"`
		Frequency     string           `json:"frequency"`
		PaymentAmount *decimal.Decimal `json:"payment_amount"`
		FailureFee    *decimal.Decimal `json:"failure_fee"`
		ErrorCode     *string          `json:"error_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	res := h.svc.Transition(r.Context(), service.TransitionInput{
		LoanID:                loanID,
		InstallmentID:         installmentID,
		NewStatus:             models.InstallmentStatus(req.Status),
		ErrorCode:             req.ErrorCode,
		FrequencyOverride:     req.Frequency,
		PaymentAmountOverride: req.PaymentAmount,
		FailureFeeOverride:    req.FailureFee,
	})
	if !res.Success {
		writeJSON(w, transitionStatus(res), res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Disburse generates the initial payment schedule for a loan
func (h *Handler) Disburse(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid loan id")
		return
	}

	var req struct {
		FirstDueDate string `json:"first_due_date"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	var firstDue time.Time
	if req.FirstDueDate != "" {
		firstDue, err = time.Parse("2006-01-02", req.FirstDueDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "first_due_date must be YYYY-MM-DD")
			return
		}
	}

	installments, err := h.svc.Disburse(r.Context(), loanID, firstDue)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, models.ErrValidation):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, installments)
}

// GetSchedule returns a loan's installment schedule
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid loan id")
		return
	}

	installments, summary, err := h.svc.Schedule(r.Context(), loanID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"installments": installments,
		"summary":      summary,
	})
}

func transitionStatus(res service.Result) int {
	if strings.Contains(res.Error, "not found") {
		return http.StatusNotFound
	}
	return http.StatusUnprocessableEntity
}
