package handler

import (
	"net/http"

	"github.com/suratbrts/cms/internal/auth"
	"github.com/suratbrts/cms/internal/model"
	"github.com/suratbrts/cms/internal/query"
	"github.com/suratbrts/cms/internal/store"
	"github.com/suratbrts/cms/internal/withdrawal"
)

type WithdrawalHandler struct {
	Responder
	engine *withdrawal.Engine
}

func NewWithdrawalHandler(rs Responder, e *withdrawal.Engine) *WithdrawalHandler {
	return &WithdrawalHandler{Responder: rs, engine: e}
}

type withdrawalRequest struct {
	Points         int                    `json:"points" validate:"required,gt=0"`
	Method         model.WithdrawalMethod `json:"method" validate:"required"`
	PaymentDetails model.PaymentDetails   `json:"paymentDetails"`
}

// Request handles POST /api/withdrawals
func (h *WithdrawalHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req withdrawalRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.engine.Request(r.Context(), withdrawal.RequestInput{
		UserID:         auth.UserID(r.Context()),
		Points:         req.Points,
		Method:         req.Method,
		PaymentDetails: req.PaymentDetails,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, res, "Withdrawal request submitted successfully")
}

// Mine handles GET /api/withdrawals/mine
func (h *WithdrawalHandler) Mine(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	res, err := h.engine.List(r.Context(), store.WithdrawalFilter{UserID: &userID}, query.FromRequest(r, 10))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, res, "")
}

// List handles GET /api/admin/withdrawals
func (h *WithdrawalHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := withdrawalFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.engine.List(r.Context(), f, query.FromRequest(r, 20))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, res, "")
}

// Get handles GET /api/admin/withdrawals/{id}
func (h *WithdrawalHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	wd, err := h.engine.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, wd, "")
}

type processRequest struct {
	Status        model.WithdrawalStatus `json:"status" validate:"required,oneof=pending processing approved rejected"`
	Reason        string                 `json:"reason" validate:"max=500"`
	Description   string                 `json:"description" validate:"max=2000"`
	TransactionID string                 `json:"transactionId" validate:"max=100"`
}

// Approve handles PUT /api/withdrawals/{id}/approve
func (h *WithdrawalHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req processRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	wd, err := h.engine.Process(r.Context(), id, withdrawal.ProcessInput{
		Status:        req.Status,
		Reason:        req.Reason,
		Description:   req.Description,
		TransactionID: req.TransactionID,
		AdminID:       auth.AdminID(r.Context()),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, wd, "Withdrawal status updated")
}
