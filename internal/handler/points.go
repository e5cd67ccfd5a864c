package handler

import (
	"net/http"
	"strings"

	"github.com/suratbrts/cms/internal/auth"
	"github.com/suratbrts/cms/internal/ledger"
	"github.com/suratbrts/cms/internal/model"
	"github.com/suratbrts/cms/internal/query"
	"github.com/suratbrts/cms/internal/store"
)

type PointsHandler struct {
	Responder
	ledger *ledger.Ledger
}

func NewPointsHandler(rs Responder, l *ledger.Ledger) *PointsHandler {
	return &PointsHandler{Responder: rs, ledger: l}
}

type pointsSummary struct {
	Balance int                               `json:"balance"`
	History query.Result[model.PointsHistory] `json:"history"`
}

// Mine handles GET /api/points
func (h *PointsHandler) Mine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.UserID(ctx)

	balance, err := h.ledger.Balance(ctx, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	history, err := h.ledger.History(ctx, store.PointsFilter{
		UserID: userID,
		Type:   model.PointsType(r.URL.Query().Get("type")),
	}, query.FromRequest(r, 20))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, pointsSummary{Balance: balance, History: history}, "")
}

type adjustRequest struct {
	Points      int    `json:"points" validate:"required"`
	Description string `json:"description" validate:"max=255"`
}

// Adjust handles POST /api/admin/users/{id}/points
func (h *PointsHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req adjustRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	entry, err := h.ledger.AdminAdjust(r.Context(), id, req.Points, strings.TrimSpace(req.Description), auth.AdminID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, entry, "Points adjusted")
}

// Reconcile handles GET /api/admin/points/reconcile
func (h *PointsHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	drift, err := h.ledger.Reconcile(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if drift == nil {
		drift = []model.BalanceDrift{}
	}
	h.ok(w, http.StatusOK, drift, "")
}
