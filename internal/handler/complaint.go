package handler

import (
	"net/http"
	"time"

	"github.com/suratbrts/cms/internal/auth"
	"github.com/suratbrts/cms/internal/complaint"
	"github.com/suratbrts/cms/internal/model"
	"github.com/suratbrts/cms/internal/query"
	"github.com/suratbrts/cms/internal/store"
)

type ComplaintHandler struct {
	Responder
	engine *complaint.Engine
}

func NewComplaintHandler(rs Responder, e *complaint.Engine) *ComplaintHandler {
	return &ComplaintHandler{Responder: rs, engine: e}
}

type submitComplaintRequest struct {
	Type          string            `json:"type" validate:"required"`
	Description   string            `json:"description" validate:"required,max=2000"`
	Stop          string            `json:"stop" validate:"required,max=200"`
	Location      string            `json:"location" validate:"max=500"`
	Evidence      []string          `json:"evidence" validate:"max=10,dive,required,max=500"`
	DateTime      *time.Time        `json:"dateTime"`
	DynamicFields map[string]string `json:"dynamicFields"`
}

// Submit handles POST /api/complaints. Signed-in citizens own the complaint;
// everyone else submits anonymously.
func (h *ComplaintHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitComplaintRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	owner := model.Anonymous()
	if p, ok := auth.FromContext(r.Context()); ok && p.Kind == auth.KindUser {
		owner = model.OwnedBy(p.ID)
	}

	res, err := h.engine.Submit(r.Context(), complaint.SubmitInput{
		Type:          req.Type,
		Description:   req.Description,
		Stop:          req.Stop,
		Location:      req.Location,
		Evidence:      req.Evidence,
		DateTime:      req.DateTime,
		DynamicFields: req.DynamicFields,
		Owner:         owner,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, res, "Complaint submitted successfully")
}

// Track handles GET /api/complaints/track/{token}
func (h *ComplaintHandler) Track(w http.ResponseWriter, r *http.Request) {
	c, err := h.engine.Track(r.Context(), r.PathValue("token"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, c, "")
}

// Types handles GET /api/complaints/types
func (h *ComplaintHandler) Types(w http.ResponseWriter, r *http.Request) {
	types, err := h.engine.Types(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, types, "")
}

// Mine handles GET /api/complaints/mine
func (h *ComplaintHandler) Mine(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	f := store.ComplaintFilter{
		UserID: &userID,
		Status: model.ComplaintStatus(r.URL.Query().Get("status")),
	}
	res, err := h.engine.List(r.Context(), f, query.FromRequest(r, 10))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, res, "")
}

// List handles GET /api/admin/complaints
func (h *ComplaintHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := complaintFilter(r)
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

// Get handles GET /api/admin/complaints/{id}
func (h *ComplaintHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.engine.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, c, "")
}

type transitionRequest struct {
	Status           model.ComplaintStatus `json:"status" validate:"required,oneof=pending under_review approved rejected"`
	Reason           string                `json:"reason" validate:"max=500"`
	AdminDescription string                `json:"adminDescription" validate:"max=2000"`
	Points           *int                  `json:"points" validate:"omitempty,min=0"`
}

// Approve handles PUT /api/admin/complaints/{id}/approve
func (h *ComplaintHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req transitionRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	c, err := h.engine.Transition(r.Context(), id, complaint.TransitionInput{
		Status:           req.Status,
		Reason:           req.Reason,
		AdminDescription: req.AdminDescription,
		Points:           req.Points,
		AdminID:          auth.AdminID(r.Context()),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, c, "Complaint status updated")
}

type assignRequest struct {
	AdminID  *int64         `json:"adminId"`
	Priority model.Priority `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
}

// Assign handles PUT /api/admin/complaints/{id}/assign
func (h *ComplaintHandler) Assign(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req assignRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	c, err := h.engine.Assign(r.Context(), id, complaint.AssignInput{
		AssignedTo: req.AdminID,
		Priority:   req.Priority,
		AdminID:    auth.AdminID(r.Context()),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, c, "Complaint assigned")
}
