package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/suratbrts/cms/internal/report"
)

type ReportHandler struct {
	Responder
	reports *report.Service
}

func NewReportHandler(rs Responder, svc *report.Service) *ReportHandler {
	return &ReportHandler{Responder: rs, reports: svc}
}

// Dashboard handles GET /api/admin/dashboard
func (h *ReportHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.reports.Dashboard(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, d, "")
}

// ExportComplaints handles GET /api/admin/reports/complaints?format=xlsx|csv
func (h *ReportHandler) ExportComplaints(w http.ResponseWriter, r *http.Request) {
	f, err := complaintFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	export, err := h.reports.ExportComplaints(r.Context(), f, report.Format(r.URL.Query().Get("format")))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(export.Data)))
	w.Header().Set("X-Report-Rows", strconv.Itoa(export.Meta.RowCount))
	w.Header().Set("X-Report-Generated-At", export.Meta.GeneratedAt.Format(time.RFC3339))
	w.WriteHeader(http.StatusOK)
	w.Write(export.Data)
}

// ArchiveComplaints handles POST /api/admin/reports/complaints/archive
func (h *ReportHandler) ArchiveComplaints(w http.ResponseWriter, r *http.Request) {
	f, err := complaintFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	archived, err := h.reports.ArchiveComplaints(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, archived, "Report archived")
}
