package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/suratbrts/cms/internal/apperr"
	"github.com/suratbrts/cms/internal/model"
	"github.com/suratbrts/cms/internal/store"
)

const dateLayout = "2006-01-02"

func queryBool(r *http.Request, key string) (*bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, apperr.Validation(key + " must be true or false")
	}
	return &b, nil
}

func queryInt64(r *http.Request, key string) (*int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, apperr.Validation(key + " must be a number")
	}
	return &n, nil
}

// queryDate accepts YYYY-MM-DD or RFC 3339. A bare "to" date covers the
// whole day.
func queryDate(r *http.Request, key string, endOfDay bool) (*time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return nil, apperr.Validation(key + " must be a date (YYYY-MM-DD)")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// complaintFilter reads the list filters shared by the admin list and export.
func complaintFilter(r *http.Request) (store.ComplaintFilter, error) {
	q := r.URL.Query()
	f := store.ComplaintFilter{
		Status:   model.ComplaintStatus(q.Get("status")),
		Type:     strings.TrimSpace(q.Get("type")),
		Priority: model.Priority(q.Get("priority")),
		Search:   strings.TrimSpace(q.Get("search")),
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, apperr.Validation("Invalid status filter")
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return f, apperr.Validation("Invalid priority filter")
	}
	var err error
	if f.AssignedTo, err = queryInt64(r, "assignedTo"); err != nil {
		return f, err
	}
	if f.From, err = queryDate(r, "from", false); err != nil {
		return f, err
	}
	if f.To, err = queryDate(r, "to", true); err != nil {
		return f, err
	}
	return f, nil
}

func withdrawalFilter(r *http.Request) (store.WithdrawalFilter, error) {
	q := r.URL.Query()
	f := store.WithdrawalFilter{
		Status: model.WithdrawalStatus(q.Get("status")),
		Method: model.WithdrawalMethod(q.Get("method")),
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, apperr.Validation("Invalid status filter")
	}
	if f.Method != "" && !f.Method.Valid() {
		return f, apperr.Validation("Invalid method filter")
	}
	var err error
	if f.From, err = queryDate(r, "from", false); err != nil {
		return f, err
	}
	if f.To, err = queryDate(r, "to", true); err != nil {
		return f, err
	}
	return f, nil
}
