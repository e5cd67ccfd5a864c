package handler

import (
	"context"
	"net/http"

	"github.com/suratbrts/cms/internal/apperr"
	"github.com/suratbrts/cms/internal/auth"
	"github.com/suratbrts/cms/internal/push"
	"github.com/suratbrts/cms/internal/store"
)

// UserNotifier delivers a push payload to every device of a user.
type UserNotifier interface {
	NotifyUser(ctx context.Context, userID int64, p push.Payload) int
}

type PushHandler struct {
	Responder
	pushStore *store.PushStore
	notifier  UserNotifier
	publicKey string
}

// NewPushHandler builds the push subscription endpoints. publicKey is empty
// when VAPID keys are not configured.
func NewPushHandler(rs Responder, ps *store.PushStore, n UserNotifier, publicKey string) *PushHandler {
	return &PushHandler{Responder: rs, pushStore: ps, notifier: n, publicKey: publicKey}
}

type subscribeRequest struct {
	Endpoint   string `json:"endpoint" validate:"required,url"`
	P256dh     string `json:"p256dh" validate:"required"`
	Auth       string `json:"auth" validate:"required"`
	DeviceName string `json:"deviceName" validate:"max=100"`
}

// Subscribe handles POST /api/push/subscribe
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	sub, err := h.pushStore.Upsert(r.Context(), auth.UserID(r.Context()), req.Endpoint, req.P256dh, req.Auth, req.DeviceName)
	if err != nil {
		h.fail(w, r, apperr.Wrap(err, "Failed to save subscription"))
		return
	}
	h.ok(w, http.StatusCreated, sub, "Subscribed to notifications")
}

// Unsubscribe handles DELETE /api/push/subscriptions/{id}
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	found, err := h.pushStore.Delete(r.Context(), id, auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, apperr.Wrap(err, "Failed to delete subscription"))
		return
	}
	if !found {
		h.fail(w, r, apperr.NotFound("Subscription not found"))
		return
	}
	h.ok(w, http.StatusOK, nil, "Subscription removed")
}

// ListSubscriptions handles GET /api/push/subscriptions
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.pushStore.ListByUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, apperr.Wrap(err, "Failed to list subscriptions"))
		return
	}
	h.ok(w, http.StatusOK, subs, "")
}

// GetVAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	if h.publicKey == "" {
		h.fail(w, r, apperr.NotFound("Push notifications are not configured"))
		return
	}
	h.ok(w, http.StatusOK, map[string]string{"publicKey": h.publicKey}, "")
}

// TestNotification handles POST /api/push/test
func (h *PushHandler) TestNotification(w http.ResponseWriter, r *http.Request) {
	sent := h.notifier.NotifyUser(r.Context(), auth.UserID(r.Context()), push.Payload{
		Title: "Test Notification",
		Body:  "Push notifications are working!",
		URL:   "/profile",
		Tag:   "test",
	})
	h.ok(w, http.StatusOK, map[string]int{"sent": sent}, "")
}
