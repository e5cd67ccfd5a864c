package withdrawal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/suratbrts/cms/internal/apperr"
	"github.com/suratbrts/cms/internal/ledger"
	"github.com/suratbrts/cms/internal/model"
	"github.com/suratbrts/cms/internal/push"
	"github.com/suratbrts/cms/internal/store"
	"github.com/suratbrts/cms/internal/websocket"
)

// decisionTTL keeps a decision notification queued for devices that are offline for a few days.
const decisionTTL = 72 * time.Hour

type ProcessInput struct {
	Status        model.WithdrawalStatus
	Reason        string
	Description   string
	TransactionID string
	AdminID       int64
}

// Process records an admin decision. Rejection returns the debited points
// with an adjusted ledger entry in the same transaction as the status change.
func (e *Engine) Process(ctx context.Context, id int64, in ProcessInput) (*model.Withdrawal, error) {
	if !in.Status.Valid() {
		return nil, apperr.Validation("Invalid status")
	}
	in.TransactionID = strings.TrimSpace(in.TransactionID)

	var userID int64
	err := store.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		withdrawals := e.withdrawals.Tx(tx)

		w, err := withdrawals.GetByID(ctx, id)
		if err != nil {
			return apperr.Wrap(err, "Failed to load withdrawal")
		}
		if w == nil {
			return apperr.NotFound("Withdrawal not found")
		}
		if w.Status.Terminal() {
			return apperr.Conflict(fmt.Sprintf("Withdrawal is already %s", w.Status))
		}
		if !w.Status.CanTransitionTo(in.Status) {
			return apperr.Validation(fmt.Sprintf("Cannot move withdrawal from %s to %s", w.Status, in.Status))
		}
		userID = w.UserID

		ok, err := withdrawals.UpdateStatus(ctx, id, w.Version, in.Status, in.Reason, in.Description, in.TransactionID, in.AdminID)
		if err != nil {
			return apperr.Wrap(err, "Failed to update withdrawal")
		}
		if !ok {
			return apperr.Conflict("Withdrawal was modified by someone else; reload and try again")
		}

		adminID := in.AdminID
		if err := withdrawals.AppendTimeline(ctx, id, model.TimelineEntry{
			Action:      model.ActionStatusUpdate,
			Status:      string(in.Status),
			Reason:      in.Reason,
			Description: in.Description,
			AdminID:     &adminID,
		}); err != nil {
			return apperr.Wrap(err, "Failed to record timeline")
		}

		if in.Status != model.WithdrawalRejected {
			return nil
		}
		_, err = e.ledger.Adjust(ctx, tx, ledger.Entry{
			UserID:        w.UserID,
			Amount:        w.Points,
			Source:        model.SourceWithdrawalReversal,
			Description:   "Withdrawal rejected: points returned",
			ReferenceType: model.RefWithdrawal,
			ReferenceID:   &id,
			AdminID:       &adminID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	w, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	e.logger.Info("withdrawal processed", "id", id, "status", in.Status, "admin_id", in.AdminID)

	msg := websocket.NewMessage(websocket.EventWithdrawalUpdate, id, map[string]any{
		"status":        w.Status,
		"points":        w.Points,
		"amount":        w.Amount,
		"transactionId": w.TransactionID,
	})
	e.broadcaster.Publish(websocket.UserRoom(userID), msg)
	e.broadcaster.Publish(websocket.RoomAdmins, msg)

	e.notifier.NotifyUser(ctx, userID, push.Payload{
		Title:   "Withdrawal update",
		Body:    notificationBody(w),
		URL:     "/withdrawals",
		Tag:     fmt.Sprintf("withdrawal-%d", id),
		Data:    map[string]string{"withdrawalId": fmt.Sprint(id), "status": string(w.Status)},
		Urgency: push.UrgencyHigh,
		TTL:     decisionTTL,
	})
	return w, nil
}

func notificationBody(w *model.Withdrawal) string {
	switch w.Status {
	case model.WithdrawalApproved:
		return fmt.Sprintf("Your withdrawal of ₹%s has been paid.", w.Amount.StringFixed(2))
	case model.WithdrawalRejected:
		return fmt.Sprintf("Your withdrawal was rejected. %d points have been returned.", w.Points)
	default:
		return fmt.Sprintf("Your withdrawal of ₹%s is being processed.", w.Amount.StringFixed(2))
	}
}
