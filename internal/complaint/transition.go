package complaint

import (
	"context"
	"database/sql"
	"fmt"
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

type TransitionInput struct {
	Status           model.ComplaintStatus
	Reason           string
	AdminDescription string
	// Points overrides the configured approval award when set.
	Points  *int
	AdminID int64
}

// Transition moves a complaint along its state machine. The status update is
// conditional on the version read in the same transaction, so approval points
// are credited at most once; a racing second call gets a conflict.
func (e *Engine) Transition(ctx context.Context, id int64, in TransitionInput) (*model.Complaint, error) {
	if !in.Status.Valid() {
		return nil, apperr.Validation("Invalid status")
	}
	if in.Points != nil && *in.Points < 0 {
		return nil, apperr.Validation("Points must not be negative")
	}

	var (
		owner   model.Owner
		awarded int
	)
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		complaints := e.complaints.Tx(tx)

		c, err := complaints.GetByID(ctx, id)
		if err != nil {
			return apperr.Wrap(err, "Failed to load complaint")
		}
		if c == nil {
			return apperr.NotFound("Complaint not found")
		}
		if c.Status.Terminal() {
			return apperr.Conflict(fmt.Sprintf("Complaint is already %s", c.Status))
		}
		if !c.Status.CanTransitionTo(in.Status) {
			return apperr.Validation(fmt.Sprintf("Cannot move complaint from %s to %s", c.Status, in.Status))
		}
		owner = c.Owner

		userID, identified := c.Owner.UserID()
		if in.Status == model.ComplaintApproved && identified {
			awarded, err = e.approvalPoints(ctx, tx, in.Points)
			if err != nil {
				return err
			}
		}

		ok, err := complaints.UpdateStatus(ctx, id, c.Version, in.Status, in.Reason, in.AdminDescription, awarded)
		if err != nil {
			return apperr.Wrap(err, "Failed to update complaint")
		}
		if !ok {
			return apperr.Conflict("Complaint was modified by someone else; reload and try again")
		}

		adminID := in.AdminID
		if err := complaints.AppendTimeline(ctx, id, model.TimelineEntry{
			Action:      model.ActionStatusUpdate,
			Status:      string(in.Status),
			Reason:      in.Reason,
			Description: in.AdminDescription,
			AdminID:     &adminID,
		}); err != nil {
			return apperr.Wrap(err, "Failed to record timeline")
		}

		if awarded <= 0 {
			return nil
		}
		_, err = e.ledger.Credit(ctx, tx, ledger.Entry{
			UserID:        userID,
			Amount:        awarded,
			Source:        model.SourceComplaintApproval,
			Description:   "Complaint approved: " + c.Token,
			ReferenceType: model.RefComplaint,
			ReferenceID:   &id,
			AdminID:       &adminID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	c, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	e.logger.Info("complaint transitioned", "id", id, "status", in.Status, "points", awarded, "admin_id", in.AdminID)
	e.announceUpdate(ctx, c, owner, awarded)
	return c, nil
}

func (e *Engine) approvalPoints(ctx context.Context, tx *sql.Tx, override *int) (int, error) {
	if override != nil {
		return *override, nil
	}
	points, err := e.config.Tx(tx).Int(ctx, model.ConfigApprovalPoints, defaultApprovalPoints)
	if err != nil {
		return 0, apperr.Wrap(err, "Failed to load settings")
	}
	return points, nil
}

func (e *Engine) announceUpdate(ctx context.Context, c *model.Complaint, owner model.Owner, awarded int) {
	msg := websocket.NewMessage(websocket.EventComplaintUpdate, c.ID, map[string]any{
		"token":      c.Token,
		"status":     c.Status,
		"priority":   c.Priority,
		"assignedTo": c.AssignedTo,
	})
	e.broadcaster.Publish(websocket.RoomAdmins, msg)

	userID, ok := owner.UserID()
	if !ok {
		return
	}
	e.broadcaster.Publish(websocket.UserRoom(userID), msg)

	body := fmt.Sprintf("Your complaint %s is now %s.", c.Token, statusLabel(c.Status))
	if awarded > 0 {
		body = fmt.Sprintf("Your complaint %s was approved. You earned %d points.", c.Token, awarded)
	}
	e.notifier.NotifyUser(ctx, userID, push.Payload{
		Title:   "Complaint update",
		Body:    body,
		URL:     "/track/" + c.Token,
		Tag:     "complaint-" + c.Token,
		Data:    map[string]string{"token": c.Token, "status": string(c.Status)},
		Urgency: push.UrgencyHigh,
		TTL:     decisionTTL,
	})
}

func statusLabel(s model.ComplaintStatus) string {
	if s == model.ComplaintUnderReview {
		return "under review"
	}
	return string(s)
}

type AssignInput struct {
	AssignedTo *int64
	Priority   model.Priority
	AdminID    int64
}

// Assign sets the handling admin and priority without changing status.
func (e *Engine) Assign(ctx context.Context, id int64, in AssignInput) (*model.Complaint, error) {
	if in.Priority == "" {
		in.Priority = model.PriorityMedium
	}
	if !in.Priority.Valid() {
		return nil, apperr.Validation("Invalid priority")
	}

	err := e.inTx(ctx, func(tx *sql.Tx) error {
		complaints := e.complaints.Tx(tx)

		c, err := complaints.GetByID(ctx, id)
		if err != nil {
			return apperr.Wrap(err, "Failed to load complaint")
		}
		if c == nil {
			return apperr.NotFound("Complaint not found")
		}

		description := "Unassigned"
		if in.AssignedTo != nil {
			a, err := e.admins.Tx(tx).GetByID(ctx, *in.AssignedTo)
			if err != nil {
				return apperr.Wrap(err, "Failed to load admin")
			}
			if a == nil || !a.IsActive {
				return apperr.Validation("Assignee must be an active admin")
			}
			description = "Assigned to " + a.Name
		}

		ok, err := complaints.Assign(ctx, id, c.Version, in.AssignedTo, in.Priority)
		if err != nil {
			return apperr.Wrap(err, "Failed to assign complaint")
		}
		if !ok {
			return apperr.Conflict("Complaint was modified by someone else; reload and try again")
		}

		adminID := in.AdminID
		if err := complaints.AppendTimeline(ctx, id, model.TimelineEntry{
			Action:      model.ActionAssigned,
			Status:      string(c.Status),
			Description: fmt.Sprintf("%s (priority %s)", description, in.Priority),
			AdminID:     &adminID,
		}); err != nil {
			return apperr.Wrap(err, "Failed to record timeline")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	e.logger.Info("complaint assigned", "id", id, "assigned_to", in.AssignedTo, "priority", in.Priority)
	e.broadcaster.Publish(websocket.RoomAdmins, websocket.NewMessage(websocket.EventComplaintUpdate, c.ID, map[string]any{
		"token":      c.Token,
		"status":     c.Status,
		"priority":   c.Priority,
		"assignedTo": c.AssignedTo,
	}))
	return c, nil
}

func (e *Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return store.WithTx(ctx, e.db, fn)
}
