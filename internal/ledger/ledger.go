// Package ledger records point-affecting events and keeps each user's cached
// balance in step with them.
//
// Mutations take the caller's transaction: the ledger row and the balance
// update commit together with whatever state change caused them.
package ledger

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/suratbrts/cms/internal/apperr"
	"github.com/suratbrts/cms/internal/model"
	"github.com/suratbrts/cms/internal/query"
	"github.com/suratbrts/cms/internal/store"
)

// Entry describes one ledger mutation. Amount is a magnitude for Credit and
// Debit and a signed delta for Adjust.
type Entry struct {
	UserID        int64
	Amount        int
	Source        string
	Description   string
	ReferenceType string
	ReferenceID   *int64
	AdminID       *int64
}

type Ledger struct {
	db     *sql.DB
	users  *store.UserStore
	points *store.PointsStore
	logger *slog.Logger
}

func New(db *sql.DB, logger *slog.Logger) *Ledger {
	return &Ledger{
		db:     db,
		users:  store.NewUserStore(db),
		points: store.NewPointsStore(db),
		logger: logger.With("component", "ledger"),
	}
}

// Credit adds a positive amount to the user's balance.
func (l *Ledger) Credit(ctx context.Context, tx *sql.Tx, e Entry) (*model.PointsHistory, error) {
	if e.Amount <= 0 {
		return nil, apperr.Validation("Credit amount must be positive")
	}
	return l.apply(ctx, tx, e, model.PointsEarned, e.Amount, e.Amount)
}

// Debit removes a positive amount from the user's balance. A debit larger
// than the balance fails with "Insufficient points" and changes nothing.
func (l *Ledger) Debit(ctx context.Context, tx *sql.Tx, e Entry) (*model.PointsHistory, error) {
	if e.Amount <= 0 {
		return nil, apperr.Validation("Debit amount must be positive")
	}
	return l.apply(ctx, tx, e, model.PointsRedeemed, e.Amount, -e.Amount)
}

// Adjust applies a signed correction. It follows the same no-overdraw rule
// as Debit.
func (l *Ledger) Adjust(ctx context.Context, tx *sql.Tx, e Entry) (*model.PointsHistory, error) {
	if e.Amount == 0 {
		return nil, apperr.Validation("Adjustment must be non-zero")
	}
	return l.apply(ctx, tx, e, model.PointsAdjusted, e.Amount, e.Amount)
}

func (l *Ledger) apply(ctx context.Context, tx *sql.Tx, e Entry, typ model.PointsType, recorded, delta int) (*model.PointsHistory, error) {
	users := l.users.Tx(tx)

	ok, err := users.AddPoints(ctx, e.UserID, delta)
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to update balance")
	}
	if !ok {
		u, err := users.GetByID(ctx, e.UserID)
		if err != nil {
			return nil, apperr.Wrap(err, "Failed to update balance")
		}
		if u == nil {
			return nil, apperr.NotFound("User not found")
		}
		return nil, apperr.Validation("Insufficient points")
	}

	entry, err := l.points.Tx(tx).Insert(ctx, &model.PointsHistory{
		UserID:        e.UserID,
		Type:          typ,
		Points:        recorded,
		Description:   e.Description,
		Source:        e.Source,
		ReferenceType: e.ReferenceType,
		ReferenceID:   e.ReferenceID,
		AdminID:       e.AdminID,
	})
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to record points")
	}

	l.logger.Debug("ledger entry", "user_id", e.UserID, "type", typ, "points", recorded, "source", e.Source)
	return entry, nil
}

// AdminAdjust runs Adjust in its own transaction on behalf of an admin.
func (l *Ledger) AdminAdjust(ctx context.Context, userID int64, amount int, description string, adminID int64) (*model.PointsHistory, error) {
	if description == "" {
		description = "Manual adjustment"
	}
	var entry *model.PointsHistory
	err := store.WithTx(ctx, l.db, func(tx *sql.Tx) error {
		var err error
		entry, err = l.Adjust(ctx, tx, Entry{
			UserID:      userID,
			Amount:      amount,
			Source:      model.SourceAdminAdjustment,
			Description: description,
			AdminID:     &adminID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("points adjusted", "user_id", userID, "points", amount, "admin_id", adminID)
	return entry, nil
}

// Balance reads the cached balance.
func (l *Ledger) Balance(ctx context.Context, userID int64) (int, error) {
	u, err := l.users.GetByID(ctx, userID)
	if err != nil {
		return 0, apperr.Wrap(err, "Failed to load balance")
	}
	if u == nil {
		return 0, apperr.NotFound("User not found")
	}
	return u.Points, nil
}

// History returns a page of the user's entries, newest first.
func (l *Ledger) History(ctx context.Context, f store.PointsFilter, p query.Page) (query.Result[model.PointsHistory], error) {
	items, total, err := l.points.ListByUser(ctx, f, p)
	if err != nil {
		return query.Result[model.PointsHistory]{}, apperr.Wrap(err, "Failed to load points history")
	}
	return query.NewResult(items, total, p), nil
}

// Reconcile lists users whose cached balance no longer matches their ledger.
// It only reports; nothing is rewritten.
func (l *Ledger) Reconcile(ctx context.Context) ([]model.BalanceDrift, error) {
	drifts, err := l.points.Drift(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to reconcile balances")
	}
	if len(drifts) > 0 {
		l.logger.Warn("balance drift detected", "users", len(drifts))
	}
	return drifts, nil
}
