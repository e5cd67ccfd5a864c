package ledger

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/suratbrts/cms/internal/apperr"
	"github.com/suratbrts/cms/internal/database"
	"github.com/suratbrts/cms/internal/model"
	"github.com/suratbrts/cms/internal/query"
	"github.com/suratbrts/cms/internal/store"
)

func setupLedger(t *testing.T) (*Ledger, *sql.DB, int64) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	u, err := store.NewUserStore(db).Create(context.Background(), "9876500000", "Ledger User")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return New(db, slog.New(slog.NewTextHandler(io.Discard, nil))), db, u.ID
}

func inTx(t *testing.T, db *sql.DB, fn func(tx *sql.Tx) error) error {
	t.Helper()
	return store.WithTx(context.Background(), db, fn)
}

func TestCreditAndDebit(t *testing.T) {
	l, db, uid := setupLedger(t)
	ctx := context.Background()

	err := inTx(t, db, func(tx *sql.Tx) error {
		_, err := l.Credit(ctx, tx, Entry{UserID: uid, Amount: 100, Source: model.SourceComplaintApproval})
		return err
	})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}

	ref := int64(3)
	var entry *model.PointsHistory
	err = inTx(t, db, func(tx *sql.Tx) error {
		var err error
		entry, err = l.Debit(ctx, tx, Entry{
			UserID: uid, Amount: 40, Source: model.SourceWithdrawal,
			ReferenceType: model.RefWithdrawal, ReferenceID: &ref,
		})
		return err
	})
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if entry.Type != model.PointsRedeemed || entry.Points != 40 {
		t.Errorf("entry = %+v, want redeemed 40", entry)
	}

	bal, _ := l.Balance(ctx, uid)
	if bal != 60 {
		t.Errorf("balance = %d, want 60", bal)
	}

	drifts, err := l.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(drifts) != 0 {
		t.Errorf("drifts = %+v, want none", drifts)
	}
}

func TestDebitInsufficientChangesNothing(t *testing.T) {
	l, db, uid := setupLedger(t)
	ctx := context.Background()
	inTx(t, db, func(tx *sql.Tx) error {
		_, err := l.Credit(ctx, tx, Entry{UserID: uid, Amount: 50, Source: "seed"})
		return err
	})

	err := inTx(t, db, func(tx *sql.Tx) error {
		_, err := l.Debit(ctx, tx, Entry{UserID: uid, Amount: 100, Source: model.SourceWithdrawal})
		return err
	})
	if !apperr.Is(err, apperr.KindValidation) || apperr.Message(err) != "Insufficient points" {
		t.Fatalf("err = %v, want Insufficient points", err)
	}

	bal, _ := l.Balance(ctx, uid)
	if bal != 50 {
		t.Errorf("balance = %d, want 50", bal)
	}
	hist, _ := l.History(ctx, store.PointsFilter{UserID: uid}, query.NewPage(1, 10, 10))
	if hist.Total != 1 {
		t.Errorf("history total = %d, want 1", hist.Total)
	}
}

func TestCreditUnknownUser(t *testing.T) {
	l, db, _ := setupLedger(t)
	err := inTx(t, db, func(tx *sql.Tx) error {
		_, err := l.Credit(context.Background(), tx, Entry{UserID: 9999, Amount: 10, Source: "x"})
		return err
	})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestRejectsNonPositiveAmounts(t *testing.T) {
	l, db, uid := setupLedger(t)
	ctx := context.Background()
	inTx(t, db, func(tx *sql.Tx) error {
		if _, err := l.Credit(ctx, tx, Entry{UserID: uid, Amount: 0}); !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("credit 0: %v", err)
		}
		if _, err := l.Debit(ctx, tx, Entry{UserID: uid, Amount: -5}); !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("debit -5: %v", err)
		}
		if _, err := l.Adjust(ctx, tx, Entry{UserID: uid, Amount: 0}); !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("adjust 0: %v", err)
		}
		return nil
	})
}

func TestAdminAdjust(t *testing.T) {
	l, db, uid := setupLedger(t)
	ctx := context.Background()
	admin, err := store.NewAdminStore(db).Create(ctx, "Ops", "ops@brts.in", "hash", nil)
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}

	entry, err := l.AdminAdjust(ctx, uid, 25, "", admin.ID)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if entry.Source != model.SourceAdminAdjustment || entry.Description != "Manual adjustment" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.AdminID == nil || *entry.AdminID != admin.ID {
		t.Errorf("admin id = %v", entry.AdminID)
	}

	if _, err := l.AdminAdjust(ctx, uid, -30, "claw back", admin.ID); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("overdraw adjust err = %v, want validation", err)
	}
	if _, err := l.AdminAdjust(ctx, uid, -25, "claw back", admin.ID); err != nil {
		t.Fatalf("negative adjust: %v", err)
	}

	bal, _ := l.Balance(ctx, uid)
	if bal != 0 {
		t.Errorf("balance = %d, want 0", bal)
	}
	drifts, _ := l.Reconcile(ctx)
	if len(drifts) != 0 {
		t.Errorf("drifts = %+v", drifts)
	}
}
