package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/suratbrts/cms/internal/model"
	"github.com/suratbrts/cms/internal/query"
)

type WithdrawalStore struct {
	db Querier
}

func NewWithdrawalStore(db Querier) *WithdrawalStore {
	return &WithdrawalStore{db: db}
}

// Tx returns a WithdrawalStore bound to tx.
func (s *WithdrawalStore) Tx(tx *sql.Tx) *WithdrawalStore {
	return &WithdrawalStore{db: tx}
}

func scanWithdrawal(sc scanner) (*model.Withdrawal, error) {
	var w model.Withdrawal
	var amount, details string
	var processedBy sql.NullInt64

	err := sc.Scan(&w.ID, &w.UserID, &w.Points, &amount, &w.Method, &details, &w.Status,
		&w.Reason, &w.Description, &w.TransactionID, &processedBy, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}

	w.ProcessedBy = int64Ptr(processedBy)
	if w.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("decode amount: %w", err)
	}
	if err := json.Unmarshal([]byte(details), &w.PaymentDetails); err != nil {
		return nil, fmt.Errorf("decode payment details: %w", err)
	}
	return &w, nil
}

const withdrawalCols = `id, user_id, points, amount, method, payment_details, status, reason, description,
	transaction_id, processed_by, version, created_at, updated_at`

func (s *WithdrawalStore) Create(ctx context.Context, w *model.Withdrawal) (int64, error) {
	details, err := json.Marshal(w.PaymentDetails)
	if err != nil {
		return 0, fmt.Errorf("encode payment details: %w", err)
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO withdrawals (user_id, points, amount, method, payment_details, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		w.UserID, w.Points, w.Amount.StringFixed(2), w.Method, string(details), w.Status,
	)
	if err != nil {
		return 0, fmt.Errorf("insert withdrawal: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func (s *WithdrawalStore) GetByID(ctx context.Context, id int64) (*model.Withdrawal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+withdrawalCols+` FROM withdrawals WHERE id = ?`, id)
	w, err := scanWithdrawal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get withdrawal: %w", err)
	}
	return w, nil
}

// UpdateStatus applies a processing decision if the row is still at version.
func (s *WithdrawalStore) UpdateStatus(ctx context.Context, id int64, version int, status model.WithdrawalStatus, reason, description, transactionID string, processedBy int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE withdrawals
		 SET status = ?, reason = ?, description = ?, transaction_id = ?, processed_by = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		status, reason, description, transactionID, processedBy, time.Now().UTC(), id, version,
	)
	if err != nil {
		return false, fmt.Errorf("update withdrawal status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *WithdrawalStore) AppendTimeline(ctx context.Context, withdrawalID int64, e model.TimelineEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO withdrawal_timeline (withdrawal_id, action, status, reason, description, admin_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		withdrawalID, e.Action, e.Status, e.Reason, e.Description, nullInt64(e.AdminID), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert withdrawal timeline: %w", err)
	}
	return nil
}

func (s *WithdrawalStore) Timeline(ctx context.Context, withdrawalID int64) ([]model.TimelineEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, status, reason, description, admin_id, created_at
		 FROM withdrawal_timeline WHERE withdrawal_id = ? ORDER BY id ASC`,
		withdrawalID,
	)
	if err != nil {
		return nil, fmt.Errorf("list withdrawal timeline: %w", err)
	}
	defer rows.Close()
	return scanTimeline(rows)
}

type WithdrawalFilter struct {
	Status model.WithdrawalStatus
	Method model.WithdrawalMethod
	UserID *int64
	From   *time.Time
	To     *time.Time
}

func (f WithdrawalFilter) where() *where {
	w := &where{}
	if f.Status != "" {
		w.add(`status = ?`, f.Status)
	}
	if f.Method != "" {
		w.add(`method = ?`, f.Method)
	}
	if f.UserID != nil {
		w.add(`user_id = ?`, *f.UserID)
	}
	if f.From != nil {
		w.add(`created_at >= ?`, sqlTime(*f.From))
	}
	if f.To != nil {
		w.add(`created_at < ?`, sqlTime(*f.To))
	}
	return w
}

// List returns one page of withdrawals, newest first, and the total match count.
func (s *WithdrawalStore) List(ctx context.Context, f WithdrawalFilter, p query.Page) ([]model.Withdrawal, int, error) {
	w := f.where()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM withdrawals`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count withdrawals: %w", err)
	}

	args := append(w.args, p.Limit, p.Offset())
	withdrawals, err := s.query(ctx,
		`SELECT `+withdrawalCols+` FROM withdrawals`+w.String()+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, 0, err
	}
	return withdrawals, total, nil
}

// ListAll returns every matching withdrawal, newest first, up to max rows.
func (s *WithdrawalStore) ListAll(ctx context.Context, f WithdrawalFilter, max int) ([]model.Withdrawal, error) {
	w := f.where()
	args := append(w.args, max)
	return s.query(ctx,
		`SELECT `+withdrawalCols+` FROM withdrawals`+w.String()+` ORDER BY created_at DESC, id DESC LIMIT ?`,
		args...,
	)
}

func (s *WithdrawalStore) query(ctx context.Context, q string, args ...any) ([]model.Withdrawal, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	defer rows.Close()

	var withdrawals []model.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan withdrawal: %w", err)
		}
		withdrawals = append(withdrawals, *w)
	}
	return withdrawals, rows.Err()
}

// CountBy groups withdrawals by "status" or "method".
func (s *WithdrawalStore) CountBy(ctx context.Context, column string) (map[string]int, error) {
	switch column {
	case "status", "method":
	default:
		return nil, fmt.Errorf("count withdrawals by %q: unsupported column", column)
	}
	return countBy(ctx, s.db, "withdrawals", column)
}

// PointsByStatus sums requested points per status.
func (s *WithdrawalStore) PointsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COALESCE(SUM(points), 0) FROM withdrawals GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("sum withdrawal points: %w", err)
	}
	defer rows.Close()

	sums := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan withdrawal sum: %w", err)
		}
		sums[status] = n
	}
	return sums, rows.Err()
}
