package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/suratbrts/cms/internal/model"
	"github.com/suratbrts/cms/internal/query"
)

// PointsStore persists ledger entries. Entries are insert-only; table
// triggers reject updates and deletes.
type PointsStore struct {
	db Querier
}

func NewPointsStore(db Querier) *PointsStore {
	return &PointsStore{db: db}
}

// Tx returns a PointsStore bound to tx.
func (s *PointsStore) Tx(tx *sql.Tx) *PointsStore {
	return &PointsStore{db: tx}
}

func scanPoints(sc scanner) (*model.PointsHistory, error) {
	var p model.PointsHistory
	var refID, adminID sql.NullInt64
	err := sc.Scan(&p.ID, &p.UserID, &p.Type, &p.Points, &p.Description, &p.Source,
		&p.ReferenceType, &refID, &adminID, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.ReferenceID = int64Ptr(refID)
	p.AdminID = int64Ptr(adminID)
	return &p, nil
}

// signedPoints is an entry's effect on the balance. Redeemed entries store
// the magnitude debited.
const signedPoints = `CASE WHEN type = 'redeemed' THEN -points ELSE points END`

const pointsCols = `id, user_id, type, points, description, source, reference_type, reference_id, admin_id, created_at`

func (s *PointsStore) Insert(ctx context.Context, p *model.PointsHistory) (*model.PointsHistory, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO points_history (user_id, type, points, description, source, reference_type, reference_id, admin_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.Type, p.Points, p.Description, p.Source, p.ReferenceType,
		nullInt64(p.ReferenceID), nullInt64(p.AdminID), time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert points history: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *PointsStore) GetByID(ctx context.Context, id int64) (*model.PointsHistory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pointsCols+` FROM points_history WHERE id = ?`, id)
	p, err := scanPoints(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get points history: %w", err)
	}
	return p, nil
}

type PointsFilter struct {
	UserID int64
	Type   model.PointsType
	Source string
}

// ListByUser returns a user's ledger entries, newest first.
func (s *PointsStore) ListByUser(ctx context.Context, f PointsFilter, p query.Page) ([]model.PointsHistory, int, error) {
	var w where
	w.add(`user_id = ?`, f.UserID)
	if f.Type != "" {
		w.add(`type = ?`, f.Type)
	}
	if f.Source != "" {
		w.add(`source = ?`, f.Source)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM points_history`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count points history: %w", err)
	}

	args := append(w.args, p.Limit, p.Offset())
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pointsCols+` FROM points_history`+w.String()+` ORDER BY id DESC LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list points history: %w", err)
	}
	defer rows.Close()

	var entries []model.PointsHistory
	for rows.Next() {
		e, err := scanPoints(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan points history: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, total, rows.Err()
}

// ListByReference returns the entries caused by one complaint or withdrawal.
func (s *PointsStore) ListByReference(ctx context.Context, refType string, refID int64) ([]model.PointsHistory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pointsCols+` FROM points_history WHERE reference_type = ? AND reference_id = ? ORDER BY id ASC`,
		refType, refID,
	)
	if err != nil {
		return nil, fmt.Errorf("list points by reference: %w", err)
	}
	defer rows.Close()

	var entries []model.PointsHistory
	for rows.Next() {
		e, err := scanPoints(rows)
		if err != nil {
			return nil, fmt.Errorf("scan points history: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// SumByUser totals the balance effect of a user's ledger entries.
func (s *PointsStore) SumByUser(ctx context.Context, userID int64) (int, error) {
	var sum int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(`+signedPoints+`), 0) FROM points_history WHERE user_id = ?`, userID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum points history: %w", err)
	}
	return sum, nil
}

// Drift lists users whose cached balance differs from their ledger total.
func (s *PointsStore) Drift(ctx context.Context) ([]model.BalanceDrift, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.points, COALESCE(SUM(CASE WHEN p.type = 'redeemed' THEN -p.points ELSE p.points END), 0) AS ledger
		 FROM users u LEFT JOIN points_history p ON p.user_id = u.id
		 GROUP BY u.id, u.points
		 HAVING u.points <> ledger
		 ORDER BY u.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query balance drift: %w", err)
	}
	defer rows.Close()

	drifts := []model.BalanceDrift{}
	for rows.Next() {
		var d model.BalanceDrift
		if err := rows.Scan(&d.UserID, &d.Balance, &d.LedgerTotal); err != nil {
			return nil, fmt.Errorf("scan balance drift: %w", err)
		}
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}

// TotalsByType returns the absolute points moved per entry type.
func (s *PointsStore) TotalsByType(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type, COALESCE(SUM(ABS(points)), 0) FROM points_history GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("sum points by type: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("scan points total: %w", err)
		}
		totals[typ] = n
	}
	return totals, rows.Err()
}
