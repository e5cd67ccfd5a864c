package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/suratbrts/cms/internal/model"
	"github.com/suratbrts/cms/internal/query"
)

type UserStore struct {
	db Querier
}

func NewUserStore(db Querier) *UserStore {
	return &UserStore{db: db}
}

// Tx returns a UserStore bound to tx.
func (s *UserStore) Tx(tx *sql.Tx) *UserStore {
	return &UserStore{db: tx}
}

func scanUser(sc scanner) (*model.User, error) {
	var u model.User
	var active int
	err := sc.Scan(&u.ID, &u.Mobile, &u.Name, &u.Email, &u.Address, &u.Profession,
		&u.Points, &u.Progress, &active, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.IsActive = active != 0
	return &u, nil
}

const userCols = `id, mobile, name, email, address, profession, points, progress, is_active, created_at, updated_at`

func (s *UserStore) Create(ctx context.Context, mobile, name string) (*model.User, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (mobile, name, progress) VALUES (?, ?, ?)`,
		mobile, name, model.ProfileProgress(name, "", "", ""),
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByMobile(ctx context.Context, mobile string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE mobile = ?`, mobile)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by mobile: %w", err)
	}
	return u, nil
}

// UpdateProfile overwrites the editable profile fields and recomputes progress.
func (s *UserStore) UpdateProfile(ctx context.Context, id int64, name, email, address, profession string) (*model.User, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET name = ?, email = ?, address = ?, profession = ?, progress = ?, updated_at = ? WHERE id = ?`,
		name, email, address, profession, model.ProfileProgress(name, email, address, profession), time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update user profile: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) SetActive(ctx context.Context, id int64, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolInt(active), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set user active: %w", err)
	}
	return nil
}

// AddPoints applies delta to the user's balance as a single atomic UPDATE.
// It refuses to take the balance below zero and reports whether a row changed.
func (s *UserStore) AddPoints(ctx context.Context, id int64, delta int) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET points = points + ?, updated_at = ? WHERE id = ? AND points + ? >= 0`,
		delta, time.Now().UTC(), id, delta,
	)
	if err != nil {
		return false, fmt.Errorf("add user points: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

type UserFilter struct {
	Search   string
	IsActive *bool
}

// List returns users newest first, plus the total matching count.
func (s *UserStore) List(ctx context.Context, f UserFilter, p query.Page) ([]model.User, int, error) {
	var w where
	if f.Search != "" {
		pat := likePattern(f.Search)
		w.add(`(name LIKE ? ESCAPE '\' OR mobile LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\')`, pat, pat, pat)
	}
	if f.IsActive != nil {
		w.add(`is_active = ?`, boolInt(*f.IsActive))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	args := append(w.args, p.Limit, p.Offset())
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userCols+` FROM users`+w.String()+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, total, rows.Err()
}

func (s *UserStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
