package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/suratbrts/cms/internal/model"
)

type AdminStore struct {
	db Querier
}

func NewAdminStore(db Querier) *AdminStore {
	return &AdminStore{db: db}
}

// Tx returns an AdminStore bound to tx.
func (s *AdminStore) Tx(tx *sql.Tx) *AdminStore {
	return &AdminStore{db: tx}
}

func scanAdmin(sc scanner) (*model.Admin, error) {
	var a model.Admin
	var roleID sql.NullInt64
	var lastLogin sql.NullTime
	var active int
	err := sc.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &roleID, &active, &lastLogin, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.RoleID = int64Ptr(roleID)
	a.LastLoginAt = timePtr(lastLogin)
	a.IsActive = active != 0
	return &a, nil
}

const adminCols = `id, name, email, password_hash, role_id, is_active, last_login_at, created_at, updated_at`

// Create stores an admin. passwordHash must already be a bcrypt hash.
func (s *AdminStore) Create(ctx context.Context, name, email, passwordHash string, roleID *int64) (*model.Admin, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO admins (name, email, password_hash, role_id) VALUES (?, ?, ?, ?)`,
		name, email, passwordHash, nullInt64(roleID),
	)
	if err != nil {
		return nil, fmt.Errorf("insert admin: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *AdminStore) GetByID(ctx context.Context, id int64) (*model.Admin, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+adminCols+` FROM admins WHERE id = ?`, id)
	a, err := scanAdmin(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get admin: %w", err)
	}
	return a, nil
}

func (s *AdminStore) GetByEmail(ctx context.Context, email string) (*model.Admin, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+adminCols+` FROM admins WHERE email = ?`, email)
	a, err := scanAdmin(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get admin by email: %w", err)
	}
	return a, nil
}

func (s *AdminStore) List(ctx context.Context) ([]model.Admin, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+adminCols+` FROM admins ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()

	var admins []model.Admin
	for rows.Next() {
		a, err := scanAdmin(rows)
		if err != nil {
			return nil, fmt.Errorf("scan admin: %w", err)
		}
		admins = append(admins, *a)
	}
	return admins, rows.Err()
}

func (s *AdminStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return n, nil
}

func (s *AdminStore) SetRole(ctx context.Context, id int64, roleID *int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE admins SET role_id = ?, updated_at = ? WHERE id = ?`,
		nullInt64(roleID), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set admin role: %w", err)
	}
	return nil
}

func (s *AdminStore) SetActive(ctx context.Context, id int64, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE admins SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolInt(active), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set admin active: %w", err)
	}
	return nil
}

func (s *AdminStore) TouchLogin(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE admins SET last_login_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touch admin login: %w", err)
	}
	return nil
}

// --- Roles ---

type RoleStore struct {
	db Querier
}

func NewRoleStore(db Querier) *RoleStore {
	return &RoleStore{db: db}
}

func scanRole(sc scanner) (*model.Role, error) {
	var r model.Role
	var perms string
	if err := sc.Scan(&r.ID, &r.Name, &r.Description, &perms, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(perms), &r.Permissions); err != nil {
		return nil, fmt.Errorf("decode permissions: %w", err)
	}
	if r.Permissions == nil {
		r.Permissions = []string{}
	}
	return &r, nil
}

const roleCols = `id, name, description, permissions, created_at, updated_at`

func (s *RoleStore) Create(ctx context.Context, name, description string, permissions []string) (*model.Role, error) {
	perms, err := json.Marshal(permissions)
	if err != nil {
		return nil, fmt.Errorf("encode permissions: %w", err)
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO roles (name, description, permissions) VALUES (?, ?, ?)`,
		name, description, string(perms),
	)
	if err != nil {
		return nil, fmt.Errorf("insert role: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *RoleStore) GetByID(ctx context.Context, id int64) (*model.Role, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+roleCols+` FROM roles WHERE id = ?`, id)
	r, err := scanRole(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get role: %w", err)
	}
	return r, nil
}

func (s *RoleStore) Update(ctx context.Context, id int64, name, description string, permissions []string) (*model.Role, error) {
	perms, err := json.Marshal(permissions)
	if err != nil {
		return nil, fmt.Errorf("encode permissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE roles SET name = ?, description = ?, permissions = ?, updated_at = ? WHERE id = ?`,
		name, description, string(perms), time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *RoleStore) List(ctx context.Context) ([]model.Role, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+roleCols+` FROM roles ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var roles []model.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, *r)
	}
	return roles, rows.Err()
}
