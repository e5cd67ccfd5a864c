package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/suratbrts/cms/internal/model"
	"github.com/suratbrts/cms/internal/query"
)

type ComplaintStore struct {
	db Querier
}

func NewComplaintStore(db Querier) *ComplaintStore {
	return &ComplaintStore{db: db}
}

// Tx returns a ComplaintStore bound to tx.
func (s *ComplaintStore) Tx(tx *sql.Tx) *ComplaintStore {
	return &ComplaintStore{db: tx}
}

func scanComplaint(sc scanner) (*model.Complaint, error) {
	var c model.Complaint
	var incidentAt sql.NullTime
	var evidence, dynamic string
	var assignedTo, userID sql.NullInt64
	var anonymous int

	err := sc.Scan(&c.ID, &c.Token, &c.Type, &c.Description, &c.Stop, &c.Location, &incidentAt,
		&evidence, &dynamic, &c.Status, &c.Priority, &assignedTo, &c.Points, &userID, &anonymous,
		&c.Reason, &c.AdminDescription, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	c.IncidentAt = timePtr(incidentAt)
	c.AssignedTo = int64Ptr(assignedTo)
	c.IsAnonymous = anonymous != 0
	if userID.Valid {
		c.Owner = model.OwnedBy(userID.Int64)
	}
	if err := json.Unmarshal([]byte(evidence), &c.Evidence); err != nil {
		return nil, fmt.Errorf("decode evidence: %w", err)
	}
	if err := json.Unmarshal([]byte(dynamic), &c.DynamicFields); err != nil {
		return nil, fmt.Errorf("decode dynamic fields: %w", err)
	}
	if c.Evidence == nil {
		c.Evidence = []string{}
	}
	return &c, nil
}

const complaintCols = `id, token, type, description, stop, location, incident_at, evidence, dynamic_fields,
	status, priority, assigned_to, points, user_id, is_anonymous, reason, admin_description, version,
	created_at, updated_at`

// Create inserts a new complaint and returns its id. A duplicate token
// surfaces as a unique violation (see IsUniqueViolation).
func (s *ComplaintStore) Create(ctx context.Context, c *model.Complaint) (int64, error) {
	evidence, err := json.Marshal(c.Evidence)
	if err != nil {
		return 0, fmt.Errorf("encode evidence: %w", err)
	}
	dynamic, err := json.Marshal(c.DynamicFields)
	if err != nil {
		return 0, fmt.Errorf("encode dynamic fields: %w", err)
	}
	if c.DynamicFields == nil {
		dynamic = []byte("{}")
	}

	var userID sql.NullInt64
	if id, ok := c.Owner.UserID(); ok {
		userID = sql.NullInt64{Int64: id, Valid: true}
	}
	var incidentAt sql.NullTime
	if c.IncidentAt != nil {
		incidentAt = sql.NullTime{Time: c.IncidentAt.UTC(), Valid: true}
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO complaints (token, type, description, stop, location, incident_at, evidence, dynamic_fields,
			status, priority, user_id, is_anonymous)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Token, c.Type, c.Description, c.Stop, c.Location, incidentAt, string(evidence), string(dynamic),
		c.Status, c.Priority, userID, boolInt(c.Owner.IsAnonymous()),
	)
	if err != nil {
		return 0, fmt.Errorf("insert complaint: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func (s *ComplaintStore) GetByID(ctx context.Context, id int64) (*model.Complaint, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+complaintCols+` FROM complaints WHERE id = ?`, id)
	c, err := scanComplaint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get complaint: %w", err)
	}
	return c, nil
}

func (s *ComplaintStore) GetByToken(ctx context.Context, token string) (*model.Complaint, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+complaintCols+` FROM complaints WHERE token = ?`, token)
	c, err := scanComplaint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get complaint by token: %w", err)
	}
	return c, nil
}

// UpdateStatus moves the complaint to status only if its version still equals
// version, bumping the version. It reports whether the update applied.
func (s *ComplaintStore) UpdateStatus(ctx context.Context, id int64, version int, status model.ComplaintStatus, reason, adminDescription string, points int) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE complaints
		 SET status = ?, reason = ?, admin_description = ?, points = points + ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		status, reason, adminDescription, points, time.Now().UTC(), id, version,
	)
	if err != nil {
		return false, fmt.Errorf("update complaint status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// Assign sets the assignee and priority under the same version check as UpdateStatus.
func (s *ComplaintStore) Assign(ctx context.Context, id int64, version int, assignedTo *int64, priority model.Priority) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE complaints SET assigned_to = ?, priority = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		nullInt64(assignedTo), priority, time.Now().UTC(), id, version,
	)
	if err != nil {
		return false, fmt.Errorf("assign complaint: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// --- Timeline ---

func (s *ComplaintStore) AppendTimeline(ctx context.Context, complaintID int64, e model.TimelineEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO complaint_timeline (complaint_id, action, status, reason, description, admin_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		complaintID, e.Action, e.Status, e.Reason, e.Description, nullInt64(e.AdminID), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert complaint timeline: %w", err)
	}
	return nil
}

func (s *ComplaintStore) Timeline(ctx context.Context, complaintID int64) ([]model.TimelineEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, status, reason, description, admin_id, created_at
		 FROM complaint_timeline WHERE complaint_id = ? ORDER BY id ASC`,
		complaintID,
	)
	if err != nil {
		return nil, fmt.Errorf("list complaint timeline: %w", err)
	}
	defer rows.Close()
	return scanTimeline(rows)
}

func scanTimeline(rows *sql.Rows) ([]model.TimelineEntry, error) {
	entries := []model.TimelineEntry{}
	for rows.Next() {
		var e model.TimelineEntry
		var adminID sql.NullInt64
		if err := rows.Scan(&e.ID, &e.Action, &e.Status, &e.Reason, &e.Description, &adminID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan timeline: %w", err)
		}
		e.AdminID = int64Ptr(adminID)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Listing and aggregation ---

type ComplaintFilter struct {
	Status     model.ComplaintStatus
	Type       string
	Priority   model.Priority
	AssignedTo *int64
	UserID     *int64
	Search     string
	From       *time.Time
	To         *time.Time
}

func (f ComplaintFilter) where() *where {
	w := &where{}
	if f.Status != "" {
		w.add(`status = ?`, f.Status)
	}
	if f.Type != "" {
		w.add(`type = ?`, f.Type)
	}
	if f.Priority != "" {
		w.add(`priority = ?`, f.Priority)
	}
	if f.AssignedTo != nil {
		w.add(`assigned_to = ?`, *f.AssignedTo)
	}
	if f.UserID != nil {
		w.add(`user_id = ?`, *f.UserID)
	}
	if f.Search != "" {
		pat := likePattern(f.Search)
		w.add(`(token LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\' OR stop LIKE ? ESCAPE '\')`, pat, pat, pat)
	}
	if f.From != nil {
		w.add(`created_at >= ?`, sqlTime(*f.From))
	}
	if f.To != nil {
		w.add(`created_at < ?`, sqlTime(*f.To))
	}
	return w
}

// List returns one page of complaints, newest first, and the total match count.
func (s *ComplaintStore) List(ctx context.Context, f ComplaintFilter, p query.Page) ([]model.Complaint, int, error) {
	w := f.where()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM complaints`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count complaints: %w", err)
	}

	args := append(w.args, p.Limit, p.Offset())
	complaints, err := s.query(ctx,
		`SELECT `+complaintCols+` FROM complaints`+w.String()+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, 0, err
	}
	return complaints, total, nil
}

// ListAll returns every matching complaint, newest first, up to max rows.
func (s *ComplaintStore) ListAll(ctx context.Context, f ComplaintFilter, max int) ([]model.Complaint, error) {
	w := f.where()
	args := append(w.args, max)
	return s.query(ctx,
		`SELECT `+complaintCols+` FROM complaints`+w.String()+` ORDER BY created_at DESC, id DESC LIMIT ?`,
		args...,
	)
}

func (s *ComplaintStore) query(ctx context.Context, q string, args ...any) ([]model.Complaint, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list complaints: %w", err)
	}
	defer rows.Close()

	var complaints []model.Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan complaint: %w", err)
		}
		complaints = append(complaints, *c)
	}
	return complaints, rows.Err()
}

// CountBy groups complaints by column ("status", "type" or "priority").
func (s *ComplaintStore) CountBy(ctx context.Context, column string) (map[string]int, error) {
	switch column {
	case "status", "type", "priority":
	default:
		return nil, fmt.Errorf("count complaints by %q: unsupported column", column)
	}
	return countBy(ctx, s.db, "complaints", column)
}

func countBy(ctx context.Context, db Querier, table, column string) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+column+`, COUNT(*) FROM `+table+` GROUP BY `+column)
	if err != nil {
		return nil, fmt.Errorf("count %s by %s: %w", table, column, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[key] = n
	}
	return counts, rows.Err()
}
