package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/suratbrts/cms/internal/model"
)

type OTPStore struct {
	db Querier
}

func NewOTPStore(db Querier) *OTPStore {
	return &OTPStore{db: db}
}

const otpCols = `id, mobile, code_hash, attempts, expires_at, verified_at, created_at`

func (s *OTPStore) Create(ctx context.Context, id, mobile, codeHash string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO otp_sessions (id, mobile, code_hash, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, mobile, codeHash, expiresAt.UTC(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert otp session: %w", err)
	}
	return nil
}

func (s *OTPStore) Get(ctx context.Context, id string) (*model.OTPSession, error) {
	var o model.OTPSession
	var verified sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT `+otpCols+` FROM otp_sessions WHERE id = ?`, id).
		Scan(&o.ID, &o.Mobile, &o.CodeHash, &o.Attempts, &o.ExpiresAt, &verified, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get otp session: %w", err)
	}
	o.VerifiedAt = timePtr(verified)
	return &o, nil
}

// ReserveAttempt claims one verification attempt before the code is
// compared. It reports false once the session has used max attempts or is
// already verified, so concurrent guesses cannot exceed the cap.
func (s *OTPStore) ReserveAttempt(ctx context.Context, id string, max int) (int, bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`UPDATE otp_sessions SET attempts = attempts + 1
		 WHERE id = ? AND attempts < ? AND verified_at IS NULL
		 RETURNING attempts`,
		id, max,
	).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reserve otp attempt: %w", err)
	}
	return n, true, nil
}

// MarkVerified consumes the session. It reports false if the session was
// already verified or has gone past max attempts, so a code can only be
// redeemed once and never after the cap.
func (s *OTPStore) MarkVerified(ctx context.Context, id string, max int) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE otp_sessions SET verified_at = ? WHERE id = ? AND verified_at IS NULL AND attempts <= ?`,
		time.Now().UTC(), id, max,
	)
	if err != nil {
		return false, fmt.Errorf("mark otp verified: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// DeleteExpired removes sessions that expired before cutoff.
func (s *OTPStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM otp_sessions WHERE expires_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired otp sessions: %w", err)
	}
	return result.RowsAffected()
}
