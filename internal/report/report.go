// Package report builds the admin dashboard, complaint exports and their S3
// archive.
package report

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/suratbrts/cms/internal/store"
)

type Service struct {
	complaints  *store.ComplaintStore
	withdrawals *store.WithdrawalStore
	users       *store.UserStore
	points      *store.PointsStore
	archiver    *Archiver
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(db *sql.DB, archiver *Archiver, logger *slog.Logger) *Service {
	return &Service{
		complaints:  store.NewComplaintStore(db),
		withdrawals: store.NewWithdrawalStore(db),
		users:       store.NewUserStore(db),
		points:      store.NewPointsStore(db),
		archiver:    archiver,
		logger:      logger.With("component", "report"),
		now:         time.Now,
	}
}

type ComplaintStats struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"byStatus"`
	ByType     map[string]int `json:"byType"`
	ByPriority map[string]int `json:"byPriority"`
}

type WithdrawalStats struct {
	Total          int            `json:"total"`
	ByStatus       map[string]int `json:"byStatus"`
	ByMethod       map[string]int `json:"byMethod"`
	PointsByStatus map[string]int `json:"pointsByStatus"`
}

type PointsStats struct {
	Issued   int `json:"issued"`
	Redeemed int `json:"redeemed"`
	Adjusted int `json:"adjusted"`
}

type Dashboard struct {
	Complaints  ComplaintStats  `json:"complaints"`
	Withdrawals WithdrawalStats `json:"withdrawals"`
	TotalUsers  int             `json:"totalUsers"`
	Points      PointsStats     `json:"points"`
	GeneratedAt time.Time       `json:"generatedAt"`
}

func sum(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}

// Dashboard aggregates complaint, withdrawal, user and points counts.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	d := &Dashboard{GeneratedAt: s.now().UTC()}
	var err error

	if d.Complaints.ByStatus, err = s.complaints.CountBy(ctx, "status"); err != nil {
		return nil, err
	}
	if d.Complaints.ByType, err = s.complaints.CountBy(ctx, "type"); err != nil {
		return nil, err
	}
	if d.Complaints.ByPriority, err = s.complaints.CountBy(ctx, "priority"); err != nil {
		return nil, err
	}
	d.Complaints.Total = sum(d.Complaints.ByStatus)

	if d.Withdrawals.ByStatus, err = s.withdrawals.CountBy(ctx, "status"); err != nil {
		return nil, err
	}
	if d.Withdrawals.ByMethod, err = s.withdrawals.CountBy(ctx, "method"); err != nil {
		return nil, err
	}
	if d.Withdrawals.PointsByStatus, err = s.withdrawals.PointsByStatus(ctx); err != nil {
		return nil, err
	}
	d.Withdrawals.Total = sum(d.Withdrawals.ByStatus)

	if d.TotalUsers, err = s.users.Count(ctx); err != nil {
		return nil, err
	}

	totals, err := s.points.TotalsByType(ctx)
	if err != nil {
		return nil, fmt.Errorf("points totals: %w", err)
	}
	d.Points = PointsStats{
		Issued:   totals["earned"],
		Redeemed: totals["redeemed"],
		Adjusted: totals["adjusted"],
	}
	return d, nil
}
