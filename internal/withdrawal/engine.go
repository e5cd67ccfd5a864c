// Package withdrawal handles points redemption requests. Points are debited
// when the request is made and returned if an admin rejects it.
package withdrawal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/suratbrts/cms/internal/apperr"
	"github.com/suratbrts/cms/internal/ledger"
	"github.com/suratbrts/cms/internal/model"
	"github.com/suratbrts/cms/internal/push"
	"github.com/suratbrts/cms/internal/query"
	"github.com/suratbrts/cms/internal/store"
	"github.com/suratbrts/cms/internal/websocket"
)

const (
	defaultMinimumPoints  = 100
	defaultProcessingTime = "3-5 business days"
)

var defaultPointValue = decimal.RequireFromString("0.10")

// Broadcaster publishes realtime events to a room.
type Broadcaster interface {
	Publish(room string, msg websocket.Message)
}

// Notifier pushes a notification to a user's devices. It never fails the caller.
type Notifier interface {
	NotifyUser(ctx context.Context, userID int64, payload push.Payload) int
}

type Engine struct {
	db          *sql.DB
	withdrawals *store.WithdrawalStore
	users       *store.UserStore
	config      *store.ConfigStore
	ledger      *ledger.Ledger
	broadcaster Broadcaster
	notifier    Notifier
	logger      *slog.Logger
}

func NewEngine(db *sql.DB, l *ledger.Ledger, broadcaster Broadcaster, notifier Notifier, logger *slog.Logger) *Engine {
	return &Engine{
		db:          db,
		withdrawals: store.NewWithdrawalStore(db),
		users:       store.NewUserStore(db),
		config:      store.NewConfigStore(db),
		ledger:      l,
		broadcaster: broadcaster,
		notifier:    notifier,
		logger:      logger.With("component", "withdrawal"),
	}
}

type RequestInput struct {
	UserID         int64
	Points         int
	Method         model.WithdrawalMethod
	PaymentDetails model.PaymentDetails
}

type RequestResult struct {
	ID                      int64                  `json:"id"`
	Status                  model.WithdrawalStatus `json:"status"`
	Points                  int                    `json:"points"`
	Amount                  decimal.Decimal        `json:"amount"`
	EstimatedProcessingTime string                 `json:"estimatedProcessingTime"`
}

// ValidatePaymentDetails checks the fields each payout method needs.
func ValidatePaymentDetails(method model.WithdrawalMethod, d model.PaymentDetails) error {
	switch method {
	case model.MethodUPI:
		if strings.TrimSpace(d.UPIID) == "" {
			return apperr.Validation("UPI ID is required")
		}
		if !strings.Contains(d.UPIID, "@") {
			return apperr.Validation("Invalid UPI ID")
		}
	case model.MethodBank:
		if strings.TrimSpace(d.AccountHolder) == "" || strings.TrimSpace(d.AccountNumber) == "" || strings.TrimSpace(d.IFSC) == "" {
			return apperr.Validation("Account holder, account number and IFSC are required")
		}
	default:
		return apperr.Validation("Invalid withdrawal method")
	}
	return nil
}

// Request validates the amount against the configured minimum and the
// user's balance, then creates a pending withdrawal and debits the points in
// one transaction. A failed request changes nothing.
func (e *Engine) Request(ctx context.Context, in RequestInput) (*RequestResult, error) {
	enabled, err := e.config.Bool(ctx, model.ConfigWithdrawalsEnabled, true)
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to load settings")
	}
	if !enabled {
		return nil, apperr.Validation("Withdrawals are currently disabled")
	}
	if in.Points <= 0 {
		return nil, apperr.Validation("Points must be positive")
	}
	if err := ValidatePaymentDetails(in.Method, in.PaymentDetails); err != nil {
		return nil, err
	}

	minimum, err := e.config.Int(ctx, model.ConfigMinimumWithdrawal, defaultMinimumPoints)
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to load settings")
	}
	if in.Points < minimum {
		return nil, apperr.Validation("Minimum withdrawal not met")
	}
	rate, err := e.config.Decimal(ctx, model.ConfigPointValue, defaultPointValue)
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to load settings")
	}
	eta, err := e.config.String(ctx, model.ConfigProcessingTime, defaultProcessingTime)
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to load settings")
	}

	w := &model.Withdrawal{
		UserID:         in.UserID,
		Points:         in.Points,
		Amount:         decimal.NewFromInt(int64(in.Points)).Mul(rate).Round(2),
		Method:         in.Method,
		PaymentDetails: in.PaymentDetails,
		Status:         model.WithdrawalPending,
	}

	err = store.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		u, err := e.users.Tx(tx).GetByID(ctx, in.UserID)
		if err != nil {
			return apperr.Wrap(err, "Failed to load user")
		}
		if u == nil {
			return apperr.NotFound("User not found")
		}
		if !u.IsActive {
			return apperr.Forbidden("Account is inactive")
		}
		if in.Points > u.Points {
			return apperr.Validation("Insufficient points")
		}

		withdrawals := e.withdrawals.Tx(tx)
		id, err := withdrawals.Create(ctx, w)
		if err != nil {
			return apperr.Wrap(err, "Failed to save withdrawal")
		}
		w.ID = id

		if err := withdrawals.AppendTimeline(ctx, id, model.TimelineEntry{
			Action: model.ActionWithdrawalRequested,
			Status: string(model.WithdrawalPending),
		}); err != nil {
			return apperr.Wrap(err, "Failed to record timeline")
		}

		_, err = e.ledger.Debit(ctx, tx, ledger.Entry{
			UserID:        in.UserID,
			Amount:        in.Points,
			Source:        model.SourceWithdrawal,
			Description:   fmt.Sprintf("Withdrawal via %s", in.Method),
			ReferenceType: model.RefWithdrawal,
			ReferenceID:   &id,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("withdrawal requested", "id", w.ID, "user_id", in.UserID, "points", in.Points, "method", in.Method)
	e.broadcaster.Publish(websocket.RoomAdmins, websocket.NewMessage(websocket.EventNewWithdrawal, w.ID, map[string]any{
		"userId": in.UserID,
		"points": in.Points,
		"amount": w.Amount,
		"method": in.Method,
	}))

	return &RequestResult{
		ID:                      w.ID,
		Status:                  w.Status,
		Points:                  w.Points,
		Amount:                  w.Amount,
		EstimatedProcessingTime: eta,
	}, nil
}

// Get loads a withdrawal and its timeline.
func (e *Engine) Get(ctx context.Context, id int64) (*model.Withdrawal, error) {
	w, err := e.withdrawals.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to load withdrawal")
	}
	if w == nil {
		return nil, apperr.NotFound("Withdrawal not found")
	}
	timeline, err := e.withdrawals.Timeline(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to load timeline")
	}
	w.Timeline = timeline
	return w, nil
}

func (e *Engine) List(ctx context.Context, f store.WithdrawalFilter, p query.Page) (query.Result[model.Withdrawal], error) {
	items, total, err := e.withdrawals.List(ctx, f, p)
	if err != nil {
		return query.Result[model.Withdrawal]{}, apperr.Wrap(err, "Failed to list withdrawals")
	}
	return query.NewResult(items, total, p), nil
}
