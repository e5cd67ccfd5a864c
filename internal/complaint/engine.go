// Package complaint drives a complaint from submission to resolution and
// awards the points each step earns.
package complaint

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"strings"
	"time"

	"github.com/suratbrts/cms/internal/apperr"
	"github.com/suratbrts/cms/internal/ledger"
	"github.com/suratbrts/cms/internal/model"
	"github.com/suratbrts/cms/internal/push"
	"github.com/suratbrts/cms/internal/query"
	"github.com/suratbrts/cms/internal/store"
	"github.com/suratbrts/cms/internal/websocket"
)

const (
	TokenPrefix      = "BRTS"
	tokenDigits      = 6
	maxTokenAttempts = 5

	defaultSubmissionPoints = 10
	defaultApprovalPoints   = 50
)

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
	complaints  *store.ComplaintStore
	admins      *store.AdminStore
	users       *store.UserStore
	config      *store.ConfigStore
	ledger      *ledger.Ledger
	broadcaster Broadcaster
	notifier    Notifier
	logger      *slog.Logger
	newToken    func() (string, error)
}

func NewEngine(db *sql.DB, l *ledger.Ledger, broadcaster Broadcaster, notifier Notifier, logger *slog.Logger) *Engine {
	return &Engine{
		db:          db,
		complaints:  store.NewComplaintStore(db),
		admins:      store.NewAdminStore(db),
		users:       store.NewUserStore(db),
		config:      store.NewConfigStore(db),
		ledger:      l,
		broadcaster: broadcaster,
		notifier:    notifier,
		logger:      logger.With("component", "complaint"),
		newToken:    GenerateToken,
	}
}

// GenerateToken returns "BRTS" followed by six random digits.
func GenerateToken() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return fmt.Sprintf("%s%0*d", TokenPrefix, tokenDigits, n.Int64()), nil
}

// NormalizeToken trims and upper-cases a user-entered token.
func NormalizeToken(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}

type SubmitInput struct {
	Type          string
	Description   string
	Stop          string
	Location      string
	Evidence      []string
	DateTime      *time.Time
	DynamicFields map[string]string
	Owner         model.Owner
}

type SubmitResult struct {
	ID            int64                 `json:"id"`
	Token         string                `json:"token"`
	Status        model.ComplaintStatus `json:"status"`
	PointsAwarded int                   `json:"pointsAwarded"`
}

// Submit records a new pending complaint. Identified owners are credited the
// configured submission points in the same transaction; anonymous
// submissions earn nothing.
func (e *Engine) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	in.Type = strings.TrimSpace(in.Type)
	in.Description = strings.TrimSpace(in.Description)
	in.Stop = strings.TrimSpace(in.Stop)
	if in.Type == "" || in.Description == "" || in.Stop == "" {
		return nil, apperr.Validation("Type, description and stop are required")
	}

	types, err := e.config.Strings(ctx, model.ConfigComplaintTypes)
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to load complaint types")
	}
	if len(types) > 0 && !slices.Contains(types, in.Type) {
		return nil, apperr.Validation("Unknown complaint type")
	}

	userID, identified := in.Owner.UserID()
	if !identified {
		allowed, err := e.config.Bool(ctx, model.ConfigAnonymousComplaints, true)
		if err != nil {
			return nil, apperr.Wrap(err, "Failed to load settings")
		}
		if !allowed {
			return nil, apperr.Validation("Anonymous complaints are disabled")
		}
	}

	c := &model.Complaint{
		Type:          in.Type,
		Description:   in.Description,
		Stop:          in.Stop,
		Location:      strings.TrimSpace(in.Location),
		IncidentAt:    in.DateTime,
		Evidence:      in.Evidence,
		DynamicFields: in.DynamicFields,
		Status:        model.ComplaintPending,
		Priority:      model.PriorityMedium,
		Owner:         in.Owner,
	}
	if c.Evidence == nil {
		c.Evidence = []string{}
	}

	result := &SubmitResult{Status: model.ComplaintPending}
	err = store.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		complaints := e.complaints.Tx(tx)

		if identified {
			u, err := e.users.Tx(tx).GetByID(ctx, userID)
			if err != nil {
				return apperr.Wrap(err, "Failed to load user")
			}
			if u == nil {
				return apperr.NotFound("User not found")
			}
		}

		id, err := e.insertWithToken(ctx, complaints, c)
		if err != nil {
			return err
		}
		result.ID = id
		result.Token = c.Token

		if err := complaints.AppendTimeline(ctx, id, model.TimelineEntry{
			Action: model.ActionComplaintSubmitted,
			Status: string(model.ComplaintPending),
		}); err != nil {
			return apperr.Wrap(err, "Failed to record timeline")
		}

		if !identified {
			return nil
		}
		points, err := e.config.Tx(tx).Int(ctx, model.ConfigSubmissionPoints, defaultSubmissionPoints)
		if err != nil {
			return apperr.Wrap(err, "Failed to load settings")
		}
		if points <= 0 {
			return nil
		}
		if _, err := e.ledger.Credit(ctx, tx, ledger.Entry{
			UserID:        userID,
			Amount:        points,
			Source:        model.SourceComplaintSubmission,
			Description:   "Complaint submitted: " + c.Token,
			ReferenceType: model.RefComplaint,
			ReferenceID:   &id,
		}); err != nil {
			return err
		}
		result.PointsAwarded = points
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("complaint submitted", "id", result.ID, "token", result.Token, "anonymous", !identified)
	e.broadcaster.Publish(websocket.RoomAdmins, websocket.NewMessage(websocket.EventNewComplaint, result.ID, map[string]any{
		"token":  result.Token,
		"type":   c.Type,
		"stop":   c.Stop,
		"status": result.Status,
	}))
	return result, nil
}

// insertWithToken retries token generation on collision.
func (e *Engine) insertWithToken(ctx context.Context, complaints *store.ComplaintStore, c *model.Complaint) (int64, error) {
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := e.newToken()
		if err != nil {
			return 0, apperr.Wrap(err, "Failed to generate token")
		}
		c.Token = token
		id, err := complaints.Create(ctx, c)
		if err == nil {
			return id, nil
		}
		if !store.IsUniqueViolation(err) {
			return 0, apperr.Wrap(err, "Failed to save complaint")
		}
		e.logger.Warn("complaint token collision", "token", token, "attempt", attempt+1)
	}
	return 0, apperr.New(apperr.KindInternal, "Could not allocate a unique complaint token")
}

// Track looks a complaint up by its public token. It has no side effects.
func (e *Engine) Track(ctx context.Context, token string) (*model.Complaint, error) {
	c, err := e.complaints.GetByToken(ctx, NormalizeToken(token))
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to load complaint")
	}
	if c == nil {
		return nil, apperr.NotFound("Complaint not found")
	}
	return e.withTimeline(ctx, c)
}

// Get loads a complaint and its timeline by id.
func (e *Engine) Get(ctx context.Context, id int64) (*model.Complaint, error) {
	c, err := e.complaints.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to load complaint")
	}
	if c == nil {
		return nil, apperr.NotFound("Complaint not found")
	}
	return e.withTimeline(ctx, c)
}

func (e *Engine) withTimeline(ctx context.Context, c *model.Complaint) (*model.Complaint, error) {
	timeline, err := e.complaints.Timeline(ctx, c.ID)
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to load timeline")
	}
	c.Timeline = timeline
	return c, nil
}

func (e *Engine) List(ctx context.Context, f store.ComplaintFilter, p query.Page) (query.Result[model.Complaint], error) {
	items, total, err := e.complaints.List(ctx, f, p)
	if err != nil {
		return query.Result[model.Complaint]{}, apperr.Wrap(err, "Failed to list complaints")
	}
	return query.NewResult(items, total, p), nil
}

// Types returns the configured complaint type catalog.
func (e *Engine) Types(ctx context.Context) ([]string, error) {
	types, err := e.config.Strings(ctx, model.ConfigComplaintTypes)
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to load complaint types")
	}
	if types == nil {
		types = []string{}
	}
	return types, nil
}
