package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/suratbrts/cms/internal/apperr"
	"github.com/suratbrts/cms/internal/model"
	"github.com/suratbrts/cms/internal/store"
	"github.com/suratbrts/cms/internal/websocket"
)

// Broadcaster publishes realtime events to a room.
type Broadcaster interface {
	Publish(room string, msg websocket.Message)
}

type ConfigHandler struct {
	Responder
	configStore *store.ConfigStore
	broadcaster Broadcaster
}

func NewConfigHandler(rs Responder, cs *store.ConfigStore, b Broadcaster) *ConfigHandler {
	return &ConfigHandler{Responder: rs, configStore: cs, broadcaster: b}
}

// List handles GET /api/admin/config
func (h *ConfigHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.configStore.GetAll(r.Context())
	if err != nil {
		h.fail(w, r, apperr.Wrap(err, "Failed to load config"))
		return
	}
	h.ok(w, http.StatusOK, entries, "")
}

type publicConfig struct {
	ComplaintTypes      []string `json:"complaintTypes"`
	MinimumWithdrawal   int      `json:"minimumWithdrawal"`
	PointValue          string   `json:"pointValue"`
	ProcessingTime      string   `json:"processingTime"`
	AnonymousComplaints bool     `json:"anonymousComplaints"`
	WithdrawalsEnabled  bool     `json:"withdrawalsEnabled"`
}

// Public handles GET /api/config/public
func (h *ConfigHandler) Public(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		pc  publicConfig
		err error
	)
	if pc.ComplaintTypes, err = h.configStore.Strings(ctx, model.ConfigComplaintTypes); err != nil {
		h.fail(w, r, apperr.Wrap(err, "Failed to load config"))
		return
	}
	if pc.ComplaintTypes == nil {
		pc.ComplaintTypes = []string{}
	}
	if pc.MinimumWithdrawal, err = h.configStore.Int(ctx, model.ConfigMinimumWithdrawal, 100); err != nil {
		h.fail(w, r, apperr.Wrap(err, "Failed to load config"))
		return
	}
	if pc.PointValue, err = h.configStore.String(ctx, model.ConfigPointValue, "0.10"); err != nil {
		h.fail(w, r, apperr.Wrap(err, "Failed to load config"))
		return
	}
	if pc.ProcessingTime, err = h.configStore.String(ctx, model.ConfigProcessingTime, ""); err != nil {
		h.fail(w, r, apperr.Wrap(err, "Failed to load config"))
		return
	}
	if pc.AnonymousComplaints, err = h.configStore.Bool(ctx, model.ConfigAnonymousComplaints, true); err != nil {
		h.fail(w, r, apperr.Wrap(err, "Failed to load config"))
		return
	}
	if pc.WithdrawalsEnabled, err = h.configStore.Bool(ctx, model.ConfigWithdrawalsEnabled, true); err != nil {
		h.fail(w, r, apperr.Wrap(err, "Failed to load config"))
		return
	}
	h.ok(w, http.StatusOK, pc, "")
}

type setConfigRequest struct {
	Value       string `json:"value"`
	Description string `json:"description" validate:"max=255"`
}

// Set handles PUT /api/admin/config/{key}
func (h *ConfigHandler) Set(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	var req setConfigRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	value, err := validateConfigValue(key, req.Value)
	if err != nil {
		h.fail(w, r, apperr.Validation(err.Error()))
		return
	}
	if err := h.configStore.Set(r.Context(), key, value, req.Description); err != nil {
		h.fail(w, r, apperr.Wrap(err, "Failed to save config"))
		return
	}

	entry, err := h.configStore.Get(r.Context(), key)
	if err != nil {
		h.fail(w, r, apperr.Wrap(err, "Failed to load config"))
		return
	}
	h.broadcaster.Publish(websocket.RoomAdmins, websocket.NewMessage(websocket.EventConfigUpdate, 0, entry))
	h.ok(w, http.StatusOK, entry, "Config updated")
}

// validateConfigValue checks value against the type of key and returns the
// normalized form that is stored.
func validateConfigValue(key, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch key {
	case model.ConfigSubmissionPoints, model.ConfigApprovalPoints:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 || n > 10000 {
			return "", fmt.Errorf("%s must be 0-10000", key)
		}
		return strconv.Itoa(n), nil
	case model.ConfigMinimumWithdrawal:
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return "", fmt.Errorf("%s must be a positive integer", key)
		}
		return strconv.Itoa(n), nil
	case model.ConfigPointValue:
		d, err := decimal.NewFromString(value)
		if err != nil || !d.IsPositive() {
			return "", fmt.Errorf("%s must be a positive amount", key)
		}
		return d.String(), nil
	case model.ConfigProcessingTime:
		if value == "" || len(value) > 100 {
			return "", fmt.Errorf("%s must be 1-100 characters", key)
		}
		return value, nil
	case model.ConfigAnonymousComplaints, model.ConfigWithdrawalsEnabled:
		if value != "true" && value != "false" {
			return "", fmt.Errorf("%s must be \"true\" or \"false\"", key)
		}
		return value, nil
	case model.ConfigComplaintTypes:
		var types []string
		if err := json.Unmarshal([]byte(value), &types); err != nil || len(types) == 0 {
			return "", fmt.Errorf("%s must be a non-empty JSON array of strings", key)
		}
		clean := make([]string, 0, len(types))
		for _, t := range types {
			if t = strings.TrimSpace(t); t != "" {
				clean = append(clean, t)
			}
		}
		if len(clean) == 0 {
			return "", fmt.Errorf("%s must be a non-empty JSON array of strings", key)
		}
		b, _ := json.Marshal(clean)
		return string(b), nil
	}
	return "", fmt.Errorf("unknown setting: %s", key)
}
