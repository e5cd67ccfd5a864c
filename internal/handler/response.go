package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/suratbrts/cms/internal/apperr"
	"github.com/suratbrts/cms/internal/logging"
)

const genericError = "Something went wrong"

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Responder writes the {success, data, message} envelope. In development the
// raw message of internal errors is returned to the client; otherwise it is
// only logged.
type Responder struct {
	dev    bool
	logger *slog.Logger
}

func NewResponder(dev bool, logger *slog.Logger) Responder {
	return Responder{dev: dev, logger: logger}
}

func (rs Responder) ok(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, envelope{Success: true, Data: data, Message: message})
}

func (rs Responder) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	msg := apperr.Message(err)
	if status >= http.StatusInternalServerError {
		rs.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", logging.RequestID(r.Context()),
			"error", err,
		)
		if !rs.dev {
			msg = genericError
		}
	}
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, apperr.Validation("Invalid id")
	}
	return id, nil
}
