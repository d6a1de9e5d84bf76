package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/haasonsaas/charlotte/internal/errdefs"
)

const (
	maxBodyBytes = 8 << 20

	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

type errorBody struct {
	Error string       `json:"error"`
	Kind  errdefs.Kind `json:"kind,omitempty"`
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch errdefs.KindOf(err) {
	case errdefs.KindNotFound:
		return http.StatusNotFound
	case errdefs.KindDuplicateName, errdefs.KindAlreadyExists:
		return http.StatusConflict
	case errdefs.KindInvalid:
		return http.StatusBadRequest
	case errdefs.KindProtocolViolation:
		return http.StatusBadGateway
	case errdefs.KindBackendUnavailable:
		return http.StatusServiceUnavailable
	case errdefs.KindSandboxFault:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Default().Error("json encode error", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: errdefs.KindOf(err)})
}

// decode reads a JSON body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return errdefs.Invalid("request body exceeds %d bytes", tooLarge.Limit)
		case errors.Is(err, io.EOF):
			return errdefs.Invalid("request body is empty")
		}
		return errdefs.Invalid("decode request body: %v", err)
	}
	return nil
}

// pagination reads page and limit query parameters.
func pagination(r *http.Request) (page, limit int, err error) {
	page, err = intParam(r, "page", defaultPage)
	if err != nil {
		return 0, 0, err
	}
	limit, err = intParam(r, "limit", defaultLimit)
	if err != nil {
		return 0, 0, err
	}
	if page < 1 {
		page = defaultPage
	}
	if limit < 1 || limit > maxLimit {
		limit = defaultLimit
	}
	return page, limit, nil
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errdefs.Invalid("%s must be an integer", name)
	}
	return n, nil
}

func required(name, value string) error {
	if value == "" {
		return errdefs.Invalid("%s is required", name)
	}
	return nil
}

// idsResponse acknowledges a batch deletion.
type idsResponse struct {
	Deleted []string `json:"deleted"`
}
