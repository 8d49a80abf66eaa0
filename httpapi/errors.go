package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	lifehelper "github.com/sengeiou/life-helper-server"
)

const (
	codeBadRequest          = "bad_request"
	codeTicketNotFound      = "ticket_not_found"
	codeInvalidTransition   = "invalid_transition"
	codeRateLimited         = "rate_limited"
	codeCodeInvalid         = "code_invalid"
	codeInvalidIdentity     = "invalid_identity"
	codeUnauthorized        = "unauthorized"
	codeUpstreamUnavailable = "upstream_unavailable"
	codeUnavailable         = "unavailable"
	codeInternal            = "internal_error"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, lifehelper.ErrTicketNotFound):
		return http.StatusNotFound, codeTicketNotFound
	case errors.Is(err, lifehelper.ErrInvalidTransition):
		return http.StatusConflict, codeInvalidTransition
	case errors.Is(err, lifehelper.ErrTicketRateLimited):
		return http.StatusTooManyRequests, codeRateLimited
	case errors.Is(err, lifehelper.ErrExchangeCodeInvalid):
		return http.StatusBadRequest, codeCodeInvalid
	case errors.Is(err, lifehelper.ErrInvalidIdentity):
		return http.StatusBadRequest, codeInvalidIdentity
	case errors.Is(err, lifehelper.ErrUnauthorized):
		return http.StatusUnauthorized, codeUnauthorized
	case errors.Is(err, lifehelper.ErrUpstreamUnavailable),
		errors.Is(err, lifehelper.ErrUpstreamInvalidCredential):
		return http.StatusBadGateway, codeUpstreamUnavailable
	case errors.Is(err, lifehelper.ErrStoreUnavailable),
		errors.Is(err, lifehelper.ErrEngineNotReady):
		return http.StatusServiceUnavailable, codeUnavailable
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	// Backend detail stays in the log.
	msg := http.StatusText(status)
	if status < http.StatusInternalServerError {
		msg = err.Error()
	}
	writeErrorBody(w, status, code, msg)
}

func writeErrorBody(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeErrorBody(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return false
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		writeErrorBody(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return false
	}
	return true
}
