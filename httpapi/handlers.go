package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	lifehelper "github.com/sengeiou/life-helper-server"
	"github.com/sengeiou/life-helper-server/middleware"
	"github.com/sengeiou/life-helper-server/qrimage"
	"github.com/sengeiou/life-helper-server/ticket"
)

type issueTicketResponse struct {
	Ticket    string `json:"ticket"`
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expiresAt"`
}

type pollTicketResponse struct {
	Ticket     string `json:"ticket"`
	Status     int    `json:"status"`
	StatusName string `json:"statusName"`
	UserID     string `json:"userId,omitempty"`
	Token      string `json:"token,omitempty"`
}

type ticketRequest struct {
	Ticket string `json:"ticket"`
}

type weixinLoginRequest struct {
	Code string `json:"code"`
}

type weixinLoginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

type healthResponse struct {
	Status          string `json:"status"`
	Redis           bool   `json:"redis"`
	RedisLatencyMs  int64  `json:"redisLatencyMs"`
	CredentialReady bool   `json:"credentialReady"`
	CredentialTTL   int64  `json:"credentialTtlSeconds"`
	RefresherActive bool   `json:"refresherActive"`
}

func (s *Server) handleIssueTicket(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.IssueTicket(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issueTicketResponse{
		Ticket:    res.TicketID,
		URL:       res.ResourceURL,
		ExpiresAt: res.ExpiresAt.UnixMilli(),
	})
}

func (s *Server) handlePollTicket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ticket")
	res, err := s.engine.PollTicketLogin(r.Context(), id)
	if err != nil {
		if errors.Is(err, lifehelper.ErrEngineNotReady) {
			s.writeError(w, r, err)
			return
		}
		// Pollers are untrusted: throttling, backend and mint failures all
		// read as an invalid ticket. The cause stays in the log.
		level := slog.LevelError
		if errors.Is(err, lifehelper.ErrTicketRateLimited) {
			level = slog.LevelInfo
		}
		s.logger.Log(r.Context(), level, "poll failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusOK, pollTicketResponse{
			Ticket:     id,
			Status:     int(ticket.StatusInvalid),
			StatusName: ticket.StatusInvalid.String(),
		})
		return
	}
	writeJSON(w, http.StatusOK, pollTicketResponse{
		Ticket:     id,
		Status:     int(res.Status),
		StatusName: res.Status.String(),
		UserID:     res.UserID,
		Token:      res.SessionToken,
	})
}

func (s *Server) handleTicketImage(w http.ResponseWriter, r *http.Request) {
	png, err := s.images.Get(r.Context(), chi.URLParam(r, "ticket"))
	if err != nil {
		if errors.Is(err, qrimage.ErrNotFound) {
			writeErrorBody(w, http.StatusNotFound, codeTicketNotFound, "qr image not found")
			return
		}
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (s *Server) handleScanTicket(w http.ResponseWriter, r *http.Request) {
	var req ticketRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.engine.MarkTicketScanned(r.Context(), req.Ticket); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConfirmTicket(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeErrorBody(w, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
		return
	}
	var req ticketRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.engine.ConfirmTicket(r.Context(), req.Ticket, session.UserID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWeixinLogin(w http.ResponseWriter, r *http.Request) {
	var req weixinLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.engine.LoginByExchangeCodeWithResult(r.Context(), strings.TrimSpace(req.Code))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, weixinLoginResponse{
		Token:  res.SessionToken,
		UserID: res.UserID,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.engine.Health(r.Context())
	resp := healthResponse{
		Status:          "ok",
		Redis:           h.Redis,
		RedisLatencyMs:  h.RedisLatency.Milliseconds(),
		CredentialReady: h.CredentialReady,
		CredentialTTL:   int64(h.CredentialTTL / time.Second),
		RefresherActive: h.RefresherActive,
	}
	status := http.StatusOK
	if !h.Redis {
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
