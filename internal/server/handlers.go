package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"bingohall/internal/analytics"
	"bingohall/internal/engine"
	"bingohall/internal/players"
	"bingohall/internal/rooms"
)

// Admin is the part of the engine the admin surface drives.
type Admin interface {
	Rooms(ctx context.Context) ([]*rooms.Room, error)
	AdjustBalance(ctx context.Context, participantID string, amount decimal.Decimal, reason string) (*players.Account, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	Engine     Admin
	Reports    analytics.Reporter
	Ledger     analytics.LedgerReader
	Hub        http.Handler
	Metrics    http.Handler
	AdminToken string
	DB         Pinger // nil if no database configured
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Writing response failed")
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.DB != nil {
		if err := s.DB.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "db_error", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireAdmin rejects requests without the admin bearer token. With no
// token configured the admin surface is closed.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if s.AdminToken == "" || !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.AdminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	list, err := s.Engine.Rooms(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Listing rooms failed")
		writeError(w, http.StatusServiceUnavailable, engine.Code(err))
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleHouseReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.Reports.HouseEarnings(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("House report failed")
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// queryLimit reads the limit parameter, falling back to def and rejecting
// anything outside 1..upper.
func queryLimit(r *http.Request, def, upper int) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > upper {
		return 0, false
	}
	return n, true
}

func (s *Server) handleWinnersReport(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r, 10, 100)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}
	report, err := s.Reports.TopWinners(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Winners report failed")
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("participant")
	limit, ok := queryLimit(r, 50, 500)
	if id == "" || !ok {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}
	entries, err := s.Ledger.Ledger(r.Context(), id, limit)
	if err != nil {
		log.Error().Err(err).Str("participant", id).Msg("Ledger listing failed")
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable")
		return
	}
	if entries == nil {
		entries = []players.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type adjustRequest struct {
	ParticipantID string          `json:"participantId"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
}

func (s *Server) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10))
	if err := dec.Decode(&req); err != nil || req.ParticipantID == "" {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}

	acct, err := s.Engine.AdjustBalance(r.Context(), req.ParticipantID, req.Amount, req.Reason)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, acct)
	case errors.Is(err, engine.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "invalid_amount")
	case errors.Is(err, engine.ErrInsufficientBalance):
		writeError(w, http.StatusConflict, engine.Code(err))
	case errors.Is(err, engine.ErrUnknownParticipant), errors.Is(err, players.ErrNotFound):
		writeError(w, http.StatusNotFound, engine.Code(err))
	default:
		log.Error().Err(err).Str("participant", req.ParticipantID).Msg("Balance adjustment failed")
		writeError(w, http.StatusInternalServerError, engine.Code(err))
	}
}
