// Package server exposes the service over plain net/http handlers.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"clanwatch/internal/observability"
	"clanwatch/internal/ranking"
	"clanwatch/internal/service"
)

// Server holds the HTTP handlers over one Service.
type Server struct {
	svc *service.Service
	mux *http.ServeMux
}

// New creates a Server and registers its routes.
func New(svc *service.Service) *Server {
	s := &Server{svc: svc, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /api/ranking", s.handleRanking)
	s.mux.HandleFunc("GET /api/points-needed", s.handlePointsNeeded)
	s.mux.HandleFunc("GET /api/countdown", s.handleCountdown)
	s.mux.HandleFunc("GET /api/comparison", s.handleComparison)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// rankedRowJSON is the wire shape of one leaderboard row.
type rankedRowJSON struct {
	ClanName        string   `json:"clan_name"`
	Points          int64    `json:"points"`
	MemberCount     int      `json:"member_count"`
	CurrentRank     int      `json:"current_rank"`
	Gain            *int64   `json:"gain"`
	GapToAbove      int64    `json:"gap_to_above"`
	CatchUp         string   `json:"catch_up"`
	ProjectedPoints *float64 `json:"projected_points"`
	ForecastRank    *int     `json:"forecast_rank"`
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	q := service.RankingQuery{BattleID: r.URL.Query().Get("battle_id")}

	var err error
	if q.GainWindowMinutes, err = intParam(r, "gain_window", 0); err != nil {
		s.writeError(w, err)
		return
	}
	if q.ForecastWindowMinutes, err = intParam(r, "forecast_window", 0); err != nil {
		s.writeError(w, err)
		return
	}
	if q.TopN, err = intParam(r, "top_n", 0); err != nil {
		s.writeError(w, err)
		return
	}

	rows, err := s.svc.GetRanking(r.Context(), q)
	if err != nil {
		observability.RecordRankingRequest("error")
		s.writeError(w, err)
		return
	}
	observability.RecordRankingRequest("ok")

	out := make([]rankedRowJSON, len(rows))
	for i, row := range rows {
		out[i] = rankedRowJSON{
			ClanName:        row.ClanName,
			Points:          row.Points,
			MemberCount:     row.MemberCount,
			CurrentRank:     row.CurrentRank,
			Gain:            row.Gain,
			GapToAbove:      row.GapToAbove,
			CatchUp:         row.CatchUp,
			ProjectedPoints: row.ProjectedPoints,
			ForecastRank:    row.ForecastRank,
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ranking": out})
}

func (s *Server) handlePointsNeeded(w http.ResponseWriter, r *http.Request) {
	targetRank, err := intParam(r, "target_rank", 0)
	if err != nil {
		s.writeError(w, err)
		return
	}
	forecastWindow, err := intParam(r, "forecast_window", 0)
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.svc.GetPointsNeeded(r.Context(), service.PointsQuery{
		BattleID:              r.URL.Query().Get("battle_id"),
		ClanName:              r.URL.Query().Get("clan"),
		TargetRank:            targetRank,
		ForecastWindowMinutes: forecastWindow,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, pointsNeededJSON(result))
}

// pointsNeededJSON maps the solver's typed result onto the wire contract:
// rate_per_hour carries a number, the string "infinite" or null; an ended
// battle reports final_rank instead.
func pointsNeededJSON(result *ranking.PointsNeeded) map[string]any {
	switch result.Kind {
	case ranking.NeededFinalRank:
		return map[string]any{"final_rank": result.FinalRank}
	case ranking.NeededInfinite:
		return map[string]any{"rate_per_hour": "infinite"}
	case ranking.NeededIndeterminate:
		return map[string]any{"rate_per_hour": nil}
	case ranking.NeededAlreadyMet:
		return map[string]any{"rate_per_hour": 0}
	default:
		return map[string]any{"rate_per_hour": result.RatePerHour}
	}
}

func (s *Server) handleCountdown(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"countdown": s.svc.GetCountdown(r.Context())})
}

func (s *Server) handleComparison(w http.ResponseWriter, r *http.Request) {
	var clans []string
	if raw := r.URL.Query().Get("clans"); raw != "" {
		clans = strings.Split(raw, ",")
	}
	window, err := intParam(r, "window", service.DefaultForecastWindowMinutes)
	if err != nil {
		s.writeError(w, err)
		return
	}

	series, err := s.svc.GetComparison(r.Context(), clans, window)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"comparison": series})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Encode response failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrFeedUnavailable), errors.Is(err, service.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}
	s.writeJSON(w, status, map[string]any{"error": err.Error()})
}

// intParam reads an integer query parameter, using def when absent.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &badParamError{name: name, value: raw}
	}
	return v, nil
}

type badParamError struct {
	name  string
	value string
}

func (e *badParamError) Error() string {
	return "invalid " + e.name + ": " + e.value
}

func (e *badParamError) Unwrap() error {
	return service.ErrInvalidInput
}
