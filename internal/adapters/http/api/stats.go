package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/vidrank/internal/app"
	"github.com/okian/vidrank/internal/domain/model"
	"github.com/okian/vidrank/internal/domain/types"
	"github.com/okian/vidrank/pkg/logger"
)

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats(ctx context.Context) (service.Stats, error)
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatsProvider
	logger        logger.Logger
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider, l logger.Logger) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider, logger: l}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_stats"
	stats, err := h.statsProvider.GetStats(r.Context())
	if err != nil {
		h.logger.Error(r.Context(), "stats failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type rankingsResponse struct {
	Rankings []types.RankedItem `json:"rankings"`
}

// handleRankings handles GET /rankings.
func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rankings"
	ranked, err := s.deps.Rankings(r.Context())
	if err != nil {
		s.writeServiceError(w, r, op, err)
		return
	}
	if ranked == nil {
		ranked = []types.RankedItem{}
	}
	writeJSON(w, http.StatusOK, rankingsResponse{Rankings: ranked})
}

type recordResponse struct {
	model.Record
	Videos map[string]model.Item `json:"videos"`
}

// handleRecord handles GET /records/{id}.
func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_record"
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	detail, err := s.deps.Record(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse{Record: detail.Record, Videos: detail.Items})
}
