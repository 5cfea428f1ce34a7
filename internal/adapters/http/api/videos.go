package api

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"

	service "github.com/okian/vidrank/internal/app"
	"github.com/okian/vidrank/internal/domain/matching"
	"github.com/okian/vidrank/internal/domain/model"
)

// settingsRequest wraps the matching settings. A missing matching_settings
// uses the server's default strategy.
type settingsRequest struct {
	MatchingSettings json.RawMessage `json:"matching_settings"`
}

func (s settingsRequest) strategy() (matching.Strategy, error) {
	if len(s.MatchingSettings) == 0 {
		return nil, nil
	}
	return matching.DecodeSettings(s.MatchingSettings)
}

type choiceRequest struct {
	VideoID string `json:"video_id" validate:"required"`
	Action  string `json:"action" validate:"required"`
}

type choiceSetRequest struct {
	Choices []choiceRequest `json:"choices" validate:"required,min=1,dive"`
}

func (c choiceSetRequest) model() (model.ChoiceSet, error) {
	cs := model.ChoiceSet{Choices: make([]model.Choice, len(c.Choices))}
	for i, ch := range c.Choices {
		a, err := model.ParseAction(ch.Action)
		if err != nil {
			return model.ChoiceSet{}, err
		}
		cs.Choices[i] = model.Choice{ItemID: ch.VideoID, Action: a}
	}
	return cs, nil
}

type videosRequest struct {
	Settings settingsRequest `json:"settings"`
}

type videosResponse struct {
	Videos []model.Item `json:"videos"`
}

type submitRequest struct {
	ChoiceSet choiceSetRequest `json:"choice_set"`
	Settings  settingsRequest  `json:"settings"`
}

type submitResponse struct {
	RecordID  string       `json:"record_id"`
	Duplicate bool         `json:"duplicate"`
	Videos    []model.Item `json:"videos"`
}

type undoRequest struct {
	RecordID string `json:"record_id" validate:"required"`
}

type undoResponse struct {
	Videos    []model.Item    `json:"videos"`
	ChoiceSet model.ChoiceSet `json:"choice_set"`
}

// handleVideos handles POST /videos.
func (s *Server) handleVideos(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_videos"
	var req videosRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	st, err := req.Settings.strategy()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	items, err := s.deps.Match(r.Context(), st)
	if err != nil {
		s.writeServiceError(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, videosResponse{Videos: nonNil(items)})
}

// handleSubmit handles POST /submit.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s.handleJudged(w, r, "api.post_submit", s.deps.Submit)
}

// handleSkip handles POST /skip.
func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	s.handleJudged(w, r, "api.post_skip", s.deps.Skip)
}

type storeFunc func(ctx context.Context, key string, cs model.ChoiceSet, st matching.Strategy) (service.SubmitResult, error)

func (s *Server) handleJudged(w http.ResponseWriter, r *http.Request, op string, store storeFunc) {
	var req submitRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	cs, err := req.ChoiceSet.model()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	st, err := req.Settings.strategy()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := store(r.Context(), r.Header.Get(IdempotencyHeader), cs, st)
	if err != nil {
		s.writeServiceError(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{
		RecordID:  res.RecordID,
		Duplicate: res.Duplicate,
		Videos:    nonNil(res.Items),
	})
}

// handleUndo handles POST /undo.
func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_undo"
	var req undoRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	cs, items, err := s.deps.Undo(r.Context(), req.RecordID)
	if err != nil {
		s.writeServiceError(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, undoResponse{Videos: nonNil(items), ChoiceSet: cs})
}

func nonNil(items []model.Item) []model.Item {
	if items == nil {
		return []model.Item{}
	}
	return items
}
