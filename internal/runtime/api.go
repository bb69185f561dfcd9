package runtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/loqalabs/loqa-reader/internal/library"
	"github.com/loqalabs/loqa-reader/internal/playback"
)

type api struct {
	manager *library.Manager
	session *session
	logger  *slog.Logger
}

type entryView struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Voice              string    `json:"voice"`
	Location           string    `json:"location"`
	SegmentDurationsMS []int64   `json:"segment_durations_ms"`
	TotalMS            int64     `json:"total_ms"`
	CreatedAt          time.Time `json:"created_at"`
	Text               string    `json:"text,omitempty"`
}

type statusView struct {
	EntryID     string  `json:"entry_id,omitempty"`
	Title       string  `json:"title"`
	ElapsedMS   int64   `json:"elapsed_ms"`
	RemainingMS int64   `json:"remaining_ms"`
	TotalMS     int64   `json:"total_ms"`
	Rate        float64 `json:"rate"`
	Segment     int     `json:"segment"`
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/library", a.handleList)
	mux.HandleFunc("GET /v1/library/{id}", a.handleGet)
	mux.HandleFunc("DELETE /v1/library/{id}", a.handleDelete)
	mux.HandleFunc("GET /v1/playback", a.handleStatus)
	mux.HandleFunc("POST /v1/playback/load", a.handleLoad)
	mux.HandleFunc("POST /v1/playback/seek", a.handleSeek)
	mux.HandleFunc("POST /v1/playback/{action}", a.handleAction)
}

func (a *api) handleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := a.manager.List(r.Context(), limit)
	if err != nil {
		a.fail(w, http.StatusInternalServerError, err)
		return
	}
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, toEntryView(e))
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *api) handleGet(w http.ResponseWriter, r *http.Request) {
	entry, err := a.manager.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, statusFor(err), err)
		return
	}
	view := toEntryView(entry)
	view.Text = entry.Text
	writeJSON(w, http.StatusOK, view)
}

func (a *api) handleDelete(w http.ResponseWriter, r *http.Request) {
	if _, err := a.manager.Delete(r.Context(), r.PathValue("id")); err != nil {
		a.fail(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.status())
}

func (a *api) handleLoad(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EntryID string `json:"entry_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.fail(w, http.StatusBadRequest, err)
		return
	}
	entry, err := a.manager.Get(r.Context(), body.EntryID)
	if err != nil {
		a.fail(w, statusFor(err), err)
		return
	}
	media := playback.JoinedMedia(entry.Title, entry.Location, entry.SegmentDurations)
	if err := a.session.load(r.Context(), entry.ID, media); err != nil {
		a.fail(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, a.status())
}

func (a *api) handleSeek(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AtMS int64 `json:"at_ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.fail(w, http.StatusBadRequest, err)
		return
	}
	a.session.ctrl.Seek(r.Context(), time.Duration(body.AtMS)*time.Millisecond)
	writeJSON(w, http.StatusOK, a.status())
}

func (a *api) handleAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctrl := a.session.ctrl
	switch r.PathValue("action") {
	case "play":
		ctrl.Play(ctx)
	case "pause":
		ctrl.Pause(ctx)
	case "toggle":
		ctrl.TogglePlayPause(ctx)
	case "start-over":
		ctrl.StartOver(ctx)
	case "skip-forward":
		ctrl.SkipForward(ctx)
	case "skip-backward":
		ctrl.SkipBackward(ctx)
	default:
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, a.status())
}

func (a *api) status() statusView {
	st := a.session.ctrl.Status()
	return statusView{
		EntryID:     a.session.loadedEntry(),
		Title:       st.Title,
		ElapsedMS:   st.Elapsed.Milliseconds(),
		RemainingMS: st.Remaining().Milliseconds(),
		TotalMS:     st.Total.Milliseconds(),
		Rate:        st.Rate,
		Segment:     st.Segment,
	}
}

func (a *api) fail(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		a.logger.Warn("api request failed", slogError(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	if errors.Is(err, library.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func toEntryView(e library.Entry) entryView {
	durations := make([]int64, len(e.SegmentDurations))
	for i, d := range e.SegmentDurations {
		durations[i] = d.Milliseconds()
	}
	return entryView{
		ID:                 e.ID,
		Title:              e.Title,
		Voice:              e.Voice,
		Location:           e.Location,
		SegmentDurationsMS: durations,
		TotalMS:            e.TotalDuration.Milliseconds(),
		CreatedAt:          e.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
