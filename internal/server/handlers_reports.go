package server

import (
	"errors"
	"net/http"

	"alarm/live/internal/archive"
	"alarm/live/internal/feed"
	"alarm/live/internal/live"
)

const defaultHistoryLimit = 50

type historyQuery struct {
	Limit int `validate:"min=1,max=500"`
}

// currentSnapshot answers 503 when nothing can be served and 304 when the
// client already holds the snapshot. ok is false when a response was written.
func (s *Server) currentSnapshot(w http.ResponseWriter, r *http.Request) (live.Snapshot, bool) {
	snap, err := s.refresher.Current(r.Context())
	if err != nil {
		s.log.Warn().Err(err).Msg("no report snapshot available")
		writeError(w, http.StatusServiceUnavailable, errReportsUnavailable, err.Error())
		return live.Snapshot{}, false
	}

	etag := `"` + snap.ID.String() + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return live.Snapshot{}, false
	}
	return snap, true
}

// handleListReports godoc
// @Title List current reports
// @Description Returns the reports of the latest refresh.
// @Resource Reports
// @Produce json
// @Success 200 {object} ReportsResponse
// @Success 304
// @Failure 503 {object} APIError
// @Route /v1/reports [get]
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.currentSnapshot(w, r)
	if !ok {
		return
	}

	out := make([]ReportResponse, 0, len(snap.Reports))
	for _, rep := range snap.Reports {
		out = append(out, toReportResponse(rep))
	}
	writeJSON(w, http.StatusOK, ReportsResponse{
		ID:        snap.ID.String(),
		FetchedAt: snap.FetchedAt,
		Count:     len(out),
		Reports:   out,
	})
}

// handleReportsGeoJSON godoc
// @Title Current reports as GeoJSON
// @Description Returns the reports of the latest refresh as a point FeatureCollection.
// @Resource Reports
// @Produce application/geo+json
// @Success 200
// @Success 304
// @Failure 503 {object} APIError
// @Route /v1/reports/geojson [get]
func (s *Server) handleReportsGeoJSON(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.currentSnapshot(w, r)
	if !ok {
		return
	}
	writeJSONType(w, http.StatusOK, contentTypeGeoJSON, feed.Build(snap.Reports))
}

// handleRefreshReports godoc
// @Title Trigger a refresh
// @Description Starts a refresh unless one is already running.
// @Resource Reports
// @Produce json
// @Success 202 {object} RefreshResponse
// @Failure 409 {object} APIError
// @Route /v1/reports/refresh [post]
func (s *Server) handleRefreshReports(w http.ResponseWriter, r *http.Request) {
	log := s.log
	if user, ok := GetUserFromContext(r.Context()); ok {
		log = log.With().Str("username", user.PreferredUsername).Logger()
	}

	if !s.refresher.TryRefresh(r.Context()) {
		writeError(w, http.StatusConflict, "refresh already in progress", nil)
		return
	}
	log.Info().Msg("manual refresh started")
	writeJSON(w, http.StatusAccepted, RefreshResponse{Status: "started"})
}

// handleReportHistory godoc
// @Title Archived reports
// @Description Returns archived reports, most recently seen first.
// @Resource Reports
// @Produce json
// @Param limit query int false "Maximum entries (1-500)" default(50)
// @Success 200 {array} HistoryEntryResponse
// @Failure 400 {object} APIError
// @Failure 503 {object} APIError
// @Route /v1/reports/history [get]
func (s *Server) handleReportHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, errInvalidQuery, err.Error())
		return
	}
	q := historyQuery{Limit: limit}
	if err := s.validate.Struct(q); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidQuery, err.Error())
		return
	}

	entries, err := s.archive.ListRecent(r.Context(), q.Limit)
	if errors.Is(err, archive.ErrDisabled) {
		writeError(w, http.StatusServiceUnavailable, err.Error(), nil)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("listing archived reports failed")
		writeError(w, http.StatusInternalServerError, "failed to list archived reports", err.Error())
		return
	}

	out := make([]HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toHistoryEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}
