package server

import (
	"bytes"
	"net/http"

	"alarm/live/internal/mapview"
)

func (s *Server) mapOptions() mapview.Options {
	opts := mapview.Options{
		AccessToken:     s.cfg.Map.Token,
		Style:           s.cfg.Map.Style,
		Zoom:            s.cfg.Map.Zoom,
		RefreshInterval: s.cfg.Refresh.Interval,
		DataURL:         "/v1/reports/geojson",
		IconBaseURL:     "/static",
	}
	if len(s.cfg.Map.Center) == 2 {
		opts.Center = [2]float64{s.cfg.Map.Center[0], s.cfg.Map.Center[1]}
	}
	return opts
}

// handleMap serves the live map page.
func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := mapview.Render(&buf, s.mapOptions()); err != nil {
		s.log.Error().Err(err).Msg("rendering map page failed")
		writeError(w, http.StatusInternalServerError, "failed to render map", nil)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
