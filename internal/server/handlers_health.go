package server

import (
	"net/http"
	"time"
)

// handleHealth godoc
// @Title Health check
// @Description Returns service health, uptime and the state of the refresh loop.
// @Resource System
// @Produce json
// @Success 200 {object} HealthResponse
// @Route /healthz [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.refresher.Status()
	payload := HealthResponse{
		Status:     "ok",
		Env:        s.cfg.Env,
		Uptime:     time.Since(s.startedAt).String(),
		LastError:  st.LastError,
		Reports:    st.Reports,
		Refreshing: st.InFlight,
		Archive:    s.archive != nil,
	}
	if st.LastSuccess.IsZero() {
		payload.Status = "starting"
	} else {
		last := st.LastSuccess
		payload.LastRefresh = &last
	}
	writeJSON(w, http.StatusOK, payload)
}
