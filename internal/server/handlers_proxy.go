package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"alarm/live/internal/fetcher"
)

var errRedirectNotAllowed = errors.New("redirect target not allowed")

const maxProxyRedirects = 10

type proxyQuery struct {
	URL string `validate:"required,http_url"`
}

// handleProxy godoc
// @Title Pass-through relay
// @Description Fetches an allow-listed page server-side and relays status, body and Content-Type.
// @Resource Proxy
// @Param proxyUrl query string true "Absolute URL to fetch"
// @Success 200
// @Failure 400 {object} APIError
// @Failure 403 {object} APIError
// @Failure 502 {object} APIError
// @Route /api/alarmeringen-proxy [get]
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	q := proxyQuery{URL: strings.TrimSpace(r.URL.Query().Get(fetcher.ProxyParam))}
	if err := s.validate.Struct(q); err != nil {
		proxyUpstreamTotal.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, errInvalidQuery, fetcher.ProxyParam+" must be an absolute http(s) url")
		return
	}

	target, err := url.Parse(q.URL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		proxyUpstreamTotal.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, errInvalidQuery, fetcher.ProxyParam+" must be an absolute http(s) url")
		return
	}
	if !s.proxyTargetAllowed(target) {
		proxyUpstreamTotal.WithLabelValues("forbidden").Inc()
		writeError(w, http.StatusForbidden, "host not allowed", target.Hostname())
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, errInvalidQuery, err.Error())
		return
	}
	req.Header.Set("User-Agent", s.cfg.Source.UserAgent)
	if accept := r.Header.Get("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := s.proxyClient.Do(req)
	if errors.Is(err, errRedirectNotAllowed) {
		proxyUpstreamTotal.WithLabelValues("forbidden").Inc()
		s.log.Warn().Err(err).Str("target", target.String()).Msg("proxy redirect refused")
		writeError(w, http.StatusForbidden, "host not allowed", err.Error())
		return
	}
	if err != nil {
		proxyUpstreamTotal.WithLabelValues("error").Inc()
		s.log.Warn().Err(err).Str("target", target.String()).Msg("proxy upstream request failed")
		writeError(w, http.StatusBadGateway, "upstream request failed", err.Error())
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.cfg.Source.MaxBodyBytes+1))
	if err != nil {
		proxyUpstreamTotal.WithLabelValues("error").Inc()
		writeError(w, http.StatusBadGateway, "upstream request failed", err.Error())
		return
	}
	if int64(len(body)) > s.cfg.Source.MaxBodyBytes {
		proxyUpstreamTotal.WithLabelValues("too_large").Inc()
		writeError(w, http.StatusBadGateway, "upstream response too large",
			fmt.Sprintf("limit %d bytes", s.cfg.Source.MaxBodyBytes))
		return
	}

	proxyUpstreamTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(body); err != nil {
		s.log.Debug().Err(err).Str("target", target.String()).Msg("relaying proxy body interrupted")
	}
}

// checkProxyRedirect applies the allow-list to every redirect hop.
func (s *Server) checkProxyRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxProxyRedirects {
		return fmt.Errorf("stopped after %d redirects", maxProxyRedirects)
	}
	if !s.proxyTargetAllowed(req.URL) {
		return fmt.Errorf("%w: %s", errRedirectNotAllowed, req.URL.Host)
	}
	return nil
}

func (s *Server) proxyTargetAllowed(u *url.URL) bool {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return s.proxyHostAllowed(u.Hostname())
}

func (s *Server) proxyHostAllowed(host string) bool {
	host = strings.ToLower(host)
	return slices.ContainsFunc(s.cfg.Proxy.AllowedHosts, func(allowed string) bool {
		return strings.EqualFold(strings.TrimSpace(allowed), host)
	})
}
