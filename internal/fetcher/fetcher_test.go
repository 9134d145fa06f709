package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"alarm/live/internal/report"
	"alarm/live/internal/scraper"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const regionPath = "/noord-holland/amsterdam-amstelland/"

func listingPage(ids ...string) string {
	var b strings.Builder
	b.WriteString(`<div id="all-messages"><div class="report-list">`)
	for _, id := range ids {
		fmt.Fprintf(&b, `<div class="msg-row politie"><div class="msgtitle"><a href="%s%s/">%s</a></div><div class="date">12:00</div></div>`,
			regionPath, id, id)
	}
	b.WriteString(`</div></div>`)
	return b.String()
}

func detailPage(id string) string {
	return fmt.Sprintf(`<html><head><meta property="og:url" content="https://alarmeringen.nl%s%s/"></head>
<body><h1>%s</h1><div id="heatmap"><iframe data-privacy-src="https://maps.example/embed?q=52.3,4.8"></iframe></div></body></html>`,
		regionPath, id, id)
}

// newSite serves a listing with the given ids and a detail page for each.
// delay lets individual detail pages answer slowly.
func newSite(t *testing.T, ids []string, delay map[string]time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == regionPath {
			_, _ = w.Write([]byte(listingPage(ids...)))
			return
		}
		id := strings.Trim(strings.TrimPrefix(r.URL.Path, regionPath), "/")
		if d, ok := delay[id]; ok {
			time.Sleep(d)
		}
		if id == "broken" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(detailPage(id)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, base, proxy string) *Client {
	t.Helper()
	c, err := New(Options{
		BaseURL:     base,
		ProxyURL:    proxy,
		UserAgent:   "test-agent",
		Timeout:     5 * time.Second,
		Concurrency: 4,
	}, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestNew_InvalidURLs(t *testing.T) {
	_, err := New(Options{BaseURL: "not a url"}, zerolog.Nop())
	assert.Error(t, err)

	_, err = New(Options{BaseURL: "https://alarmeringen.nl", ProxyURL: "/relative"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestListReports(t *testing.T) {
	srv := newSite(t, []string{"a-1", "b-2"}, nil)
	c := newTestClient(t, srv.URL, "")

	items, err := c.ListReports(context.Background(), srv.URL+regionPath)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, report.ListItem{URL: regionPath + "a-1/", Title: "a-1", Date: "12:00", Type: report.TypePolice}, items[0])
}

func TestGetReportDetails_ResolvesAgainstBase(t *testing.T) {
	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		assert.Equal(t, regionPath+"diefstal-12345/", r.URL.Path)
		_, _ = w.Write([]byte(detailPage("diefstal-12345")))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "")
	d, err := c.GetReportDetails(context.Background(), regionPath+"diefstal-12345/")
	require.NoError(t, err)
	assert.Equal(t, "diefstal-12345", d.ID)
	assert.Equal(t, report.Location{52.3, 4.8}, d.Location)
	assert.Equal(t, "test-agent", gotUA.Load())
}

func TestGetReportDetails_ThroughProxy(t *testing.T) {
	var target atomic.Value
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/alarmeringen-proxy", r.URL.Path)
		target.Store(r.URL.Query().Get(ProxyParam))
		_, _ = w.Write([]byte(detailPage("diefstal-12345")))
	}))
	defer proxy.Close()

	c := newTestClient(t, "https://alarmeringen.nl", proxy.URL+"/api/alarmeringen-proxy")
	d, err := c.GetReportDetails(context.Background(), regionPath+"diefstal-12345/")
	require.NoError(t, err)
	assert.Equal(t, "diefstal-12345", d.ID)
	assert.Equal(t, "https://alarmeringen.nl"+regionPath+"diefstal-12345/", target.Load())
}

func TestRequestURL_EscapesTarget(t *testing.T) {
	c := newTestClient(t, "https://alarmeringen.nl", "http://localhost:8080/api/alarmeringen-proxy")
	got := c.requestURL("https://alarmeringen.nl/x/?page=2&sort=new")
	assert.Equal(t, "http://localhost:8080/api/alarmeringen-proxy?proxyUrl=https%3A%2F%2Falarmeringen.nl%2Fx%2F%3Fpage%3D2%26sort%3Dnew", got)
}

func TestListAllReportDetails_PreservesOrder(t *testing.T) {
	ids := []string{"first-1", "second-2", "third-3"}
	srv := newSite(t, ids, map[string]time.Duration{"first-1": 80 * time.Millisecond})
	c := newTestClient(t, srv.URL, "")

	details, err := c.ListAllReportDetails(context.Background(), srv.URL+regionPath)
	require.NoError(t, err)
	require.Len(t, details, 3)
	for i, id := range ids {
		assert.Equal(t, id, details[i].ID)
	}
}

func TestListAllReportDetails_FailureAbortsBatch(t *testing.T) {
	srv := newSite(t, []string{"ok-1", "broken", "ok-2"}, nil)
	c := newTestClient(t, srv.URL, "")

	details, err := c.ListAllReportDetails(context.Background(), srv.URL+regionPath)
	require.Error(t, err)
	assert.Nil(t, details)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestListAllReportDetails_EmptyListing(t *testing.T) {
	srv := newSite(t, nil, nil)
	c := newTestClient(t, srv.URL, "")

	details, err := c.ListAllReportDetails(context.Background(), srv.URL+regionPath)
	require.NoError(t, err)
	assert.Empty(t, details)
}

func TestListReports_ParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>maintenance</body></html>"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "")
	_, err := c.ListReports(context.Background(), srv.URL+regionPath)
	assert.ErrorIs(t, err, scraper.ErrMissingElement)
}

func TestListReports_ContextCancelled(t *testing.T) {
	srv := newSite(t, []string{"a-1"}, nil)
	c := newTestClient(t, srv.URL, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ListReports(ctx, srv.URL+regionPath)
	assert.Error(t, err)
}

func TestListReports_BodyTooLarge(t *testing.T) {
	ids := make([]string, 200)
	for i := range ids {
		ids[i] = fmt.Sprintf("melding-%d", i)
	}
	srv := newSite(t, ids, nil)

	c, err := New(Options{BaseURL: srv.URL, MaxBodyBytes: 16 << 10}, zerolog.Nop())
	require.NoError(t, err)

	items, err := c.ListReports(context.Background(), srv.URL+regionPath)
	require.ErrorIs(t, err, ErrBodyTooLarge)
	assert.Nil(t, items)

	// The same page parses fine once it fits.
	c, err = New(Options{BaseURL: srv.URL, MaxBodyBytes: int64(len(listingPage(ids...)))}, zerolog.Nop())
	require.NoError(t, err)
	items, err = c.ListReports(context.Background(), srv.URL+regionPath)
	require.NoError(t, err)
	assert.Len(t, items, 200)
}
