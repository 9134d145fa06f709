// Package mapview renders the browser map that displays live reports.
package mapview

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"alarm/live/internal/report"
)

//go:embed static/icons/*.svg
var staticFS embed.FS

//go:embed templates/map.html.tmpl
var pageTemplate string

var page = template.Must(template.New("map").Parse(pageTemplate))

// SourceID names the GeoJSON source and the symbol layer on the map.
const SourceID = "reports"

// FallbackImage is shown for reports whose type is not recognised.
const FallbackImage = "unknown"

// Options configures the rendered page.
type Options struct {
	Title       string
	AccessToken string
	Style       string
	// Center is (lng, lat).
	Center          [2]float64
	Zoom            float64
	RefreshInterval time.Duration
	DataURL         string
	IconBaseURL     string
}

// Icon is one marker image registered on the map.
type Icon struct {
	ID   string  `json:"id"`
	URL  string  `json:"url"`
	Size float64 `json:"size"`
}

var iconSizes = []struct {
	typ  report.Type
	size float64
}{
	{report.TypeFire, 0.5},
	{report.TypeAmbulance, 0.45},
	{report.TypePolice, 0.5},
}

// Icons lists the marker images, the fallback image last.
func Icons(baseURL string) []Icon {
	base := strings.TrimRight(baseURL, "/")
	icons := make([]Icon, 0, len(iconSizes)+1)
	for _, s := range iconSizes {
		id := string(s.typ)
		icons = append(icons, Icon{ID: id, URL: base + "/icons/" + id + ".svg", Size: s.size})
	}
	return append(icons, Icon{ID: FallbackImage, URL: base + "/icons/" + FallbackImage + ".svg", Size: 1})
}

// SymbolLayer is the Mapbox layer definition picking icon image and size by
// the feature's type property.
func SymbolLayer(sourceID string) map[string]any {
	typ := []any{"get", "type"}
	image := []any{"case"}
	size := []any{"case"}
	for _, s := range iconSizes {
		match := []any{"==", typ, string(s.typ)}
		image = append(image, match, string(s.typ))
		size = append(size, match, s.size)
	}
	image = append(image, FallbackImage)
	size = append(size, 1)

	return map[string]any{
		"id":     sourceID,
		"type":   "symbol",
		"source": sourceID,
		"layout": map[string]any{
			"icon-allow-overlap":      true,
			"icon-pitch-alignment":    "map",
			"icon-rotation-alignment": "map",
			"icon-image":              image,
			"icon-size":               size,
		},
	}
}

type pageData struct {
	Title       string
	AccessToken template.JS
	Style       template.JS
	Center      template.JS
	Zoom        template.JS
	IntervalMS  int64
	DataURL     template.JS
	SourceID    template.JS
	Layer       template.JS
	Icons       template.JS
}

// Render writes the map page.
func Render(w io.Writer, opts Options) error {
	if opts.Title == "" {
		opts.Title = "112 Live"
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 20 * time.Second
	}

	data := pageData{
		Title:      opts.Title,
		IntervalMS: opts.RefreshInterval.Milliseconds(),
	}
	fields := []struct {
		dst *template.JS
		v   any
	}{
		{&data.AccessToken, opts.AccessToken},
		{&data.Style, opts.Style},
		{&data.Center, opts.Center},
		{&data.Zoom, opts.Zoom},
		{&data.DataURL, opts.DataURL},
		{&data.SourceID, SourceID},
		{&data.Layer, SymbolLayer(SourceID)},
		{&data.Icons, Icons(opts.IconBaseURL)},
	}
	for _, f := range fields {
		js, err := toJSON(f.v)
		if err != nil {
			return fmt.Errorf("encoding page data: %w", err)
		}
		*f.dst = js
	}

	return page.Execute(w, data)
}

// Static serves the embedded marker images under /icons/.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}

func toJSON(v any) (template.JS, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return template.JS(b), nil
}
