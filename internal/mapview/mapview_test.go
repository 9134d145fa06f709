package mapview

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIcons(t *testing.T) {
	icons := Icons("/static/")
	require.Len(t, icons, 4)

	ids := make([]string, 0, len(icons))
	for _, ic := range icons {
		ids = append(ids, ic.ID)
		assert.Equal(t, "/static/icons/"+ic.ID+".svg", ic.URL)
		assert.Greater(t, ic.Size, 0.0)
	}
	assert.Equal(t, []string{"fire", "ambulance", "police", "unknown"}, ids)
}

func TestSymbolLayer(t *testing.T) {
	layer := SymbolLayer("reports")
	assert.Equal(t, "reports", layer["id"])
	assert.Equal(t, "symbol", layer["type"])
	assert.Equal(t, "reports", layer["source"])

	layout := layer["layout"].(map[string]any)
	assert.Equal(t, true, layout["icon-allow-overlap"])
	assert.Equal(t, "map", layout["icon-pitch-alignment"])
	assert.Equal(t, "map", layout["icon-rotation-alignment"])

	image := layout["icon-image"].([]any)
	assert.Equal(t, "case", image[0])
	assert.Equal(t, "unknown", image[len(image)-1])
	assert.Len(t, image, 1+2*3+1)
	assert.Equal(t, []any{"==", []any{"get", "type"}, "fire"}, image[1])
	assert.Equal(t, "fire", image[2])

	size := layout["icon-size"].([]any)
	assert.Equal(t, "case", size[0])
	assert.Equal(t, 1, size[len(size)-1])
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, Options{
		AccessToken:     "pk.test",
		Style:           "mapbox://styles/mapbox/dark-v11",
		Center:          [2]float64{4.9041, 52.3676},
		Zoom:            11.5,
		RefreshInterval: 20 * time.Second,
		DataURL:         "/v1/reports/geojson",
		IconBaseURL:     "/static",
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "<title>112 Live</title>")
	assert.Contains(t, out, `"pk.test"`)
	assert.Contains(t, out, `"mapbox://styles/mapbox/dark-v11"`)
	assert.Contains(t, out, "[4.9041,52.3676]")
	assert.Contains(t, out, `"/v1/reports/geojson"`)
	assert.Contains(t, out, `"/static/icons/police.svg"`)
	assert.Contains(t, out, "20000")
	assert.Contains(t, out, "map.removeImage(icon.id)")
}

func TestRender_EscapesScriptBreakout(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, Options{
		Title:       "<b>Live</b>",
		AccessToken: "</script><script>alert(1)</script>",
	})
	require.NoError(t, err)

	out := buf.String()
	assert.NotContains(t, out, "</script><script>alert(1)")
	assert.Contains(t, out, "&lt;b&gt;Live&lt;/b&gt;")
}

func TestStatic(t *testing.T) {
	srv := httptest.NewServer(http.StripPrefix("/static", Static()))
	defer srv.Close()

	for _, ic := range Icons(srv.URL + "/static") {
		resp, err := http.Get(ic.URL)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode, ic.ID)
		assert.Contains(t, resp.Header.Get("Content-Type"), "image/svg+xml")
		assert.Contains(t, string(body), "<svg")
	}
}
