// Package feed converts report details into the GeoJSON feature collection
// rendered by the map.
package feed

import (
	"errors"
	"html"

	"alarm/live/internal/report"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Feature property keys read by the map layer and popup.
const (
	PropID          = "id"
	PropType        = "type"
	PropTitle       = "title"
	PropDate        = "date"
	PropDescription = "description"
)

var errNotPoint = errors.New("feature geometry is not a point")

// Build returns one point feature per report. GeoJSON orders coordinates as
// (lon, lat), so the report location is swapped on the way in.
func Build(reports []report.Details) *geojson.FeatureCollection {
	features := make([]*geojson.Feature, 0, len(reports))
	for _, r := range reports {
		features = append(features, &geojson.Feature{
			ID:       r.ID,
			Geometry: geom.NewPointFlat(geom.XY, []float64{r.Location.Lon(), r.Location.Lat()}),
			Properties: map[string]interface{}{
				PropID:          r.ID,
				PropType:        string(r.Type),
				PropTitle:       r.Title,
				PropDate:        r.Date,
				PropDescription: PopupHTML(r),
			},
		})
	}
	return &geojson.FeatureCollection{Features: features}
}

// PopupHTML is the popup body: the bold title followed by the report description.
func PopupHTML(r report.Details) string {
	return "<strong>" + html.EscapeString(r.Title) + "</strong>" + r.Description
}

// Location reverses the coordinate convention of Build, returning (lat, lon).
func Location(f *geojson.Feature) (report.Location, error) {
	p, ok := f.Geometry.(*geom.Point)
	if !ok {
		return report.Location{}, errNotPoint
	}
	return report.Location{p.Y(), p.X()}, nil
}
