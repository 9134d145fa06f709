package scraper

import (
	"html"
	"io"
	"math"
	"net/url"
	"strconv"
	"strings"

	"alarm/live/internal/report"

	"github.com/PuerkitoBio/goquery"
)

// ParseDetail extracts one report from its detail page.
//
// The canonical URL and the heading are required. The map link degrades to the
// (0, 0) location, the service link to TypeUnknown, and date and description to
// empty strings.
func ParseDetail(r io.Reader) (report.Details, error) {
	doc, err := load(r)
	if err != nil {
		return report.Details{}, err
	}

	canonical, ok := doc.Find(selCanonical).First().Attr("content")
	if !ok {
		return report.Details{}, missing(selCanonical)
	}
	id, ok := idFromURL(canonical)
	if !ok {
		return report.Details{}, missing(selCanonical + " id segment")
	}

	heading := doc.Find(selHeading).First()
	if heading.Length() == 0 {
		return report.Details{}, missing(selHeading)
	}

	mapSource, _ := doc.Find(selMapFrame).First().Attr(attrMapSource)
	infoRow := doc.Find(selInfoRow).First()

	return report.Details{
		ID:          id,
		Title:       cleanText(heading),
		Description: description(infoRow.Next()),
		Date:        cleanText(doc.Find(selInfoRow + " " + selDate).Eq(1)),
		Location:    ParseLocation(mapSource),
		Type:        report.FromLabel(cleanText(doc.Find(selTypeLink).Last())),
	}, nil
}

// idFromURL returns the second-to-last path segment of a canonical report URL,
// which ends in a slash: https://alarmeringen.nl/<province>/<region>/<id>/.
func idFromURL(raw string) (string, bool) {
	parts := strings.Split(strings.TrimSpace(raw), "/")
	if len(parts) < 2 {
		return "", false
	}
	id := parts[len(parts)-2]
	return id, id != ""
}

// ParseLocation reads the q=lat,lon parameter of an embedded map URL. Anything
// short of two finite numbers yields the (0, 0) fallback.
func ParseLocation(mapURL string) report.Location {
	if mapURL == "" {
		return report.Location{}
	}
	u, err := url.Parse(mapURL)
	if err != nil {
		return report.Location{}
	}
	parts := strings.Split(u.Query().Get("q"), ",")
	if len(parts) != 2 {
		return report.Location{}
	}
	var loc report.Location
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return report.Location{}
		}
		loc[i] = v
	}
	return loc
}

// description rebuilds the report body from an optional h4 followed by the
// non-empty paragraphs. Text is escaped; the source markup inside each element
// is not carried over.
func description(section *goquery.Selection) string {
	if section.Length() == 0 {
		return ""
	}

	var b strings.Builder
	if h4 := section.Find("h4").First(); h4.Length() > 0 {
		if text := cleanText(h4); text != "" {
			b.WriteString("<h4>" + html.EscapeString(text) + "</h4>")
		}
	}
	section.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := cleanText(p)
		if text == "" {
			return
		}
		b.WriteString("<p>" + html.EscapeString(text) + "</p>")
	})
	return b.String()
}
