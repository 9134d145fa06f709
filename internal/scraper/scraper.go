// Package scraper turns alarmeringen.nl listing and detail pages into report records.
//
// The site's markup is an unversioned contract. Selectors live in this package only,
// so a layout change on the site is a change here and nowhere else.
package scraper

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrMissingElement is returned when a page lacks an element the parser requires.
var ErrMissingElement = errors.New("missing element")

const (
	selMessages   = "#all-messages"
	selReportList = ".report-list"
	selRowTitle   = ".msgtitle a"
	selDate       = ".date"

	selCanonical  = "meta[property='og:url']"
	selHeading    = "h1"
	selMapFrame   = "#heatmap > iframe"
	attrMapSource = "data-privacy-src"
	selInfoRow    = ".info-row"
	selTypeLink   = ".ads-details-wrapper .text-right a"
)

func load(r io.Reader) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("reading html: %w", err)
	}
	return doc, nil
}

func missing(selector string) error {
	return fmt.Errorf("%w: %s", ErrMissingElement, selector)
}

// cleanText trims a node's text and collapses inner whitespace runs.
func cleanText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
