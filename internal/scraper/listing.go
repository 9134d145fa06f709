package scraper

import (
	"io"

	"alarm/live/internal/report"

	"github.com/PuerkitoBio/goquery"
)

// ParseListing extracts the report rows of a region listing page.
//
// Each row is read as one unit, so title, url, date and type always belong to
// the same report. Rows without a title link (adverts, separators) are skipped;
// rows whose class names no known service get TypeUnknown.
func ParseListing(r io.Reader) ([]report.ListItem, error) {
	doc, err := load(r)
	if err != nil {
		return nil, err
	}

	messages := doc.Find(selMessages)
	if messages.Length() == 0 {
		return nil, missing(selMessages)
	}

	items := make([]report.ListItem, 0)
	messages.Find(selReportList).ChildrenFiltered("div").Each(func(_ int, row *goquery.Selection) {
		item, ok := parseRow(row)
		if ok {
			items = append(items, item)
		}
	})
	return items, nil
}

func parseRow(row *goquery.Selection) (report.ListItem, bool) {
	link := row.Find(selRowTitle).First()
	if link.Length() == 0 {
		return report.ListItem{}, false
	}
	href, _ := link.Attr("href")
	class, _ := row.Attr("class")

	return report.ListItem{
		URL:   href,
		Title: cleanText(link),
		Date:  cleanText(row.Find(selDate).First()),
		Type:  report.FromClass(class),
	}, true
}
