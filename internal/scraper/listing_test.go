package scraper

import (
	"os"
	"strings"
	"testing"

	"alarm/live/internal/report"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseListing_SingleRow(t *testing.T) {
	page := `<div id="all-messages"><div class="report-list">
		<div class="msg-row politie">
			<div class="msgtitle"><a href="/noord-holland/amsterdam-amstelland/diefstal-12345/">Diefstal</a></div>
			<div class="date">12:34</div>
		</div>
	</div></div>`

	items, err := ParseListing(strings.NewReader(page))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, report.ListItem{
		URL:   "/noord-holland/amsterdam-amstelland/diefstal-12345/",
		Title: "Diefstal",
		Date:  "12:34",
		Type:  report.TypePolice,
	}, items[0])
}

func TestParseListing_Fixture(t *testing.T) {
	f, err := os.Open("testdata/listing.html")
	require.NoError(t, err)
	defer f.Close()

	items, err := ParseListing(f)
	require.NoError(t, err)
	require.Len(t, items, 3)

	for _, it := range items {
		assert.NotEmpty(t, it.URL)
		assert.NotEmpty(t, it.Title)
		assert.NotEmpty(t, it.Date)
		assert.True(t, it.Type.Known(), "type of %q", it.Title)
	}

	assert.Equal(t, "Diefstal", items[0].Title)
	assert.Equal(t, report.TypePolice, items[0].Type)
	assert.Equal(t, "Binnenbrand woning", items[1].Title)
	assert.Equal(t, report.TypeFire, items[1].Type)
	assert.Equal(t, "/noord-holland/amsterdam-amstelland/a1-ambulance-12347/", items[2].URL)
	assert.Equal(t, report.TypeAmbulance, items[2].Type)
	assert.Equal(t, "12:05", items[2].Date)
}

func TestParseListing_UnknownServiceKeepsRowAligned(t *testing.T) {
	page := `<div id="all-messages"><div class="report-list">
		<div class="msg-row kustwacht">
			<div class="msgtitle"><a href="/a/">Schip in nood</a></div>
			<div class="date">10:00</div>
		</div>
		<div class="msg-row politie">
			<div class="msgtitle"><a href="/b/">Inbraak</a></div>
			<div class="date">10:05</div>
		</div>
	</div></div>`

	items, err := ParseListing(strings.NewReader(page))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, report.TypeUnknown, items[0].Type)
	assert.Equal(t, "/b/", items[1].URL)
	assert.Equal(t, "Inbraak", items[1].Title)
	assert.Equal(t, "10:05", items[1].Date)
	assert.Equal(t, report.TypePolice, items[1].Type)
}

func TestParseListing_EmptyList(t *testing.T) {
	items, err := ParseListing(strings.NewReader(`<div id="all-messages"><div class="report-list"></div></div>`))
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NotNil(t, items)
}

func TestParseListing_MissingContainer(t *testing.T) {
	_, err := ParseListing(strings.NewReader(`<html><body><p>Onderhoud</p></body></html>`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingElement)
	assert.Contains(t, err.Error(), "#all-messages")
}
