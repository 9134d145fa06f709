// Package report holds the incident records scraped from alarmeringen.nl.
package report

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Type is the emergency service a report belongs to.
type Type string

const (
	TypePolice    Type = "police"
	TypeAmbulance Type = "ambulance"
	TypeFire      Type = "fire"
	TypeUnknown   Type = "unknown"
)

// labels maps the site's Dutch service names onto Type. The order is the
// order in which row classes are scanned.
var labels = []struct {
	label string
	typ   Type
}{
	{"politie", TypePolice},
	{"ambulance", TypeAmbulance},
	{"brandweer", TypeFire},
}

// lower folds a label with Dutch casing rules. A Caser keeps state, so each
// call gets its own.
func lower(s string) string {
	return cases.Lower(language.Dutch).String(s)
}

// FromLabel maps a Dutch service label ("Politie", "brandweer", ...) to a Type.
// Unrecognised labels map to TypeUnknown.
func FromLabel(label string) Type {
	normalized := lower(strings.TrimSpace(label))
	for _, l := range labels {
		if normalized == l.label {
			return l.typ
		}
	}
	return TypeUnknown
}

// FromClass scans a class attribute for a known service label.
func FromClass(class string) Type {
	normalized := lower(class)
	for _, l := range labels {
		if strings.Contains(normalized, l.label) {
			return l.typ
		}
	}
	return TypeUnknown
}

// Known reports whether t is one of the three services.
func (t Type) Known() bool {
	switch t {
	case TypePolice, TypeAmbulance, TypeFire:
		return true
	}
	return false
}

// ListItem is one row of a region listing page.
type ListItem struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Date  string `json:"date"`
	Type  Type   `json:"type"`
}

// Location is a (latitude, longitude) pair.
type Location [2]float64

func (l Location) Lat() float64 { return l[0] }
func (l Location) Lon() float64 { return l[1] }

// IsZero reports whether the location is the (0, 0) fallback.
func (l Location) IsZero() bool { return l[0] == 0 && l[1] == 0 }

// Details is the full record parsed from a report's detail page.
type Details struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Date        string   `json:"date"`
	Location    Location `json:"location"`
	Type        Type     `json:"type"`
}
