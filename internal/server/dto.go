package server

import (
	"time"

	"alarm/live/internal/archive"
	"alarm/live/internal/report"
)

type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type ReportResponse struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Date        string   `json:"date"`
	Type        string   `json:"type"`
	Location    GeoPoint `json:"location"`
}

type ReportsResponse struct {
	ID        string           `json:"id"`
	FetchedAt time.Time        `json:"fetched_at"`
	Count     int              `json:"count"`
	Reports   []ReportResponse `json:"reports"`
}

type HistoryEntryResponse struct {
	ReportResponse
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

type RefreshResponse struct {
	Status string `json:"status"`
}

type HealthResponse struct {
	Status      string     `json:"status"`
	Env         string     `json:"env"`
	Uptime      string     `json:"uptime"`
	LastRefresh *time.Time `json:"last_refresh,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	Reports     int        `json:"reports"`
	Refreshing  bool       `json:"refreshing"`
	Archive     bool       `json:"archive"`
}

func toReportResponse(r report.Details) ReportResponse {
	return ReportResponse{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Date:        r.Date,
		Type:        string(r.Type),
		Location:    GeoPoint{Latitude: r.Location.Lat(), Longitude: r.Location.Lon()},
	}
}

func toHistoryEntryResponse(e archive.Entry) HistoryEntryResponse {
	return HistoryEntryResponse{
		ReportResponse: toReportResponse(e.Details),
		FirstSeenAt:    e.FirstSeenAt,
		LastSeenAt:     e.LastSeenAt,
	}
}
