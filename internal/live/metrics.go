package live

import (
	"time"

	"alarm/live/internal/report"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	refreshDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "live_refresh_duration_seconds",
			Help:    "Duration of a full listing + detail refresh.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"result"},
	)

	refreshSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "live_refresh_skipped_total",
			Help: "Refresh ticks skipped because the previous refresh was still running.",
		},
	)

	currentReports = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "live_current_reports",
			Help: "Reports in the current snapshot per service type.",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(
		refreshDurationSeconds,
		refreshSkippedTotal,
		currentReports,
	)
}

func observeRefresh(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	refreshDurationSeconds.WithLabelValues(result).Observe(d.Seconds())
}

func observeReports(reports []report.Details) {
	counts := map[report.Type]int{
		report.TypePolice:    0,
		report.TypeAmbulance: 0,
		report.TypeFire:      0,
		report.TypeUnknown:   0,
	}
	for _, r := range reports {
		if r.Type.Known() {
			counts[r.Type]++
		} else {
			counts[report.TypeUnknown]++
		}
	}
	for typ, n := range counts {
		currentReports.WithLabelValues(string(typ)).Set(float64(n))
	}
}
