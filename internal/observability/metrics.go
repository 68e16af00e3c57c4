package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ridehail", Name: "matches_total",
		Help: "Total sessions accepted by a driver"})
	NoDriverTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ridehail", Name: "no_driver_total",
		Help: "Candidate waits that expired with no acceptance"})
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ridehail", Name: "sessions_active",
		Help: "Sessions currently in a non-terminal state"})
	DriversOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ridehail", Name: "drivers_online",
		Help: "Drivers currently broadcasting ONLINE"})
	DispatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ridehail", Name: "dispatch_latency_seconds",
		Help: "Time from booking to candidate list published"})
	RouteFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ridehail", Name: "route_fallbacks_total",
		Help: "Route plans that fell back to straight-line interpolation"})
	StaleUpdatesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ridehail", Name: "stale_updates_dropped_total",
		Help: "Status or location updates dropped by the monotonic merge rules"},
		[]string{"kind"})
	FeedEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ridehail", Name: "feed_events_total",
		Help: "Change-feed events published"},
		[]string{"table", "op"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ridehail", Name: "http_requests_total",
			Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
)
