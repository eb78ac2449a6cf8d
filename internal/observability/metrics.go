package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	webRequestsTotal  *prometheus.CounterVec
	webLatencySeconds *prometheus.HistogramVec
	webErrorsTotal    *prometheus.CounterVec

	apiRequestsTotal  *prometheus.CounterVec
	apiLatencySeconds *prometheus.HistogramVec

	uploadAttemptsTotal  *prometheus.CounterVec
	uploadRejectedTotal  *prometheus.CounterVec
	uploadLatencySeconds prometheus.Histogram

	notificationsPublishedTotal *prometheus.CounterVec
	notificationSubscribers     prometheus.Gauge

	publicCacheRequestsTotal *prometheus.CounterVec
	dashboardSessionsActive  prometheus.Gauge
	tempUploadsSweptTotal    *prometheus.CounterVec
	activityEventsTotal      *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		webRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "web_requests_total",
			Help: "Total number of public and dashboard requests served.",
		}, []string{"method", "route", "status"})

		webLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "web_latency_seconds",
			Help:    "Latency distribution for public and dashboard requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		webErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "web_errors_total",
			Help: "Total number of error responses.",
		}, []string{"method", "route", "status"})

		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "activity_api_requests_total",
			Help: "Outbound requests to the activities API by route and status.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "activity_api_latency_seconds",
			Help:    "Latency of outbound activities API calls.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "route"})

		uploadAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_upload_attempts_total",
			Help: "Media upload attempts by outcome.",
		}, []string{"outcome"})

		uploadRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_upload_rejected_total",
			Help: "Media uploads rejected before reaching the network.",
		}, []string{"reason"})

		uploadLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "media_upload_latency_seconds",
			Help:    "End-to-end latency of media uploads including retries.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 360},
		})

		notificationsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Dashboard notifications published by kind.",
		}, []string{"kind"})

		notificationSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notification_subscribers_active",
			Help: "Currently attached notification display subscribers.",
		})

		publicCacheRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "public_activity_cache_requests_total",
			Help: "Public activity page lookups by cache result.",
		}, []string{"result"})

		dashboardSessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashboard_sessions_active",
			Help: "Dashboard sessions currently held in memory.",
		})

		tempUploadsSweptTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "temp_uploads_swept_total",
			Help: "Orphaned temporary uploads processed by the sweeper.",
		}, []string{"outcome"})

		activityEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "activity_change_events_total",
			Help: "Activity change events by direction and action.",
		}, []string{"direction", "action"})

		prometheus.MustRegister(
			webRequestsTotal, webLatencySeconds, webErrorsTotal,
			apiRequestsTotal, apiLatencySeconds,
			uploadAttemptsTotal, uploadRejectedTotal, uploadLatencySeconds,
			notificationsPublishedTotal, notificationSubscribers,
			publicCacheRequestsTotal, dashboardSessionsActive,
			tempUploadsSweptTotal, activityEventsTotal,
		)
	})
}

// WebRequests exposes the counter for public and dashboard requests.
func WebRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return webRequestsTotal
}

// WebLatency exposes the request latency histogram.
func WebLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return webLatencySeconds
}

// WebErrors exposes the counter for error responses.
func WebErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return webErrorsTotal
}

// APIRequests exposes the outbound API request counter.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the outbound API latency histogram.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

func UploadAttempts() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadAttemptsTotal
}

func UploadRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRejectedTotal
}

func UploadLatency() prometheus.Histogram {
	RegisterMetrics()
	return uploadLatencySeconds
}

func NotificationsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsPublishedTotal
}

func NotificationSubscribers() prometheus.Gauge {
	RegisterMetrics()
	return notificationSubscribers
}

func PublicCacheRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return publicCacheRequestsTotal
}

func DashboardSessionsActive() prometheus.Gauge {
	RegisterMetrics()
	return dashboardSessionsActive
}

func TempUploadsSwept() *prometheus.CounterVec {
	RegisterMetrics()
	return tempUploadsSweptTotal
}

func ActivityEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return activityEventsTotal
}
