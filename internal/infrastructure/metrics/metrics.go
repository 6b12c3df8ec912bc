package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the collection pipeline
type Metrics struct {
	// Ingestion metrics
	MessagesIngested   prometheus.Counter
	DuplicateMessages  prometheus.Counter
	LiveUpdates        prometheus.Counter
	BackfillPages      prometheus.Counter
	BackfillDuration   prometheus.Histogram

	// Media metrics
	MediaStored     prometheus.Counter
	MediaDownloaded prometheus.Counter
	MediaSkipped    *prometheus.CounterVec

	// Sink metrics
	SinkDispatches *prometheus.CounterVec
	SinkErrors     *prometheus.CounterVec

	// Telegram API metrics
	FloodWaits    prometheus.Counter
	Reconnections prometheus.Counter

	// Report metrics
	ReportDuration prometheus.Histogram
	ReportEntries  prometheus.Counter

	// Group metrics
	GroupsTracked prometheus.Gauge
}

var (
	// DefaultMetrics is the default metrics instance
	DefaultMetrics *Metrics
	once           sync.Once
)

// GetDefaultMetrics returns the singleton metrics instance
func GetDefaultMetrics() *Metrics {
	once.Do(func() {
		DefaultMetrics = NewMetrics()
	})
	return DefaultMetrics
}

func init() {
	// Initialize DefaultMetrics on package import
	GetDefaultMetrics()
}

// NewMetrics creates a new Metrics instance with all counters and gauges
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gramwatch_messages_ingested_total",
			Help: "Total number of message rows written to the main store",
		}),
		DuplicateMessages: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gramwatch_duplicate_messages_total",
			Help: "Total number of inserts suppressed as duplicates",
		}),
		LiveUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gramwatch_live_updates_total",
			Help: "Total number of live update events received",
		}),
		BackfillPages: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gramwatch_backfill_pages_total",
			Help: "Total number of history pages fetched during backfill",
		}),
		BackfillDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gramwatch_backfill_group_duration_seconds",
			Help:    "Duration of per-group backfill runs in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),

		MediaStored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gramwatch_media_stored_total",
			Help: "Total number of media rows written to shard stores",
		}),
		MediaDownloaded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gramwatch_media_downloaded_total",
			Help: "Total number of attachment files downloaded",
		}),
		MediaSkipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gramwatch_media_skipped_total",
				Help: "Total number of attachments skipped without download",
			},
			[]string{"reason"},
		),

		SinkDispatches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gramwatch_sink_dispatches_total",
				Help: "Total number of payloads delivered per sink",
			},
			[]string{"sink"},
		),
		SinkErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gramwatch_sink_errors_total",
				Help: "Total number of failed sink deliveries per sink",
			},
			[]string{"sink"},
		),

		FloodWaits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gramwatch_flood_waits_total",
			Help: "Total number of flood wait events from the Telegram API",
		}),
		Reconnections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gramwatch_reconnections_total",
			Help: "Total number of Telegram session reconnections",
		}),

		ReportDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gramwatch_report_duration_seconds",
			Help:    "Duration of report generation runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		ReportEntries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gramwatch_report_entries_total",
			Help: "Total number of entries emitted into reports",
		}),

		GroupsTracked: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gramwatch_groups_tracked",
			Help: "Current number of groups in the main store",
		}),
	}
}

// RecordIngest records one insert attempt outcome
func (m *Metrics) RecordIngest(added bool) {
	if added {
		m.MessagesIngested.Inc()
	} else {
		m.DuplicateMessages.Inc()
	}
}

// RecordBackfillPage records one fetched history page
func (m *Metrics) RecordBackfillPage() {
	m.BackfillPages.Inc()
}

// RecordBackfillGroup records the duration of one per-group backfill run
func (m *Metrics) RecordBackfillGroup(duration float64) {
	m.BackfillDuration.Observe(duration)
}

// RecordMediaStored records a media row insert, with or without a download
func (m *Metrics) RecordMediaStored(downloaded bool) {
	m.MediaStored.Inc()
	if downloaded {
		m.MediaDownloaded.Inc()
	}
}

// RecordMediaSkipped records an attachment skipped for the given reason
func (m *Metrics) RecordMediaSkipped(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.MediaSkipped.WithLabelValues(reason).Inc()
}

// RecordSinkDispatch records a sink delivery outcome
func (m *Metrics) RecordSinkDispatch(sink string, err error) {
	m.SinkDispatches.WithLabelValues(sink).Inc()
	if err != nil {
		m.SinkErrors.WithLabelValues(sink).Inc()
	}
}

// RecordFloodWait records a flood wait event from the Telegram API
func (m *Metrics) RecordFloodWait() {
	m.FloodWaits.Inc()
}

// RecordReconnection records a Telegram session reconnection
func (m *Metrics) RecordReconnection() {
	m.Reconnections.Inc()
}

// RecordReport records one report generation run
func (m *Metrics) RecordReport(entries int, duration float64) {
	m.ReportDuration.Observe(duration)
	if entries > 0 {
		m.ReportEntries.Add(float64(entries))
	}
}

// UpdateGroupsTracked updates the tracked groups gauge
func (m *Metrics) UpdateGroupsTracked(count int) {
	m.GroupsTracked.Set(float64(count))
}
