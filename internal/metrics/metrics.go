package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	FramesReceived prometheus.Counter
	FramesWritten  prometheus.Counter
	FrameWriteErrs prometheus.Counter
	ChannelDrops   *prometheus.CounterVec
	RowsSkipped    prometheus.Counter
	Warnings       *prometheus.CounterVec

	NotifySent    *prometheus.CounterVec
	NotifyFailed  *prometheus.CounterVec
	NotifyDeduped prometheus.Counter

	Escalated    prometheus.Counter
	Seeded       prometheus.Counter
	DeviceErrors prometheus.Counter
	TickDuration prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. Passing a *prometheus.Registry also
// makes Handler serve from it.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "axle_frames_received_total",
			Help: "Telemetry frames accepted by the ingestion endpoint.",
		}),
		FramesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "axle_frames_written_total",
			Help: "Telemetry frames committed to the frame store.",
		}),
		FrameWriteErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "axle_frame_write_failures_total",
			Help: "Frames lost after the batch writer's retry failed.",
		}),
		ChannelDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "axle_channel_drops_total",
			Help: "Frames dropped because a pipeline channel was full.",
		}, []string{"channel"}),
		RowsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "axle_rows_skipped_total",
			Help: "Axle rows skipped for having the wrong shape.",
		}),
		Warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "axle_warnings_classified_total",
			Help: "Warning events produced by the classifier.",
		}, []string{"severity"}),
		NotifySent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "axle_notifications_sent_total",
			Help: "Notifications delivered per channel.",
		}, []string{"channel"}),
		NotifyFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "axle_notifications_failed_total",
			Help: "Notification deliveries that failed per channel.",
		}, []string{"channel"}),
		NotifyDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "axle_notifications_deduplicated_total",
			Help: "Warnings suppressed because they were already surfaced.",
		}),
		Escalated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "axle_maintenance_escalated_total",
			Help: "Upcoming maintenance records escalated to not done.",
		}),
		Seeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "axle_maintenance_seeded_total",
			Help: "Upcoming maintenance records created by the scheduler.",
		}),
		DeviceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "axle_maintenance_device_errors_total",
			Help: "Per-device failures during maintenance ticks.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "axle_maintenance_tick_seconds",
			Help:    "Wall time of one maintenance tick.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}

	reg.MustRegister(
		m.FramesReceived, m.FramesWritten, m.FrameWriteErrs, m.ChannelDrops,
		m.RowsSkipped, m.Warnings, m.NotifySent, m.NotifyFailed, m.NotifyDeduped,
		m.Escalated, m.Seeded, m.DeviceErrors, m.TickDuration,
	)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) FrameReceived(n int) {
	if m == nil {
		return
	}
	m.FramesReceived.Add(float64(n))
}

func (m *Metrics) BatchWritten(n int) {
	if m == nil {
		return
	}
	m.FramesWritten.Add(float64(n))
}

func (m *Metrics) BatchFailed(n int) {
	if m == nil {
		return
	}
	m.FrameWriteErrs.Add(float64(n))
}

func (m *Metrics) Dropped(channel string) {
	if m == nil {
		return
	}
	m.ChannelDrops.WithLabelValues(channel).Inc()
}

func (m *Metrics) SkippedRows(n int) {
	if m == nil || n == 0 {
		return
	}
	m.RowsSkipped.Add(float64(n))
}

func (m *Metrics) Warning(severity string) {
	if m == nil {
		return
	}
	m.Warnings.WithLabelValues(severity).Inc()
}

func (m *Metrics) Notified(channel string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.NotifyFailed.WithLabelValues(channel).Inc()
		return
	}
	m.NotifySent.WithLabelValues(channel).Inc()
}

func (m *Metrics) Deduplicated() {
	if m == nil {
		return
	}
	m.NotifyDeduped.Inc()
}

// Tick records the outcome of one maintenance tick.
func (m *Metrics) Tick(escalated, seeded, deviceErrors int, took time.Duration) {
	if m == nil {
		return
	}
	m.Escalated.Add(float64(escalated))
	m.Seeded.Add(float64(seeded))
	m.DeviceErrors.Add(float64(deviceErrors))
	m.TickDuration.Observe(took.Seconds())
}
