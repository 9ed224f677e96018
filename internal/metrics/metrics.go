// Package metrics exposes Prometheus instrumentation for the alert engine.
package metrics

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// EventsProcessed counts inbound listing events by type.
	EventsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_events_processed_total",
		Help: "Inbound listing events by event type",
	}, []string{"type"})

	// Matches counts positive search matches.
	Matches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "alert_matches_total",
		Help: "Saved search matches produced by the matcher",
	})

	// NotificationsSent counts successful channel sends.
	NotificationsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_notifications_sent_total",
		Help: "Successful notification sends by channel",
	}, []string{"channel"})

	// SendFailures counts failed channel sends.
	SendFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_send_failures_total",
		Help: "Failed notification sends by channel",
	}, []string{"channel"})

	// Blocked counts throttle deferrals by reason.
	Blocked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_throttle_blocked_total",
		Help: "Throttle deferrals by block reason",
	}, []string{"reason"})

	// QueueOutcomes counts retry-queue processing outcomes.
	QueueOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_queue_outcomes_total",
		Help: "Retry queue item outcomes (sent, failed, requeued, expired)",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(EventsProcessed, Matches, NotificationsSent,
		SendFailures, Blocked, QueueOutcomes)
}

var queueDepthDesc = prometheus.NewDesc(
	"alert_queue_depth",
	"Retry queue items by status",
	[]string{"status"},
	nil,
)

// QueueDepthCollector reads queue depths from Postgres on each scrape.
type QueueDepthCollector struct {
	pool *pgxpool.Pool
}

// Describe sends the metric descriptor to the channel.
func (c *QueueDepthCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- queueDepthDesc
}

// Collect queries queue depths by status and emits them as gauges.
func (c *QueueDepthCollector) Collect(ch chan<- prometheus.Metric) {
	rows, err := c.pool.Query(context.Background(), `
		SELECT status, COUNT(*) FROM notification_queue GROUP BY status`)
	if err != nil {
		slog.Error("failed to collect queue depth metrics", "error", err)
		return
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			slog.Error("failed to scan queue depth row", "error", err)
			return
		}
		ch <- prometheus.MustNewConstMetric(queueDepthDesc,
			prometheus.GaugeValue, float64(count), status)
	}
}

var initOnce sync.Once

// Init registers pool-backed collectors. Must be called once at startup.
func Init(pool *pgxpool.Pool) {
	initOnce.Do(func() {
		prometheus.MustRegister(&QueueDepthCollector{pool: pool})
	})
}
