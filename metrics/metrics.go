// Package metrics provides Prometheus instrumentation for live voice sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "livevoice"

// Status label values.
const (
	StatusClosed  = "closed"
	StatusErrored = "errored"
	StatusDenied  = "denied"
)

var (
	// sessionsActive is a gauge of sessions between Start and teardown.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live sessions currently running",
		},
	)

	// sessionsTotal counts finished sessions by how they ended.
	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of sessions by final status",
		},
		[]string{"backend", "status"}, // status: closed, errored, denied
	)

	// sessionDuration is a histogram of session lifetimes.
	sessionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Histogram of session duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"backend"},
	)

	// connectDuration is a histogram of time from Start to the session opening.
	connectDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connect_duration_seconds",
			Help:      "Time from session start until the remote side accepted setup",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"backend"},
	)

	// audioBlocksTotal counts audio chunks by direction.
	audioBlocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_blocks_total",
			Help:      "Total audio chunks by direction",
		},
		[]string{"direction"}, // direction: sent, received
	)

	// audioBytesTotal counts PCM bytes by direction.
	audioBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Total PCM bytes by direction",
		},
		[]string{"direction"},
	)

	// serverEventsTotal counts demultiplexed inbound events by kind.
	serverEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_events_total",
			Help:      "Total inbound session events by kind",
		},
		[]string{"kind"},
	)

	// turnsTotal counts finalized conversation turns.
	turnsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total completed conversation turns",
		},
	)

	// interruptionsTotal counts barge-in interruptions.
	interruptionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interruptions_total",
			Help:      "Total playback interruptions requested by the server",
		},
	)

	// playbackQueued is the audio scheduled ahead of the output clock.
	playbackQueued = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_queued_seconds",
			Help:      "Model audio scheduled but not yet played",
		},
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		connectDuration,
		audioBlocksTotal,
		audioBytesTotal,
		serverEventsTotal,
		turnsTotal,
		interruptionsTotal,
		playbackQueued,
	}
)

// RecordSessionStart records a session entering Connecting.
func RecordSessionStart() {
	sessionsActive.Inc()
}

// RecordSessionEnd records a session reaching a terminal state.
func RecordSessionEnd(backend, status string, durationSeconds float64) {
	sessionsActive.Dec()
	sessionsTotal.WithLabelValues(backend, status).Inc()
	sessionDuration.WithLabelValues(backend).Observe(durationSeconds)
	playbackQueued.Set(0)
}

// RecordPermissionDenied records a start attempt refused microphone access.
func RecordPermissionDenied(backend string) {
	sessionsTotal.WithLabelValues(backend, StatusDenied).Inc()
}

// RecordConnected records the time it took the session to open.
func RecordConnected(backend string, durationSeconds float64) {
	connectDuration.WithLabelValues(backend).Observe(durationSeconds)
}

// RecordAudioSent records one captured block handed to the transport.
func RecordAudioSent(bytes int) {
	audioBlocksTotal.WithLabelValues("sent").Inc()
	audioBytesTotal.WithLabelValues("sent").Add(float64(bytes))
}

// RecordAudioReceived records one model audio chunk.
func RecordAudioReceived(bytes int) {
	audioBlocksTotal.WithLabelValues("received").Inc()
	audioBytesTotal.WithLabelValues("received").Add(float64(bytes))
}

// RecordServerEvent records one inbound event.
func RecordServerEvent(kind string) {
	serverEventsTotal.WithLabelValues(kind).Inc()
}

// RecordTurn records a finalized turn.
func RecordTurn() {
	turnsTotal.Inc()
}

// RecordInterruption records a barge-in.
func RecordInterruption() {
	interruptionsTotal.Inc()
}

// SetPlaybackQueued records how much audio is scheduled ahead of the clock.
func SetPlaybackQueued(seconds float64) {
	playbackQueued.Set(seconds)
}
