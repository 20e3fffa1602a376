package ingest

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/Ajirohack/echo/internal/metrics"
)

// Listener feeds MQTT job payloads into the worker pool. It is wired
// as the mqttclient message handler.
type Listener struct {
	pool *WorkerPool
	log  zerolog.Logger
}

// NewListener creates an MQTT job listener.
func NewListener(pool *WorkerPool, log zerolog.Logger) *Listener {
	return &Listener{
		pool: pool,
		log:  log.With().Str("component", "mqtt-listener").Logger(),
	}
}

// Handle parses one job message. Requests published to a subtopic, e.g.
// echo/requests/abc123, take the trailing segment as the request ID
// when the payload does not carry one.
func (l *Listener) Handle(topic string, payload []byte) {
	job, err := ParseJob(payload)
	if err != nil {
		metrics.IngestRejectedTotal.Inc()
		l.log.Warn().Err(err).Str("topic", topic).Msg("rejected job payload")
		return
	}

	if job.RequestID == "" {
		job.RequestID = requestIDFromTopic(topic)
	}
	job.Source = "mqtt"

	if !l.pool.Enqueue(*job) {
		l.log.Warn().
			Str("topic", topic).
			Str("request_id", job.RequestID).
			Msg("queue full, job dropped")
		return
	}

	l.log.Debug().
		Str("topic", topic).
		Str("request_id", job.RequestID).
		Msg("job accepted")
}

// requestIDFromTopic returns the segment after the last slash, or ""
// for single-level topics.
func requestIDFromTopic(topic string) string {
	idx := strings.LastIndex(topic, "/")
	if idx < 0 || idx == len(topic)-1 {
		return ""
	}
	return topic[idx+1:]
}
