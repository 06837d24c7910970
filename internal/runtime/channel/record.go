package channel

import (
	"time"

	"github.com/drblury/statusrelay/internal/runtime/jsoncodec"
)

// Upstream hop names.
const (
	HopSNS      = "sns"
	HopEventBus = "eventBus"
)

const isoLayout = "2006-01-02T15:04:05.000Z"

// Record is a decoded, latency-annotated notification. A Record is built once
// per message and never mutated afterwards.
type Record struct {
	// Status is the business status carried by the notification.
	Status string
	// Upstream names the broker hop in front of the queue, empty for direct.
	Upstream string

	SentUpstreamAt     time.Time
	ReceivedByQueueAt  time.Time
	ReceivedByClientAt time.Time

	UpstreamMillis   int64
	QueueMillis      int64
	CumulativeMillis int64

	OpenPollings int64

	// MissingAttributes lists envelope or queue attributes that were absent.
	MissingAttributes []string
}

// WithOpenPollings returns a copy of r carrying the open pollings count.
func (r Record) WithOpenPollings(n int64) Record {
	r.OpenPollings = n
	return r
}

// Fields renders the record with the key names consumed by log metric filters.
// Absent timestamps are omitted.
func (r Record) Fields() map[string]any {
	fields := map[string]any{
		"message":              r.Status,
		"sqsTimeTakenInMillis": r.QueueMillis,
		"openPollings":         r.OpenPollings,
	}
	putTime(fields, "receivedBySqsAt", r.ReceivedByQueueAt)
	putTime(fields, "receivedByClientAt", r.ReceivedByClientAt)

	if r.Upstream == "" {
		fields["totalTimeTakenInMillis"] = r.CumulativeMillis
		return fields
	}
	putTime(fields, "sentTo"+upperFirst(r.Upstream)+"At", r.SentUpstreamAt)
	fields[r.Upstream+"TimeTakenInMillis"] = r.UpstreamMillis
	fields[r.Upstream+"ToClientTimeTakenInMillis"] = r.CumulativeMillis
	return fields
}

func (r Record) MarshalJSON() ([]byte, error) {
	return jsoncodec.Marshal(r.Fields())
}

func putTime(fields map[string]any, key string, t time.Time) {
	if t.IsZero() {
		return
	}
	fields[key] = t.UTC().Format(isoLayout)
}

func upperFirst(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
