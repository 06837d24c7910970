package channel

import (
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

var (
	attrSentTimestamp         = string(types.MessageSystemAttributeNameSentTimestamp)
	attrFirstReceiveTimestamp = string(types.MessageSystemAttributeNameApproximateFirstReceiveTimestamp)
)

// queueRecord fills the queue hop of a record from the SQS system attributes.
// Missing or unparseable attributes leave the timestamp zero and are listed in
// MissingAttributes.
func queueRecord(msg types.Message) Record {
	var r Record
	r.ReceivedByQueueAt = epochMillis(msg.Attributes, attrSentTimestamp, &r.MissingAttributes)
	r.ReceivedByClientAt = epochMillis(msg.Attributes, attrFirstReceiveTimestamp, &r.MissingAttributes)
	r.QueueMillis = elapsedMillis(r.ReceivedByQueueAt, r.ReceivedByClientAt)
	r.CumulativeMillis = r.QueueMillis
	return r
}

// withUpstream adds the broker hop in front of the queue.
func (r Record) withUpstream(hop string, sentAt time.Time) Record {
	r.Upstream = hop
	r.SentUpstreamAt = sentAt
	r.UpstreamMillis = elapsedMillis(sentAt, r.ReceivedByQueueAt)
	r.CumulativeMillis = r.UpstreamMillis + r.QueueMillis
	return r
}

func epochMillis(attrs map[string]string, name string, missing *[]string) time.Time {
	raw, ok := attrs[name]
	if !ok || raw == "" {
		*missing = append(*missing, name)
		return time.Time{}
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		*missing = append(*missing, name)
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func elapsedMillis(from, to time.Time) int64 {
	if from.IsZero() || to.IsZero() {
		return 0
	}
	return to.Sub(from).Milliseconds()
}

// parseISOTime accepts the RFC 3339 timestamps written by SNS and EventBridge.
func parseISOTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
