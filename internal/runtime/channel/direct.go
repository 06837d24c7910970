package channel

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/tidwall/gjson"

	"github.com/drblury/statusrelay/internal/runtime/config"
	errspkg "github.com/drblury/statusrelay/internal/runtime/errors"
	"github.com/drblury/statusrelay/internal/runtime/queue"
)

// Direct reads notifications producers send straight to the instance queue.
type Direct struct {
	queue *queue.Manager
}

func NewDirect(manager *queue.Manager) *Direct {
	return &Direct{queue: manager}
}

func (d *Direct) Type() string { return config.ChannelDirect }

func (d *Direct) Bootstrap(ctx context.Context, instanceID string) (string, error) {
	return d.queue.Bootstrap(ctx, instanceID)
}

func (d *Direct) Teardown(ctx context.Context) error {
	return d.queue.Teardown(ctx)
}

func (d *Direct) Receive(ctx context.Context, queueURL string) ([]types.Message, error) {
	return d.queue.Receive(ctx, queueURL)
}

func (d *Direct) Delete(ctx context.Context, queueURL, receiptHandle string) error {
	return d.queue.Delete(ctx, queueURL, receiptHandle)
}

// ParseMessage only measures the queue hop. The body must be JSON; the status
// is taken from a top-level "status" string when present.
func (d *Direct) ParseMessage(msg types.Message) (Record, error) {
	body := aws.ToString(msg.Body)
	if !gjson.Valid(body) {
		return Record{}, errspkg.Decodef(errspkg.ErrMalformedEnvelope, "direct body is not valid json")
	}
	r := queueRecord(msg)
	if status := gjson.Get(body, "status"); status.Type == gjson.String {
		r.Status = status.String()
	}
	return r, nil
}
