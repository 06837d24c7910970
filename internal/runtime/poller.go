package runtime

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/statusrelay/internal/runtime/channel"
	loggingpkg "github.com/drblury/statusrelay/internal/runtime/logging"
)

// Poller is the steady-state receive loop of a relay instance.
type Poller struct {
	adapter    channel.Adapter
	state      *State
	queueURL   string
	logger     loggingpkg.ServiceLogger
	metrics    *Metrics
	errorDelay time.Duration

	sleep func(ctx context.Context, d time.Duration)
}

func NewPoller(adapter channel.Adapter, state *State, queueURL string, logger loggingpkg.ServiceLogger, metrics *Metrics, errorDelay time.Duration) *Poller {
	return &Poller{
		adapter:    adapter,
		state:      state,
		queueURL:   queueURL,
		logger:     logger,
		metrics:    metrics,
		errorDelay: errorDelay,
		sleep:      sleepContext,
	}
}

// Run iterates while the instance is online. The online flag is checked at
// the top of every iteration only, so an in-flight poll always completes.
func (p *Poller) Run(ctx context.Context) {
	for p.state.Online() && ctx.Err() == nil {
		p.Iterate(ctx)
	}
}

// Iterate performs one receive call and processes the returned batch.
func (p *Poller) Iterate(ctx context.Context) {
	p.metrics.SetOpenPollings(p.state.BeginPoll())
	messages, err := p.adapter.Receive(ctx, p.queueURL)
	p.metrics.SetOpenPollings(p.state.EndPoll())

	if err != nil {
		p.discard()
		p.logger.Error("Failed to receive notifications", err, loggingpkg.LogFields{"queueUrl": p.queueURL})
		if p.errorDelay > 0 {
			p.sleep(ctx, p.errorDelay)
		}
		return
	}

	for _, msg := range messages {
		p.process(ctx, msg)
	}
}

func (p *Poller) process(ctx context.Context, msg types.Message) {
	messageID := aws.ToString(msg.MessageId)
	tracer := otel.Tracer("statusrelay")
	ctx, span := tracer.Start(ctx, "ProcessNotification", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.message.id", messageID),
		attribute.String("statusrelay.channel", p.adapter.Type()),
	)

	record, err := p.adapter.ParseMessage(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		p.discard()
		p.logger.Error("Failed to decode notification", err, loggingpkg.LogFields{"messageId": messageID})
		return
	}
	if len(record.MissingAttributes) > 0 {
		p.logger.Warn("Notification is missing timing attributes", loggingpkg.LogFields{
			"messageId":  messageID,
			"attributes": record.MissingAttributes,
		})
	}

	record = record.WithOpenPollings(p.state.OpenPollings())
	p.state.StoreRecord(record)

	if err := p.adapter.Delete(ctx, p.queueURL, aws.ToString(msg.ReceiptHandle)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		p.discard()
		p.logger.Error("Failed to delete notification", err, loggingpkg.LogFields{"messageId": messageID})
		return
	}

	p.state.MarkProcessed()
	p.metrics.ObserveProcessed(record)
	span.SetAttributes(
		attribute.String("statusrelay.status", record.Status),
		attribute.Int64("statusrelay.latency_ms", record.CumulativeMillis),
	)
	p.logger.Info("notification processed", loggingpkg.LogFields(record.Fields()))
}

func (p *Poller) discard() {
	p.state.MarkDiscarded()
	p.metrics.ObserveDiscarded()
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
