package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"

	"github.com/drblury/statusrelay/internal/runtime/config"
	errspkg "github.com/drblury/statusrelay/internal/runtime/errors"
	"github.com/drblury/statusrelay/internal/runtime/ids"
	"github.com/drblury/statusrelay/internal/runtime/jsoncodec"
)

const (
	EventSource     = "status-relay.publisher"
	EventDetailType = "StatusChange"
)

var (
	SNSTopicResolverFactory = sns.NewGenerateArnTopicResolver
	SNSPublisherFactory     = func(cfg sns.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return sns.NewPublisher(cfg, logger)
	}
	SQSPublisherFactory = func(cfg sqs.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return sqs.NewPublisher(cfg, logger)
	}
)

// Notification is the status change published upstream of the relay.
type Notification struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Event  string `json:"event"`
}

// NewNotification stamps a fresh ULID onto a status change.
func NewNotification(status, event string) Notification {
	return Notification{ID: ids.CreateULID(), Status: status, Event: event}
}

// StatusPublisher sends notifications through one delivery channel.
type StatusPublisher interface {
	Publish(ctx context.Context, n Notification) error
	Close() error
}

// EventBridgeAPI is the subset of the EventBridge client used for publishing.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// NewStatusPublisher builds the publisher matching the configured channel.
// queueName is only used by the direct channel.
func NewStatusPublisher(conf *config.Config, cfg aws.Config, events EventBridgeAPI, queueName string, logger watermill.LoggerAdapter) (StatusPublisher, error) {
	if conf == nil {
		return nil, fmt.Errorf("config is required")
	}

	switch conf.NormalizedChannelType() {
	case config.ChannelSNS:
		return newTopicPublisher(conf.TopicARN, cfg, logger)
	case config.ChannelEventBridge:
		if events == nil {
			return nil, fmt.Errorf("eventbridge client is required")
		}
		return &eventBusPublisher{api: events, busName: conf.EventBusName}, nil
	default:
		if queueName == "" {
			return nil, fmt.Errorf("direct channel needs a target queue name")
		}
		// The queue belongs to a relay instance; publishing must never create it.
		publisher, err := SQSPublisherFactory(sqs.PublisherConfig{
			AWSConfig:                   cfg,
			DoNotCreateQueueIfNotExists: true,
			Marshaler:                   sqs.DefaultMarshalerUnmarshaler{},
		}, logger)
		if err != nil {
			return nil, err
		}
		return &watermillPublisher{publisher: publisher, topic: queueName}, nil
	}
}

func newTopicPublisher(topicARN string, cfg aws.Config, logger watermill.LoggerAdapter) (StatusPublisher, error) {
	parsed, err := arn.Parse(topicARN)
	if err != nil {
		return nil, fmt.Errorf("invalid topic arn %q: %w", topicARN, err)
	}

	resolver, err := SNSTopicResolverFactory(parsed.AccountID, parsed.Region)
	if err != nil {
		logger.Error("Failed to create SNS topic resolver", err, watermill.LogFields{
			"accountID": parsed.AccountID,
			"region":    parsed.Region,
		})
		return nil, err
	}

	publisher, err := SNSPublisherFactory(sns.PublisherConfig{
		TopicResolver:               resolver,
		AWSConfig:                   cfg,
		DoNotCreateTopicIfNotExists: true,
		Marshaler:                   sns.DefaultMarshalerUnmarshaler{},
	}, logger)
	if err != nil {
		return nil, err
	}
	return &watermillPublisher{publisher: publisher, topic: parsed.Resource}, nil
}

type watermillPublisher struct {
	publisher message.Publisher
	topic     string
}

func (p *watermillPublisher) Publish(ctx context.Context, n Notification) error {
	payload, err := jsoncodec.Marshal(n)
	if err != nil {
		return err
	}
	msg := message.NewMessage(n.ID, payload)
	msg.SetContext(ctx)
	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return errspkg.NewInfraError(errspkg.KindPublish, p.topic, err)
	}
	return nil
}

func (p *watermillPublisher) Close() error {
	return p.publisher.Close()
}

type eventBusPublisher struct {
	api     EventBridgeAPI
	busName string
}

func (p *eventBusPublisher) Publish(ctx context.Context, n Notification) error {
	detail, err := jsoncodec.Marshal(n)
	if err != nil {
		return err
	}
	out, err := p.api.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []ebtypes.PutEventsRequestEntry{{
			EventBusName: aws.String(p.busName),
			Source:       aws.String(EventSource),
			DetailType:   aws.String(EventDetailType),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(time.Now().UTC()),
		}},
	})
	if err != nil {
		return errspkg.NewInfraError(errspkg.KindPublish, p.busName, err)
	}
	if out != nil && out.FailedEntryCount > 0 {
		for _, entry := range out.Entries {
			if entry.ErrorCode != nil {
				return errspkg.Infraf(errspkg.KindPublish, p.busName, "%s: %s", aws.ToString(entry.ErrorCode), aws.ToString(entry.ErrorMessage))
			}
		}
		return errspkg.Infraf(errspkg.KindPublish, p.busName, "%d entries rejected", out.FailedEntryCount)
	}
	return nil
}

func (p *eventBusPublisher) Close() error { return nil }
