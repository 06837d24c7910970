package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/statusrelay/internal/runtime/config"
	errspkg "github.com/drblury/statusrelay/internal/runtime/errors"
	"github.com/drblury/statusrelay/internal/runtime/jsoncodec"
)

type testPublisher struct {
	topic    string
	messages []*message.Message
	err      error
	closed   bool
}

func (p *testPublisher) Publish(topic string, messages ...*message.Message) error {
	p.topic = topic
	p.messages = append(p.messages, messages...)
	return p.err
}

func (p *testPublisher) Close() error {
	p.closed = true
	return nil
}

type stubEventBridge struct {
	input *eventbridge.PutEventsInput
	out   *eventbridge.PutEventsOutput
	err   error
}

func (s *stubEventBridge) PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	s.input = params
	if s.out == nil {
		return &eventbridge.PutEventsOutput{}, s.err
	}
	return s.out, s.err
}

func TestNewNotificationStampsID(t *testing.T) {
	n := NewNotification("READY", "MODIFY")
	assert.Len(t, n.ID, 26)
	assert.Equal(t, "READY", n.Status)
	assert.Equal(t, "MODIFY", n.Event)
}

func TestTopicPublisherResolvesTopicFromARN(t *testing.T) {
	origResolver := SNSTopicResolverFactory
	origPub := SNSPublisherFactory
	t.Cleanup(func() {
		SNSTopicResolverFactory = origResolver
		SNSPublisherFactory = origPub
	})

	var account, region string
	SNSTopicResolverFactory = func(accountID, r string) (*sns.GenerateArnTopicResolver, error) {
		account, region = accountID, r
		return origResolver(accountID, r)
	}
	pub := &testPublisher{}
	SNSPublisherFactory = func(cfg sns.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
		assert.NotNil(t, cfg.TopicResolver)
		assert.True(t, cfg.DoNotCreateTopicIfNotExists, "the topic is owned by provisioning")
		return pub, nil
	}

	conf := &config.Config{ChannelType: "sns", TopicARN: "arn:aws:sns:eu-west-1:123456789012:status-changes"}
	publisher, err := NewStatusPublisher(conf, aws.Config{}, nil, "", watermill.NopLogger{})
	require.NoError(t, err)

	n := Notification{ID: "01J", Status: "READY", Event: "MODIFY"}
	require.NoError(t, publisher.Publish(context.Background(), n))

	assert.Equal(t, "123456789012", account)
	assert.Equal(t, "eu-west-1", region)
	assert.Equal(t, "status-changes", pub.topic)
	require.Len(t, pub.messages, 1)
	assert.Equal(t, "01J", pub.messages[0].UUID)

	var decoded Notification
	require.NoError(t, jsoncodec.Unmarshal(pub.messages[0].Payload, &decoded))
	assert.Equal(t, n, decoded)

	require.NoError(t, publisher.Close())
	assert.True(t, pub.closed)
}

func TestTopicPublisherRejectsInvalidARN(t *testing.T) {
	conf := &config.Config{ChannelType: "sns", TopicARN: "status-changes"}
	_, err := NewStatusPublisher(conf, aws.Config{}, nil, "", watermill.NopLogger{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid topic arn")
}

func TestWatermillPublisherWrapsFailure(t *testing.T) {
	pub := &testPublisher{err: errors.New("throttled")}
	p := &watermillPublisher{publisher: pub, topic: "task-1"}

	err := p.Publish(context.Background(), Notification{ID: "01J", Status: "READY"})
	require.Error(t, err)
	assert.True(t, errspkg.IsKind(err, errspkg.KindPublish))
	assert.Contains(t, err.Error(), "task-1")
}

func TestDirectPublisherTargetsQueue(t *testing.T) {
	origPub := SQSPublisherFactory
	t.Cleanup(func() { SQSPublisherFactory = origPub })

	pub := &testPublisher{}
	var captured sqs.PublisherConfig
	SQSPublisherFactory = func(cfg sqs.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
		captured = cfg
		return pub, nil
	}

	conf := &config.Config{ChannelType: "direct"}
	publisher, err := NewStatusPublisher(conf, aws.Config{}, nil, "task-1", watermill.NopLogger{})
	require.NoError(t, err)
	require.NoError(t, publisher.Publish(context.Background(), NewNotification("READY", "INSERT")))
	assert.Equal(t, "task-1", pub.topic)
	assert.True(t, captured.DoNotCreateQueueIfNotExists, "a missing instance queue must not be recreated")

	_, err = NewStatusPublisher(conf, aws.Config{}, nil, "", watermill.NopLogger{})
	assert.Error(t, err)
}

func TestDirectPublisherFactoryError(t *testing.T) {
	origPub := SQSPublisherFactory
	t.Cleanup(func() { SQSPublisherFactory = origPub })

	SQSPublisherFactory = func(cfg sqs.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
		return nil, errors.New("boom")
	}

	_, err := NewStatusPublisher(&config.Config{}, aws.Config{}, nil, "task-1", watermill.NopLogger{})
	assert.EqualError(t, err, "boom")
}

func TestEventBusPublisherPutsEvent(t *testing.T) {
	stub := &stubEventBridge{}
	conf := &config.Config{ChannelType: "ebrdg", EventBusName: "status-bus"}

	publisher, err := NewStatusPublisher(conf, aws.Config{}, stub, "", watermill.NopLogger{})
	require.NoError(t, err)
	require.NoError(t, publisher.Publish(context.Background(), Notification{ID: "01J", Status: "READY", Event: "MODIFY"}))

	require.NotNil(t, stub.input)
	require.Len(t, stub.input.Entries, 1)
	entry := stub.input.Entries[0]
	assert.Equal(t, "status-bus", aws.ToString(entry.EventBusName))
	assert.Equal(t, EventSource, aws.ToString(entry.Source))
	assert.Equal(t, EventDetailType, aws.ToString(entry.DetailType))
	assert.JSONEq(t, `{"id":"01J","status":"READY","event":"MODIFY"}`, aws.ToString(entry.Detail))
	assert.NotNil(t, entry.Time)
	assert.NoError(t, publisher.Close())
}

func TestEventBusPublisherReportsRejectedEntries(t *testing.T) {
	stub := &stubEventBridge{out: &eventbridge.PutEventsOutput{
		FailedEntryCount: 1,
		Entries: []ebtypes.PutEventsResultEntry{{
			ErrorCode:    aws.String("InternalFailure"),
			ErrorMessage: aws.String("try again"),
		}},
	}}
	p := &eventBusPublisher{api: stub, busName: "status-bus"}

	err := p.Publish(context.Background(), Notification{Status: "READY"})
	require.Error(t, err)
	assert.True(t, errspkg.IsKind(err, errspkg.KindPublish))
	assert.Contains(t, err.Error(), "InternalFailure: try again")

	stub.out = nil
	stub.err = errors.New("network down")
	err = p.Publish(context.Background(), Notification{Status: "READY"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network down")
}

func TestEventBusPublisherRequiresClient(t *testing.T) {
	conf := &config.Config{ChannelType: "ebrdg", EventBusName: "status-bus"}
	_, err := NewStatusPublisher(conf, aws.Config{}, nil, "", watermill.NopLogger{})
	assert.Error(t, err)
}

func TestNewStatusPublisherNilConfig(t *testing.T) {
	_, err := NewStatusPublisher(nil, aws.Config{}, nil, "", watermill.NopLogger{})
	assert.EqualError(t, err, "config is required")
}
