package channel

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/tidwall/gjson"

	"github.com/drblury/statusrelay/internal/runtime/config"
	errspkg "github.com/drblury/statusrelay/internal/runtime/errors"
	"github.com/drblury/statusrelay/internal/runtime/queue"
)

// SNSAPI is the subset of the SNS client used by the topic adapter.
type SNSAPI interface {
	Subscribe(ctx context.Context, params *sns.SubscribeInput, optFns ...func(*sns.Options)) (*sns.SubscribeOutput, error)
	Unsubscribe(ctx context.Context, params *sns.UnsubscribeInput, optFns ...func(*sns.Options)) (*sns.UnsubscribeOutput, error)
}

// Topic subscribes the instance queue to an SNS topic.
type Topic struct {
	queue    *queue.Manager
	sns      SNSAPI
	topicARN string

	subscriptionARN string
}

func NewTopic(manager *queue.Manager, client SNSAPI, topicARN string) *Topic {
	return &Topic{queue: manager, sns: client, topicARN: topicARN}
}

func (t *Topic) Type() string { return config.ChannelSNS }

// SubscriptionARN returns the subscription created by Bootstrap.
func (t *Topic) SubscriptionARN() string { return t.subscriptionARN }

func (t *Topic) Bootstrap(ctx context.Context, instanceID string) (string, error) {
	queueURL, err := t.queue.Bootstrap(ctx, instanceID)
	if err != nil {
		return "", err
	}
	if err := t.queue.AllowService(ctx, queue.PrincipalSNS, t.topicARN); err != nil {
		return "", err
	}

	out, err := t.sns.Subscribe(ctx, &sns.SubscribeInput{
		TopicArn:              aws.String(t.topicARN),
		Protocol:              aws.String("sqs"),
		Endpoint:              aws.String(t.queue.QueueARN()),
		ReturnSubscriptionArn: true,
	})
	if err != nil {
		return "", errspkg.NewInfraError(errspkg.KindSubscribe, t.topicARN, err)
	}
	if out == nil || aws.ToString(out.SubscriptionArn) == "" {
		return "", errspkg.Infraf(errspkg.KindSubscribe, t.topicARN, "no subscription arn returned")
	}
	t.subscriptionARN = aws.ToString(out.SubscriptionArn)
	return queueURL, nil
}

// Teardown unsubscribes before deleting the queues.
func (t *Topic) Teardown(ctx context.Context) error {
	var errs []error
	if t.subscriptionARN != "" {
		_, err := t.sns.Unsubscribe(ctx, &sns.UnsubscribeInput{SubscriptionArn: aws.String(t.subscriptionARN)})
		if err != nil {
			errs = append(errs, errspkg.NewInfraError(errspkg.KindUnsubscribe, t.subscriptionARN, err))
		} else {
			t.subscriptionARN = ""
		}
	}
	if err := t.queue.Teardown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (t *Topic) Receive(ctx context.Context, queueURL string) ([]types.Message, error) {
	return t.queue.Receive(ctx, queueURL)
}

func (t *Topic) Delete(ctx context.Context, queueURL, receiptHandle string) error {
	return t.queue.Delete(ctx, queueURL, receiptHandle)
}

// ParseMessage unwraps the SNS notification envelope and measures the topic
// and queue hops.
func (t *Topic) ParseMessage(msg types.Message) (Record, error) {
	env, err := parseObject(aws.ToString(msg.Body), "sns envelope")
	if err != nil {
		return Record{}, err
	}
	message := env.Get("Message")
	if message.Type != gjson.String {
		return Record{}, errspkg.Decodef(errspkg.ErrMissingField, "sns envelope Message")
	}

	payload, err := parseObject(message.String(), "sns message payload")
	if err != nil {
		return Record{}, err
	}
	status := payload.Get("status")
	if status.Type != gjson.String {
		return Record{}, errspkg.Decodef(errspkg.ErrMissingField, "status")
	}

	r := queueRecord(msg)
	r.Status = status.String()

	sentAt, err := upstreamTime(&r, env, "Timestamp")
	if err != nil {
		return Record{}, errspkg.Decodef(err, "sns Timestamp")
	}
	return r.withUpstream(HopSNS, sentAt), nil
}
