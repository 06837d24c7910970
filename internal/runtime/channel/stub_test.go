package channel

import (
	"context"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// stubCloud records every AWS call made by an adapter and always succeeds
// unless a call name is listed in failOn.
type stubCloud struct {
	mu     sync.Mutex
	calls  []string
	failOn map[string]error

	policies map[string]string
	rules    []*eventbridge.PutRuleInput
	targets  []*eventbridge.PutTargetsInput
	subs     []*sns.SubscribeInput
}

func newStubCloud() *stubCloud {
	return &stubCloud{failOn: map[string]error{}, policies: map[string]string{}}
}

func (s *stubCloud) record(call string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	return s.failOn[call]
}

func (s *stubCloud) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func lastSegment(url string) string {
	return url[strings.LastIndex(url, "/")+1:]
}

func (s *stubCloud) CreateQueue(ctx context.Context, in *sqs.CreateQueueInput, _ ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error) {
	name := aws.ToString(in.QueueName)
	if err := s.record("CreateQueue:" + name); err != nil {
		return nil, err
	}
	return &sqs.CreateQueueOutput{QueueUrl: aws.String("https://sqs.eu-west-1.amazonaws.com/123456789012/" + name)}, nil
}

func (s *stubCloud) GetQueueAttributes(ctx context.Context, in *sqs.GetQueueAttributesInput, _ ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	name := lastSegment(aws.ToString(in.QueueUrl))
	if err := s.record("GetQueueAttributes:" + name); err != nil {
		return nil, err
	}
	return &sqs.GetQueueAttributesOutput{Attributes: map[string]string{"QueueArn": "arn:aws:sqs:eu-west-1:123456789012:" + name}}, nil
}

func (s *stubCloud) SetQueueAttributes(ctx context.Context, in *sqs.SetQueueAttributesInput, _ ...func(*sqs.Options)) (*sqs.SetQueueAttributesOutput, error) {
	name := lastSegment(aws.ToString(in.QueueUrl))
	if err := s.record("SetQueueAttributes:" + name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.policies[name] = in.Attributes["Policy"]
	s.mu.Unlock()
	return &sqs.SetQueueAttributesOutput{}, nil
}

func (s *stubCloud) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if err := s.record("ReceiveMessage"); err != nil {
		return nil, err
	}
	return &sqs.ReceiveMessageOutput{}, nil
}

func (s *stubCloud) DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	if err := s.record("DeleteMessage:" + aws.ToString(in.ReceiptHandle)); err != nil {
		return nil, err
	}
	return &sqs.DeleteMessageOutput{}, nil
}

func (s *stubCloud) DeleteQueue(ctx context.Context, in *sqs.DeleteQueueInput, _ ...func(*sqs.Options)) (*sqs.DeleteQueueOutput, error) {
	if err := s.record("DeleteQueue:" + lastSegment(aws.ToString(in.QueueUrl))); err != nil {
		return nil, err
	}
	return &sqs.DeleteQueueOutput{}, nil
}

func (s *stubCloud) PutMetricAlarm(ctx context.Context, in *cloudwatch.PutMetricAlarmInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricAlarmOutput, error) {
	if err := s.record("PutMetricAlarm"); err != nil {
		return nil, err
	}
	return &cloudwatch.PutMetricAlarmOutput{}, nil
}

func (s *stubCloud) DeleteAlarms(ctx context.Context, in *cloudwatch.DeleteAlarmsInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.DeleteAlarmsOutput, error) {
	if err := s.record("DeleteAlarms"); err != nil {
		return nil, err
	}
	return &cloudwatch.DeleteAlarmsOutput{}, nil
}

func (s *stubCloud) Subscribe(ctx context.Context, in *sns.SubscribeInput, _ ...func(*sns.Options)) (*sns.SubscribeOutput, error) {
	if err := s.record("Subscribe"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.subs = append(s.subs, in)
	s.mu.Unlock()
	return &sns.SubscribeOutput{SubscriptionArn: aws.String(aws.ToString(in.TopicArn) + ":sub-1")}, nil
}

func (s *stubCloud) Unsubscribe(ctx context.Context, in *sns.UnsubscribeInput, _ ...func(*sns.Options)) (*sns.UnsubscribeOutput, error) {
	if err := s.record("Unsubscribe:" + aws.ToString(in.SubscriptionArn)); err != nil {
		return nil, err
	}
	return &sns.UnsubscribeOutput{}, nil
}

func (s *stubCloud) PutRule(ctx context.Context, in *eventbridge.PutRuleInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutRuleOutput, error) {
	if err := s.record("PutRule:" + aws.ToString(in.Name)); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.rules = append(s.rules, in)
	s.mu.Unlock()
	return &eventbridge.PutRuleOutput{RuleArn: aws.String("arn:aws:events:eu-west-1:123456789012:rule/" + aws.ToString(in.EventBusName) + "/" + aws.ToString(in.Name))}, nil
}

func (s *stubCloud) PutTargets(ctx context.Context, in *eventbridge.PutTargetsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutTargetsOutput, error) {
	if err := s.record("PutTargets:" + aws.ToString(in.Rule)); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.targets = append(s.targets, in)
	s.mu.Unlock()
	return &eventbridge.PutTargetsOutput{}, nil
}

func (s *stubCloud) RemoveTargets(ctx context.Context, in *eventbridge.RemoveTargetsInput, _ ...func(*eventbridge.Options)) (*eventbridge.RemoveTargetsOutput, error) {
	if err := s.record("RemoveTargets:" + aws.ToString(in.Rule)); err != nil {
		return nil, err
	}
	return &eventbridge.RemoveTargetsOutput{}, nil
}

func (s *stubCloud) DeleteRule(ctx context.Context, in *eventbridge.DeleteRuleInput, _ ...func(*eventbridge.Options)) (*eventbridge.DeleteRuleOutput, error) {
	if err := s.record("DeleteRule:" + aws.ToString(in.Name)); err != nil {
		return nil, err
	}
	return &eventbridge.DeleteRuleOutput{}, nil
}

func (s *stubCloud) clients() Clients {
	return Clients{SQS: s, CloudWatch: s, SNS: s, EventBridge: s}
}
