package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// stubAWS fakes SQS and CloudWatch for one account, recording every call.
type stubAWS struct {
	mu    sync.Mutex
	calls []string

	failOn   map[string]error
	queues   map[string]map[string]string
	messages []types.Message
	alarms   []*cloudwatch.PutMetricAlarmInput
	receives []*sqs.ReceiveMessageInput
}

func newStubAWS() *stubAWS {
	return &stubAWS{failOn: map[string]error{}, queues: map[string]map[string]string{}}
}

func queueURL(name string) string {
	return "https://sqs.eu-west-1.amazonaws.com/123456789012/" + name
}

func queueName(url string) string {
	return url[strings.LastIndex(url, "/")+1:]
}

func (s *stubAWS) record(call string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	return s.failOn[call]
}

func (s *stubAWS) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *stubAWS) CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error) {
	name := aws.ToString(params.QueueName)
	if err := s.record("CreateQueue:" + name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	attrs := map[string]string{}
	for k, v := range params.Attributes {
		attrs[k] = v
	}
	for k, v := range params.Tags {
		attrs["tag:"+k] = v
	}
	s.queues[name] = attrs
	s.mu.Unlock()
	return &sqs.CreateQueueOutput{QueueUrl: aws.String(queueURL(name))}, nil
}

func (s *stubAWS) GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	name := queueName(aws.ToString(params.QueueUrl))
	if err := s.record("GetQueueAttributes:" + name); err != nil {
		return nil, err
	}
	return &sqs.GetQueueAttributesOutput{Attributes: map[string]string{
		"QueueArn": fmt.Sprintf("arn:aws:sqs:eu-west-1:123456789012:%s", name),
	}}, nil
}

func (s *stubAWS) SetQueueAttributes(ctx context.Context, params *sqs.SetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.SetQueueAttributesOutput, error) {
	name := queueName(aws.ToString(params.QueueUrl))
	if err := s.record("SetQueueAttributes:" + name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	for k, v := range params.Attributes {
		s.queues[name][k] = v
	}
	s.mu.Unlock()
	return &sqs.SetQueueAttributesOutput{}, nil
}

func (s *stubAWS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if err := s.record("ReceiveMessage"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receives = append(s.receives, params)
	msgs := s.messages
	s.messages = nil
	return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
}

func (s *stubAWS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	if err := s.record("DeleteMessage:" + aws.ToString(params.ReceiptHandle)); err != nil {
		return nil, err
	}
	return &sqs.DeleteMessageOutput{}, nil
}

func (s *stubAWS) DeleteQueue(ctx context.Context, params *sqs.DeleteQueueInput, optFns ...func(*sqs.Options)) (*sqs.DeleteQueueOutput, error) {
	if err := s.record("DeleteQueue:" + queueName(aws.ToString(params.QueueUrl))); err != nil {
		return nil, err
	}
	return &sqs.DeleteQueueOutput{}, nil
}

func (s *stubAWS) PutMetricAlarm(ctx context.Context, params *cloudwatch.PutMetricAlarmInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricAlarmOutput, error) {
	if err := s.record("PutMetricAlarm:" + aws.ToString(params.AlarmName)); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.alarms = append(s.alarms, params)
	s.mu.Unlock()
	return &cloudwatch.PutMetricAlarmOutput{}, nil
}

func (s *stubAWS) DeleteAlarms(ctx context.Context, params *cloudwatch.DeleteAlarmsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.DeleteAlarmsOutput, error) {
	if err := s.record("DeleteAlarms:" + strings.Join(params.AlarmNames, ",")); err != nil {
		return nil, err
	}
	return &cloudwatch.DeleteAlarmsOutput{}, nil
}
