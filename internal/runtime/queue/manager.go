// Package queue owns the lifecycle of a relay instance's private SQS queue and
// its dead-letter queue.
package queue

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	errspkg "github.com/drblury/statusrelay/internal/runtime/errors"
)

// AppTag is the value of the app tag placed on every provisioned resource.
const AppTag = "status-relay"

// SQSAPI is the subset of the SQS client the manager calls.
type SQSAPI interface {
	CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
	SetQueueAttributes(ctx context.Context, params *sqs.SetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.SetQueueAttributesOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	DeleteQueue(ctx context.Context, params *sqs.DeleteQueueInput, optFns ...func(*sqs.Options)) (*sqs.DeleteQueueOutput, error)
}

// CloudWatchAPI is the subset of the CloudWatch client the manager calls.
type CloudWatchAPI interface {
	PutMetricAlarm(ctx context.Context, params *cloudwatch.PutMetricAlarmInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricAlarmOutput, error)
	DeleteAlarms(ctx context.Context, params *cloudwatch.DeleteAlarmsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.DeleteAlarmsOutput, error)
}

// Settings tunes the provisioned queues and the receive call.
type Settings struct {
	WaitTimeSeconds          int32
	VisibilityTimeoutSeconds int32
	MaxReceiveCount          int32
	MaxNumberOfMessages      int32
	AlarmPeriodSeconds       int32
}

// State describes the resources created by Bootstrap.
type State struct {
	InstanceID string
	QueueURL   string
	QueueARN   string
	DLQName    string
	DLQURL     string
	DLQARN     string
	AlarmName  string
}

// Manager provisions and tears down one primary queue, its dead-letter queue
// and the dead-letter depth alarm. It is not safe for concurrent Bootstrap and
// Teardown calls; Receive and Delete may run alongside each other.
type Manager struct {
	sqs      SQSAPI
	alarms   CloudWatchAPI
	settings Settings

	state        State
	bootstrapped bool
}

// NewManager returns a manager that has not bootstrapped anything yet.
func NewManager(sqsClient SQSAPI, alarms CloudWatchAPI, settings Settings) *Manager {
	return &Manager{sqs: sqsClient, alarms: alarms, settings: settings}
}

// Bootstrap creates the dead-letter queue, the primary queue redriving into it,
// the dead-letter queue policy and the alarm, in that order. The first failure
// aborts and is returned; nothing created so far is rolled back.
func (m *Manager) Bootstrap(ctx context.Context, instanceID string) (string, error) {
	if instanceID == "" {
		return "", fmt.Errorf("%w: empty instance id", errspkg.ErrInstanceIdentity)
	}
	state := State{InstanceID: instanceID, DLQName: instanceID + "-dlq"}
	tags := Tags(instanceID)

	dlqURL, err := m.createQueue(ctx, state.DLQName, nil, tags)
	if err != nil {
		return "", err
	}
	state.DLQURL = dlqURL

	if state.DLQARN, err = m.queueARN(ctx, dlqURL); err != nil {
		return "", err
	}

	redrive, err := renderRedrivePolicy(state.DLQARN, m.settings.MaxReceiveCount)
	if err != nil {
		return "", errspkg.NewInfraError(errspkg.KindCreateQueue, instanceID, err)
	}
	queueURL, err := m.createQueue(ctx, instanceID, map[string]string{
		string(types.QueueAttributeNameRedrivePolicy):                 redrive,
		string(types.QueueAttributeNameVisibilityTimeout):             strconv.Itoa(int(m.settings.VisibilityTimeoutSeconds)),
		string(types.QueueAttributeNameReceiveMessageWaitTimeSeconds): strconv.Itoa(int(m.settings.WaitTimeSeconds)),
	}, tags)
	if err != nil {
		return "", err
	}
	state.QueueURL = queueURL

	if state.QueueARN, err = m.queueARN(ctx, queueURL); err != nil {
		return "", err
	}

	if err := m.setPolicy(ctx, state.DLQURL, state.DLQName, PrincipalSQS, state.DLQARN, state.QueueARN); err != nil {
		return "", err
	}

	state.AlarmName = AlarmName(state.DLQName)
	if _, err := m.alarms.PutMetricAlarm(ctx, dlqAlarmInput(state.DLQName, m.alarmPeriod(), tags)); err != nil {
		return "", errspkg.NewInfraError(errspkg.KindPutAlarm, state.AlarmName, err)
	}

	m.state = state
	m.bootstrapped = true
	return queueURL, nil
}

// AllowService grants principal permission to deliver into the primary queue
// on behalf of sourceARN.
func (m *Manager) AllowService(ctx context.Context, principal, sourceARN string) error {
	if !m.bootstrapped {
		return errspkg.ErrNotBootstrapped
	}
	return m.setPolicy(ctx, m.state.QueueURL, m.state.InstanceID, principal, m.state.QueueARN, sourceARN)
}

// Teardown deletes the primary queue, the dead-letter queue and the alarm.
// Every deletion is attempted; failures are joined.
func (m *Manager) Teardown(ctx context.Context) error {
	if !m.bootstrapped {
		return errspkg.ErrNotBootstrapped
	}
	var errs []error
	if _, err := m.sqs.DeleteQueue(ctx, &sqs.DeleteQueueInput{QueueUrl: aws.String(m.state.QueueURL)}); err != nil {
		errs = append(errs, errspkg.NewInfraError(errspkg.KindDeleteQueue, m.state.InstanceID, err))
	}
	if _, err := m.sqs.DeleteQueue(ctx, &sqs.DeleteQueueInput{QueueUrl: aws.String(m.state.DLQURL)}); err != nil {
		errs = append(errs, errspkg.NewInfraError(errspkg.KindDeleteQueue, m.state.DLQName, err))
	}
	if _, err := m.alarms.DeleteAlarms(ctx, &cloudwatch.DeleteAlarmsInput{AlarmNames: []string{m.state.AlarmName}}); err != nil {
		errs = append(errs, errspkg.NewInfraError(errspkg.KindDeleteAlarm, m.state.AlarmName, err))
	}
	m.bootstrapped = false
	return errors.Join(errs...)
}

// Receive long-polls queueURL. A poll that times out returns an empty slice.
func (m *Manager) Receive(ctx context.Context, queueURL string) ([]types.Message, error) {
	out, err := m.sqs.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:                    aws.String(queueURL),
		MaxNumberOfMessages:         m.settings.MaxNumberOfMessages,
		WaitTimeSeconds:             m.settings.WaitTimeSeconds,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{types.MessageSystemAttributeNameAll},
		MessageAttributeNames:       []string{"All"},
	})
	if err != nil {
		return nil, errspkg.NewInfraError(errspkg.KindReceive, queueURL, err)
	}
	if out == nil || len(out.Messages) == 0 {
		return []types.Message{}, nil
	}
	return out.Messages, nil
}

// Delete removes one received message from queueURL.
func (m *Manager) Delete(ctx context.Context, queueURL, receiptHandle string) error {
	_, err := m.sqs.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return errspkg.NewInfraError(errspkg.KindDeleteMessage, queueURL, err)
	}
	return nil
}

// DeleteAll deletes every message, continuing past failures.
func (m *Manager) DeleteAll(ctx context.Context, queueURL string, messages []types.Message) error {
	var errs []error
	for _, msg := range messages {
		if err := m.Delete(ctx, queueURL, aws.ToString(msg.ReceiptHandle)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// State returns the resources created by the last successful Bootstrap.
func (m *Manager) State() State {
	return m.state
}

// QueueURL returns the primary queue URL, empty before Bootstrap.
func (m *Manager) QueueURL() string { return m.state.QueueURL }

// QueueARN returns the primary queue ARN, empty before Bootstrap.
func (m *Manager) QueueARN() string { return m.state.QueueARN }

func (m *Manager) createQueue(ctx context.Context, name string, attributes, tags map[string]string) (string, error) {
	out, err := m.sqs.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName:  aws.String(name),
		Attributes: attributes,
		Tags:       tags,
	})
	if err != nil {
		return "", errspkg.NewInfraError(errspkg.KindCreateQueue, name, err)
	}
	if out == nil || aws.ToString(out.QueueUrl) == "" {
		return "", errspkg.Infraf(errspkg.KindCreateQueue, name, "no queue url returned")
	}
	return aws.ToString(out.QueueUrl), nil
}

func (m *Manager) queueARN(ctx context.Context, queueURL string) (string, error) {
	out, err := m.sqs.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(queueURL),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	})
	if err != nil {
		return "", errspkg.NewInfraError(errspkg.KindGetAttributes, queueURL, err)
	}
	var arn string
	if out != nil {
		arn = out.Attributes[string(types.QueueAttributeNameQueueArn)]
	}
	if arn == "" {
		return "", errspkg.Infraf(errspkg.KindGetAttributes, queueURL, "QueueArn attribute missing")
	}
	return arn, nil
}

func (m *Manager) setPolicy(ctx context.Context, queueURL, queueName, principal, queueARN, sourceARN string) error {
	policy, err := SendMessagePolicy("Allow-"+principal, principal, queueARN, sourceARN)
	if err != nil {
		return errspkg.NewInfraError(errspkg.KindSetPolicy, queueName, err)
	}
	_, err = m.sqs.SetQueueAttributes(ctx, &sqs.SetQueueAttributesInput{
		QueueUrl:   aws.String(queueURL),
		Attributes: map[string]string{string(types.QueueAttributeNamePolicy): policy},
	})
	if err != nil {
		return errspkg.NewInfraError(errspkg.KindSetPolicy, queueName, err)
	}
	return nil
}

func (m *Manager) alarmPeriod() int32 {
	if m.settings.AlarmPeriodSeconds <= 0 {
		return 10
	}
	return m.settings.AlarmPeriodSeconds
}

// Tags returns the tags placed on every resource owned by instanceID.
func Tags(instanceID string) map[string]string {
	return map[string]string{
		"app":        AppTag,
		"instanceId": instanceID,
	}
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
