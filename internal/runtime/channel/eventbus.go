package channel

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/tidwall/gjson"

	"github.com/drblury/statusrelay/internal/runtime/config"
	errspkg "github.com/drblury/statusrelay/internal/runtime/errors"
	"github.com/drblury/statusrelay/internal/runtime/queue"
)

// MatchAllPattern matches events from every source.
const MatchAllPattern = `{"source":[{"prefix":""}]}`

// EventBridgeAPI is the subset of the EventBridge client used by the event bus
// adapter.
type EventBridgeAPI interface {
	PutRule(ctx context.Context, params *eventbridge.PutRuleInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutRuleOutput, error)
	PutTargets(ctx context.Context, params *eventbridge.PutTargetsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutTargetsOutput, error)
	RemoveTargets(ctx context.Context, params *eventbridge.RemoveTargetsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.RemoveTargetsOutput, error)
	DeleteRule(ctx context.Context, params *eventbridge.DeleteRuleInput, optFns ...func(*eventbridge.Options)) (*eventbridge.DeleteRuleOutput, error)
}

// RuleName is the name of the routing rule owned by instanceID.
func RuleName(instanceID string) string {
	return "SendToSQS-" + instanceID
}

// EventBus routes every event of a bus into the instance queue through a rule.
type EventBus struct {
	queue          *queue.Manager
	events         EventBridgeAPI
	busName        string
	timestampField string

	ruleName string
	targetID string
}

// NewEventBus builds the adapter. timestampField is a gjson path into the
// event envelope; it defaults to the envelope's "time" field.
func NewEventBus(manager *queue.Manager, client EventBridgeAPI, busName, timestampField string) *EventBus {
	if timestampField == "" {
		timestampField = "time"
	}
	return &EventBus{queue: manager, events: client, busName: busName, timestampField: timestampField}
}

func (e *EventBus) Type() string { return config.ChannelEventBridge }

// RuleName returns the rule created by Bootstrap.
func (e *EventBus) RuleName() string { return e.ruleName }

func (e *EventBus) Bootstrap(ctx context.Context, instanceID string) (string, error) {
	queueURL, err := e.queue.Bootstrap(ctx, instanceID)
	if err != nil {
		return "", err
	}

	name := RuleName(instanceID)
	rule, err := e.events.PutRule(ctx, &eventbridge.PutRuleInput{
		Name:         aws.String(name),
		EventBusName: aws.String(e.busName),
		EventPattern: aws.String(MatchAllPattern),
		State:        ebtypes.RuleStateEnabled,
		Tags:         ruleTags(queue.Tags(instanceID)),
	})
	if err != nil {
		return "", errspkg.NewInfraError(errspkg.KindPutRule, name, err)
	}
	e.ruleName = name

	if err := e.queue.AllowService(ctx, queue.PrincipalEventBridge, aws.ToString(rule.RuleArn)); err != nil {
		return "", err
	}

	out, err := e.events.PutTargets(ctx, &eventbridge.PutTargetsInput{
		Rule:         aws.String(name),
		EventBusName: aws.String(e.busName),
		Targets: []ebtypes.Target{{
			Id:  aws.String(instanceID),
			Arn: aws.String(e.queue.QueueARN()),
		}},
	})
	if err != nil {
		return "", errspkg.NewInfraError(errspkg.KindPutTargets, name, err)
	}
	if out != nil && out.FailedEntryCount > 0 {
		return "", errspkg.Infraf(errspkg.KindPutTargets, name, "%s", failedTargetMessage(out.FailedEntries))
	}
	e.targetID = instanceID
	return queueURL, nil
}

// Teardown removes the target and deletes the rule before deleting the queues.
func (e *EventBus) Teardown(ctx context.Context) error {
	var errs []error
	if e.ruleName != "" {
		if err := e.removeRule(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.queue.Teardown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (e *EventBus) removeRule(ctx context.Context) error {
	if e.targetID != "" {
		out, err := e.events.RemoveTargets(ctx, &eventbridge.RemoveTargetsInput{
			Rule:         aws.String(e.ruleName),
			EventBusName: aws.String(e.busName),
			Ids:          []string{e.targetID},
		})
		if err != nil {
			return errspkg.NewInfraError(errspkg.KindRemoveTargets, e.ruleName, err)
		}
		if out != nil && out.FailedEntryCount > 0 {
			return errspkg.Infraf(errspkg.KindRemoveTargets, e.ruleName, "%d targets not removed", out.FailedEntryCount)
		}
		e.targetID = ""
	}

	_, err := e.events.DeleteRule(ctx, &eventbridge.DeleteRuleInput{
		Name:         aws.String(e.ruleName),
		EventBusName: aws.String(e.busName),
	})
	if err != nil {
		return errspkg.NewInfraError(errspkg.KindDeleteRule, e.ruleName, err)
	}
	e.ruleName = ""
	return nil
}

func (e *EventBus) Receive(ctx context.Context, queueURL string) ([]types.Message, error) {
	return e.queue.Receive(ctx, queueURL)
}

func (e *EventBus) Delete(ctx context.Context, queueURL, receiptHandle string) error {
	return e.queue.Delete(ctx, queueURL, receiptHandle)
}

// ParseMessage unwraps the EventBridge event and measures the bus and queue
// hops. The status is read from detail.status.
func (e *EventBus) ParseMessage(msg types.Message) (Record, error) {
	event, err := parseObject(aws.ToString(msg.Body), "event envelope")
	if err != nil {
		return Record{}, err
	}

	status := event.Get("detail.status")
	if status.Type != gjson.String {
		return Record{}, errspkg.Decodef(errspkg.ErrMissingField, "detail.status")
	}

	r := queueRecord(msg)
	r.Status = status.String()

	sentAt, err := upstreamTime(&r, event, e.timestampField)
	if err != nil {
		return Record{}, errspkg.Decodef(err, "event %s", e.timestampField)
	}
	return r.withUpstream(HopEventBus, sentAt), nil
}

func ruleTags(tags map[string]string) []ebtypes.Tag {
	out := make([]ebtypes.Tag, 0, len(tags))
	for _, key := range []string{"app", "instanceId"} {
		if value, ok := tags[key]; ok {
			out = append(out, ebtypes.Tag{Key: aws.String(key), Value: aws.String(value)})
		}
	}
	return out
}

func failedTargetMessage(entries []ebtypes.PutTargetsResultEntry) string {
	for _, entry := range entries {
		if entry.ErrorCode != nil {
			return aws.ToString(entry.ErrorCode) + ": " + aws.ToString(entry.ErrorMessage)
		}
	}
	return "target rejected"
}
