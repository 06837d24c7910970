// Package channel implements the delivery channels feeding a relay queue. Each
// variant owns its own queue.Manager and adds the broker wiring in front of it.
package channel

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/drblury/statusrelay/internal/runtime/config"
	errspkg "github.com/drblury/statusrelay/internal/runtime/errors"
	"github.com/drblury/statusrelay/internal/runtime/queue"
)

// Adapter provisions the instance queue for one delivery channel and decodes
// the envelopes that channel produces.
type Adapter interface {
	Type() string
	Bootstrap(ctx context.Context, instanceID string) (string, error)
	Teardown(ctx context.Context) error
	Receive(ctx context.Context, queueURL string) ([]types.Message, error)
	Delete(ctx context.Context, queueURL, receiptHandle string) error
	ParseMessage(msg types.Message) (Record, error)
}

// Clients groups the AWS collaborators an adapter may need. Only the clients
// of the selected channel are required.
type Clients struct {
	SQS         queue.SQSAPI
	CloudWatch  queue.CloudWatchAPI
	SNS         SNSAPI
	EventBridge EventBridgeAPI
}

// SettingsFromConfig maps the relay configuration onto queue settings.
func SettingsFromConfig(conf *config.Config) queue.Settings {
	return queue.Settings{
		WaitTimeSeconds:          int32(conf.WaitTimeSeconds),
		VisibilityTimeoutSeconds: int32(conf.VisibilityTimeoutSeconds),
		MaxReceiveCount:          int32(conf.MaxReceiveCount),
		MaxNumberOfMessages:      int32(conf.MaxNumberOfMessages),
		AlarmPeriodSeconds:       int32(conf.DLQAlarmPeriodSeconds),
	}
}

// New selects the adapter for the configured channel type. Unknown channel
// types fall back to direct.
func New(conf *config.Config, clients Clients) (Adapter, error) {
	if conf == nil {
		return nil, fmt.Errorf("config is required")
	}
	if clients.SQS == nil || clients.CloudWatch == nil {
		return nil, fmt.Errorf("%w: sqs and cloudwatch clients", errspkg.ErrAdapterRequired)
	}
	manager := queue.NewManager(clients.SQS, clients.CloudWatch, SettingsFromConfig(conf))

	switch conf.NormalizedChannelType() {
	case config.ChannelSNS:
		if clients.SNS == nil {
			return nil, fmt.Errorf("%w: sns client", errspkg.ErrAdapterRequired)
		}
		return NewTopic(manager, clients.SNS, conf.TopicARN), nil
	case config.ChannelEventBridge:
		if clients.EventBridge == nil {
			return nil, fmt.Errorf("%w: eventbridge client", errspkg.ErrAdapterRequired)
		}
		return NewEventBus(manager, clients.EventBridge, conf.EventBusName, conf.EventTimestampField), nil
	default:
		return NewDirect(manager), nil
	}
}
