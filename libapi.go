package statusrelay

import (
	"context"

	"github.com/spf13/pflag"

	runtimepkg "github.com/drblury/statusrelay/internal/runtime"
	"github.com/drblury/statusrelay/internal/runtime/channel"
	configpkg "github.com/drblury/statusrelay/internal/runtime/config"
	errspkg "github.com/drblury/statusrelay/internal/runtime/errors"
	"github.com/drblury/statusrelay/internal/runtime/identity"
	idspkg "github.com/drblury/statusrelay/internal/runtime/ids"
	jsoncodec "github.com/drblury/statusrelay/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/statusrelay/internal/runtime/logging"
	transportpkg "github.com/drblury/statusrelay/internal/runtime/transport"
)

type (
	Config       = configpkg.Config
	Relay        = runtimepkg.Relay
	Dependencies = runtimepkg.Dependencies
	State        = runtimepkg.State
	Counters     = runtimepkg.Counters
	Phase        = runtimepkg.Phase

	Adapter = channel.Adapter
	Record  = channel.Record

	Resolver = identity.Resolver

	StatusPublisher = transportpkg.StatusPublisher
	Notification    = transportpkg.Notification

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	InfraError            = errspkg.InfraError
	DecodeError           = errspkg.DecodeError
	ConfigValidationError = errspkg.ConfigValidationError
)

var (
	NewRelay       = runtimepkg.NewRelay
	LoadConfig     = configpkg.Load
	RegisterFlags  = configpkg.RegisterFlags
	ValidateConfig = configpkg.ValidateConfig

	NewJSONLogger        = loggingpkg.NewJSONLogger
	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger

	NewNotification = transportpkg.NewNotification

	LocalIdentity = identity.Local
	CreateULID    = idspkg.CreateULID

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrAdapterRequired   = errspkg.ErrAdapterRequired
	ErrInstanceIdentity  = errspkg.ErrInstanceIdentity
	ErrMalformedEnvelope = errspkg.ErrMalformedEnvelope
	ErrMissingField      = errspkg.ErrMissingField
	ErrNotBootstrapped   = errspkg.ErrNotBootstrapped
)

// Channel type selector values.
const (
	ChannelDirect      = configpkg.ChannelDirect
	ChannelSNS         = configpkg.ChannelSNS
	ChannelEventBridge = configpkg.ChannelEventBridge
)

const (
	PhaseOnline            = runtimepkg.PhaseOnline
	PhaseDraining          = runtimepkg.PhaseDraining
	PhaseResourcesReleased = runtimepkg.PhaseResourcesReleased
	PhaseExited            = runtimepkg.PhaseExited
)

// NewAWSRelay loads the AWS configuration, builds the channel adapter selected
// by conf and returns a Relay ready to Run. Fields left nil in deps get their
// production defaults; a non-nil deps.Adapter skips the AWS setup entirely.
func NewAWSRelay(ctx context.Context, conf *Config, logger ServiceLogger, deps Dependencies) (*Relay, error) {
	if err := ValidateConfig(conf); err != nil {
		return nil, err
	}
	if deps.Adapter == nil {
		cfg, err := transportpkg.LoadAWSConfig(ctx, conf, loggingpkg.NewWatermillAdapter(logger))
		if err != nil {
			return nil, err
		}
		clients := transportpkg.NewClients(cfg)
		adapter, err := channel.New(conf, channel.Clients{
			SQS:         clients.SQS,
			CloudWatch:  clients.CloudWatch,
			SNS:         clients.SNS,
			EventBridge: clients.EventBridge,
		})
		if err != nil {
			return nil, err
		}
		deps.Adapter = adapter
	}
	return NewRelay(conf, logger, deps)
}

// NewStatusPublisher returns a publisher for the channel selected by conf.
// queueName is only used by the direct channel.
func NewStatusPublisher(ctx context.Context, conf *Config, queueName string, logger ServiceLogger) (StatusPublisher, error) {
	cfg, err := transportpkg.LoadAWSConfig(ctx, conf, loggingpkg.NewWatermillAdapter(logger))
	if err != nil {
		return nil, err
	}
	clients := transportpkg.NewClients(cfg)
	return transportpkg.NewStatusPublisher(conf, cfg, clients.EventBridge, queueName, loggingpkg.NewWatermillAdapter(logger))
}

// FlagSet returns a flag set with the relay flags registered.
func FlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	RegisterFlags(fs)
	return fs
}
