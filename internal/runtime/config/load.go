package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	errspkg "github.com/drblury/statusrelay/internal/runtime/errors"
)

// Environment keys. They double as keys in an optional config file.
const (
	KeyChannelType          = "CHANNEL_TYPE"
	KeyWaitTimeSeconds      = "SQS_RECEIVE_MESSAGE_WAIT_SECONDS"
	KeyVisibilityTimeout    = "SQS_VISIBILITY_TIMEOUT_SECONDS"
	KeyMaxReceiveCount      = "SQS_MAX_RECEIVE_COUNT"
	KeyMaxNumberOfMessages  = "SQS_MAX_NUMBER_OF_MESSAGES"
	KeyPollErrorDelayMillis = "SQS_POLL_ERROR_DELAY_MILLIS"
	KeyStatsPrintMillis     = "STATS_PRINT_MILLIS"
	KeyGracefulShutdown     = "GRACEFUL_SHUTDOWN_MILLIS"
	KeyTeardownTimeout      = "TEARDOWN_TIMEOUT_SECONDS"
	KeyAlarmPeriodSeconds   = "DLQ_ALARM_PERIOD_SECONDS"
	KeyTopicARN             = "STATUS_CHANGE_SNS_ARN"
	KeyEventBusName         = "STATUS_CHANGE_EVENT_BUS_NAME"
	KeyEventTimestampField  = "EVENT_BUS_TIMESTAMP_FIELD"
	KeyMetadataURI          = "ECS_CONTAINER_METADATA_URI_V4"
	KeyInstanceID           = "INSTANCE_ID"
	KeyHTTPPort             = "HTTP_PORT"
	KeyMetricsEnabled       = "METRICS_ENABLED"
	KeyAWSRegion            = "AWS_REGION"
	KeyAWSEndpoint          = "AWS_ENDPOINT_URL"
	KeyAWSAccessKeyID       = "AWS_ACCESS_KEY_ID"
	KeyAWSSecretAccessKey   = "AWS_SECRET_ACCESS_KEY"
	KeyLogLevel             = "LOG_LEVEL"
)

var defaults = map[string]any{
	KeyChannelType:          ChannelDirect,
	KeyWaitTimeSeconds:      20,
	KeyVisibilityTimeout:    30,
	KeyMaxReceiveCount:      10,
	KeyMaxNumberOfMessages:  10,
	KeyPollErrorDelayMillis: 1000,
	KeyStatsPrintMillis:     1000,
	KeyGracefulShutdown:     6000,
	KeyTeardownTimeout:      60,
	KeyAlarmPeriodSeconds:   10,
	KeyEventTimestampField:  "time",
	KeyHTTPPort:             80,
	KeyMetricsEnabled:       false,
	KeyLogLevel:             "info",
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"channel-type": KeyChannelType,
	"instance-id":  KeyInstanceID,
	"http-port":    KeyHTTPPort,
	"log-level":    KeyLogLevel,
}

// RegisterFlags adds the flags understood by Load to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "optional configuration file (yaml, json, toml or env)")
	fs.String("channel-type", "", "delivery channel: sns, ebrdg or direct")
	fs.String("instance-id", "", "static instance identity, skips the metadata lookup")
	fs.Int("http-port", 0, "status server port")
	fs.String("log-level", "", "trace, debug, info, warn or error")
}

// Load reads the configuration from defaults, an optional config file, the
// process environment, and explicitly set flags, in increasing priority.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if fs != nil {
		if path, err := fs.GetString("config"); err == nil && path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
		for name, key := range flagKeys {
			flag := fs.Lookup(name)
			if flag == nil || !flag.Changed {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	return FromViper(v)
}

// FromViper builds and validates a Config from an already populated viper
// instance. Values that cannot be parsed are reported alongside validation
// problems.
func FromViper(v *viper.Viper) (*Config, error) {
	p := &parser{v: v}

	cfg := &Config{
		ChannelType:              p.str(KeyChannelType),
		WaitTimeSeconds:          p.integer(KeyWaitTimeSeconds),
		VisibilityTimeoutSeconds: p.integer(KeyVisibilityTimeout),
		MaxReceiveCount:          p.integer(KeyMaxReceiveCount),
		MaxNumberOfMessages:      p.integer(KeyMaxNumberOfMessages),
		PollErrorDelay:           p.millis(KeyPollErrorDelayMillis),
		DLQAlarmPeriodSeconds:    p.integer(KeyAlarmPeriodSeconds),
		StatsInterval:            p.millis(KeyStatsPrintMillis),
		GracePeriod:              p.millis(KeyGracefulShutdown),
		TeardownTimeout:          time.Duration(p.integer(KeyTeardownTimeout)) * time.Second,
		TopicARN:                 p.str(KeyTopicARN),
		EventBusName:             p.str(KeyEventBusName),
		EventTimestampField:      p.str(KeyEventTimestampField),
		InstanceID:               p.str(KeyInstanceID),
		MetadataURI:              p.str(KeyMetadataURI),
		HTTPPort:                 p.integer(KeyHTTPPort),
		MetricsEnabled:           p.boolean(KeyMetricsEnabled),
		AWSRegion:                p.str(KeyAWSRegion),
		AWSEndpoint:              p.str(KeyAWSEndpoint),
		AWSAccessKeyID:           p.str(KeyAWSAccessKeyID),
		AWSSecretAccessKey:       p.str(KeyAWSSecretAccessKey),
		LogLevel:                 p.str(KeyLogLevel),
	}

	if len(p.errs) > 0 {
		return nil, errspkg.NewConfigValidationError(errors.Join(p.errs...))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type parser struct {
	v    *viper.Viper
	errs []error
}

func (p *parser) str(key string) string {
	s, err := cast.ToStringE(p.v.Get(key))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
	}
	return s
}

func (p *parser) integer(key string) int {
	n, err := cast.ToIntE(p.v.Get(key))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
	}
	return n
}

func (p *parser) millis(key string) time.Duration {
	return time.Duration(p.integer(key)) * time.Millisecond
}

func (p *parser) boolean(key string) bool {
	b, err := cast.ToBoolE(p.v.Get(key))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
	}
	return b
}
