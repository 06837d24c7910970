package transport

import (
	"context"
	"fmt"
	"net/url"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	amazonsns "github.com/aws/aws-sdk-go-v2/service/sns"
	amazonsqs "github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/drblury/statusrelay/internal/runtime/config"
)

var AWSDefaultConfigLoader = awsconfig.LoadDefaultConfig

// Clients bundles the AWS service clients used by the relay and the publisher.
type Clients struct {
	SQS         *amazonsqs.Client
	CloudWatch  *cloudwatch.Client
	SNS         *amazonsns.Client
	EventBridge *eventbridge.Client
}

// NewClients builds every service client from a single AWS config.
func NewClients(cfg aws.Config) *Clients {
	return &Clients{
		SQS:         amazonsqs.NewFromConfig(cfg),
		CloudWatch:  cloudwatch.NewFromConfig(cfg),
		SNS:         amazonsns.NewFromConfig(cfg),
		EventBridge: eventbridge.NewFromConfig(cfg),
	}
}

// LoadAWSConfig resolves the AWS config from the default chain, applying the
// region, static credentials and custom endpoint from conf when present.
func LoadAWSConfig(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (aws.Config, error) {
	endpoint, err := awsEndpointURL(conf)
	if err != nil {
		logger.Error("Failed to parse AWS endpoint", err, watermill.LogFields{"endpoint": conf.GetAWSEndpoint()})
		return aws.Config{}, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if conf != nil {
		if conf.GetAWSRegion() != "" {
			logger.Info("Setting AWS region from config", watermill.LogFields{"region": conf.GetAWSRegion()})
			opts = append(opts, awsconfig.WithRegion(conf.GetAWSRegion()))
		}
		if conf.GetAWSAccessKeyID() != "" && conf.GetAWSSecretAccessKey() != "" {
			logger.Info("Using static AWS credentials from config", watermill.LogFields{})
			opts = append(opts, awsconfig.WithCredentialsProvider(staticCredentialsProvider(conf.GetAWSAccessKeyID(), conf.GetAWSSecretAccessKey())))
		}
	}

	cfg, err := AWSDefaultConfigLoader(ctx, opts...)
	if err != nil {
		fields := watermill.LogFields{}
		if conf != nil && conf.GetAWSRegion() != "" {
			fields["requested_region"] = conf.GetAWSRegion()
		}
		logger.Error("Failed to load AWS default config", err, fields)
		return aws.Config{}, err
	}
	// Ensure region is set even if the loader ignores options (e.g. in tests)
	if conf != nil && conf.GetAWSRegion() != "" {
		cfg.Region = conf.GetAWSRegion()
	}
	if endpoint != nil {
		cfg.BaseEndpoint = aws.String(endpoint.String())
	}

	logger.Info("Created AWS config", watermill.LogFields{
		"region":          cfg.Region,
		"custom_endpoint": hasCustomEndpoint(&cfg),
	})
	return cfg, nil
}

func awsEndpointURL(conf *config.Config) (*url.URL, error) {
	if conf == nil || conf.GetAWSEndpoint() == "" {
		return nil, nil
	}

	parsedURL, err := url.Parse(conf.GetAWSEndpoint())
	if err != nil {
		return nil, fmt.Errorf("failed to parse AWS endpoint: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("failed to parse AWS endpoint: %q needs a scheme and host", conf.GetAWSEndpoint())
	}

	return parsedURL, nil
}

func hasCustomEndpoint(cfg *aws.Config) bool {
	return cfg != nil && cfg.BaseEndpoint != nil && *cfg.BaseEndpoint != ""
}

func staticCredentialsProvider(accessKeyID, secretAccessKey string) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
		}, nil
	})
}
