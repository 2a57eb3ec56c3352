package mainconfig

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/arteita/fretebot/internal/app/bootstrap"
	appconfig "github.com/arteita/fretebot/internal/config"
)

// LoadAWSConfig centralizes AWS SDK initialization so every binary shares the
// same LocalStack/production wiring.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, err
	}

	if endpoint := cfg.AWSEndpointOverride; endpoint != "" {
		awsCfg.EndpointResolverWithOptions = aws.EndpointResolverWithOptionsFunc(
			func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
				switch service {
				case sqs.ServiceID, s3.ServiceID, sesv2.ServiceID:
					return aws.Endpoint{
						URL:               endpoint,
						PartitionID:       "aws",
						SigningRegion:     cfg.AWSRegion,
						HostnameImmutable: true,
					}, nil
				default:
					return aws.Endpoint{}, &aws.EndpointNotFoundError{}
				}
			},
		)
	}

	return awsCfg, nil
}

// BuildClients creates the AWS service clients the configuration asks for.
// Clients for features that are not configured stay nil.
func BuildClients(awsCfg aws.Config, cfg *appconfig.Config) bootstrap.Clients {
	var clients bootstrap.Clients
	if cfg.AIProvider == "bedrock" || cfg.AIFallbackProvider == "bedrock" {
		clients.Bedrock = bedrockruntime.NewFromConfig(awsCfg)
	}
	if strings.TrimSpace(cfg.MediaArchiveBucket) != "" {
		clients.S3 = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = cfg.AWSEndpointOverride != ""
		})
	}
	if cfg.QueueBackend == "sqs" {
		clients.SQS = sqs.NewFromConfig(awsCfg)
	}
	if strings.TrimSpace(cfg.SESFromEmail) != "" {
		clients.SES = sesv2.NewFromConfig(awsCfg)
	}
	return clients
}

// NeedsAWS reports whether any configured feature talks to AWS.
func NeedsAWS(cfg *appconfig.Config) bool {
	return cfg.AIProvider == "bedrock" ||
		cfg.AIFallbackProvider == "bedrock" ||
		strings.TrimSpace(cfg.MediaArchiveBucket) != "" ||
		cfg.QueueBackend == "sqs" ||
		strings.TrimSpace(cfg.SESFromEmail) != ""
}
