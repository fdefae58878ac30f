// Package awsclient builds the SDK clients the cache borrows for its
// lifetime. Credential plumbing lives here so the cache core only ever sees
// capability objects.
package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config selects region, an optional endpoint override (e.g. LocalStack)
// and optional static credentials.
type Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string

	// WithS3 also constructs an S3 client for the overflow extension.
	WithS3 bool
}

// Clients bundles the constructed store clients.
type Clients struct {
	DynamoDB *dynamodb.Client
	S3       *s3.Client
}

// New loads the AWS configuration and constructs the clients. Static
// credentials, when both halves are present, override the default chain.
func New(ctx context.Context, cfg Config) (*Clients, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	clients := &Clients{}
	var dynamoOpts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		dynamoOpts = append(dynamoOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	clients.DynamoDB = dynamodb.NewFromConfig(awsCfg, dynamoOpts...)

	if cfg.WithS3 {
		var s3Opts []func(*s3.Options)
		if cfg.Endpoint != "" {
			s3Opts = append(s3Opts, func(o *s3.Options) {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
				// LocalStack-style endpoints do not resolve bucket
				// subdomains.
				o.UsePathStyle = true
			})
		}
		clients.S3 = s3.NewFromConfig(awsCfg, s3Opts...)
	}
	return clients, nil
}
