// Package app builds the shared infrastructure clients the commands
// wire their components with.
package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// AWSClientParams locate the AWS account the GPU instance and the video
// bucket live in. AccessKeyID and SecretAccessKey are optional; when
// empty the default credential chain (environment, shared config,
// instance role) is used.
type AWSClientParams struct {
	Region          string // required
	AccessKeyID     string
	SecretAccessKey string
}

func newAWSConfig(ctx context.Context, params *AWSClientParams) (aws.Config, error) {
	optFns := []func(*config.LoadOptions) error{
		config.WithRegion(params.Region),
	}
	if params.AccessKeyID != "" {
		optFns = append(optFns, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(params.AccessKeyID, params.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("app: new aws config: %w", err)
	}
	return cfg, nil
}

// NewEC2Client creates the client the GPU orchestrator drives the
// shared instance with.
func NewEC2Client(ctx context.Context, params *AWSClientParams) (*ec2.Client, error) {
	cfg, err := newAWSConfig(ctx, params)
	if err != nil {
		return nil, err
	}
	return ec2.NewFromConfig(cfg), nil
}

// NewS3Client creates the client the video mirror transfers with.
func NewS3Client(ctx context.Context, params *AWSClientParams) (*s3.Client, error) {
	cfg, err := newAWSConfig(ctx, params)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg), nil
}
