package tabletctx

import (
	"context"

	"github.com/acksell/tabletconn/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// DialConfig describes how to reach the store. Zero fields fall back to the
// AWS SDK's default configuration chain.
type DialConfig struct {
	Region string
	// Endpoint overrides the service endpoint, e.g. a DynamoDB Local URL.
	Endpoint string

	// Static credentials. Used only when AccessKeyID is set.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// VerifyCredentials calls STS GetCallerIdentity before returning.
	VerifyCredentials bool
	STSEndpoint       string
}

// Dial builds a store client. Configuration and credential failures are
// reported as *StoreUnavailableError.
func Dial(ctx context.Context, cfg DialConfig) (*dynamodb.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, &StoreUnavailableError{Op: "load aws config", Err: err}
	}

	if cfg.VerifyCredentials {
		stsClient := sts.NewFromConfig(awsCfg, func(o *sts.Options) {
			if cfg.STSEndpoint != "" {
				o.BaseEndpoint = aws.String(cfg.STSEndpoint)
			}
		})
		if _, err := stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{}); err != nil {
			return nil, &StoreUnavailableError{Op: "verify credentials", Err: err}
		}
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// Open dials the store and binds desc to it.
func Open(ctx context.Context, cfg DialConfig, desc table.TableDescriptor, opts ...Option) (*Context, error) {
	client, err := Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(ctx, client, desc, opts...)
}
