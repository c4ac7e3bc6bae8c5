package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/yairfalse/sweeper/providers"
)

func init() {
	providers.Register(providers.Registration{
		Name:        "unattached_volume",
		Description: "EBS volumes in state available",
		Factory:     newVolumesPass,
	})
	providers.Register(providers.Registration{
		Name:        "ip_unattached",
		Description: "Elastic IPs not associated with an instance or interface",
		Factory:     newAddressesPass,
	})
	providers.Register(providers.Registration{
		Name:        "ec2_stop",
		Description: "EC2 instances left in state stopped",
		Factory:     newInstancesPass,
	})
	providers.Register(providers.Registration{
		Name:        "empty_roles",
		Description: "IAM roles without managed or inline policies",
		Global:      true,
		Factory:     newRolesPass,
	})
	providers.Register(providers.Registration{
		Name:        "s3_inactive",
		Description: "S3 buckets holding no objects",
		Factory:     newBucketsPass,
	})
	providers.Register(providers.Registration{
		Name:        "sqs_inactive",
		Description: "SQS queues with no visible, in-flight or delayed messages",
		Factory:     newQueuesPass,
	})
}

// LoadConfig loads the shared AWS configuration for one region
func LoadConfig(ctx context.Context, region, profile string) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

func newVolumesPass(ctx context.Context, cfg providers.Config) (providers.Pass, error) {
	awsCfg, err := LoadConfig(ctx, cfg.Region, cfg.Profile)
	if err != nil {
		return nil, err
	}
	adapter := NewVolumes(ec2.NewFromConfig(awsCfg), cfg.Region, cfg.Clock())
	return providers.NewPass[[]ec2types.Tag](adapter, cfg), nil
}

func newAddressesPass(ctx context.Context, cfg providers.Config) (providers.Pass, error) {
	awsCfg, err := LoadConfig(ctx, cfg.Region, cfg.Profile)
	if err != nil {
		return nil, err
	}
	adapter := NewAddresses(ec2.NewFromConfig(awsCfg), cfg.Region, cfg.Clock())
	return providers.NewPass[[]ec2types.Tag](adapter, cfg), nil
}

func newInstancesPass(ctx context.Context, cfg providers.Config) (providers.Pass, error) {
	awsCfg, err := LoadConfig(ctx, cfg.Region, cfg.Profile)
	if err != nil {
		return nil, err
	}
	adapter := NewInstances(ec2.NewFromConfig(awsCfg), cfg.Region, cfg.Clock())
	return providers.NewPass[[]ec2types.Tag](adapter, cfg), nil
}

func newRolesPass(ctx context.Context, cfg providers.Config) (providers.Pass, error) {
	awsCfg, err := LoadConfig(ctx, cfg.Region, cfg.Profile)
	if err != nil {
		return nil, err
	}
	adapter := NewRoles(iam.NewFromConfig(awsCfg), cfg.Clock())
	return providers.NewPass[[]iamtypes.Tag](adapter, cfg), nil
}

func newBucketsPass(ctx context.Context, cfg providers.Config) (providers.Pass, error) {
	awsCfg, err := LoadConfig(ctx, cfg.Region, cfg.Profile)
	if err != nil {
		return nil, err
	}
	adapter := NewBuckets(s3.NewFromConfig(awsCfg), cfg.Region, cfg.Clock())
	return providers.NewPass[[]s3types.Tag](adapter, cfg), nil
}

func newQueuesPass(ctx context.Context, cfg providers.Config) (providers.Pass, error) {
	awsCfg, err := LoadConfig(ctx, cfg.Region, cfg.Profile)
	if err != nil {
		return nil, err
	}
	adapter := NewQueues(sqs.NewFromConfig(awsCfg), cfg.Region, cfg.Clock())
	return providers.NewPass[map[string]string](adapter, cfg), nil
}
