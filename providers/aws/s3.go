package aws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/yairfalse/sweeper/lifecycle"
	"github.com/yairfalse/sweeper/pkg/tags"
	"github.com/yairfalse/sweeper/types"
)

// Buckets implements the s3_inactive policy: empty buckets located in the pass region
type Buckets struct {
	client S3API
	region string
	now    func() time.Time
}

// NewBuckets creates the S3 bucket adapter
func NewBuckets(client S3API, region string, now func() time.Time) *Buckets {
	return &Buckets{client: client, region: region, now: now}
}

func (b *Buckets) TagLookup(coll []s3types.Tag, key string) string {
	return tags.Lookup(coll, key)
}

func (b *Buckets) TagUpdate(coll []s3types.Tag, key, value string) []s3types.Tag {
	return tags.Set(coll, key, value)
}

// ListAllInstances discovers buckets in this region holding no objects.
// Buckets that were written to are listed as in use when they carry an idle-day counter.
func (b *Buckets) ListAllInstances(ctx context.Context) ([]types.Resource[[]s3types.Tag], error) {
	output, err := b.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to list S3 buckets: %w", err)
	}

	var resources []types.Resource[[]s3types.Tag]
	for _, bucket := range output.Buckets {
		name := aws.ToString(bucket.Name)

		region, err := b.bucketRegion(ctx, name)
		if err != nil {
			return nil, err
		}
		if region != b.region {
			continue
		}

		objects, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:  bucket.Name,
			MaxKeys: aws.Int32(1),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in bucket %s: %w", name, err)
		}
		empty := aws.ToInt32(objects.KeyCount) == 0 && len(objects.Contents) == 0

		bucketTags, err := b.bucketTags(ctx, name)
		if err != nil {
			return nil, err
		}
		if !empty && !hasCounter(bucketTags) {
			continue
		}

		state := "empty"
		if !empty {
			state = "not_empty"
		}
		resources = append(resources, types.Resource[[]s3types.Tag]{
			ID:        name,
			Type:      "s3_bucket",
			Region:    region,
			Name:      name,
			State:     state,
			Tags:      bucketTags,
			CreatedAt: bucket.CreationDate,
			InUse:     !empty,
		})
	}

	return resources, nil
}

func (b *Buckets) bucketRegion(ctx context.Context, name string) (string, error) {
	location, err := b.client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: aws.String(name)})
	if err != nil {
		return "", fmt.Errorf("failed to get location of bucket %s: %w", name, err)
	}

	switch constraint := string(location.LocationConstraint); constraint {
	case "":
		return "us-east-1", nil
	case "EU":
		return "eu-west-1", nil
	default:
		return constraint, nil
	}
}

func (b *Buckets) bucketTags(ctx context.Context, name string) ([]s3types.Tag, error) {
	output, err := b.client.GetBucketTagging(ctx, &s3.GetBucketTaggingInput{Bucket: aws.String(name)})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchTagSet" {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tags of bucket %s: %w", name, err)
	}
	return output.TagSet, nil
}

// DeleteResource deletes the bucket
func (b *Buckets) DeleteResource(ctx context.Context, resourceID string) error {
	if _, err := b.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(resourceID)}); err != nil {
		return fmt.Errorf("failed to delete bucket %s: %w", resourceID, err)
	}
	return nil
}

// UpdateResourceDayCountTag replaces the whole tag set, so the counter is merged into coll first
func (b *Buckets) UpdateResourceDayCountTag(ctx context.Context, resourceID string, cleanupDays int, coll []s3types.Tag) error {
	updated := b.TagUpdate(coll, lifecycle.DaysCountTag, lifecycle.FormatDaysCount(b.now(), cleanupDays))
	_, err := b.client.PutBucketTagging(ctx, &s3.PutBucketTaggingInput{
		Bucket:  aws.String(resourceID),
		Tagging: &s3types.Tagging{TagSet: updated},
	})
	if err != nil {
		return fmt.Errorf("failed to tag bucket %s: %w", resourceID, err)
	}
	return nil
}

var _ lifecycle.Provider[[]s3types.Tag] = (*Buckets)(nil)
