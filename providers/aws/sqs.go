package aws

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/yairfalse/sweeper/lifecycle"
	"github.com/yairfalse/sweeper/pkg/tags"
	"github.com/yairfalse/sweeper/types"
)

var queueActivityAttributes = []sqstypes.QueueAttributeName{
	sqstypes.QueueAttributeNameApproximateNumberOfMessages,
	sqstypes.QueueAttributeNameApproximateNumberOfMessagesNotVisible,
	sqstypes.QueueAttributeNameApproximateNumberOfMessagesDelayed,
	sqstypes.QueueAttributeNameCreatedTimestamp,
}

// Queues implements the sqs_inactive policy: queues holding no messages at all.
// The resource id is the queue URL.
type Queues struct {
	client SQSAPI
	region string
	now    func() time.Time
}

// NewQueues creates the SQS queue adapter
func NewQueues(client SQSAPI, region string, now func() time.Time) *Queues {
	return &Queues{client: client, region: region, now: now}
}

func (q *Queues) TagLookup(coll map[string]string, key string) string {
	return tags.Lookup(coll, key)
}

func (q *Queues) TagUpdate(coll map[string]string, key, value string) map[string]string {
	return tags.Set(coll, key, value)
}

// ListAllInstances discovers queues with no visible, in-flight or delayed messages.
// Busy queues are listed as in use when they carry an idle-day counter.
func (q *Queues) ListAllInstances(ctx context.Context) ([]types.Resource[map[string]string], error) {
	var resources []types.Resource[map[string]string]
	paginator := sqs.NewListQueuesPaginator(q.client, &sqs.ListQueuesInput{})

	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list SQS queues: %w", err)
		}

		for _, queueURL := range output.QueueUrls {
			attrs, err := q.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
				QueueUrl:       aws.String(queueURL),
				AttributeNames: queueActivityAttributes,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to get attributes of queue %s: %w", queueURL, err)
			}
			idle := queueIdle(attrs.Attributes)

			queueTags, err := q.client.ListQueueTags(ctx, &sqs.ListQueueTagsInput{QueueUrl: aws.String(queueURL)})
			if err != nil {
				return nil, fmt.Errorf("failed to list tags of queue %s: %w", queueURL, err)
			}
			if !idle && !hasCounter(queueTags.Tags) {
				continue
			}

			state := "idle"
			if !idle {
				state = "active"
			}
			resources = append(resources, types.Resource[map[string]string]{
				ID:        queueURL,
				Type:      "sqs_queue",
				Region:    q.region,
				Name:      queueName(queueURL),
				State:     state,
				Tags:      queueTags.Tags,
				CreatedAt: queueCreated(attrs.Attributes),
				InUse:     !idle,
			})
		}
	}

	return resources, nil
}

// DeleteResource deletes the queue
func (q *Queues) DeleteResource(ctx context.Context, resourceID string) error {
	if _, err := q.client.DeleteQueue(ctx, &sqs.DeleteQueueInput{QueueUrl: aws.String(resourceID)}); err != nil {
		return fmt.Errorf("failed to delete queue %s: %w", resourceID, err)
	}
	return nil
}

// UpdateResourceDayCountTag writes the counter tag on the queue
func (q *Queues) UpdateResourceDayCountTag(ctx context.Context, resourceID string, cleanupDays int, coll map[string]string) error {
	_, err := q.client.TagQueue(ctx, &sqs.TagQueueInput{
		QueueUrl: aws.String(resourceID),
		Tags:     map[string]string{lifecycle.DaysCountTag: lifecycle.FormatDaysCount(q.now(), cleanupDays)},
	})
	if err != nil {
		return fmt.Errorf("failed to tag queue %s: %w", resourceID, err)
	}
	return nil
}

func queueIdle(attrs map[string]string) bool {
	for _, name := range queueActivityAttributes[:3] {
		n, err := strconv.Atoi(attrs[string(name)])
		if err != nil || n != 0 {
			return false
		}
	}
	return true
}

func queueCreated(attrs map[string]string) *time.Time {
	secs, err := strconv.ParseInt(attrs[string(sqstypes.QueueAttributeNameCreatedTimestamp)], 10, 64)
	if err != nil {
		return nil
	}
	created := time.Unix(secs, 0).UTC()
	return &created
}

func queueName(queueURL string) string {
	if i := strings.LastIndex(queueURL, "/"); i >= 0 {
		return queueURL[i+1:]
	}
	return queueURL
}

var _ lifecycle.Provider[map[string]string] = (*Queues)(nil)
