// Package notify delivers alerts raised by the lifecycle engine for resources
// approaching their deletion deadline.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog"
)

// Kind is the alert tier
type Kind string

const (
	KindResourceMail Kind = "resource_mail"
	KindAdmins       Kind = "admins"
)

// Alert is one notification about one resource
type Alert struct {
	Kind        Kind      `json:"kind"`
	Policy      string    `json:"policy"`
	Region      string    `json:"region"`
	Account     string    `json:"account,omitempty"`
	ResourceID  string    `json:"resource_id"`
	Name        string    `json:"name,omitempty"`
	Owner       string    `json:"owner,omitempty"`
	CleanupDays int       `json:"cleanup_days"`
	Deadline    int       `json:"deadline"`
	DaysLeft    int       `json:"days_left"`
	DryRun      bool      `json:"dry_run"`
	RaisedAt    time.Time `json:"raised_at"`
}

// Notifier delivers alerts
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a notifier that only logs
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, alert Alert) error {
	n.logger.Warn().
		Str("kind", string(alert.Kind)).
		Str("policy", alert.Policy).
		Str("region", alert.Region).
		Str("resource_id", alert.ResourceID).
		Str("owner", alert.Owner).
		Int("cleanup_days", alert.CleanupDays).
		Int("days_left", alert.DaysLeft).
		Bool("dry_run", alert.DryRun).
		Msg("resource scheduled for deletion")
	return nil
}

// SQSAPI is the subset of the SQS client used for alert delivery
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSNotifier publishes alerts as JSON messages to a queue consumed by the mailer
type SQSNotifier struct {
	client   SQSAPI
	queueURL string
}

// NewSQSNotifier creates an SQS notifier
func NewSQSNotifier(client SQSAPI, queueURL string) *SQSNotifier {
	return &SQSNotifier{client: client, queueURL: queueURL}
}

func (n *SQSNotifier) Notify(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	_, err = n.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(n.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(alert.Kind)),
			},
			"policy": {
				DataType:    aws.String("String"),
				StringValue: aws.String(alert.Policy),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("send alert for %s: %w", alert.ResourceID, err)
	}
	return nil
}

// Multi fans an alert out to every notifier and joins their errors
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Gate suppresses alerts raised in dry-run unless explicitly allowed
type Gate struct {
	next        Notifier
	alertDryRun bool
}

// NewGate wraps next
func NewGate(next Notifier, alertDryRun bool) *Gate {
	return &Gate{next: next, alertDryRun: alertDryRun}
}

func (g *Gate) Notify(ctx context.Context, alert Alert) error {
	if alert.DryRun && !g.alertDryRun {
		return nil
	}
	return g.next.Notify(ctx, alert)
}

// OwnerFromTags returns the User tag, falling back to Owner
func OwnerFromTags(tags map[string]string) string {
	if v := tags["User"]; v != "" {
		return v
	}
	return tags["Owner"]
}
