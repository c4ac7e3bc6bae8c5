package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSQS struct {
	SendMessageFunc func(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

func (m *mockSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	return m.SendMessageFunc(ctx, params, optFns...)
}

type recorder struct {
	alerts []Alert
	err    error
}

func (r *recorder) Notify(ctx context.Context, alert Alert) error {
	r.alerts = append(r.alerts, alert)
	return r.err
}

func TestSQSNotifier_SendsJSON(t *testing.T) {
	var got *sqs.SendMessageInput
	client := &mockSQS{
		SendMessageFunc: func(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
			got = params
			return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
		},
	}

	n := NewSQSNotifier(client, "https://sqs.us-east-1.amazonaws.com/123/alerts")
	alert := Alert{Kind: KindResourceMail, Policy: "ec2_stop", ResourceID: "i-1", Owner: "alice", CleanupDays: 3, Deadline: 7, DaysLeft: 4}
	require.NoError(t, n.Notify(context.Background(), alert))

	require.NotNil(t, got)
	assert.Equal(t, "https://sqs.us-east-1.amazonaws.com/123/alerts", aws.ToString(got.QueueUrl))
	assert.Equal(t, "resource_mail", aws.ToString(got.MessageAttributes["kind"].StringValue))

	var decoded Alert
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(got.MessageBody)), &decoded))
	assert.Equal(t, alert, decoded)
}

func TestSQSNotifier_Error(t *testing.T) {
	client := &mockSQS{
		SendMessageFunc: func(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
			return nil, errors.New("queue does not exist")
		},
	}
	err := NewSQSNotifier(client, "q").Notify(context.Background(), Alert{ResourceID: "i-1"})
	assert.ErrorContains(t, err, "send alert for i-1")
}

func TestMulti_JoinsErrors(t *testing.T) {
	ok := &recorder{}
	failing := &recorder{err: errors.New("down")}

	err := Multi{failing, ok}.Notify(context.Background(), Alert{ResourceID: "x"})
	assert.ErrorContains(t, err, "down")
	assert.Len(t, ok.alerts, 1, "later notifiers still run")
}

func TestGate_DryRun(t *testing.T) {
	next := &recorder{}

	require.NoError(t, NewGate(next, false).Notify(context.Background(), Alert{DryRun: true}))
	assert.Empty(t, next.alerts)

	require.NoError(t, NewGate(next, false).Notify(context.Background(), Alert{DryRun: false}))
	assert.Len(t, next.alerts, 1)

	require.NoError(t, NewGate(next, true).Notify(context.Background(), Alert{DryRun: true}))
	assert.Len(t, next.alerts, 2)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(zerolog.New(&buf))
	require.NoError(t, n.Notify(context.Background(), Alert{Kind: KindAdmins, ResourceID: "vol-1"}))
	assert.Contains(t, buf.String(), `"kind":"admins"`)
	assert.Contains(t, buf.String(), `"resource_id":"vol-1"`)
}

func TestOwnerFromTags(t *testing.T) {
	assert.Equal(t, "bob", OwnerFromTags(map[string]string{"User": "bob", "Owner": "alice"}))
	assert.Equal(t, "alice", OwnerFromTags(map[string]string{"Owner": "alice"}))
	assert.Equal(t, "", OwnerFromTags(nil))
}
