// Package notify forwards configuration completion events to an SNS topic.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"warehouse-wizard/internal/events"
)

const eventType = "warehouse.configuration.completed"

// snsAPI is the minimal SNS interface required by Forwarder.
// *sns.Client satisfies it.
type snsAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Forwarder struct {
	api      snsAPI
	topicARN string
	logger   *slog.Logger
}

func New(api snsAPI, topicARN string, logger *slog.Logger) (*Forwarder, error) {
	if api == nil {
		return nil, errors.New("notify: api must not be nil")
	}
	topicARN = strings.TrimSpace(topicARN)
	if topicARN == "" {
		return nil, errors.New("notify: topic arn must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{api: api, topicARN: topicARN, logger: logger}, nil
}

// Forward publishes c to the topic.
func (f *Forwarder) Forward(ctx context.Context, c events.Completion) error {
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}
	out, err := f.api.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(f.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"eventType":     {DataType: aws.String("String"), StringValue: aws.String(eventType)},
			"complete":      {DataType: aws.String("String"), StringValue: aws.String(strconv.FormatBool(c.Attributes != nil && c.Attributes.Complete()))},
			"hasAttributes": {DataType: aws.String("String"), StringValue: aws.String(strconv.FormatBool(c.Attributes != nil))},
		},
	})
	if err != nil {
		return fmt.Errorf("notify: publish: %w", err)
	}
	f.logger.Info("completion forwarded", "session_id", c.SessionID, "message_id", aws.ToString(out.MessageId))
	return nil
}

// Listen is an events.Listener. Failures are logged only; the conversation
// has already completed.
func (f *Forwarder) Listen(ctx context.Context, c events.Completion) {
	if err := f.Forward(ctx, c); err != nil {
		f.logger.Error("failed to forward completion", "session_id", c.SessionID, "err", err)
	}
}
