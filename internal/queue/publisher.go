// Package queue publishes tier lifecycle events to SQS for downstream
// consumers (storefront cache invalidation, merchant notifications).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"dealbadge/internal/config"
	"dealbadge/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Message attribute names set on every tier event.
const (
	AttrEventType  = "event_type"
	AttrShopDomain = "shop_domain"
)

// TierEventPublisher sends TierEvents to a single SQS queue. It satisfies
// entitlement.EventPublisher.
type TierEventPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewTierEventPublisher creates a publisher for the configured tier events
// queue.
func NewTierEventPublisher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *TierEventPublisher {
	return &TierEventPublisher{
		client:   client,
		queueURL: awsCfg.TierEventsQueueURL,
		logger:   logger,
	}
}

// Publish serializes event and sends it. The event type and shop travel as
// message attributes so consumers can filter without decoding the body.
func (p *TierEventPublisher) Publish(ctx context.Context, event types.TierEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal TierEvent: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			AttrEventType: {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(event.Type)),
			},
			AttrShopDomain: {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.ShopDomain),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send TierEvent to %s: %w", p.queueURL, err)
	}

	p.logger.DebugContext(ctx, "tier event published",
		"event_id", event.EventID,
		"type", string(event.Type),
		"shop", event.ShopDomain,
	)
	return nil
}
