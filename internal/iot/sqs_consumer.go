package iot

import (
	"context"
	"time"

	"campus_parking/internal/service"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog/log"
)

// SQSAPI is the slice of *sqs.Client the consumer uses.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// ScanHandler is satisfied by *service.GateService.
type ScanHandler interface {
	HandleScan(ctx context.Context, body string) error
}

type SQSConsumer struct {
	sqsClient  SQSAPI
	queueURL   string
	handler    ScanHandler
	retryDelay time.Duration
}

func NewSQSConsumer(client SQSAPI, queueURL string, handler ScanHandler) *SQSConsumer {
	return &SQSConsumer{
		sqsClient:  client,
		queueURL:   queueURL,
		handler:    handler,
		retryDelay: 5 * time.Second,
	}
}

// Start long-polls the scanner queue until ctx is cancelled.
func (c *SQSConsumer) Start(ctx context.Context) {
	log.Info().Str("queue_url", c.queueURL).Msg("scanner queue consumer started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scanner queue consumer stopped")
			return
		default:
		}

		if err := c.poll(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Error().Err(err).Msg("receiving from scanner queue failed")
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
			}
		}
	}
}

// poll receives one batch and processes it.
func (c *SQSConsumer) poll(ctx context.Context) error {
	result, err := c.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
		VisibilityTimeout:   60,
	})
	if err != nil {
		return err
	}
	if len(result.Messages) > 0 {
		log.Debug().Int("count", len(result.Messages)).Msg("scanner messages received")
	}

	for _, message := range result.Messages {
		msgID := aws.ToString(message.MessageId)
		if message.Body == nil {
			log.Warn().Str("message_id", msgID).Msg("empty scanner message, deleting")
			c.deleteMessage(ctx, message.ReceiptHandle)
			continue
		}

		err := c.handler.HandleScan(ctx, *message.Body)
		switch {
		case err == nil:
			c.deleteMessage(ctx, message.ReceiptHandle)
		case service.IsRetryable(err):
			// giữ lại message, SQS sẽ gửi lại sau visibility timeout
			log.Warn().Err(err).Str("message_id", msgID).Msg("scan failed, leaving message for redelivery")
		default:
			log.Warn().Err(err).Str("message_id", msgID).Str("code", string(service.ErrorCodeOf(err))).Msg("scan rejected, deleting message")
			c.deleteMessage(ctx, message.ReceiptHandle)
		}
	}
	return nil
}

func (c *SQSConsumer) deleteMessage(ctx context.Context, receiptHandle *string) {
	if receiptHandle == nil {
		log.Warn().Msg("missing receipt handle, cannot delete scanner message")
		return
	}
	_, err := c.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		log.Error().Err(err).Msg("deleting scanner message failed")
	}
}
