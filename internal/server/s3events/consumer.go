// Package s3events consumes the object-created notifications the upload
// bucket publishes to SQS and completes the matching uploads.
package s3events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/dmitrijs2005/bridgeupload/internal/common"
	"github.com/dmitrijs2005/bridgeupload/internal/logging"
	"github.com/dmitrijs2005/bridgeupload/internal/server/metrics"
)

const (
	maxMessages     = 10
	waitTimeSeconds = 20
	retryDelay      = time.Second
)

// QueueAPI is the part of *sqs.Client used by the consumer.
type QueueAPI interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Completer completes the upload stored under an object key.
type Completer interface {
	CompleteUploadFromStorageEvent(ctx context.Context, objectKey string) error
}

// Event is the subset of the S3 notification document we read.
type Event struct {
	Records []Record `json:"Records"`
	// Event is set on the s3:TestEvent sent when notifications are configured.
	Event string `json:"Event"`
}

type Record struct {
	EventName string `json:"eventName"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key string `json:"key"`
		} `json:"object"`
	} `json:"s3"`
}

// ParseEvent decodes an S3 notification body.
func ParseEvent(body string) (*Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return nil, fmt.Errorf("decode s3 event: %w", err)
	}
	if len(ev.Records) == 0 && ev.Event == "" {
		return nil, errors.New("decode s3 event: no records")
	}
	return &ev, nil
}

// ObjectKey returns the URL-decoded object key of the record.
func (r Record) ObjectKey() (string, error) {
	return url.QueryUnescape(r.S3.Object.Key)
}

// Consumer long-polls the notification queue. A message is deleted once all
// of its records were handled; a record whose upload does not exist counts
// as handled. Messages with a failed record stay for redelivery.
type Consumer struct {
	client    QueueAPI
	queueURL  string
	bucket    string
	completer Completer
	logger    logging.Logger
	metrics   *metrics.Metrics

	sleep func(ctx context.Context, d time.Duration) error
}

func NewConsumer(client QueueAPI, queueURL, bucket string, completer Completer, logger logging.Logger, mt *metrics.Metrics) *Consumer {
	return &Consumer{
		client:    client,
		queueURL:  queueURL,
		bucket:    bucket,
		completer: completer,
		logger:    logger.With("module", "s3events"),
		metrics:   mt,
		sleep:     sleepContext,
	}
}

// Run polls until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info(ctx, "Starting storage event consumer", "queue_url", c.queueURL)
	for {
		if err := c.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				c.logger.Info(ctx, "Stopping storage event consumer")
				return nil
			}
			c.logger.Error(ctx, "receive storage events failed", "error", err)
			if err := c.sleep(ctx, retryDelay); err != nil {
				c.logger.Info(ctx, "Stopping storage event consumer")
				return nil
			}
		}
	}
}

// PollOnce receives one batch and handles every message in it.
func (c *Consumer) PollOnce(ctx context.Context) error {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: maxMessages,
		WaitTimeSeconds:     waitTimeSeconds,
	})
	if err != nil {
		return err
	}

	for _, msg := range out.Messages {
		if c.handle(ctx, msg) {
			c.delete(ctx, msg)
		}
	}
	return nil
}

// handle reports whether msg can be deleted.
func (c *Consumer) handle(ctx context.Context, msg types.Message) bool {
	ev, err := ParseEvent(aws.ToString(msg.Body))
	if err != nil {
		c.logger.Error(ctx, "dropping malformed storage event", "message_id", aws.ToString(msg.MessageId), "error", err)
		c.observe("malformed")
		return true
	}

	done := true
	for _, rec := range ev.Records {
		if !strings.HasPrefix(rec.EventName, "ObjectCreated:") || (c.bucket != "" && rec.S3.Bucket.Name != c.bucket) {
			c.observe("ignored")
			continue
		}

		key, err := rec.ObjectKey()
		if err != nil {
			c.logger.Error(ctx, "dropping storage event with bad object key", "key", rec.S3.Object.Key, "error", err)
			c.observe("malformed")
			continue
		}

		err = c.completer.CompleteUploadFromStorageEvent(ctx, key)
		switch {
		case err == nil:
			c.observe("completed")
		case errors.Is(err, common.ErrorNotFound):
			c.logger.Warn(ctx, "storage event for unknown upload", "key", key)
			c.observe("not_found")
		default:
			c.logger.Error(ctx, "completing upload from storage event failed", "key", key, "error", err)
			c.observe("failed")
			done = false
		}
	}
	return done
}

func (c *Consumer) delete(ctx context.Context, msg types.Message) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		c.logger.Error(ctx, "delete storage event failed", "message_id", aws.ToString(msg.MessageId), "error", err)
	}
}

func (c *Consumer) observe(outcome string) {
	c.metrics.StorageEvents.WithLabelValues(outcome).Inc()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
