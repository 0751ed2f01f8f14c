package hits

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Consumer drains the hits queue into the store. Messages that fail to
// decode are deleted (they will never improve); messages that fail to
// persist are left on the queue for redelivery, which is why inserts
// must be idempotent on the record id.
type Consumer struct {
	sqsClient *sqs.Client
	queueURL  string
	writer    Writer
	forwarder *Forwarder
	done      chan struct{}
}

func NewConsumer(sqsClient *sqs.Client, queueURL string, writer Writer, forwarder *Forwarder) *Consumer {
	return &Consumer{
		sqsClient: sqsClient,
		queueURL:  queueURL,
		writer:    writer,
		forwarder: forwarder,
		done:      make(chan struct{}),
	}
}

func (c *Consumer) Start(ctx context.Context) {
	log.Printf("[Hits] SQS consumer started (queue=%s)", c.queueURL)
	go c.poll(ctx)
}

func (c *Consumer) Stop() {
	close(c.done)
}

func (c *Consumer) poll(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		out, err := c.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Hits] SQS receive error: %v", err)
			time.Sleep(5 * time.Second)
			continue
		}

		for _, msg := range out.Messages {
			var qm queueMessage
			if err := json.Unmarshal([]byte(*msg.Body), &qm); err != nil {
				log.Printf("[Hits] SQS bad message: %v", err)
				c.deleteMessage(ctx, msg.ReceiptHandle)
				continue
			}

			if err := c.process(ctx, qm); err != nil {
				log.Printf("[Hits] SQS process error (%s): %v", qm.Kind, err)
				continue
			}

			c.deleteMessage(ctx, msg.ReceiptHandle)
		}
	}
}

func (c *Consumer) deleteMessage(ctx context.Context, handle *string) {
	c.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	})
}

func (c *Consumer) process(ctx context.Context, qm queueMessage) error {
	switch qm.Kind {
	case kindHit:
		if qm.Hit == nil {
			return nil
		}
		if err := c.writer.InsertHit(ctx, *qm.Hit); err != nil {
			return err
		}
		c.forwarder.ForwardHit(ctx, *qm.Hit)
		return nil
	case kindSiteEvent:
		if qm.Event == nil {
			return nil
		}
		return c.writer.InsertSiteEvent(ctx, *qm.Event)
	default:
		log.Printf("[Hits] unknown message kind: %s", qm.Kind)
		return nil
	}
}
