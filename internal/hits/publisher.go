package hits

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/promo-gateway/internal/domain"
)

const publishTimeout = 5 * time.Second

// Publisher accepts analytics records from the request path. Both
// methods return immediately; delivery happens in the background and
// failures are logged, never surfaced to the visitor.
type Publisher interface {
	PublishHit(ctx context.Context, hit domain.Hit)
	PublishEvent(ctx context.Context, evt domain.SiteEvent)
}

// Writer persists analytics records. Implemented by the Postgres hit
// repository; the in-process publisher and the SQS consumer both write
// through it.
type Writer interface {
	InsertHit(ctx context.Context, hit domain.Hit) error
	InsertSiteEvent(ctx context.Context, evt domain.SiteEvent) error
}

const (
	kindHit       = "hit"
	kindSiteEvent = "site_event"
)

// queueMessage is the SQS envelope. Kind discriminates the payload so
// one queue carries both record types.
type queueMessage struct {
	Kind  string            `json:"kind"`
	Hit   *domain.Hit       `json:"hit,omitempty"`
	Event *domain.SiteEvent `json:"event,omitempty"`
}

// SQSPublisher sends records to the hits queue.
type SQSPublisher struct {
	client   *sqs.Client
	queueURL string
}

func NewSQSPublisher(client *sqs.Client, queueURL string) *SQSPublisher {
	return &SQSPublisher{client: client, queueURL: queueURL}
}

func (p *SQSPublisher) PublishHit(ctx context.Context, hit domain.Hit) {
	p.send(queueMessage{Kind: kindHit, Hit: &hit})
}

func (p *SQSPublisher) PublishEvent(ctx context.Context, evt domain.SiteEvent) {
	p.send(queueMessage{Kind: kindSiteEvent, Event: &evt})
}

func (p *SQSPublisher) send(msg queueMessage) {
	body, err := json.Marshal(msg)
	if err != nil {
		log.Printf("ERROR marshal %s record: %v", msg.Kind, err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		_, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(p.queueURL),
			MessageBody: aws.String(string(body)),
		})
		if err != nil {
			log.Printf("ERROR publishing %s to SQS: %v", msg.Kind, err)
		}
	}()
}

// StorePublisher writes records straight to the store, for single-node
// deployments without a queue. Same contract as the SQS path: the
// caller returns immediately and errors only reach the log.
type StorePublisher struct {
	writer Writer
}

func NewStorePublisher(writer Writer) *StorePublisher {
	return &StorePublisher{writer: writer}
}

func (p *StorePublisher) PublishHit(ctx context.Context, hit domain.Hit) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := p.writer.InsertHit(ctx, hit); err != nil {
			log.Printf("ERROR recording hit %s%s: %v", hit.Site, hit.Path, err)
		}
	}()
}

func (p *StorePublisher) PublishEvent(ctx context.Context, evt domain.SiteEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := p.writer.InsertSiteEvent(ctx, evt); err != nil {
			log.Printf("ERROR recording %s event for %s: %v", evt.Event, evt.Site, err)
		}
	}()
}

// NopPublisher drops everything. Used when analytics is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishHit(ctx context.Context, hit domain.Hit) {}

func (NopPublisher) PublishEvent(ctx context.Context, evt domain.SiteEvent) {}
