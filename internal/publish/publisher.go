// Package publish uploads generated site artifacts (sitemaps, feeds, the
// redirect export) to S3 and invalidates their CDN paths. A distributed
// lock keeps concurrent gateway instances from publishing the same build.
package publish

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/ignite/promo-gateway/internal/config"
	"github.com/ignite/promo-gateway/internal/pkg/distlock"
)

// Artifact is one generated file destined for the artifact bucket.
type Artifact struct {
	Site        string
	Name        string
	ContentType string
	Body        []byte
}

// Key returns the bucket key for the artifact, "<site>/<name>".
func (a Artifact) Key() string {
	return a.Site + "/" + a.Name
}

// ContentTypeFor maps an artifact filename to its MIME type.
func ContentTypeFor(name string) string {
	switch {
	case strings.HasSuffix(name, ".xml"):
		return "application/xml"
	case strings.HasSuffix(name, ".json"):
		return "application/json"
	case strings.HasSuffix(name, ".txt"):
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

// Publisher uploads artifacts to S3 and invalidates the changed CDN paths.
type Publisher struct {
	s3Client       *s3.Client
	cfClient       *cloudfront.Client
	lock           distlock.DistLock
	bucket         string
	distributionID string
}

// New creates a Publisher from config. The CloudFront client is only set
// up when a distribution ID is configured; without one uploads still
// happen but no invalidation is issued. lock may be nil (single instance).
func New(ctx context.Context, cfg config.PublishConfig, lock distlock.DistLock) (*Publisher, error) {
	var awsCfg aws.Config
	var err error
	switch {
	case cfg.AccessKey != "" && cfg.SecretKey != "":
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
			awsconfig.WithCredentialsProvider(creds),
		)
	case cfg.GetAWSProfile() != "":
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
			awsconfig.WithSharedConfigProfile(cfg.GetAWSProfile()),
		)
	default:
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	p := &Publisher{
		s3Client:       s3.NewFromConfig(awsCfg),
		lock:           lock,
		bucket:         cfg.S3Bucket,
		distributionID: cfg.DistributionID,
	}

	if cfg.DistributionID != "" {
		// CloudFront API is global but wants a us-east-1 client
		cfCfg := awsCfg.Copy()
		cfCfg.Region = "us-east-1"
		p.cfClient = cloudfront.NewFromConfig(cfCfg)
	}

	return p, nil
}

// Publish uploads the artifacts and invalidates their CDN paths. When
// another instance already holds the publish lock the cycle is skipped;
// the holder is publishing the same build output.
func (p *Publisher) Publish(ctx context.Context, artifacts []Artifact) error {
	if len(artifacts) == 0 {
		return nil
	}

	if p.lock != nil {
		held, err := p.lock.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("acquiring publish lock: %w", err)
		}
		if !held {
			log.Printf("[Publish] Another instance holds the publish lock, skipping")
			return nil
		}
		defer p.lock.Release(ctx)
	}

	paths := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		if err := p.upload(ctx, a); err != nil {
			return err
		}
		paths = append(paths, "/"+a.Key())
	}
	log.Printf("[Publish] Uploaded %d artifacts to s3://%s", len(artifacts), p.bucket)

	return p.invalidate(ctx, paths)
}

func (p *Publisher) upload(ctx context.Context, a Artifact) error {
	_, err := p.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(p.bucket),
		Key:          aws.String(a.Key()),
		Body:         bytes.NewReader(a.Body),
		ContentType:  aws.String(a.ContentType),
		CacheControl: aws.String("public, max-age=300"),
	})
	if err != nil {
		return fmt.Errorf("uploading %s to S3: %w", a.Key(), err)
	}
	return nil
}

func (p *Publisher) invalidate(ctx context.Context, paths []string) error {
	if p.cfClient == nil || len(paths) == 0 {
		return nil
	}

	_, err := p.cfClient.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(p.distributionID),
		InvalidationBatch: &cftypes.InvalidationBatch{
			CallerReference: aws.String(uuid.New().String()),
			Paths: &cftypes.Paths{
				Quantity: aws.Int32(int32(len(paths))),
				Items:    paths,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("creating CloudFront invalidation: %w", err)
	}

	log.Printf("[Publish] Invalidated %d CDN paths on distribution %s", len(paths), p.distributionID)
	return nil
}
