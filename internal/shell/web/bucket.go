// Package web publishes static web resources, either to an S3-compatible
// bucket or to a local directory.
package web

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/artpar/fndeploy/internal/core/project"
	"github.com/artpar/fndeploy/internal/core/response"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// deleteBatch is the most keys one DeleteObjects call accepts.
const deleteBatch = 1000

// s3API is the part of the S3 client the publisher uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// BucketConfig locates the bucket.
type BucketConfig struct {
	Endpoint  string
	Region    string
	Name      string
	AccessKey string
	SecretKey string
}

// BucketPublisher uploads web resources to a bucket.
type BucketPublisher struct {
	client s3API
	bucket string
	spec   project.BucketSpec
	logger *slog.Logger
}

// NewBucketPublisher creates a publisher for cfg. spec may be nil.
func NewBucketPublisher(cfg BucketConfig, spec *project.BucketSpec, logger *slog.Logger) *BucketPublisher {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return newBucketPublisher(s3.New(opts), cfg.Name, spec, logger)
}

func newBucketPublisher(client s3API, bucket string, spec *project.BucketSpec, logger *slog.Logger) *BucketPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &BucketPublisher{
		client: client,
		bucket: bucket,
		logger: logger.With("component", "bucket", "bucket", bucket),
	}
	if spec != nil {
		p.spec = *spec
	}
	return p
}

// Key returns the object key for a resource.
func (p *BucketPublisher) Key(res project.WebResource) string {
	return strings.TrimPrefix(path.Join(p.spec.PrefixPath, res.SimpleName), "/")
}

// Deploy uploads one resource. Failures are reported in the response.
func (p *BucketPublisher) Deploy(ctx context.Context, res project.WebResource, body []byte) response.Response {
	key := p.Key(res)
	input := &s3.PutObjectInput{
		Bucket:       aws.String(p.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(body),
		ContentType:  aws.String(res.MimeType),
		CacheControl: aws.String(cacheControl(res.MimeType)),
	}
	if _, err := p.client.PutObject(ctx, input); err != nil {
		return response.WrapError(fmt.Errorf("upload %s: %w", key, err), fmt.Sprintf("web resource '%s'", res.SimpleName))
	}
	p.logger.Debug("uploaded web resource", "key", key)
	return response.WrapSuccess(key, response.KindWeb, false, "", nil, "")
}

// Clean deletes every object under the prefix. A non-empty warning reports
// objects that could not be removed.
func (p *BucketPublisher) Clean(ctx context.Context) (string, error) {
	prefix := strings.TrimPrefix(p.spec.PrefixPath, "/")
	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(prefix),
	})

	var keys []types.ObjectIdentifier
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("list bucket objects: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, types.ObjectIdentifier{Key: obj.Key})
		}
	}

	failed := 0
	for start := 0; start < len(keys); start += deleteBatch {
		end := min(start+deleteBatch, len(keys))
		out, err := p.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(p.bucket),
			Delete: &types.Delete{Objects: keys[start:end], Quiet: aws.Bool(true)},
		})
		if err != nil {
			return "", fmt.Errorf("delete bucket objects: %w", err)
		}
		failed += len(out.Errors)
	}
	p.logger.Debug("cleaned bucket", "objects", len(keys), "failed", failed)

	if failed > 0 {
		return fmt.Sprintf("%d of %d web objects could not be removed from bucket %s", failed, len(keys), p.bucket), nil
	}
	return "", nil
}

func cacheControl(mimeType string) string {
	if strings.HasPrefix(mimeType, "text/html") {
		return "no-cache"
	}
	return "public, max-age=3600"
}
