// Package objectstore uploads migration artifacts to S3-compatible storage.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"sitemigrate/internal/config"
	"sitemigrate/internal/services"
)

const component = "objectstore"

// Store writes artifacts to a single bucket under a key prefix.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// New builds an S3 client from the object_store section.
func New(ctx context.Context, cfg config.ObjectStore) (*Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, services.Wrap(services.ErrConfiguration, component, "init", "object_store.bucket is not set", nil)
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, component, "init", "load AWS config", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return &Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Key builds the object key for an artifact of a record.
func (s *Store) Key(linkID, siteID, name string) string {
	return path.Join(strings.Trim(s.prefix, "/"), linkID, siteID, name)
}

// Upload stores the file at localPath under key.
func (s *Store) Upload(ctx context.Context, key, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return services.Wrap(services.ErrNotFound, component, "upload", "open artifact", err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return services.Wrap(services.ErrNotFound, component, "upload", "stat artifact", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/zip"),
	})
	if err != nil {
		return classify("upload", err)
	}
	return nil
}

// Head checks that the bucket exists and the credentials can reach it.
func (s *Store) Head(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return classify("head bucket", err)
	}
	return nil
}

type statusCoder interface {
	HTTPStatusCode() int
}

func classify(op string, err error) error {
	var withStatus statusCoder
	if errors.As(err, &withStatus) {
		return services.Wrap(services.HTTPStatusMarker(withStatus.HTTPStatusCode()), component, op,
			fmt.Sprintf("status %d", withStatus.HTTPStatusCode()), err)
	}
	return services.Wrap(services.ErrTransient, component, op, "request failed", err)
}
