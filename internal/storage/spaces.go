package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/edvin/backupd/internal/model"
)

// maxDeleteBatch is the S3 DeleteObjects per-request key limit.
const maxDeleteBatch = 1000

// SpacesConfig holds the connection settings for an S3-compatible bucket
// (DigitalOcean Spaces, Ceph RGW, MinIO, AWS).
type SpacesConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// s3API is the subset of *s3.Client used by SpacesClient.
type s3API interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// SpacesClient implements ObjectStore with the AWS SDK against one bucket.
type SpacesClient struct {
	logger zerolog.Logger
	client s3API
	bucket string
}

// NewSpacesClient creates a SpacesClient for the configured bucket.
func NewSpacesClient(logger zerolog.Logger, cfg SpacesConfig) *SpacesClient {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region:                     region,
		Credentials:                credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle:               cfg.PathStyle,
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return newSpacesClient(logger, s3.New(opts), cfg.Bucket)
}

func newSpacesClient(logger zerolog.Logger, client s3API, bucket string) *SpacesClient {
	return &SpacesClient{
		logger: logger.With().Str("component", "spaces-client").Str("bucket", bucket).Logger(),
		client: client,
		bucket: bucket,
	}
}

// List returns every object under prefix with its logical backup date.
func (c *SpacesClient) List(ctx context.Context, prefix string) ([]model.SpacesObject, error) {
	p := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})

	var objects []model.SpacesObject
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			objects = append(objects, model.SpacesObject{
				Path: key,
				Size: aws.ToInt64(obj.Size),
				Date: LogicalDate(key, aws.ToTime(obj.LastModified)),
			})
		}
	}
	return objects, nil
}

// Upload streams localPath to remotePath.
func (c *SpacesClient) Upload(ctx context.Context, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}

	c.logger.Debug().Str("key", remotePath).Int64("bytes", info.Size()).Msg("uploading object")
	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(remotePath),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(remotePath)),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", remotePath, err)
	}
	return nil
}

// Download writes remotePath to localPath, removing localPath on failure.
func (c *SpacesClient) Download(ctx context.Context, remotePath, localPath string) (err error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(remotePath),
	})
	if err != nil {
		return fmt.Errorf("download %s: %w", remotePath, err)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0750); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(localPath), err)
	}
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", localPath, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", localPath, cerr)
		}
		if err != nil {
			os.Remove(localPath)
		}
	}()

	if _, err := io.Copy(f, out.Body); err != nil {
		return fmt.Errorf("download %s: %w", remotePath, err)
	}
	return nil
}

// Remove deletes a single object.
func (c *SpacesClient) Remove(ctx context.Context, remotePath string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(remotePath),
	})
	if err != nil {
		return fmt.Errorf("remove %s: %w", remotePath, err)
	}
	return nil
}

// RemoveMany deletes objects in batches. Per-key failures reported by the
// store are joined into the returned error.
func (c *SpacesClient) RemoveMany(ctx context.Context, remotePaths []string) error {
	var errs []error
	for start := 0; start < len(remotePaths); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(remotePaths))

		ids := make([]s3types.ObjectIdentifier, 0, end-start)
		for _, key := range remotePaths[start:end] {
			ids = append(ids, s3types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := c.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(c.bucket),
			Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("delete batch of %d objects: %w", len(ids), err))
			continue
		}
		for _, e := range out.Errors {
			errs = append(errs, fmt.Errorf("delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message)))
		}
	}
	return errors.Join(errs...)
}

func contentType(key string) string {
	if strings.HasSuffix(key, ".enc") {
		return "application/octet-stream"
	}
	return "application/gzip"
}
