package cas

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/mpetrovs/attachsync/internal/common"
)

const s3Prefix = "objects/"

// S3Options configures the S3-compatible backend (AWS S3 or MinIO).
type S3Options struct {
	User         string
	Password     string
	Bucket       string
	Region       string
	BaseEndpoint string
}

// S3Store keeps objects under objects/<hash> in a single bucket.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds an S3 client with static credentials; BaseEndpoint allows
// pointing at MinIO or another S3-compatible service.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.User, opts.Password, "",
		)))
	if err != nil {
		return nil, fmt.Errorf("s3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
		}
		o.UsePathStyle = true
	})

	return &S3Store{client: client, bucket: opts.Bucket}, nil
}

func (s *S3Store) key(hash string) string {
	return s3Prefix + hash
}

func (s *S3Store) Put(ctx context.Context, data []byte) (string, error) {
	hash := HashBytes(data)

	exists, err := s.Exists(ctx, hash)
	if err != nil {
		return "", err
	}
	if exists {
		return hash, nil
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(hash)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put: %w", err)
	}
	return hash, nil
}

func (s *S3Store) Get(ctx context.Context, hash string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(hash)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("s3 get: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read body: %w", err)
	}
	return data, nil
}

func (s *S3Store) Exists(ctx context.Context, hash string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(hash)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("s3 head: %w", err)
	}
	return true, nil
}

func (s *S3Store) Remove(ctx context.Context, hash string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(hash)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete: %w", err)
	}
	return nil
}

func (s *S3Store) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s3Prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), s3Prefix))
		}
	}
	return keys, nil
}
