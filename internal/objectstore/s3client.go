package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/grz-tools/grz-submit-core/internal/grzerr"
)

// classifyTransferError wraps an aws-sdk-go-v2 error into the closed
// grzerr.TransferError taxonomy (spec.md §7), so callers above this package
// can switch on Kind instead of matching SDK-specific error types.
func classifyTransferError(key string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return &grzerr.TransferError{Kind: grzerr.TransferNotFound, Key: key, Cause: err}
		case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
			return &grzerr.TransferError{Kind: grzerr.TransferAlreadyExists, Key: key, Cause: err}
		case "AccessDenied", "Forbidden":
			return &grzerr.TransferError{Kind: grzerr.TransferPermissionDenied, Key: key, Cause: err}
		}
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return &grzerr.TransferError{Kind: grzerr.TransferNetwork, Key: key, Cause: err}
	}
	return &grzerr.TransferError{Kind: grzerr.TransferOther, Key: key, Cause: err}
}

// S3Client adapts an aws-sdk-go-v2 s3.Client to the Client interface,
// talking to the bucket named at construction time.
type S3Client struct {
	api    *s3.Client
	bucket string
}

// S3Options configures NewS3Client; EndpointURL is optional and supports
// S3-compatible (non-AWS) object stores. There is no proxy option.
type S3Options struct {
	Bucket       string
	Region       string
	EndpointURL  string
	AccessKey    string
	SecretKey    string
	SessionToken string
	UsePathStyle bool
}

// NewS3Client builds an S3Client from explicit credentials, falling back to
// the default credential chain (environment, shared config, IMDS) when
// AccessKey is empty.
func NewS3Client(ctx context.Context, opts S3Options) (*S3Client, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, opts.SessionToken),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load AWS config: %w", err)
	}

	api := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.EndpointURL != "" {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	return &S3Client{api: api, bucket: opts.Bucket}, nil
}

func (c *S3Client) HeadObject(ctx context.Context, key string) (bool, int64, error) {
	out, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &c.bucket, Key: &key})
	if err != nil {
		var notFound *s3types.NotFound
		var apiErr smithy.APIError
		if errors.As(err, &notFound) || (errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound") {
			return false, 0, nil
		}
		return false, 0, classifyTransferError(key, fmt.Errorf("objectstore: head_object %s: %w", key, err))
	}
	size := int64(0)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return true, size, nil
}

func (c *S3Client) PutObject(ctx context.Context, key string, body io.Reader, size int64) error {
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &c.bucket,
		Key:           &key,
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return classifyTransferError(key, fmt.Errorf("objectstore: put_object %s: %w", key, err))
	}
	return nil
}

func (c *S3Client) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{Bucket: &c.bucket, Key: &key})
	if err != nil {
		return nil, classifyTransferError(key, fmt.Errorf("objectstore: get_object %s: %w", key, err))
	}
	return out.Body, nil
}

func (c *S3Client) GetObjectRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	byteRange := fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{Bucket: &c.bucket, Key: &key, Range: &byteRange})
	if err != nil {
		return nil, classifyTransferError(key, fmt.Errorf("objectstore: get_object range %s %s: %w", key, byteRange, err))
	}
	return out.Body, nil
}

func (c *S3Client) CreateMultipartUpload(ctx context.Context, key string) (string, error) {
	out, err := c.api.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{Bucket: &c.bucket, Key: &key})
	if err != nil {
		return "", classifyTransferError(key, fmt.Errorf("objectstore: create_multipart_upload %s: %w", key, err))
	}
	return *out.UploadId, nil
}

func (c *S3Client) UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.Reader, size int64) (PartResult, error) {
	out, err := c.api.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        &c.bucket,
		Key:           &key,
		UploadId:      &uploadID,
		PartNumber:    aws.Int32(partNumber),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return PartResult{}, classifyTransferError(key, fmt.Errorf("objectstore: upload_part %s part %d: %w", key, partNumber, err))
	}
	etag := ""
	if out.ETag != nil {
		etag = *out.ETag
	}
	return PartResult{PartNumber: partNumber, ETag: etag, Size: size}, nil
}

func (c *S3Client) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []PartResult) error {
	completed := make([]s3types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = s3types.CompletedPart{PartNumber: aws.Int32(p.PartNumber), ETag: aws.String(p.ETag)}
	}
	_, err := c.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          &c.bucket,
		Key:             &key,
		UploadId:        &uploadID,
		MultipartUpload: &s3types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return classifyTransferError(key, fmt.Errorf("objectstore: complete_multipart_upload %s: %w", key, err))
	}
	return nil
}

func (c *S3Client) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	_, err := c.api.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{Bucket: &c.bucket, Key: &key, UploadId: &uploadID})
	if err != nil {
		return classifyTransferError(key, fmt.Errorf("objectstore: abort_multipart_upload %s: %w", key, err))
	}
	return nil
}

func (c *S3Client) ListObjectsV2(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{Bucket: &c.bucket, Prefix: &prefix})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyTransferError(prefix, fmt.Errorf("objectstore: list_objects_v2 %s: %w", prefix, err))
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}
	return keys, nil
}

func (c *S3Client) DeleteObjects(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	objects := make([]s3types.ObjectIdentifier, len(keys))
	for i, k := range keys {
		k := k
		objects[i] = s3types.ObjectIdentifier{Key: &k}
	}
	_, err := c.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: &c.bucket,
		Delete: &s3types.Delete{Objects: objects},
	})
	if err != nil {
		return classifyTransferError("", fmt.Errorf("objectstore: delete_objects: %w", err))
	}
	return nil
}

var _ Client = (*S3Client)(nil)
