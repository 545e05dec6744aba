// Package s3 implements the s3 and minio drivers on the AWS SDK.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/spf13/afero"

	"github.com/gobeaver/nocloud"
)

// Client is the subset of the S3 API the adapter uses
type Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// Adapter provides an S3 implementation of nocloud.Backend
type Adapter struct {
	client Client
	bucket string
	local  afero.Fs
}

// New creates a new S3 backend for bucket. Local files are read from and
// written to local.
func New(client Client, bucket string, local afero.Fs) *Adapter {
	return &Adapter{
		client: client,
		bucket: bucket,
		local:  local,
	}
}

// Put implements nocloud.Backend. PutObject replaces the object atomically.
func (a *Adapter) Put(ctx context.Context, localPath, key string) error {
	f, err := a.local.Open(localPath)
	if err != nil {
		return &nocloud.PathError{Op: "put", Path: localPath, Err: fmt.Errorf("%w: %w", nocloud.ErrIO, err)}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &nocloud.PathError{Op: "put", Path: localPath, Err: fmt.Errorf("%w: %w", nocloud.ErrIO, err)}
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return mapS3Error("put", key, err)
	}
	return nil
}

// Get implements nocloud.Backend
func (a *Adapter) Get(ctx context.Context, key, localPath string) error {
	resp, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return mapS3Error("get", key, err)
	}
	defer resp.Body.Close()

	return nocloud.WriteFileAtomic(a.local, localPath, &bodyReader{r: resp.Body, key: key}, nocloud.SecureMode)
}

// List implements nocloud.Backend
func (a *Adapter) List(ctx context.Context, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapS3Error("list", prefix, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			// Skip folder markers
			if strings.HasSuffix(key, "/") {
				continue
			}
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Close implements nocloud.Backend. The SDK client holds no session.
func (a *Adapter) Close() error {
	return nil
}

// bodyReader marks failures while streaming a download as transient
type bodyReader struct {
	r   io.Reader
	key string
}

func (b *bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF {
		return n, mapS3Error("get", b.key, err)
	}
	return n, err
}

// Error codes that will not succeed on retry
var fatalCodes = map[string]bool{
	"AccessDenied":          true,
	"AccountProblem":        true,
	"AllAccessDisabled":     true,
	"ExpiredToken":          true,
	"InvalidAccessKeyId":    true,
	"InvalidBucketName":     true,
	"InvalidToken":          true,
	"NoSuchBucket":          true,
	"PermanentRedirect":     true,
	"SignatureDoesNotMatch": true,
}

// Error codes S3 documents as safe to retry
var transientCodes = map[string]bool{
	"InternalError":      true,
	"RequestTimeout":     true,
	"ServiceUnavailable": true,
	"SlowDown":           true,
	"Throttling":         true,
}

// mapS3Error sorts SDK errors into transient and fatal failures
func mapS3Error(op, key string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &nocloud.PathError{Op: op, Path: key, Err: err}
	}

	var nsk *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &notFound) {
		return &nocloud.PathError{Op: op, Path: key, Err: nocloud.ErrNotExist}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch code := apiErr.ErrorCode(); {
		case fatalCodes[code]:
			return wrap(op, key, nocloud.ErrFatalBackend, err)
		case transientCodes[code]:
			return wrap(op, key, nocloud.ErrTransient, err)
		}
	}

	var status interface{ HTTPStatusCode() int }
	if errors.As(err, &status) {
		switch code := status.HTTPStatusCode(); {
		case code == 429 || code >= 500:
			return wrap(op, key, nocloud.ErrTransient, err)
		case code >= 400:
			return wrap(op, key, nocloud.ErrFatalBackend, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return wrap(op, key, nocloud.ErrTransient, err)
	}

	return wrap(op, key, nocloud.ErrFatalBackend, err)
}

func wrap(op, key string, kind, err error) error {
	return &nocloud.PathError{Op: op, Path: key, Err: fmt.Errorf("%w: %w", kind, err)}
}
