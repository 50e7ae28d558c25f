package s3

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/gabriel-vasile/mimetype"

	s3errors "github.com/heroku/buildpacks-release-phase/aws/s3/errors"
	"github.com/heroku/buildpacks-release-phase/aws/s3/internal/validation"
	"github.com/heroku/buildpacks-release-phase/aws/s3/s3types"
)

// DefaultContentType is sent when the content type cannot be determined.
const DefaultContentType = "application/octet-stream"

// sniffLen is how many leading bytes are inspected for content detection.
const sniffLen = 512

// Upload uploads the data read from reader to bucket/key in a single PutObject.
//
// When reader is an io.ReadSeeker its length is sent as the content length
// and, unless WithContentType is given, its leading bytes are sniffed with
// mimetype before rewinding. Otherwise the key's extension decides.
//
// Errors:
//   - ErrInvalidInput: If bucket is empty, key is invalid, or reader is nil
//   - ErrAccessDenied, ErrInvalidCredentials: If the request is rejected
//   - ErrBucketNotFound: If the bucket doesn't exist
//   - ErrConnection, ErrTimeout: On network failure
func (c *Client) Upload(
	ctx context.Context,
	bucket, key string,
	reader io.Reader,
	opts ...s3types.UploadOption,
) (*s3types.UploadResult, error) {
	if err := validateObjectArgs("upload", bucket, key); err != nil {
		return nil, err
	}
	if reader == nil {
		return nil, s3errors.NewError("upload", s3errors.ErrInvalidInput).
			WithBucket(bucket).
			WithKey(key).
			WithMessage("reader cannot be nil")
	}

	config := &s3types.UploadConfig{}
	for _, opt := range opts {
		opt(config)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   reader,
	}

	var size int64 = -1
	if rs, ok := reader.(io.ReadSeeker); ok {
		n, err := seekLength(rs)
		if err != nil {
			return nil, s3errors.NewError("upload", err).WithBucket(bucket).WithKey(key)
		}
		size = n
		input.ContentLength = aws.Int64(n)

		if config.ContentType == "" {
			ct, err := sniffContentType(rs)
			if err != nil {
				return nil, s3errors.NewError("upload", err).WithBucket(bucket).WithKey(key)
			}
			config.ContentType = ct
		}
	}
	if config.ContentType == "" {
		config.ContentType = contentTypeFromExtension(key)
	}
	input.ContentType = aws.String(config.ContentType)
	if len(config.Metadata) > 0 {
		input.Metadata = config.Metadata
	}

	startTime := time.Now()
	c.logger.Debug("s3 upload", "bucket", bucket, "key", key, "content_type", config.ContentType, "size", size)

	out, err := c.s3Client.PutObject(ctx, input)
	if err != nil {
		return nil, s3errors.NewError("upload", convertAWSError(err)).WithBucket(bucket).WithKey(key)
	}

	return &s3types.UploadResult{
		Key:         key,
		Size:        size,
		ETag:        aws.ToString(out.ETag),
		ContentType: config.ContentType,
		Duration:    time.Since(startTime),
	}, nil
}

// Download streams bucket/key into writer.
//
// Errors:
//   - ErrInvalidInput: If bucket is empty, key is invalid, or writer is nil
//   - ErrObjectNotFound: If the object doesn't exist
//   - ErrAccessDenied, ErrInvalidCredentials: If the request is rejected
//   - ErrConnection, ErrTimeout: On network failure, including mid-stream
func (c *Client) Download(
	ctx context.Context,
	bucket, key string,
	writer io.Writer,
) (*s3types.DownloadResult, error) {
	if err := validateObjectArgs("download", bucket, key); err != nil {
		return nil, err
	}
	if writer == nil {
		return nil, s3errors.NewError("download", s3errors.ErrInvalidInput).
			WithBucket(bucket).
			WithKey(key).
			WithMessage("writer cannot be nil")
	}

	startTime := time.Now()
	c.logger.Debug("s3 download", "bucket", bucket, "key", key)

	out, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s3errors.NewError("download", convertAWSError(err)).WithBucket(bucket).WithKey(key)
	}
	if out.Body == nil {
		return nil, s3errors.NewError("download", s3errors.ErrObjectNotFound).
			WithBucket(bucket).
			WithKey(key).
			WithMessage("empty response body")
	}
	defer func() { _ = out.Body.Close() }()

	n, err := io.Copy(writer, out.Body)
	if err != nil {
		return nil, s3errors.NewError("download", convertAWSError(err)).WithBucket(bucket).WithKey(key)
	}

	return &s3types.DownloadResult{
		Key:      key,
		Size:     n,
		ETag:     aws.ToString(out.ETag),
		Duration: time.Since(startTime),
	}, nil
}

// List returns every object in bucket whose key starts with prefix,
// following continuation tokens until the listing is exhausted.
func (c *Client) List(ctx context.Context, bucket, prefix string) ([]s3types.Object, error) {
	if bucket == "" {
		return nil, s3errors.NewError("list", s3errors.ErrInvalidInput).
			WithMessage("bucket name cannot be empty")
	}
	if err := validation.ValidatePrefix(prefix); err != nil {
		return nil, s3errors.NewError("list", s3errors.ErrInvalidInput).
			WithBucket(bucket).
			WithKey(prefix).
			WithMessage(err.Error())
	}

	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var objects []s3types.Object
	paginator := s3.NewListObjectsV2Paginator(c.s3Client, input)
	for page := 1; paginator.HasMorePages(); page++ {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s3errors.NewError("list", convertAWSError(err)).WithBucket(bucket).WithKey(prefix)
		}
		c.logger.Debug("s3 list page", "bucket", bucket, "prefix", prefix, "page", page, "objects", len(out.Contents))

		for _, obj := range out.Contents {
			objects = append(objects, s3types.Object{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				ETag:         aws.ToString(obj.ETag),
			})
		}
	}

	return objects, nil
}

// Delete removes bucket/key. Deleting a missing object is not an error.
func (c *Client) Delete(ctx context.Context, bucket, key string) error {
	if err := validateObjectArgs("delete", bucket, key); err != nil {
		return err
	}

	c.logger.Debug("s3 delete", "bucket", bucket, "key", key)
	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return s3errors.NewError("delete", convertAWSError(err)).WithBucket(bucket).WithKey(key)
	}
	return nil
}

func validateObjectArgs(op, bucket, key string) error {
	if bucket == "" {
		return s3errors.NewError(op, s3errors.ErrInvalidInput).
			WithKey(key).
			WithMessage("bucket name cannot be empty")
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return s3errors.NewError(op, s3errors.ErrInvalidInput).
			WithBucket(bucket).
			WithKey(key).
			WithMessage(err.Error())
	}
	return nil
}

func seekLength(rs io.ReadSeeker) (int64, error) {
	cur, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := rs.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return end - cur, nil
}

// sniffContentType detects the content type from the leading bytes of rs
// and rewinds it to where it started.
func sniffContentType(rs io.ReadSeeker) (string, error) {
	start, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", err
	}
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(rs, buf)
	if err != nil && !stderrors.Is(err, io.EOF) && !stderrors.Is(err, io.ErrUnexpectedEOF) {
		return "", err
	}
	if _, err := rs.Seek(start, io.SeekStart); err != nil {
		return "", err
	}
	if n == 0 {
		return DefaultContentType, nil
	}
	return mimetype.Detect(buf[:n]).String(), nil
}

func contentTypeFromExtension(key string) string {
	if ext := strings.ToLower(path.Ext(key)); ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt
		}
	}
	return DefaultContentType
}

// convertAWSError maps SDK failures onto the package sentinels. The original
// error stays in the chain.
func convertAWSError(err error) error {
	if err == nil {
		return nil
	}

	var noSuchKey *types.NoSuchKey
	if stderrors.As(err, &noSuchKey) {
		return join(s3errors.ErrObjectNotFound, err)
	}
	var noSuchBucket *types.NoSuchBucket
	if stderrors.As(err, &noSuchBucket) {
		return join(s3errors.ErrBucketNotFound, err)
	}

	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return join(s3errors.ErrObjectNotFound, err)
		case "NoSuchBucket":
			return join(s3errors.ErrBucketNotFound, err)
		case "AccessDenied", "Forbidden", "AllAccessDisabled":
			return join(s3errors.ErrAccessDenied, err)
		case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken":
			return join(s3errors.ErrInvalidCredentials, err)
		case "PermanentRedirect", "AuthorizationHeaderMalformed", "IllegalLocationConstraintException":
			return join(s3errors.ErrRegionMismatch, err)
		case "RequestTimeout":
			return join(s3errors.ErrTimeout, err)
		}
		return err
	}

	if stderrors.Is(err, context.Canceled) {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return join(s3errors.ErrTimeout, err)
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		if netErr.Timeout() {
			return join(s3errors.ErrTimeout, err)
		}
		return join(s3errors.ErrConnection, err)
	}

	return err
}

func join(sentinel, err error) error {
	return fmt.Errorf("%w: %w", sentinel, err)
}
