// Package errors defines the errors returned by the S3 client. Each failure
// is an *Error naming the operation and object, wrapping one of the
// sentinels below so callers can classify it with errors.Is.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error is a failed S3 operation on a bucket or object.
type Error struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

// Error renders the operation and the s3:// address it targeted.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("s3 ")
	b.WriteString(e.Op)
	if e.Bucket != "" || e.Key != "" {
		b.WriteString(" s3://")
		b.WriteString(e.Bucket)
		if e.Key != "" {
			b.WriteByte('/')
			b.WriteString(e.Key)
		}
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithBucket sets the bucket and returns e.
func (e *Error) WithBucket(bucket string) *Error {
	e.Bucket = bucket
	return e
}

// WithKey sets the object key and returns e.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// WithMessage prefixes the cause with message and returns e.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// NewError returns an Error for op caused by err.
func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

var (
	ErrObjectNotFound     = errors.New("object not found")
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrAccessDenied       = errors.New("access denied")
	ErrInvalidCredentials = errors.New("credentials rejected")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidObjectKey   = errors.New("invalid object key")
	// ErrRegionMismatch means the bucket lives in another region than the
	// one requests were signed for.
	ErrRegionMismatch = errors.New("bucket region mismatch")
	ErrTimeout        = errors.New("timed out")
	ErrConnection     = errors.New("connection failed")
)

// IsObjectNotFound reports whether err is a missing object.
func IsObjectNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}

// IsBucketNotFound reports whether err is a missing bucket.
func IsBucketNotFound(err error) bool {
	return errors.Is(err, ErrBucketNotFound)
}

// IsAccessDenied reports whether the request was refused, including
// rejected credentials.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied) || errors.Is(err, ErrInvalidCredentials)
}

// IsInvalidInput reports whether the caller passed a bad bucket, key or body.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrInvalidObjectKey)
}

// IsRegionMismatch reports whether the bucket is in another region.
func IsRegionMismatch(err error) bool {
	return errors.Is(err, ErrRegionMismatch)
}

// IsConnection reports whether err is a network failure or timeout.
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrTimeout)
}
