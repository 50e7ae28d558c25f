// Package testutil holds test doubles and fixtures for the s3 package.
package testutil

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/heroku/buildpacks-release-phase/aws/s3/internal/s3api"
)

// MockS3Client stubs the SDK calls the client makes. A nil hook answers
// with an empty output and no error.
type MockS3Client struct {
	PutObjectFunc     func(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObjectFunc     func(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObjectFunc  func(context.Context, *s3.DeleteObjectInput, ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2Func func(context.Context, *s3.ListObjectsV2Input, ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

var _ s3api.S3API = (*MockS3Client)(nil)

func call[In, Out any](
	hook func(context.Context, *In, ...func(*s3.Options)) (*Out, error),
	ctx context.Context, in *In, opts []func(*s3.Options),
) (*Out, error) {
	if hook == nil {
		return new(Out), nil
	}
	return hook(ctx, in, opts...)
}

func (m *MockS3Client) PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return call(m.PutObjectFunc, ctx, in, opts)
}

func (m *MockS3Client) GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return call(m.GetObjectFunc, ctx, in, opts)
}

func (m *MockS3Client) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	return call(m.DeleteObjectFunc, ctx, in, opts)
}

func (m *MockS3Client) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	return call(m.ListObjectsV2Func, ctx, in, opts)
}
