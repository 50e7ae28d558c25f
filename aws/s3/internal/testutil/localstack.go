package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/localstack"
	"github.com/testcontainers/testcontainers-go/wait"
)

const localStackImage = "localstack/localstack:latest"

// LocalStack is a running LocalStack S3 endpoint with one scratch bucket.
type LocalStack struct {
	Endpoint string
	Region   string
	Bucket   string
}

// SetupLocalStack starts LocalStack, creates a uniquely named bucket and
// tears both down when t finishes. It skips under -short.
func SetupLocalStack(t *testing.T) *LocalStack {
	t.Helper()
	if testing.Short() {
		t.Skip("LocalStack tests need docker")
	}

	ctx := context.Background()
	ctr, err := localstack.Run(ctx, localStackImage,
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/_localstack/health").WithPort("4566").WithStartupTimeout(2*time.Minute),
		),
	)
	require.NoError(t, err, "start localstack")
	t.Cleanup(func() {
		if err := ctr.Terminate(ctx); err != nil {
			t.Logf("terminate localstack: %v", err)
		}
	})

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "4566")
	require.NoError(t, err)

	ls := &LocalStack{
		Endpoint: fmt.Sprintf("http://%s:%s", host, port.Port()),
		Region:   "us-east-1",
		Bucket:   "release-phase-" + uuid.NewString()[:8],
	}

	raw := s3.New(s3.Options{
		Region:       ls.Region,
		BaseEndpoint: aws.String(ls.Endpoint),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("test", "test", ""),
	})
	_, err = raw.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(ls.Bucket)})
	require.NoError(t, err, "create bucket")
	t.Cleanup(func() {
		if err := purge(ctx, raw, ls.Bucket); err != nil {
			t.Logf("purge %s: %v", ls.Bucket, err)
		}
	})

	return ls
}

func purge(ctx context.Context, client *s3.Client, bucket string) error {
	pages := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, obj := range page.Contents {
			if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: obj.Key}); err != nil {
				return err
			}
		}
	}
	_, err := client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)})
	return err
}
