package s3

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heroku/buildpacks-release-phase/aws/s3/internal/testutil"
	"github.com/heroku/buildpacks-release-phase/aws/s3/s3types"
	"github.com/heroku/buildpacks-release-phase/secrets"
)

func TestClient_New(t *testing.T) {
	t.Setenv("AWS_REGION", "")
	t.Setenv("AWS_DEFAULT_REGION", "")

	creds := secrets.Credentials{
		AccessKeyID:     secrets.New("AKIDEXAMPLE"),
		SecretAccessKey: secrets.New("secret"),
	}

	tests := []struct {
		name       string
		opts       []s3types.Option
		wantRegion string
	}{
		{
			name:       "default region",
			opts:       []s3types.Option{WithCredentials(creds)},
			wantRegion: DefaultRegion,
		},
		{
			name:       "explicit region",
			opts:       []s3types.Option{WithRegion("eu-west-1"), WithCredentials(creds)},
			wantRegion: "eu-west-1",
		},
		{
			name: "custom endpoint",
			opts: []s3types.Option{
				WithRegion("us-west-2"),
				WithEndpoint("http://localhost:4566"),
				WithMaxRetries(5),
				WithCredentials(creds),
			},
			wantRegion: "us-west-2",
		},
		{
			name:       "custom aws config",
			opts:       []s3types.Option{WithAWSConfig(&aws.Config{Region: "ap-southeast-2"})},
			wantRegion: "ap-southeast-2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(context.Background(), tt.opts...)
			require.NoError(t, err)
			require.NotNil(t, client)
			assert.NotNil(t, client.s3Client)
			assert.Equal(t, tt.wantRegion, client.Region())
		})
	}
}

func TestClient_New_StaticCredentials(t *testing.T) {
	creds := secrets.Credentials{
		AccessKeyID:     secrets.New("AKIDEXAMPLE"),
		SecretAccessKey: secrets.New("secret"),
	}

	client, err := New(context.Background(), WithRegion("us-east-1"), WithCredentials(creds), WithMaxRetries(2))
	require.NoError(t, err)

	got, err := client.config.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIDEXAMPLE", got.AccessKeyID)
	assert.Equal(t, "secret", got.SecretAccessKey)
	assert.Equal(t, 2, client.config.RetryMaxAttempts)
}

func TestClient_NewWithClient(t *testing.T) {
	mock := &testutil.MockS3Client{}
	client := NewWithClient(mock, WithRegion("eu-central-1"), WithLogger(nil))

	assert.Same(t, mock, client.s3Client)
	assert.Equal(t, "eu-central-1", client.Region())
	assert.NotNil(t, client.logger)
}
