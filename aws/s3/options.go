package s3

import (
	"log/slog"
	"maps"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/heroku/buildpacks-release-phase/aws/s3/s3types"
	"github.com/heroku/buildpacks-release-phase/secrets"
)

// WithRegion pins the signing region. Without it the environment's region
// is used, falling back to DefaultRegion.
func WithRegion(region string) s3types.Option {
	return func(c *s3types.ClientConfig) { c.Region = region }
}

// WithMaxRetries caps SDK retry attempts. Zero keeps the SDK default.
func WithMaxRetries(n int) s3types.Option {
	return func(c *s3types.ClientConfig) { c.MaxRetries = n }
}

// WithForcePathStyle addresses the bucket in the URL path.
func WithForcePathStyle(force bool) s3types.Option {
	return func(c *s3types.ClientConfig) { c.ForcePathStyle = force }
}

// WithEndpoint targets an S3-compatible service. It implies path style.
func WithEndpoint(endpoint string) s3types.Option {
	return func(c *s3types.ClientConfig) { c.Endpoint = endpoint }
}

// WithCredentials signs requests with a static key pair instead of the
// default credential chain.
func WithCredentials(creds secrets.Credentials) s3types.Option {
	return func(c *s3types.ClientConfig) { c.Credentials = &creds }
}

// WithAWSConfig skips config loading and uses cfg as is.
func WithAWSConfig(cfg *aws.Config) s3types.Option {
	return func(c *s3types.ClientConfig) { c.AWSConfig = cfg }
}

func WithLogger(logger *slog.Logger) s3types.Option {
	return func(c *s3types.ClientConfig) { c.Logger = logger }
}

// WithContentType overrides content type detection for one upload.
func WithContentType(contentType string) s3types.UploadOption {
	return func(c *s3types.UploadConfig) { c.ContentType = contentType }
}

// WithMetadata adds user metadata to one upload. Repeated use merges.
func WithMetadata(metadata map[string]string) s3types.UploadOption {
	return func(c *s3types.UploadConfig) {
		if c.Metadata == nil {
			c.Metadata = make(map[string]string, len(metadata))
		}
		maps.Copy(c.Metadata, metadata)
	}
}

func staticCredentials(creds secrets.Credentials) aws.CredentialsProvider {
	return credentials.NewStaticCredentialsProvider(
		creds.AccessKeyID.Reveal(),
		creds.SecretAccessKey.Reveal(),
		"",
	)
}
