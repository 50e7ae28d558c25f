package s3

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/heroku/buildpacks-release-phase/aws/s3/errors"
	"github.com/heroku/buildpacks-release-phase/aws/s3/internal/s3api"
	"github.com/heroku/buildpacks-release-phase/aws/s3/s3types"
)

// DefaultRegion applies when neither options nor the environment set one.
const DefaultRegion = "us-east-1"

// Client reads and writes artifact objects. It is safe for concurrent use.
type Client struct {
	s3Client s3api.S3API
	config   aws.Config
	logger   *slog.Logger
}

// New builds a client from the default AWS config chain, adjusted by opts.
//
//	client, err := s3.New(ctx,
//	    s3.WithRegion("eu-west-1"),
//	    s3.WithCredentials(creds),
//	)
func New(ctx context.Context, opts ...s3types.Option) (*Client, error) {
	cc := resolveOptions(opts)

	cfg, err := loadConfig(ctx, cc)
	if err != nil {
		return nil, errors.NewError("init", err)
	}
	switch {
	case cc.Region != "":
		cfg.Region = cc.Region
	case cfg.Region == "":
		cfg.Region = DefaultRegion
	}
	if cc.MaxRetries > 0 {
		cfg.RetryMaxAttempts = cc.MaxRetries
	}

	pathStyle := cc.ForcePathStyle || cc.Endpoint != ""
	endpoint := cc.Endpoint
	sdk := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = pathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	cc.Logger.Debug("s3 client ready", "region", cfg.Region, "endpoint", endpoint, "path_style", pathStyle)
	return &Client{s3Client: sdk, config: cfg, logger: cc.Logger}, nil
}

func loadConfig(ctx context.Context, cc *s3types.ClientConfig) (aws.Config, error) {
	if cc.AWSConfig != nil {
		return *cc.AWSConfig, nil
	}
	var load []func(*config.LoadOptions) error
	if cc.Region != "" {
		load = append(load, config.WithRegion(cc.Region))
	}
	if cc.Credentials != nil {
		load = append(load, config.WithCredentialsProvider(staticCredentials(*cc.Credentials)))
	}
	return config.LoadDefaultConfig(ctx, load...)
}

// NewWithClient wraps an existing S3API, typically a test double.
func NewWithClient(api s3api.S3API, opts ...s3types.Option) *Client {
	cc := resolveOptions(opts)
	return &Client{s3Client: api, config: aws.Config{Region: cc.Region}, logger: cc.Logger}
}

// Region is the region requests are signed for.
func (c *Client) Region() string {
	return c.config.Region
}

func resolveOptions(opts []s3types.Option) *s3types.ClientConfig {
	cc := &s3types.ClientConfig{}
	for _, opt := range opts {
		opt(cc)
	}
	if cc.Logger == nil {
		cc.Logger = slog.New(slog.DiscardHandler)
	}
	return cc
}
