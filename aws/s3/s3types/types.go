// Package s3types holds the value types shared by the s3 client and its options.
package s3types

import (
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/heroku/buildpacks-release-phase/secrets"
)

// Object is one listing entry.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
}

// UploadResult describes a stored object. Size is -1 when the body length
// was not known up front.
type UploadResult struct {
	Key         string
	Size        int64
	ETag        string
	ContentType string
	Duration    time.Duration
}

// DownloadResult describes a fetched object. Size counts bytes written.
type DownloadResult struct {
	Key      string
	Size     int64
	ETag     string
	Duration time.Duration
}

// AddressingStyle is where the bucket name goes in a request URL.
type AddressingStyle string

const (
	VirtualHostedStyle AddressingStyle = "virtual"
	PathStyle          AddressingStyle = "path"
)

// ClientConfig collects the client options before the SDK config is built.
type ClientConfig struct {
	Region         string
	Endpoint       string
	MaxRetries     int
	ForcePathStyle bool
	Credentials    *secrets.Credentials
	AWSConfig      *aws.Config
	Logger         *slog.Logger
}

// UploadConfig collects per-upload options.
type UploadConfig struct {
	ContentType string
	Metadata    map[string]string
}

type (
	Option       func(*ClientConfig)
	UploadOption func(*UploadConfig)
)
