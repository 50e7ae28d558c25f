package artifacts

import (
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	s3client "github.com/heroku/buildpacks-release-phase/aws/s3"
	"github.com/heroku/buildpacks-release-phase/aws/s3/s3types"
	rperrors "github.com/heroku/buildpacks-release-phase/errors"
)

// Backend names the storage backend of a Location.
type Backend string

const (
	BackendFilesystem  Backend = "file"
	BackendObjectStore Backend = "s3"
)

// awsHost matches virtual-hosted S3 hosts that carry their region,
// e.g. mybucket.s3.eu-west-1.amazonaws.com.
var awsHost = regexp.MustCompile(`^([^.]+)\.s3\.([^.]+)\.amazonaws\.com$`)

// Location addresses the artifact store root or, when Key is set, one
// artifact within it.
type Location struct {
	Backend Backend

	// Path is the absolute root directory of a filesystem store.
	Path string

	// Bucket, Prefix, Region, Style and Endpoint address an object store.
	Bucket   string
	Prefix   string
	Region   string
	Style    s3types.AddressingStyle
	Endpoint string

	// Key is the artifact name for filesystem stores and the full object
	// key for object stores. It is empty for the store root.
	Key string
}

// ParseLocation parses a file:// or s3:// URL. region is used for s3 URLs
// whose host does not name a region; endpoint, if set, targets an
// S3-compatible service with path-style addressing.
func ParseLocation(rawURL, region, endpoint string) (Location, error) {
	const op = "artifacts.parse_location"

	if strings.TrimSpace(rawURL) == "" {
		return Location{}, rperrors.New(rperrors.CodeInvalidConfig, op, "STATIC_ARTIFACTS_URL is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return Location{}, rperrors.Wrap(err, rperrors.CodeInvalidConfig, op, "STATIC_ARTIFACTS_URL is not a valid URL")
	}

	switch Backend(strings.ToLower(u.Scheme)) {
	case BackendFilesystem:
		return parseFileLocation(u)
	case BackendObjectStore:
		return parseObjectLocation(u, region, endpoint)
	default:
		return Location{}, rperrors.Newf(rperrors.CodeInvalidConfig, op,
			"STATIC_ARTIFACTS_URL scheme %q is not supported, expected file or s3", u.Scheme)
	}
}

func parseFileLocation(u *url.URL) (Location, error) {
	const op = "artifacts.parse_location"

	if u.Host != "" && u.Host != "localhost" {
		return Location{}, rperrors.Newf(rperrors.CodeInvalidConfig, op,
			"file URL host %q is not local, path must be absolute as in file:///srv/artifacts", u.Host)
	}
	if u.Path == "" || !filepath.IsAbs(u.Path) {
		return Location{}, rperrors.Newf(rperrors.CodeInvalidConfig, op,
			"file URL path %q must be absolute", u.Path)
	}
	return Location{Backend: BackendFilesystem, Path: filepath.Clean(u.Path)}, nil
}

func parseObjectLocation(u *url.URL, region, endpoint string) (Location, error) {
	const op = "artifacts.parse_location"

	if u.Host == "" {
		return Location{}, rperrors.New(rperrors.CodeInvalidConfig, op, "s3 URL has no bucket")
	}

	loc := Location{
		Backend: BackendObjectStore,
		Bucket:  u.Host,
		Prefix:  strings.Trim(u.Path, "/"),
		Region:  strings.TrimSpace(region),
		Style:   s3types.VirtualHostedStyle,
	}
	if m := awsHost.FindStringSubmatch(u.Host); m != nil {
		loc.Bucket, loc.Region = m[1], m[2]
	}
	if loc.Region == "" {
		loc.Region = s3client.DefaultRegion
	}
	if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
		loc.Endpoint = endpoint
		loc.Style = s3types.PathStyle
	}
	return loc, nil
}

// WithName returns the location of the artifact called name under l.
func (l Location) WithName(name string) Location {
	out := l
	if l.Backend == BackendObjectStore {
		out.Key = l.objectKey(name)
	} else {
		out.Key = name
	}
	return out
}

func (l Location) objectKey(name string) string {
	if l.Prefix == "" {
		return name
	}
	return l.Prefix + "/" + name
}

// String renders the location as a URL.
func (l Location) String() string {
	switch l.Backend {
	case BackendFilesystem:
		p := l.Path
		if l.Key != "" {
			p = filepath.Join(p, l.Key)
		}
		return (&url.URL{Scheme: string(BackendFilesystem), Path: p}).String()
	case BackendObjectStore:
		p := l.Prefix
		if l.Key != "" {
			p = l.Key
		}
		if p != "" {
			p = path.Join("/", p)
		}
		return (&url.URL{Scheme: string(BackendObjectStore), Host: l.Bucket, Path: p}).String()
	default:
		return ""
	}
}
