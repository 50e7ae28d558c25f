package artifacts

import (
	"net/url"
	"strings"

	"github.com/heroku/buildpacks-release-phase/archive"
	rperrors "github.com/heroku/buildpacks-release-phase/errors"
)

// NamePrefix starts every artifact name.
const NamePrefix = "release-"

const upperhex = "0123456789ABCDEF"

// ValidateReleaseID rejects empty identifiers and identifiers carrying
// control characters.
func ValidateReleaseID(releaseID string) error {
	const op = "artifacts.release_id"

	if releaseID == "" {
		return rperrors.New(rperrors.CodeInvalidConfig, op, "RELEASE_ID is required")
	}
	for i := 0; i < len(releaseID); i++ {
		if c := releaseID[i]; c < 0x20 || c == 0x7f {
			return rperrors.Newf(rperrors.CodeInvalidConfig, op,
				"RELEASE_ID contains control character 0x%02x at byte %d", c, i)
		}
	}
	return nil
}

// ArchiveName returns "release-<id>.tgz" with every byte of id outside
// [A-Za-z0-9._-] percent-encoded.
func ArchiveName(releaseID string) (string, error) {
	if err := ValidateReleaseID(releaseID); err != nil {
		return "", err
	}
	return NamePrefix + escapeID(releaseID) + archive.Extension, nil
}

// ParseArchiveName reverses ArchiveName. ok is false for names that are
// not artifact names, including names ArchiveName would never produce
// such as lower-case or needless escapes.
func ParseArchiveName(name string) (releaseID string, ok bool) {
	if !strings.HasPrefix(name, NamePrefix) || !strings.HasSuffix(name, archive.Extension) {
		return "", false
	}
	escaped := strings.TrimSuffix(strings.TrimPrefix(name, NamePrefix), archive.Extension)
	if escaped == "" || strings.Contains(escaped, "/") {
		return "", false
	}
	id, err := url.PathUnescape(escaped)
	if err != nil || ValidateReleaseID(id) != nil || escapeID(id) != escaped {
		return "", false
	}
	return id, true
}

func escapeID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0x0f])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '.', c == '_', c == '-':
		return true
	default:
		return false
	}
}
