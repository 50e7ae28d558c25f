package validation

import (
	"strings"
	"unicode"

	"github.com/heroku/buildpacks-release-phase/aws/s3/errors"
)

// maxKeyLength is the S3 limit on object key length in bytes.
const maxKeyLength = 1024

// ValidateObjectKey validates that an object key is acceptable to S3 and
// cannot be interpreted as a path escaping its prefix.
func ValidateObjectKey(key string) error {
	if key == "" {
		return errors.NewError("validateObjectKey", errors.ErrInvalidObjectKey).
			WithMessage("object key cannot be empty")
	}
	return validateKeyish("validateObjectKey", key)
}

// ValidatePrefix validates a listing prefix. The empty prefix is valid.
func ValidatePrefix(prefix string) error {
	if prefix == "" {
		return nil
	}
	return validateKeyish("validatePrefix", prefix)
}

func validateKeyish(op, key string) error {
	if len(key) > maxKeyLength {
		return errors.NewError(op, errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage("object key cannot exceed 1024 bytes")
	}

	if hasPathTraversal(key) {
		return errors.NewError(op, errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage("object key cannot contain path traversal segments")
	}

	if hasControlCharacters(key) {
		return errors.NewError(op, errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage("object key cannot contain control characters")
	}

	return nil
}

// hasPathTraversal reports whether key is absolute or has a ".." segment.
// Dots inside a segment (release-1..2.tgz) are fine.
func hasPathTraversal(key string) bool {
	if strings.HasPrefix(key, "/") {
		return true
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

func hasControlCharacters(key string) bool {
	for _, char := range key {
		if unicode.IsControl(char) {
			return true
		}
	}
	return false
}
