// Package errors is the release phase error model. Every failure carries an
// ErrorCode that places it in one of four classes: configuration, command
// execution, storage or archive format. The CLI turns the class into an
// exit status.
package errors

// ErrorCode names a failure condition.
type ErrorCode string

const (
	CodeNotFound  ErrorCode = "NOT_FOUND"
	CodeForbidden ErrorCode = "FORBIDDEN"

	// CodeInvalidInput is a bad argument from the caller.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"
	// CodeInvalidConfig is missing or malformed configuration, detected
	// before any side effect.
	CodeInvalidConfig ErrorCode = "INVALID_CONFIGURATION"

	CodeNetwork ErrorCode = "NETWORK_ERROR"
	CodeStorage ErrorCode = "STORAGE_ERROR"
	// CodeArchiveFormat is a tarball that cannot be read or written.
	CodeArchiveFormat ErrorCode = "ARCHIVE_FORMAT_ERROR"

	// CodeExecutionFailed is a release command that could not start or
	// exited non-zero.
	CodeExecutionFailed ErrorCode = "EXECUTION_FAILED"
	// CodeBuildFailed is the same for the release-build command.
	CodeBuildFailed ErrorCode = "BUILD_FAILED"
	CodeCanceled    ErrorCode = "CANCELED"

	CodeInternal ErrorCode = "INTERNAL_ERROR"
	CodeUnknown  ErrorCode = "UNKNOWN"
)

// IsConfiguration reports whether the code belongs to the configuration class.
func (c ErrorCode) IsConfiguration() bool {
	return c == CodeInvalidConfig || c == CodeInvalidInput
}

// IsExecution reports whether the code belongs to the command execution class.
func (c ErrorCode) IsExecution() bool {
	return c == CodeExecutionFailed || c == CodeBuildFailed
}

// IsStorage reports whether the code belongs to the storage class.
// Archive format errors surface as storage errors at the store boundary.
func (c ErrorCode) IsStorage() bool {
	switch c {
	case CodeStorage, CodeNotFound, CodeForbidden, CodeNetwork, CodeArchiveFormat:
		return true
	default:
		return false
	}
}
