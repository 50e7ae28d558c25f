// Package validation checks object keys and prefixes before they are sent
// to S3.
package validation
