// Package secrets holds the storage credentials the release phase reads from
// its environment. Values are kept out of logs and formatted output; callers
// read them explicitly with Reveal.
//
//	creds := secrets.Credentials{
//		AccessKeyID:     secrets.New(os.Getenv("STATIC_ARTIFACTS_ACCESS_KEY_ID")),
//		SecretAccessKey: secrets.New(os.Getenv("STATIC_ARTIFACTS_SECRET_ACCESS_KEY")),
//	}
//	slog.Info("storage", "credentials", creds) // credentials=[REDACTED]
package secrets

import "log/slog"

const redacted = "[REDACTED]"

// Secret is a sensitive string value. The zero value is an empty secret.
type Secret struct {
	value []byte
}

// New wraps value as a Secret.
func New(value string) Secret {
	if value == "" {
		return Secret{}
	}
	return Secret{value: []byte(value)}
}

// Reveal returns the plaintext value.
func (s Secret) Reveal() string {
	return string(s.value)
}

// IsZero reports whether the secret is empty.
func (s Secret) IsZero() bool {
	return len(s.value) == 0
}

// Clear zeroes the underlying bytes. Copies of the Secret made before Clear
// share the same storage and are cleared too.
func (s Secret) Clear() {
	for i := range s.value {
		s.value[i] = 0
	}
}

// String implements fmt.Stringer without exposing the value.
func (s Secret) String() string {
	if s.IsZero() {
		return ""
	}
	return redacted
}

// GoString implements fmt.GoStringer without exposing the value.
func (s Secret) GoString() string {
	return "secrets.Secret(" + s.String() + ")"
}

// MarshalText keeps the value out of encoded output.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// LogValue implements slog.LogValuer.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

// Credentials is a static access key pair for the object store.
type Credentials struct {
	AccessKeyID     Secret
	SecretAccessKey Secret
}

// IsComplete reports whether both halves of the key pair are present.
func (c Credentials) IsComplete() bool {
	return !c.AccessKeyID.IsZero() && !c.SecretAccessKey.IsZero()
}

// Missing returns the names of the absent halves, using the given labels.
func (c Credentials) Missing(idLabel, secretLabel string) []string {
	var missing []string
	if c.AccessKeyID.IsZero() {
		missing = append(missing, idLabel)
	}
	if c.SecretAccessKey.IsZero() {
		missing = append(missing, secretLabel)
	}
	return missing
}

// Clear zeroes both halves.
func (c Credentials) Clear() {
	c.AccessKeyID.Clear()
	c.SecretAccessKey.Clear()
}

// LogValue implements slog.LogValuer.
func (c Credentials) LogValue() slog.Value {
	if c.IsComplete() {
		return slog.StringValue(redacted)
	}
	return slog.StringValue("incomplete")
}
