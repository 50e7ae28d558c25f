package secrets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecret_Formatting(t *testing.T) {
	s := New("hunter2")

	assert.Equal(t, "hunter2", s.Reveal())
	assert.Equal(t, "[REDACTED]", s.String())
	assert.NotContains(t, fmt.Sprintf("%v %+v %#v %s", s, s, s, s), "hunter2")

	out, err := json.Marshal(struct{ Key Secret }{Key: s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Key":"[REDACTED]"}`, string(out))
}

func TestSecret_Zero(t *testing.T) {
	var s Secret
	assert.True(t, s.IsZero())
	assert.Equal(t, "", s.String())
	assert.True(t, New("").IsZero())
}

func TestSecret_Clear(t *testing.T) {
	s := New("abc")
	s.Clear()
	assert.Equal(t, "\x00\x00\x00", s.Reveal())
}

func TestCredentials(t *testing.T) {
	tests := []struct {
		name        string
		creds       Credentials
		wantOK      bool
		wantMissing []string
	}{
		{
			name:   "complete",
			creds:  Credentials{AccessKeyID: New("id"), SecretAccessKey: New("secret")},
			wantOK: true,
		},
		{
			name:        "missing secret",
			creds:       Credentials{AccessKeyID: New("id")},
			wantMissing: []string{"SECRET"},
		},
		{
			name:        "missing both",
			wantMissing: []string{"ID", "SECRET"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantOK, tt.creds.IsComplete())
			assert.Equal(t, tt.wantMissing, tt.creds.Missing("ID", "SECRET"))
		})
	}
}

func TestCredentials_LogValue(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	creds := Credentials{AccessKeyID: New("AKIAEXAMPLE"), SecretAccessKey: New("shh")}

	logger.Info("storage", "credentials", creds, "key", creds.SecretAccessKey)

	assert.NotContains(t, buf.String(), "AKIAEXAMPLE")
	assert.NotContains(t, buf.String(), "shh")
	assert.Contains(t, buf.String(), "credentials=[REDACTED]")
}
