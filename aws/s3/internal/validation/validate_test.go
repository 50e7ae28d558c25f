package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/heroku/buildpacks-release-phase/aws/s3/errors"
)

func TestValidateObjectKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "simple", key: "release-42.tgz"},
		{name: "with prefix", key: "apps/web/release-42.tgz"},
		{name: "escaped id", key: "release-a%2Fb.tgz"},
		{name: "dots inside segment", key: "release-1..2.tgz"},
		{name: "empty", key: "", wantErr: true},
		{name: "parent segment", key: "apps/../release-42.tgz", wantErr: true},
		{name: "leading parent", key: "../release-42.tgz", wantErr: true},
		{name: "absolute", key: "/release-42.tgz", wantErr: true},
		{name: "control character", key: "release-\n.tgz", wantErr: true},
		{name: "too long", key: strings.Repeat("a", 1025), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateObjectKey(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrInvalidObjectKey)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidatePrefix(t *testing.T) {
	assert.NoError(t, ValidatePrefix(""))
	assert.NoError(t, ValidatePrefix("apps/release-"))
	assert.ErrorIs(t, ValidatePrefix("../apps"), errors.ErrInvalidObjectKey)
}
