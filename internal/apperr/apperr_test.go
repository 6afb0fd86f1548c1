package apperr

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsKindThroughFmtWrap(t *testing.T) {
	base := errors.New("connection reset")
	err := fmt.Errorf("upload original: %w", Wrap(Upload, "storage.Upload", base))

	assert.True(t, IsKind(err, Upload))
	assert.False(t, IsKind(err, Database))
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "storage.Upload: upload")
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(Database, "op", nil))
	assert.NoError(t, Wrapf(Database, "op", nil, "id=%s", "x"))
}

func TestParseErrorSnippet(t *testing.T) {
	raw := strings.Repeat("x", 300)
	err := NewParseError(raw, nil)

	assert.Len(t, err.Snippet, 200)
	assert.True(t, strings.HasPrefix(err.Error(), "Could not parse response as JSON. Raw response: "))
	assert.True(t, IsKind(err, Parse))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}
