package prefixed_uuid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndString(t *testing.T) {
	id := New("req")
	assert.Equal(t, "req", id.Prefix)
	assert.True(t, strings.HasPrefix(id.String(), "req-"))
	assert.False(t, id.IsZero())
}

func TestFromStringRoundTrip(t *testing.T) {
	original := New("session")
	parsed, err := FromString(original.String())
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}

func TestFromStringInvalid(t *testing.T) {
	_, err := FromString("noprefixhere")
	assert.Error(t, err)

	_, err = FromString("req-not-a-uuid")
	assert.Error(t, err)
}

func TestIsZero(t *testing.T) {
	var zero PrefixedUUID
	assert.True(t, zero.IsZero())
}
