package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret!", hash)

	assert.NoError(t, VerifyPassword(hash, "s3cret!"))
	assert.Error(t, VerifyPassword(hash, "wrong"))
}
