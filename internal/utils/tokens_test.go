package utils

import (
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOTPCode_Range(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := NewOTPCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 100000)
		assert.LessOrEqual(t, n, 999999)
	}
}

func TestNewReferenceNumber_Format(t *testing.T) {
	now := time.UnixMilli(1718000123456)
	ref, err := NewReferenceNumber(now)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^ID-123456-\d{3}$`), ref)
}
