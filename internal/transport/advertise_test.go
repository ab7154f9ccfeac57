package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAdvertiseAddrUsesExplicitValue(t *testing.T) {
	addr, err := ResolveAdvertiseAddr("10.0.0.9:7280", ":7280")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9:7280", addr)
}

func TestResolveAdvertiseAddrReusesBindHost(t *testing.T) {
	addr, err := ResolveAdvertiseAddr("", "10.0.0.5:7280")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:7280", addr)
}

func TestResolveAdvertiseAddrRejectsInvalidBindAddr(t *testing.T) {
	_, err := ResolveAdvertiseAddr("", "not-a-valid-addr")
	assert.Error(t, err)
}
