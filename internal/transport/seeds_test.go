package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedResolverResolvesLiteralIPs(t *testing.T) {
	r, err := NewSeedResolver([]string{"10.0.0.1:7280", "10.0.0.2"}, ":7280")
	require.NoError(t, err)

	addrs, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1:7280", "10.0.0.2:7280"}, addrs)
}

func TestSeedResolverEmptySeedsReturnsNil(t *testing.T) {
	r, err := NewSeedResolver(nil, ":7280")
	require.NoError(t, err)

	addrs, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Empty(t, addrs)
}

func TestSeedResolverDedupesAndSorts(t *testing.T) {
	r, err := NewSeedResolver([]string{"10.0.0.2:7280", "10.0.0.1:7280", "10.0.0.1:7280"}, ":7280")
	require.NoError(t, err)

	addrs, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1:7280", "10.0.0.2:7280"}, addrs)
}

func TestNewSeedResolverRejectsInvalidBindAddr(t *testing.T) {
	_, err := NewSeedResolver([]string{"10.0.0.1"}, "not-a-valid-addr")
	assert.Error(t, err)
}
