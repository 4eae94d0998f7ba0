package util

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProxyFunc_ExplicitProxies(t *testing.T) {
	fn := NewProxyFunc("http://proxy.internal:3128", "http://sproxy.internal:3128", "")

	req := httptest.NewRequest(http.MethodGet, "http://example.org/paper.pdf", nil)
	u, err := fn(req)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "proxy.internal:3128", u.Host)

	req = httptest.NewRequest(http.MethodGet, "https://example.org/paper.pdf", nil)
	u, err = fn(req)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "sproxy.internal:3128", u.Host)
}

func TestNewProxyFunc_NoProxyList(t *testing.T) {
	fn := NewProxyFunc("http://proxy.internal:3128", "", "example.org, internal.lan")

	for _, target := range []string{
		"http://example.org/x",
		"http://sub.example.org/x",
		"http://db.internal.lan/x",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		u, err := fn(req)
		require.NoError(t, err)
		assert.Nil(t, u, "expected direct connection for %s", target)
	}

	req := httptest.NewRequest(http.MethodGet, "http://elsewhere.net/x", nil)
	u, err := fn(req)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "proxy.internal:3128", u.Host)
}
