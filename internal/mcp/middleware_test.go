package mcp

import (
	"context"
	"net/http"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/tillpoint/possync/internal/transport"
)

func callWithHeader(h http.Header) *sdkmcp.CallToolRequest {
	return &sdkmcp.CallToolRequest{
		Params: &sdkmcp.CallToolParamsRaw{Name: "sync_status"},
		Extra:  &sdkmcp.RequestExtra{Header: h},
	}
}

func TestAuthMiddleware_ScopesTenant(t *testing.T) {
	var seen string
	next := func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
		seen = getTenantID(ctx)
		return &sdkmcp.CallToolResult{}, nil
	}
	handler := authMiddleware(transport.StaticResolver{"tok": "shop1"})(next)

	h := http.Header{}
	h.Set("Authorization", "Bearer tok")
	_, err := handler(context.Background(), "tools/call", callWithHeader(h))
	require.NoError(t, err)
	require.Equal(t, "shop1", seen)

	h.Set(transport.TenantHeader, "shop1")
	_, err = handler(context.Background(), "tools/call", callWithHeader(h))
	require.NoError(t, err)
}

func TestAuthMiddleware_RejectsRequests(t *testing.T) {
	next := func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
		t.Fatal("handler must not run")
		return nil, nil
	}
	handler := authMiddleware(transport.StaticResolver{"tok": "shop1"})(next)

	headers := func(kv ...string) http.Header {
		h := http.Header{}
		for i := 0; i+1 < len(kv); i += 2 {
			h.Set(kv[i], kv[i+1])
		}
		return h
	}
	cases := map[string]http.Header{
		"missing":  headers(),
		"basic":    headers("Authorization", "Basic tok"),
		"unknown":  headers("Authorization", "Bearer nope"),
		"mismatch": headers("Authorization", "Bearer tok", transport.TenantHeader, "shop2"),
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := handler(context.Background(), "tools/call", callWithHeader(h))
			require.ErrorIs(t, err, transport.ErrUnauthorized)
		})
	}
}

func TestAuthMiddleware_SkipsHandshake(t *testing.T) {
	called := false
	next := func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
		called = true
		require.Empty(t, getTenantID(ctx))
		return nil, nil
	}
	handler := authMiddleware(transport.StaticResolver{})(next)

	_, err := handler(context.Background(), "notifications/initialized", callWithHeader(nil))
	require.NoError(t, err)
	require.True(t, called)
}
