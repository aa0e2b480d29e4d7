package mcp

import (
	"context"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tillpoint/possync/internal/transport"
)

type contextKey int

const tenantIDKey contextKey = iota

func getTenantID(ctx context.Context) string {
	v, _ := ctx.Value(tenantIDKey).(string)
	return v
}

// TenantResolver resolves a tenant ID from a bearer token. It is the same
// contract the remote store's HTTP surface authenticates with.
type TenantResolver = transport.TenantResolver

func isHandshake(method string) bool {
	return method == "initialize" || method == "ping" || strings.HasPrefix(method, "notifications/")
}

// authMiddleware scopes each MCP request to the tenant behind its bearer
// token. A tenant header, when sent, must agree with the token.
func authMiddleware(resolver TenantResolver) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			if isHandshake(method) {
				return next(ctx, method, req)
			}

			extra := req.GetExtra()
			if extra == nil || extra.Header == nil {
				return nil, fmt.Errorf("%w: missing headers", transport.ErrUnauthorized)
			}

			token, ok := transport.BearerToken(extra.Header.Get("Authorization"))
			if !ok {
				return nil, fmt.Errorf("%w: missing bearer token", transport.ErrUnauthorized)
			}
			tenantID, err := resolver.ResolveTenant(ctx, token)
			if err != nil || tenantID == "" {
				return nil, fmt.Errorf("%w: invalid bearer token", transport.ErrUnauthorized)
			}
			if claimed := extra.Header.Get(transport.TenantHeader); claimed != "" && claimed != tenantID {
				return nil, fmt.Errorf("%w: token does not belong to tenant %q", transport.ErrUnauthorized, claimed)
			}

			return next(context.WithValue(ctx, tenantIDKey, tenantID), method, req)
		}
	}
}

// noAuthMiddleware pins every request to one tenant. Stdio serves a single
// terminal, so there is nothing to authenticate.
func noAuthMiddleware(defaultTenant string) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			return next(context.WithValue(ctx, tenantIDKey, defaultTenant), method, req)
		}
	}
}
