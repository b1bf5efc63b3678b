package web

import (
	"context"
	"net/http"

	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/core"
	"github.com/djedjiga-matrix/Crm-gestion-bases/internal/web/middleware"
)

// withRequestMetadata adds the requester IP and User-Agent to ctx for the
// import logs. RemoteAddr has already been resolved by TrustedRealIP.
func withRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithIPAddress(ctx, middleware.ClientIP(r))
	return core.ContextWithUserAgent(ctx, r.UserAgent())
}
