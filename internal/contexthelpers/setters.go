package contexthelpers

import (
	"context"
	"net/http"
)

func SetVisitorToken(r *http.Request, token string) *http.Request {
	ctx := context.WithValue(r.Context(), visitorTokenContextKey, token)
	return r.WithContext(ctx)
}

func SetCSPNonce(r *http.Request, nonce string) *http.Request {
	ctx := context.WithValue(r.Context(), cspNonceContextKey, nonce)
	return r.WithContext(ctx)
}
