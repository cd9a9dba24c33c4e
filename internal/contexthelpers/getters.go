package contexthelpers

import (
	"context"
)

// VisitorToken identifies the browser session that submitted investigations. It is empty outside the visitor
// middleware.
func VisitorToken(ctx context.Context) string {
	token, ok := ctx.Value(visitorTokenContextKey).(string)
	if !ok {
		return ""
	}

	return token
}

func CSPNonce(ctx context.Context) string {
	nonce, ok := ctx.Value(cspNonceContextKey).(string)
	if !ok {
		return ""
	}

	return nonce
}
