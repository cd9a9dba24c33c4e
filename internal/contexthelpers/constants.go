package contexthelpers

type contextKey string

const visitorTokenContextKey = contextKey("visitorToken")
const cspNonceContextKey = contextKey("cspNonce")
