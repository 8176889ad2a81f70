package ratelimit

import (
	"net/http"
	"strings"
)

const (
	HeaderForwardedFor = "X-Forwarded-For"
	HeaderRealIP       = "X-Real-IP"

	unknownAddr = "unknown"
)

// DeriveKey scopes a quota to (identity, path). An authenticated user keeps the
// same bucket regardless of the address they connect from.
func DeriveKey(path, userID, clientAddr string) string {
	if userID != "" {
		return "user:" + userID + ":" + path
	}
	if clientAddr == "" {
		clientAddr = unknownAddr
	}
	return "ip:" + clientAddr + ":" + path
}

// ClientAddress picks the first X-Forwarded-For entry, then X-Real-IP,
// then "unknown".
func ClientAddress(h http.Header) string {
	if h == nil {
		return unknownAddr
	}
	if xff := h.Get(HeaderForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(h.Get(HeaderRealIP)); ip != "" {
		return ip
	}
	return unknownAddr
}
