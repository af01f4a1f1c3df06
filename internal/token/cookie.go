// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package token

import (
	"net/http"
	"time"
)

// CookieName is the cookie that carries the token between browser and
// services.
const CookieName = "Authentication"

// Cookie returns the Set-Cookie value for an issued token. Expires and
// MaxAge both derive from the token's own expiry.
func Cookie(is Issued, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    is.Token,
		Path:     "/",
		Expires:  is.ExpiresAt,
		MaxAge:   int(is.ExpiresAt.Sub(is.IssuedAt) / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearCookie returns a cookie that makes the browser drop the token.
func ClearCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// FromRequest returns the token in r's Authentication cookie, or "".
func FromRequest(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
