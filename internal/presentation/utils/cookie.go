package utils

import (
	"net/http"
	"time"
)

// CookieAuthToken carries the bearer token for one room membership slot.
// Same name the browser clients already use.
const CookieAuthToken = "x-auth-token"

func GetAuthToken(r *http.Request) string {
	cookie, err := r.Cookie(CookieAuthToken)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SetAuthTokenCookie binds the token to the client for at most the room's
// remaining lifetime; once the room is gone the cookie is dead weight anyway.
func SetAuthTokenCookie(w http.ResponseWriter, token string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieAuthToken,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   int(maxAge.Seconds()),
		SameSite: http.SameSiteStrictMode,
		Secure:   true,
	})
}
