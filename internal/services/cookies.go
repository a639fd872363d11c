package services

import (
	"net/http"
	"time"

	"github.com/spf13/viper"
)

const baseCookieName = "sds.sesc"

// UseSecureCookies reports whether session cookies carry the Secure flag and
// the __Secure- name prefix. Enabled outside development.
func UseSecureCookies() bool {
	viper.SetDefault("environment", "development")
	return viper.GetString("environment") != "development"
}

// SessionCookieName returns the session cookie name for the current
// environment.
func SessionCookieName() string {
	if UseSecureCookies() {
		return "__Secure-" + baseCookieName
	}
	return baseCookieName
}

// NewSessionCookie builds the session cookie. Logout reuses it with an
// expiry one second in the past, which makes clients delete the cookie.
func NewSessionCookie(token string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName(),
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   UseSecureCookies(),
		SameSite: http.SameSiteLaxMode,
	}
}
