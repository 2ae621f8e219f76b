package auth

import (
	"net/http"
	"time"

	"github.com/kcrp/rp-dashboard/internal/domain/session"
	"github.com/kcrp/rp-dashboard/internal/middleware"
)

const (
	refreshCookieName = "rp_refresh"
	stateCookieName   = "rp_oauth_state"
	stateCookieTTL    = 10 * time.Minute
)

// CookieConfig controls the browser session cookies.
type CookieConfig struct {
	Domain     string
	Secure     bool
	RefreshTTL time.Duration
}

func (c CookieConfig) set(w http.ResponseWriter, name, value, path string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   c.Domain,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c CookieConfig) clear(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Domain:   c.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c CookieConfig) setSession(w http.ResponseWriter, tokens *session.Tokens) {
	c.set(w, middleware.AccessCookieName, tokens.AccessToken, "/", time.Duration(tokens.ExpiresIn)*time.Second)
	if tokens.RefreshToken != "" {
		c.set(w, refreshCookieName, tokens.RefreshToken, "/api/auth", c.RefreshTTL)
	}
}

func (c CookieConfig) clearSession(w http.ResponseWriter) {
	c.clear(w, middleware.AccessCookieName, "/")
	c.clear(w, refreshCookieName, "/api/auth")
}

func refreshFromRequest(r *http.Request, body string) string {
	if body != "" {
		return body
	}
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		return cookie.Value
	}
	return ""
}
