package auth

import (
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

// CookieName is the name of the session cookie.
const CookieName = "iaengine_session"

// Cookies signs and reads the session cookie.
type Cookies struct {
	codec  *securecookie.SecureCookie
	ttl    time.Duration
	secure bool
}

// NewCookies builds a cookie codec signed with secret. Secure marks the cookie HTTPS-only.
func NewCookies(secret string, ttl time.Duration, secure bool) *Cookies {
	codec := securecookie.New([]byte(secret), nil)
	codec.MaxAge(int(ttl / time.Second))
	codec.SetSerializer(securecookie.JSONEncoder{})
	return &Cookies{codec: codec, ttl: ttl, secure: secure}
}

// Set writes a signed cookie carrying token.
func (c *Cookies) Set(w http.ResponseWriter, token string) error {
	value, err := c.codec.Encode(CookieName, token)
	if err != nil {
		return err
	}
	http.SetCookie(w, c.cookie(value, int(c.ttl/time.Second)))
	return nil
}

// Token returns the session token of r if the cookie is present and correctly signed.
func (c *Cookies) Token(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	var token string
	if err := c.codec.Decode(CookieName, cookie.Value, &token); err != nil {
		return "", false
	}
	return token, token != ""
}

// Clear expires the cookie in the browser.
func (c *Cookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie("", -1))
}

func (c *Cookies) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
