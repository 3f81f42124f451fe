package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	flashCookie = "flux_flash"
	flashTTL    = 5 * time.Minute
)

// Flash is a one-shot message shown on the next rendered page. With a Link
// it renders as Prefix, then LinkText linking to Link, then Message.
type Flash struct {
	Category string `json:"category"`
	Prefix   string `json:"prefix,omitempty"`
	Link     string `json:"link,omitempty"`
	LinkText string `json:"link_text,omitempty"`
	Message  string `json:"message"`
}

type flashClaims struct {
	jwt.RegisteredClaims
	Flashes []Flash `json:"flashes"`
}

type flasher struct {
	secret []byte
	secure bool
	now    func() time.Time
}

func (f flasher) sign(flashes []Flash) (string, error) {
	if len(f.secret) == 0 {
		return "", errors.New("secret key not configured")
	}
	now := f.now()
	claims := flashClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(flashTTL)),
		},
		Flashes: flashes,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(f.secret)
}

func (f flasher) parse(token string) ([]Flash, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(f.now),
	)
	claims := &flashClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return f.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid flash token")
	}
	return claims.Flashes, nil
}

// add queues a flash, keeping any not yet shown.
func (f flasher) add(w http.ResponseWriter, r *http.Request, fl Flash) error {
	pending, _ := f.pending(r)
	token, err := f.sign(append(pending, fl))
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(flashTTL / time.Second),
		HttpOnly: true,
		Secure:   f.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (f flasher) pending(r *http.Request) ([]Flash, error) {
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return nil, nil
	}
	return f.parse(c.Value)
}

// consume returns queued flashes and clears the cookie. A tampered or
// expired cookie yields nothing.
func (f flasher) consume(w http.ResponseWriter, r *http.Request) []Flash {
	if _, err := r.Cookie(flashCookie); err != nil {
		return nil
	}
	flashes, _ := f.pending(r)
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   f.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return flashes
}
