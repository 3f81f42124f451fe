package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	csrfCookie = "flux_csrf"
	csrfField  = "csrf_token"
	csrfTTL    = time.Hour

	csrfExpiredMessage = "The form you were submitting has expired. Please try again."
)

var errCSRF = errors.New("the CSRF token is missing or invalid")

// csrfClaims bind a form token to the nonce held in the visitor's cookie.
type csrfClaims struct {
	jwt.RegisteredClaims
	Nonce string `json:"nonce"`
}

type csrfGuard struct {
	secret []byte
	secure bool
	now    func() time.Time
}

type csrfKey struct{}

func csrfTokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(csrfKey{}).(string)
	return token
}

// nonce returns the visitor's nonce, issuing a cookie for a new one.
func (g csrfGuard) nonce(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(csrfCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}
	nonce := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookie,
		Value:    nonce,
		Path:     "/",
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nonce
}

func (g csrfGuard) token(nonce string) (string, error) {
	now := g.now()
	claims := csrfClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(csrfTTL)),
		},
		Nonce: nonce,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
}

func (g csrfGuard) verify(token, nonce string) error {
	if token == "" {
		return errCSRF
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(g.now),
		jwt.WithExpirationRequired(),
	)
	claims := &csrfClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return g.secret, nil
	})
	if err != nil || !parsed.Valid {
		return errCSRF
	}
	if claims.Nonce == "" || claims.Nonce != nonce {
		return errCSRF
	}
	return nil
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

// csrfProtect rejects unsafe requests whose form token does not match the
// visitor's nonce cookie. A rejection flashes a notice and sends the visitor
// back to the form.
func (s *server) csrfProtect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonce := s.csrf.nonce(w, r)
		if !safeMethod(r.Method) {
			if err := s.csrf.verify(r.PostFormValue(csrfField), nonce); err != nil {
				s.log.Error(fmt.Sprintf("%d: %s - %s", http.StatusBadRequest, err, requestURL(r)))
				s.notify(w, r, Flash{Category: "info", Message: csrfExpiredMessage}, r.URL.RequestURI())
				return
			}
		}
		token, err := s.csrf.token(nonce)
		if err != nil {
			s.log.Error("sign csrf token", "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfKey{}, token)))
	})
}
