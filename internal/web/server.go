// Package web is the server-rendered front end for the Flux directory.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"fluxweb/internal/httplog"
	"fluxweb/sdk/flux"
)

const (
	cookiesPolicyCookie = "cookies_policy"
	cookiesPolicyMaxAge = 31557600
)

// Config for the front-end handler.
type Config struct {
	Client        *flux.Client
	Logger        hclog.Logger
	SecretKey     string
	SecureCookies bool
	PerSecond     int
	PerMinute     int
	Now           func() time.Time
}

type server struct {
	client *flux.Client
	log    hclog.Logger
	pages  *renderer
	flash  flasher
	csrf   csrfGuard
	forms  formBinder
}

type orgKey struct{}

// New returns the front-end handler.
func New(cfg Config) (http.Handler, error) {
	if cfg.Client == nil {
		return nil, errors.New("web: flux client is required")
	}
	if cfg.SecretKey == "" {
		return nil, errors.New("web: secret key is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	pages, err := newRenderer(now)
	if err != nil {
		return nil, err
	}
	s := &server{
		client: cfg.Client,
		log:    logger,
		pages:  pages,
		flash:  flasher{secret: []byte(cfg.SecretKey), secure: cfg.SecureCookies, now: now},
		csrf:   csrfGuard{secret: []byte(cfg.SecretKey), secure: cfg.SecureCookies, now: now},
		forms:  newFormBinder(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.Middleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(securityHeaders(cfg.SecureCookies))
	r.Use(rateLimit(newLimiterStore(cfg.PerSecond, cfg.PerMinute, now), func(w http.ResponseWriter, r *http.Request) {
		s.errorPage(w, r, http.StatusTooManyRequests)
	}))
	r.Use(s.csrfProtect)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.errorPage(w, r, http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.errorPage(w, r, http.StatusMethodNotAllowed)
	})

	r.Get("/", s.index)
	r.Get("/cookies", s.cookies)
	r.Post("/cookies", s.cookies)
	r.Route("/organisations", func(r chi.Router) {
		mountTop(r, s, organisationPages)
		r.Route("/{org}", func(r chi.Router) {
			r.Use(s.requireUUID("org"), s.loadOrganisation)
			mountItem(r, s, organisationPages)
			mountScoped(r, s, programmePages)
			mountScoped(r, s, projectPages)
			mountScoped(r, s, gradePages, func(r chi.Router) { r.Get("/download", s.downloadGrades) })
			mountScoped(r, s, practicePages)
			mountScoped(r, s, rolePages)
			mountScoped(r, s, personPages)
			mountScoped(r, s, locationPages, func(r chi.Router) { r.Get("/download", s.downloadLocations) })
		})
	})
	return r, nil
}

// requireUUID 404s unless the named route parameter is a UUID.
func (s *server) requireUUID(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := uuid.Parse(chi.URLParam(r, param)); err != nil {
				s.errorPage(w, r, http.StatusNotFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// loadOrganisation fetches the organisation named in the path once per request.
func (s *server) loadOrganisation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		org, err := s.client.Organisations.Get(r.Context(), chi.URLParam(r, "org"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), orgKey{}, org)))
	})
}

func organisationFrom(ctx context.Context) flux.Organisation {
	org, _ := ctx.Value(orgKey{}).(flux.Organisation)
	return org
}

func (s *server) page(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	data.Flashes = append(s.flash.consume(w, r), data.Flashes...)
	data.CSRFToken = csrfTokenFrom(r.Context())
	if err := s.pages.render(w, status, name, data); err != nil {
		s.log.Error("render page", "page", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (s *server) index(w http.ResponseWriter, r *http.Request) {
	s.page(w, r, http.StatusOK, "index", pageData{})
}

func (s *server) cookies(w http.ResponseWriter, r *http.Request) {
	policy := map[string]string{"functional": "no"}
	title := "Cookies"
	if r.Method == http.MethodPost {
		var form cookiesForm
		errs, err := s.forms.bind(r, &form)
		if err != nil {
			s.errorPage(w, r, http.StatusBadRequest)
			return
		}
		if errs != nil {
			s.page(w, r, http.StatusOK, "cookies", pageData{Title: title, Content: cookiesView{Functional: "no", Error: errs["functional"]}})
			return
		}
		policy["functional"] = form.Functional
		data, _ := json.Marshal(policy)
		http.SetCookie(w, &http.Cookie{
			Name:     cookiesPolicyCookie,
			Value:    url.QueryEscape(string(data)),
			Path:     "/",
			MaxAge:   cookiesPolicyMaxAge,
			Secure:   s.flash.secure,
			SameSite: http.SameSiteLaxMode,
		})
		s.page(w, r, http.StatusOK, "cookies", pageData{
			Title:   title,
			Flashes: []Flash{{Category: "success", Message: "You’ve set your cookie preferences."}},
			Content: cookiesView{Functional: form.Functional},
		})
		return
	}
	if c, err := r.Cookie(cookiesPolicyCookie); err == nil {
		var stored map[string]string
		raw, _ := url.QueryUnescape(c.Value)
		if json.Unmarshal([]byte(raw), &stored) == nil && stored["functional"] != "" {
			policy["functional"] = stored["functional"]
		}
	}
	s.page(w, r, http.StatusOK, "cookies", pageData{Title: title, Content: cookiesView{Functional: policy["functional"]}})
}

var errorMessages = map[int]string{
	http.StatusBadRequest:          "The request could not be processed. Check what you entered and try again.",
	http.StatusNotFound:            "The page you were looking for could not be found.",
	http.StatusMethodNotAllowed:    "That action is not allowed here.",
	http.StatusRequestTimeout:      "The directory took too long to respond. Please try again.",
	http.StatusConflict:            "That would clash with an existing record.",
	http.StatusTooManyRequests:     "Too many requests. Please wait a moment and try again.",
	http.StatusInternalServerError: "Something went wrong. Please try again later.",
}

// fail renders the error page for a failed directory call.
func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var fe *flux.Error
	if errors.As(err, &fe) {
		s.log.Debug("directory call failed", "op", fe.Op, "resource", fe.Resource, "status", fe.StatusCode, "error", err)
	} else {
		s.log.Warn("request failed", "error", err)
	}
	s.errorPage(w, r, flux.HTTPStatus(err))
}

func (s *server) errorPage(w http.ResponseWriter, r *http.Request, status int) {
	title := http.StatusText(status)
	s.log.Error(fmt.Sprintf("%d: %s - %s", status, title, requestURL(r)))
	msg, ok := errorMessages[status]
	if !ok {
		msg = errorMessages[http.StatusInternalServerError]
	}
	s.page(w, r, status, "error", pageData{Title: title, Content: errorView{Status: status, Title: title, Message: msg}})
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// notify queues a flash and redirects to target.
func (s *server) notify(w http.ResponseWriter, r *http.Request, fl Flash, target string) {
	if err := s.flash.add(w, r, fl); err != nil {
		s.log.Error("set flash", "error", err)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
