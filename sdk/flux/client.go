// Package flux is a typed client for the Flux organisational-directory API.
package flux

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	DefaultVersion = "v1"
	DefaultTimeout = 5 * time.Second

	maxErrorBody = 4 << 10
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	Version    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     hclog.Logger
}

// Client talks to one Flux API deployment.
type Client struct {
	base    string
	timeout time.Duration
	http    *http.Client
	log     hclog.Logger

	Organisations *Organisations
	Programmes    *Programmes
	Projects      *Projects
	Grades        *Grades
	Practices     *Practices
	Roles         *Roles
	People        *People
	Locations     *Locations
}

// New builds a client from cfg, applying defaults for empty fields.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("flux: base url is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("flux: invalid base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("flux: base url %q must be absolute", cfg.BaseURL)
	}
	version := strings.Trim(cfg.Version, "/")
	if version == "" {
		version = DefaultVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	c := &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/") + "/" + version,
		timeout: timeout,
		http:    hc,
		log:     logger,
	}
	c.Organisations = &Organisations{r: resource[Organisation]{c: c, name: "organisation"}}
	c.Programmes = &Programmes{r: resource[Programme]{c: c, name: "programme", collection: "programmes"}}
	c.Projects = &Projects{r: resource[Project]{c: c, name: "project", collection: "projects"}}
	c.Grades = &Grades{r: resource[Grade]{c: c, name: "grade", collection: "grades"}}
	c.Practices = &Practices{r: resource[Practice]{c: c, name: "practice", collection: "practices"}}
	c.Roles = &Roles{r: resource[Role]{c: c, name: "role", collection: "roles"}}
	c.People = &People{r: resource[Person]{c: c, name: "person", collection: "people", validates: true}}
	c.Locations = &Locations{r: resource[Location]{c: c, name: "location", collection: "locations"}}
	return c, nil
}

// Timeout returns the per-request timeout.
func (c *Client) Timeout() time.Duration { return c.timeout }

type response struct {
	status int
	body   []byte
}

// do performs one request. Transport failures come back as *Error; HTTP
// statuses are left for the caller to classify.
func (c *Client) do(ctx context.Context, op operation, resourceName, endpoint string, body any) (response, error) {
	fail := func(kind, cause error) error {
		return &Error{Op: op.name, Resource: resourceName, Err: kind, cause: cause}
	}
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return response{}, fail(ErrUnexpected, fmt.Errorf("encode body: %w", err))
		}
		reader = bytes.NewReader(buf)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, op.method, c.base+"/"+strings.TrimLeft(endpoint, "/"), reader)
	if err != nil {
		return response{}, fail(ErrUnexpected, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		kind := transportKind(err)
		c.log.Warn("request failed", "method", op.method, "url", req.URL.String(), "error", err)
		return response{}, fail(kind, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, fail(transportKind(err), fmt.Errorf("read body: %w", err))
	}
	c.log.Debug("request", "method", op.method, "url", req.URL.String(), "status", resp.StatusCode, "duration", time.Since(start))
	return response{status: resp.StatusCode, body: data}, nil
}

func orgPath(orgID string, parts ...string) string {
	segs := []string{"organisations", url.PathEscape(orgID)}
	for _, p := range parts {
		segs = append(segs, url.PathEscape(p))
	}
	return strings.Join(segs, "/")
}

func withQuery(endpoint string, f Filter) string {
	if len(f) == 0 {
		return endpoint
	}
	q := url.Values{}
	for k, v := range f {
		q.Set(k, v)
	}
	return endpoint + "?" + q.Encode()
}

func excerpt(body []byte) string {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return string(body)
}
