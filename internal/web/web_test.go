package web

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"fluxweb/internal/db"
	"fluxweb/internal/migrate"
	"fluxweb/internal/stub"
	"fluxweb/sdk/flux"
)

type testSite struct {
	URL    string
	Client *flux.Client
	HTTP   *http.Client
}

type siteOptions struct {
	perSecond int
	perMinute int
	now       func() time.Time
}

func newTestSite(t *testing.T, opts siteOptions) *testSite {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	api, err := stub.New(stub.Config{DB: conn})
	if err != nil {
		t.Fatalf("build stub: %v", err)
	}
	apiSrv := httptest.NewServer(api)
	t.Cleanup(func() {
		apiSrv.Close()
		conn.Close()
	})
	client, err := flux.New(flux.Config{BaseURL: apiSrv.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	handler, err := New(Config{
		Client:    client,
		SecretKey: "test-secret",
		PerSecond: opts.perSecond,
		PerMinute: opts.perMinute,
		Now:       opts.now,
	})
	if err != nil {
		t.Fatalf("build site: %v", err)
	}
	site := httptest.NewServer(handler)
	t.Cleanup(site.Close)
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &testSite{URL: site.URL, Client: client, HTTP: &http.Client{Jar: jar}}
}

func (s *testSite) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := s.HTTP.Get(s.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp, readBody(t, resp)
}

var csrfInput = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

// post submits form the way a browser would, carrying the token from the
// form page at the same path.
func (s *testSite) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	_, page := s.get(t, path)
	m := csrfInput.FindStringSubmatch(page)
	if m == nil {
		t.Fatalf("GET %s: no csrf token in form", path)
	}
	values := url.Values{csrfField: {m[1]}}
	for k, v := range form {
		values[k] = v
	}
	resp, err := s.HTTP.PostForm(s.URL+path, values)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp, readBody(t, resp)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(data)
}

func (s *testSite) organisation(t *testing.T) flux.Organisation {
	t.Helper()
	org, err := s.Client.Organisations.Create(context.Background(), flux.OrganisationInput{Name: "Acme", Domain: "acme.com"})
	if err != nil {
		t.Fatalf("create organisation: %v", err)
	}
	return org
}

func expectContains(t *testing.T, body string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(body, w) {
			t.Fatalf("expected body to contain %q\n%s", w, body)
		}
	}
}

func TestIndexSetsSecurityHeaders(t *testing.T) {
	site := newTestSite(t, siteOptions{})
	resp, body := site.get(t, "/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	expectContains(t, body, "Flux", "/organisations/")
	headers := map[string]string{
		"Content-Security-Policy": contentSecurityPolicy,
		"X-Frame-Options":         "SAMEORIGIN",
		"X-Content-Type-Options":  "nosniff",
	}
	for k, v := range headers {
		if got := resp.Header.Get(k); got != v {
			t.Fatalf("header %s: expected %q, got %q", k, v, got)
		}
	}
	if resp.Header.Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS should be off without secure cookies")
	}
}

func TestMalformedIDIsNotFound(t *testing.T) {
	site := newTestSite(t, siteOptions{})
	for _, path := range []string{"/organisations/not-a-uuid", "/organisations/not-a-uuid/grades/"} {
		resp, body := site.get(t, path)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, resp.StatusCode)
		}
		expectContains(t, body, "could not be found")
	}
}

func TestUnknownOrganisationIsNotFound(t *testing.T) {
	site := newTestSite(t, siteOptions{})
	resp, _ := site.get(t, "/organisations/6f1c1a4e-9a2b-4d8e-8f3a-2b7c9d0e1f2a")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestCreateOrganisationFlashesAndRedirects(t *testing.T) {
	site := newTestSite(t, siteOptions{})
	site.HTTP.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	resp, _ := site.post(t, "/organisations/new", url.Values{"name": {"Acme"}, "domain": {"acme.com"}})
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/organisations/" {
		t.Fatalf("unexpected redirect %q", loc)
	}

	resp, body := site.get(t, "/organisations/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	expectContains(t, body, "Acme</a> has been created.", "acme.com")

	_, body = site.get(t, "/organisations/")
	if strings.Contains(body, "has been created.") {
		t.Fatalf("flash should only be shown once")
	}
}

func TestFormErrorsRerenderForm(t *testing.T) {
	site := newTestSite(t, siteOptions{})
	resp, body := site.post(t, "/organisations/new", url.Values{"name": {""}, "domain": {"not a domain"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	expectContains(t, body, "This field is required", "Enter a valid domain name", `value="not a domain"`)

	listing, err := site.Client.Organisations.List(context.Background(), nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if listing.Len() != 0 {
		t.Fatalf("invalid form must not create anything")
	}
}

func TestListFiltersAndShowsEmptyState(t *testing.T) {
	site := newTestSite(t, siteOptions{})
	_, body := site.get(t, "/organisations/")
	expectContains(t, body, "There are no organisations yet.")

	site.organisation(t)
	_, body = site.get(t, "/organisations/?name=acm")
	expectContains(t, body, "Acme")
	_, body = site.get(t, "/organisations/?name=zzz")
	expectContains(t, body, `No organisations match "zzz".`)
}

func TestScopedPages(t *testing.T) {
	ctx := context.Background()
	site := newTestSite(t, siteOptions{})
	org := site.organisation(t)
	base := "/organisations/" + org.ID

	resp, body := site.post(t, base+"/grades/new", url.Values{"name": {"Senior"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after redirect, got %d", resp.StatusCode)
	}
	expectContains(t, body, "Senior</a> has been created.", "Grades")

	grades, err := site.Client.Grades.List(ctx, org.ID, nil)
	if err != nil || grades.Len() != 1 {
		t.Fatalf("expected one grade, got %+v (%v)", grades, err)
	}
	grade := grades.Items[0]

	_, body = site.get(t, base+"/grades/"+grade.ID)
	expectContains(t, body, "Senior", "Acme", "/edit", "/delete")

	_, body = site.get(t, base+"/roles/new")
	expectContains(t, body, `<option value="`+grade.ID+`">Senior</option>`)

	_, body = site.post(t, base+"/grades/"+grade.ID+"/edit", url.Values{"name": {"Principal"}})
	expectContains(t, body, "Your changes to ", "Principal</a> have been saved.")
	_, body = site.get(t, base+"/grades/"+grade.ID)
	expectContains(t, body, `<dt class="col-sm-3">Created</dt>`, `<dt class="col-sm-3">Updated</dt>`)

	_, body = site.get(t, base+"/grades/"+grade.ID+"/delete")
	expectContains(t, body, "Delete Principal")
	_, body = site.post(t, base+"/grades/"+grade.ID+"/delete", nil)
	expectContains(t, body, "Principal has been deleted.", "There are no grades yet.")
}

func TestPersonFormValidation(t *testing.T) {
	ctx := context.Background()
	site := newTestSite(t, siteOptions{})
	org := site.organisation(t)
	grade, err := site.Client.Grades.Create(ctx, org.ID, flux.GradeInput{Name: "Senior"})
	if err != nil {
		t.Fatalf("create grade: %v", err)
	}
	role, err := site.Client.Roles.Create(ctx, org.ID, flux.RoleInput{Title: "Engineer", GradeID: grade.ID})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	loc, err := site.Client.Locations.Create(ctx, org.ID, flux.LocationInput{Name: "London", Address: "1 High St"})
	if err != nil {
		t.Fatalf("create location: %v", err)
	}
	form := url.Values{
		"name":                 {"Ada"},
		"email_address":        {"ada@acme.com"},
		"role":                 {role.ID},
		"employment":           {"permanent"},
		"full_time_equivalent": {"0.05"},
		"location":             {loc.ID},
	}
	resp, body := site.post(t, "/organisations/"+org.ID+"/people/new", form)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	expectContains(t, body, "Must be between 0.1 and 1.0")

	form.Set("full_time_equivalent", "0.5")
	_, body = site.post(t, "/organisations/"+org.ID+"/people/new", form)
	expectContains(t, body, "Ada</a> has been created.")

	people, err := site.Client.People.List(ctx, org.ID, nil)
	if err != nil || people.Len() != 1 {
		t.Fatalf("expected one person, got %+v (%v)", people, err)
	}
	_, body = site.get(t, "/organisations/"+org.ID+"/people/"+people.Items[0].ID)
	expectContains(t, body, "Engineer", "London", "0.5", "Permanent")
}

func TestDownloads(t *testing.T) {
	ctx := context.Background()
	site := newTestSite(t, siteOptions{})
	org := site.organisation(t)
	grade, err := site.Client.Grades.Create(ctx, org.ID, flux.GradeInput{Name: "Senior"})
	if err != nil {
		t.Fatalf("create grade: %v", err)
	}
	if _, err := site.Client.Locations.Create(ctx, org.ID, flux.LocationInput{Name: "London", Address: "1 High St, London"}); err != nil {
		t.Fatalf("create location: %v", err)
	}

	resp, body := site.get(t, "/organisations/"+org.ID+"/grades/download")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename="grades.csv"` {
		t.Fatalf("unexpected disposition %q", cd)
	}
	if want := "id,name\n" + grade.ID + ",Senior\n"; body != want {
		t.Fatalf("expected %q, got %q", want, body)
	}

	resp, body = site.get(t, "/organisations/"+org.ID+"/locations/download")
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename="locations.csv"` {
		t.Fatalf("unexpected disposition %q", cd)
	}
	if want := "NAME,ADDRESS\nLondon,\"1 High St, London\"\n"; body != want {
		t.Fatalf("expected %q, got %q", want, body)
	}
}

func TestCookiePreferences(t *testing.T) {
	site := newTestSite(t, siteOptions{})
	resp, body := site.post(t, "/cookies", url.Values{"functional": {"yes"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	expectContains(t, body, "You’ve set your cookie preferences.")

	u, _ := url.Parse(site.URL)
	var policy *http.Cookie
	for _, c := range site.HTTP.Jar.Cookies(u) {
		if c.Name == cookiesPolicyCookie {
			policy = c
		}
	}
	if policy == nil {
		t.Fatalf("cookie policy not stored")
	}
	raw, err := url.QueryUnescape(policy.Value)
	if err != nil || raw != `{"functional":"yes"}` {
		t.Fatalf("unexpected policy %q (%v)", raw, err)
	}

	_, body = site.get(t, "/cookies")
	expectContains(t, body, `value="yes" checked`)

	resp, _ = site.post(t, "/cookies", url.Values{"functional": {"maybe"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRateLimitRejectsBursts(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	site := newTestSite(t, siteOptions{perSecond: 2, now: func() time.Time { return fixed }})
	for i := 0; i < 2; i++ {
		resp, _ := site.get(t, "/")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, resp.StatusCode)
		}
	}
	resp, body := site.get(t, "/")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	expectContains(t, body, "Too many requests")
}

func TestLimiterStoreWindows(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	store := newLimiterStore(0, 2, func() time.Time { return now })
	allow := func(client string) bool {
		ok, _ := store.allow(client)
		return ok
	}
	if !allow("a") || !allow("a") {
		t.Fatalf("first two requests should pass")
	}
	ok, q := store.allow("a")
	if ok {
		t.Fatalf("third request within the minute should fail")
	}
	if q.remaining != 0 || q.retry.Round(time.Second) != 30*time.Second {
		t.Fatalf("unexpected quota %+v", q)
	}
	if !allow("b") {
		t.Fatalf("clients are limited independently")
	}
	now = now.Add(30 * time.Second)
	if !allow("a") {
		t.Fatalf("a token should refill after half a minute")
	}
	now = now.Add(visitorTTL + time.Second)
	allow("c")
	if _, ok := store.visitors["b"]; ok {
		t.Fatalf("idle visitors should be dropped")
	}

	if ok, q := newLimiterStore(0, 0, time.Now).allow("x"); !ok || q.limit != 0 {
		t.Fatalf("no windows means no limit, got %+v", q)
	}
}

func TestLimiterStoreReportsTightestWindow(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	store := newLimiterStore(5, 3, func() time.Time { return now })
	for want := 2; want >= 0; want-- {
		ok, q := store.allow("a")
		if !ok {
			t.Fatalf("request should pass with %d left", want)
		}
		if q.limit != 3 || q.remaining != want {
			t.Fatalf("expected the minute window with %d left, got %+v", want, q)
		}
	}
	ok, q := store.allow("a")
	if ok || q.reset.Sub(now).Round(time.Second) != time.Minute {
		t.Fatalf("expected a refusal resetting in a minute, got %v %+v", ok, q)
	}
}

func TestRateLimitHeaders(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	site := newTestSite(t, siteOptions{perSecond: 2, now: func() time.Time { return fixed }})
	reset := strconv.FormatInt(fixed.Unix()+1, 10)
	for _, remaining := range []string{"1", "0"} {
		resp, _ := site.get(t, "/")
		got := []string{
			resp.Header.Get("X-RateLimit-Limit"),
			resp.Header.Get("X-RateLimit-Remaining"),
			resp.Header.Get("X-RateLimit-Reset"),
		}
		if got[0] != "2" || got[1] != remaining || got[2] != reset {
			t.Fatalf("expected limit 2, remaining %s, reset %s, got %v", remaining, reset, got)
		}
	}
	resp, _ := site.get(t, "/")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Retry-After"); got != "1" {
		t.Fatalf("expected Retry-After 1, got %q", got)
	}
	if got := resp.Header.Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("expected no requests remaining, got %q", got)
	}
}

func TestCSRFRejectsForeignPosts(t *testing.T) {
	ctx := context.Background()
	site := newTestSite(t, siteOptions{})
	org := site.organisation(t)
	path := "/organisations/" + org.ID + "/delete"

	foreign := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := foreign.PostForm(site.URL+path, nil)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	readBody(t, resp)
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != path {
		t.Fatalf("expected 303 back to %s, got %d %q", path, resp.StatusCode, resp.Header.Get("Location"))
	}
	if _, err := site.Client.Organisations.Get(ctx, org.ID); err != nil {
		t.Fatalf("organisation must survive a foreign post: %v", err)
	}

	site.get(t, path)
	for _, token := range []string{"", "not-a-token"} {
		resp, err := site.HTTP.PostForm(site.URL+path, url.Values{csrfField: {token}})
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		body := readBody(t, resp)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected the form again, got %d", resp.StatusCode)
		}
		expectContains(t, body, csrfExpiredMessage, "Delete Acme")
	}
	if _, err := site.Client.Organisations.Get(ctx, org.ID); err != nil {
		t.Fatalf("organisation must survive a bad token: %v", err)
	}

	_, body := site.post(t, path, nil)
	expectContains(t, body, "Acme has been deleted.")
	if _, err := site.Client.Organisations.Get(ctx, org.ID); flux.HTTPStatus(err) != http.StatusNotFound {
		t.Fatalf("expected organisation to be gone, got %v", err)
	}
}

func TestCSRFTokenBinding(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	g := csrfGuard{secret: []byte("k"), now: func() time.Time { return now }}
	token, err := g.token("nonce-a")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := g.verify(token, "nonce-a"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := g.verify(token, "nonce-b"); err == nil {
		t.Fatalf("token must be bound to its nonce")
	}
	other := csrfGuard{secret: []byte("other"), now: g.now}
	if err := other.verify(token, "nonce-a"); err == nil {
		t.Fatalf("foreign signature must be rejected")
	}
	flashes := flasher{secret: g.secret, now: g.now}
	rec := httptest.NewRecorder()
	if err := flashes.add(rec, httptest.NewRequest(http.MethodGet, "/", nil), Flash{Message: "hi"}); err != nil {
		t.Fatalf("add flash: %v", err)
	}
	if err := g.verify(rec.Result().Cookies()[0].Value, "nonce-a"); err == nil {
		t.Fatalf("a flash cookie is not a form token")
	}
	now = now.Add(csrfTTL + time.Minute)
	if err := g.verify(token, "nonce-a"); err == nil {
		t.Fatalf("expired token must be rejected")
	}
}

func TestFlashRoundTrip(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	f := flasher{secret: []byte("k"), now: func() time.Time { return now }}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if err := f.add(rec, req, Flash{Category: "success", Message: "saved"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	cookie := rec.Result().Cookies()[0]

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	got := f.consume(httptest.NewRecorder(), req)
	if len(got) != 1 || got[0].Message != "saved" {
		t.Fatalf("unexpected flashes %+v", got)
	}

	other := flasher{secret: []byte("other"), now: f.now}
	if got := other.consume(httptest.NewRecorder(), req); len(got) != 0 {
		t.Fatalf("foreign signature must be ignored, got %+v", got)
	}

	now = now.Add(flashTTL + time.Minute)
	if got := f.consume(httptest.NewRecorder(), req); len(got) != 0 {
		t.Fatalf("expired flash must be ignored, got %+v", got)
	}
}
