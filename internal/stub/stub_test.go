package stub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"fluxweb/internal/db"
	"fluxweb/internal/domain"
	"fluxweb/internal/migrate"
	"fluxweb/internal/repo"
	"fluxweb/sdk/flux"
)

type testStub struct {
	URL    string
	Client *flux.Client
	Repo   repo.Repo
}

func newTestStub(t *testing.T) *testStub {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	handler, err := New(Config{DB: conn})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		conn.Close()
	})
	url := "http://" + ln.Addr().String()
	c, err := flux.New(flux.Config{BaseURL: url, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return &testStub{URL: url, Client: c, Repo: repo.Repo{DB: conn}}
}

func createAcme(t *testing.T, c *flux.Client) flux.Organisation {
	t.Helper()
	org, err := c.Organisations.Create(context.Background(), flux.OrganisationInput{Name: "Acme", Domain: "acme.com"})
	if err != nil {
		t.Fatalf("create organisation: %v", err)
	}
	return org
}

func TestOrganisationRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newTestStub(t)
	c := st.Client

	org := createAcme(t, c)
	if org.ID == "" || org.Name != "Acme" || org.Domain != "acme.com" {
		t.Fatalf("unexpected organisation %+v", org)
	}
	if org.UpdatedAt != nil {
		t.Fatalf("fresh record should have no updated_at")
	}
	got, err := c.Organisations.Get(ctx, org.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != org.Name || got.Domain != org.Domain || !got.CreatedAt.Equal(org.CreatedAt.Time) {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, org)
	}

	if _, err := c.Organisations.Create(ctx, flux.OrganisationInput{Name: "acme", Domain: "other.com"}); !errors.Is(err, flux.ErrConflict) {
		t.Fatalf("expected conflict on name, got %v", err)
	}
	if _, err := c.Organisations.Create(ctx, flux.OrganisationInput{Name: "Other", Domain: "ACME.com"}); !errors.Is(err, flux.ErrConflict) {
		t.Fatalf("expected conflict on domain, got %v", err)
	}

	if _, err := c.Organisations.Get(ctx, uuid.NewString()); !errors.Is(err, flux.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	edited, err := c.Organisations.Edit(ctx, org.ID, flux.OrganisationInput{Name: "Acme Ltd", Domain: "acme.com"})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.Name != "Acme Ltd" || edited.UpdatedAt == nil {
		t.Fatalf("unexpected edit result %+v", edited)
	}
	if !edited.CreatedAt.Equal(org.CreatedAt.Time) {
		t.Fatalf("created_at changed on edit")
	}

	if err := c.Organisations.Delete(ctx, org.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := c.Organisations.Get(ctx, org.ID); !errors.Is(err, flux.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := c.Organisations.Delete(ctx, org.ID); !errors.Is(err, flux.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestFreshOrganisationListsAreAbsent(t *testing.T) {
	ctx := context.Background()
	st := newTestStub(t)
	org := createAcme(t, st.Client)

	grades, err := st.Client.Grades.List(ctx, org.ID, nil)
	if err != nil {
		t.Fatalf("list grades: %v", err)
	}
	if !grades.Absent {
		t.Fatalf("expected absent listing, got %+v", grades)
	}
	if _, err := st.Client.Grades.Create(ctx, org.ID, flux.GradeInput{Name: "Senior"}); err != nil {
		t.Fatalf("create grade: %v", err)
	}
	none, err := st.Client.Grades.List(ctx, org.ID, flux.Filter{"name": "principal"})
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if !none.Absent {
		t.Fatalf("filter matching nothing should be absent, got %+v", none)
	}
	some, err := st.Client.Grades.List(ctx, org.ID, flux.Filter{"name": "SEN"})
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if some.Absent || some.Len() != 1 {
		t.Fatalf("expected one grade, got %+v", some)
	}

	if _, err := st.Client.Grades.List(ctx, uuid.NewString(), nil); !errors.Is(err, flux.ErrUnexpected) {
		t.Fatalf("listing an unknown organisation should be unexpected, got %v", err)
	}
}

// directory builds one record of every kind wired together.
type directory struct {
	org       flux.Organisation
	grade     flux.Grade
	practice  flux.Practice
	location  flux.Location
	role      flux.Role
	person    flux.Person
	programme flux.Programme
	project   flux.Project
}

func buildDirectory(t *testing.T, c *flux.Client) directory {
	t.Helper()
	ctx := context.Background()
	var d directory
	var err error
	d.org = createAcme(t, c)
	if d.grade, err = c.Grades.Create(ctx, d.org.ID, flux.GradeInput{Name: "Senior"}); err != nil {
		t.Fatalf("create grade: %v", err)
	}
	if d.practice, err = c.Practices.Create(ctx, d.org.ID, flux.PracticeInput{Name: "Engineering", CostCentre: "CC-42"}); err != nil {
		t.Fatalf("create practice: %v", err)
	}
	if d.location, err = c.Locations.Create(ctx, d.org.ID, flux.LocationInput{Name: "HQ", Address: "1 High Street"}); err != nil {
		t.Fatalf("create location: %v", err)
	}
	if d.role, err = c.Roles.Create(ctx, d.org.ID, flux.RoleInput{Title: "Developer", GradeID: d.grade.ID, PracticeID: d.practice.ID}); err != nil {
		t.Fatalf("create role: %v", err)
	}
	if d.person, err = c.People.Create(ctx, d.org.ID, flux.PersonInput{
		Name:               "Ada Lovelace",
		EmailAddress:       "ada@acme.com",
		RoleID:             d.role.ID,
		Employment:         flux.Permanent,
		FullTimeEquivalent: 0.8,
		LocationID:         d.location.ID,
	}); err != nil {
		t.Fatalf("create person: %v", err)
	}
	if d.programme, err = c.Programmes.Create(ctx, d.org.ID, flux.ProgrammeInput{Name: "Modernise", ManagerID: d.person.ID}); err != nil {
		t.Fatalf("create programme: %v", err)
	}
	if d.project, err = c.Projects.Create(ctx, d.org.ID, flux.ProjectInput{
		Name:        "Apollo",
		ManagerID:   d.person.ID,
		ProgrammeID: d.programme.ID,
		Status:      flux.ProjectActive,
	}); err != nil {
		t.Fatalf("create project: %v", err)
	}
	return d
}

func TestEveryKindRoundTrips(t *testing.T) {
	ctx := context.Background()
	st := newTestStub(t)
	c := st.Client
	d := buildDirectory(t, c)
	org := d.org.ID

	grade, err := c.Grades.Get(ctx, org, d.grade.ID)
	if err != nil || grade.Name != "Senior" || grade.OrganisationID != org {
		t.Fatalf("grade round trip: %+v %v", grade, err)
	}
	practice, err := c.Practices.Get(ctx, org, d.practice.ID)
	if err != nil || practice.Name != "Engineering" || practice.CostCentre != "CC-42" || practice.Head != nil {
		t.Fatalf("practice round trip: %+v %v", practice, err)
	}
	location, err := c.Locations.Get(ctx, org, d.location.ID)
	if err != nil || location.Address != "1 High Street" {
		t.Fatalf("location round trip: %+v %v", location, err)
	}
	role, err := c.Roles.Get(ctx, org, d.role.ID)
	if err != nil || role.Title != "Developer" {
		t.Fatalf("role round trip: %+v %v", role, err)
	}
	if role.Grade == nil || role.Grade.ID != d.grade.ID || role.Practice == nil || role.Practice.Name != "Engineering" {
		t.Fatalf("role references not expanded: %+v", role)
	}
	person, err := c.People.Get(ctx, org, d.person.ID)
	if err != nil {
		t.Fatalf("get person: %v", err)
	}
	if person.Name != "Ada Lovelace" || person.EmailAddress != "ada@acme.com" || person.Employment != flux.Permanent || person.FullTimeEquivalent != 0.8 {
		t.Fatalf("person round trip: %+v", person)
	}
	if person.Role == nil || person.Role.Title != "Developer" || person.Location == nil || person.Location.ID != d.location.ID {
		t.Fatalf("person references not expanded: %+v", person)
	}
	if person.Role.Grade != nil {
		t.Fatalf("expansion should stop one level deep, got %+v", person.Role.Grade)
	}
	programme, err := c.Programmes.Get(ctx, org, d.programme.ID)
	if err != nil || programme.Manager == nil || programme.Manager.ID != d.person.ID {
		t.Fatalf("programme round trip: %+v %v", programme, err)
	}
	project, err := c.Projects.Get(ctx, org, d.project.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if project.Name != "Apollo" || project.Status != flux.ProjectActive || project.Programme == nil || project.Programme.Name != "Modernise" {
		t.Fatalf("project round trip: %+v", project)
	}

	byProgramme, err := c.Projects.List(ctx, org, flux.Filter{"programme_id": d.programme.ID})
	if err != nil || byProgramme.Len() != 1 {
		t.Fatalf("filter by programme: %+v %v", byProgramme, err)
	}
	roles, err := c.Roles.List(ctx, org, flux.Filter{"title": "dev"})
	if err != nil || roles.Len() != 1 {
		t.Fatalf("filter roles by title: %+v %v", roles, err)
	}
	managers, err := c.Projects.Managers(ctx, org, nil)
	if err != nil || managers.Len() != 1 || managers.Items[0].ID != d.person.ID {
		t.Fatalf("managers: %+v %v", managers, err)
	}
}

func TestEditKeepsOmittedOptionalFields(t *testing.T) {
	ctx := context.Background()
	st := newTestStub(t)
	c := st.Client
	d := buildDirectory(t, c)

	edited, err := c.Projects.Edit(ctx, d.org.ID, d.project.ID, flux.ProjectInput{Name: "Apollo 11", Status: flux.ProjectPaused})
	if err != nil {
		t.Fatalf("edit project: %v", err)
	}
	if edited.Name != "Apollo 11" || edited.Status != flux.ProjectPaused {
		t.Fatalf("edit not applied: %+v", edited)
	}
	if edited.Programme == nil || edited.Programme.ID != d.programme.ID || edited.Manager == nil {
		t.Fatalf("omitted optional fields should be kept: %+v", edited)
	}

	practice, err := c.Practices.Edit(ctx, d.org.ID, d.practice.ID, flux.PracticeInput{Name: "Engineering", HeadID: d.person.ID})
	if err != nil {
		t.Fatalf("edit practice: %v", err)
	}
	if practice.CostCentre != "CC-42" || practice.Head == nil || practice.Head.ID != d.person.ID {
		t.Fatalf("unexpected practice %+v", practice)
	}
}

func TestTimestampsAgreeAcrossOperations(t *testing.T) {
	ctx := context.Background()
	st := newTestStub(t)
	c := st.Client
	org := createAcme(t, c)
	created, err := c.Locations.Create(ctx, org.ID, flux.LocationInput{Name: "HQ", Address: "1 Road"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := c.Locations.Get(ctx, org.ID, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	listed, err := c.Locations.List(ctx, org.ID, nil)
	if err != nil || listed.Len() != 1 {
		t.Fatalf("list: %+v %v", listed, err)
	}
	edited, err := c.Locations.Edit(ctx, org.ID, created.ID, flux.LocationInput{Name: "HQ", Address: "2 Road"})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	for _, ts := range []flux.Timestamp{got.CreatedAt, listed.Items[0].CreatedAt, edited.CreatedAt} {
		if !ts.Equal(created.CreatedAt.Time) {
			t.Fatalf("created_at %s differs from %s", ts, created.CreatedAt)
		}
	}
	if created.CreatedAt.Location() == nil || created.CreatedAt.IsZero() {
		t.Fatalf("created_at not parsed")
	}
}

func TestPersonValidation(t *testing.T) {
	ctx := context.Background()
	st := newTestStub(t)
	d := buildDirectory(t, st.Client)

	body := map[string]any{
		"name":                 "Grace",
		"email_address":        "grace@acme.com",
		"role_id":              d.role.ID,
		"employment":           "permanent",
		"full_time_equivalent": 0.05,
		"location_id":          d.location.ID,
	}
	data, _ := json.Marshal(body)
	res, err := http.Post(st.URL+"/v1/organisations/"+d.org.ID+"/people", "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for fte 0.05, got %d", res.StatusCode)
	}

	_, err = st.Client.People.Create(ctx, d.org.ID, flux.PersonInput{
		Name:               "Grace",
		EmailAddress:       "grace@acme.com",
		RoleID:             uuid.NewString(),
		Employment:         flux.Contract,
		FullTimeEquivalent: 0.5,
		LocationID:         d.location.ID,
	})
	if !errors.Is(err, flux.ErrValidationRejected) {
		t.Fatalf("expected rejected person, got %v", err)
	}

	_, err = st.Client.Roles.Create(ctx, d.org.ID, flux.RoleInput{Title: "Tester", GradeID: uuid.NewString()})
	if !errors.Is(err, flux.ErrUnexpected) {
		t.Fatalf("unknown grade on a role should be unexpected, got %v", err)
	}
}

func TestDeleteOrganisationCascades(t *testing.T) {
	ctx := context.Background()
	st := newTestStub(t)
	d := buildDirectory(t, st.Client)

	if err := st.Client.People.Delete(ctx, d.org.ID, d.person.ID); err != nil {
		t.Fatalf("delete person: %v", err)
	}
	if _, err := st.Client.People.Get(ctx, d.org.ID, d.person.ID); !errors.Is(err, flux.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	project, err := st.Client.Projects.Get(ctx, d.org.ID, d.project.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if project.Manager != nil {
		t.Fatalf("deleted manager should not expand: %+v", project.Manager)
	}

	if err := st.Client.Organisations.Delete(ctx, d.org.ID); err != nil {
		t.Fatalf("delete organisation: %v", err)
	}
	if _, err := st.Client.Grades.Get(ctx, d.org.ID, d.grade.ID); !errors.Is(err, flux.ErrNotFound) {
		t.Fatalf("expected scoped records gone, got %v", err)
	}

	evts, err := st.Repo.ListEvents(ctx, d.org.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 10 {
		t.Fatalf("expected 10 events, got %d", len(evts))
	}
	if evts[0].Type != domain.EventRecordCreated || evts[0].EntityKind != "organisation" {
		t.Fatalf("unexpected first event %+v", evts[0])
	}
	if last := evts[len(evts)-1]; last.Type != domain.EventRecordDeleted || last.EntityID != d.org.ID {
		t.Fatalf("unexpected last event %+v", last)
	}
}

func TestHealth(t *testing.T) {
	st := newTestStub(t)
	res, err := http.Get(st.URL + "/v1/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res.Body.Close()
	var body map[string]string
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected health %d %v", res.StatusCode, body)
	}
}
