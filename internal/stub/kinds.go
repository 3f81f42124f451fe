package stub

// reference is a body field holding the id of another record in the same
// organisation. It is written as <field>_id and read back expanded as <field>.
type reference struct {
	field string
	kind  string
}

func (r reference) key() string { return r.field + "_id" }

type kind struct {
	name       string
	collection string
	sortField  string
	refs       []reference
}

func (k kind) scoped() bool { return k.collection != "organisations" }

var (
	organisationKind = kind{name: "organisation", collection: "organisations", sortField: "name"}
	programmeKind    = kind{name: "programme", collection: "programmes", sortField: "name",
		refs: []reference{{"manager", "person"}}}
	projectKind = kind{name: "project", collection: "projects", sortField: "name",
		refs: []reference{{"manager", "person"}, {"programme", "programme"}}}
	gradeKind    = kind{name: "grade", collection: "grades", sortField: "name"}
	practiceKind = kind{name: "practice", collection: "practices", sortField: "name",
		refs: []reference{{"head", "person"}}}
	roleKind = kind{name: "role", collection: "roles", sortField: "title",
		refs: []reference{{"grade", "grade"}, {"practice", "practice"}}}
	personKind = kind{name: "person", collection: "people", sortField: "name",
		refs: []reference{{"role", "role"}, {"location", "location"}}}
	locationKind = kind{name: "location", collection: "locations", sortField: "name"}
)

// body is a decoded request payload. fields returns only what the caller sent.
type body interface {
	fields() map[string]any
}

type OrganisationBody struct {
	Name   string `json:"name" minLength:"1"`
	Domain string `json:"domain" minLength:"1"`
}

func (b OrganisationBody) fields() map[string]any {
	return map[string]any{"name": b.Name, "domain": b.Domain}
}

type ProgrammeBody struct {
	Name      string  `json:"name" minLength:"1"`
	ManagerID *string `json:"manager_id,omitempty"`
}

func (b ProgrammeBody) fields() map[string]any {
	f := map[string]any{"name": b.Name}
	setOptional(f, "manager_id", b.ManagerID)
	return f
}

type ProjectBody struct {
	Name        string  `json:"name" minLength:"1"`
	ManagerID   *string `json:"manager_id,omitempty"`
	ProgrammeID *string `json:"programme_id,omitempty"`
	Status      string  `json:"status" enum:"active,paused,closed"`
}

func (b ProjectBody) fields() map[string]any {
	f := map[string]any{"name": b.Name, "status": b.Status}
	setOptional(f, "manager_id", b.ManagerID)
	setOptional(f, "programme_id", b.ProgrammeID)
	return f
}

type GradeBody struct {
	Name string `json:"name" minLength:"1"`
}

func (b GradeBody) fields() map[string]any {
	return map[string]any{"name": b.Name}
}

type PracticeBody struct {
	Name       string  `json:"name" minLength:"1"`
	HeadID     *string `json:"head_id,omitempty"`
	CostCentre *string `json:"cost_centre,omitempty"`
}

func (b PracticeBody) fields() map[string]any {
	f := map[string]any{"name": b.Name}
	setOptional(f, "head_id", b.HeadID)
	setOptional(f, "cost_centre", b.CostCentre)
	return f
}

type RoleBody struct {
	Title      string  `json:"title" minLength:"1"`
	GradeID    string  `json:"grade_id" minLength:"1"`
	PracticeID *string `json:"practice_id,omitempty"`
}

func (b RoleBody) fields() map[string]any {
	f := map[string]any{"title": b.Title, "grade_id": b.GradeID}
	setOptional(f, "practice_id", b.PracticeID)
	return f
}

// PersonBody is the one payload checked beyond presence.
type PersonBody struct {
	Name               string  `json:"name" minLength:"1"`
	EmailAddress       string  `json:"email_address" format:"email" maxLength:"256"`
	RoleID             string  `json:"role_id" minLength:"1"`
	Employment         string  `json:"employment" enum:"permanent,contract"`
	FullTimeEquivalent float64 `json:"full_time_equivalent" minimum:"0.1" maximum:"1"`
	LocationID         string  `json:"location_id" minLength:"1"`
}

func (b PersonBody) fields() map[string]any {
	return map[string]any{
		"name":                 b.Name,
		"email_address":        b.EmailAddress,
		"role_id":              b.RoleID,
		"employment":           b.Employment,
		"full_time_equivalent": b.FullTimeEquivalent,
		"location_id":          b.LocationID,
	}
}

type LocationBody struct {
	Name    string `json:"name" minLength:"1"`
	Address string `json:"address" minLength:"1"`
}

func (b LocationBody) fields() map[string]any {
	return map[string]any{"name": b.Name, "address": b.Address}
}

// setOptional records a field the caller sent. An explicit empty string
// clears the stored value on edit.
func setOptional(f map[string]any, key string, v *string) {
	if v != nil {
		f[key] = *v
	}
}
