package flux

import "context"

// Organisations is the top-level collection. Every other kind is scoped to one.
type Organisations struct{ r resource[Organisation] }

func (s *Organisations) Create(ctx context.Context, in OrganisationInput) (Organisation, error) {
	return s.r.create(ctx, "", in)
}

func (s *Organisations) List(ctx context.Context, f Filter) (Listing[Organisation], error) {
	return s.r.list(ctx, "", f)
}

func (s *Organisations) Get(ctx context.Context, id string) (Organisation, error) {
	return s.r.get(ctx, "", id)
}

func (s *Organisations) Edit(ctx context.Context, id string, in OrganisationInput) (Organisation, error) {
	return s.r.edit(ctx, "", id, in)
}

func (s *Organisations) Delete(ctx context.Context, id string) error {
	return s.r.delete(ctx, "", id)
}

type Programmes struct{ r resource[Programme] }

func (s *Programmes) Create(ctx context.Context, orgID string, in ProgrammeInput) (Programme, error) {
	return s.r.create(ctx, orgID, in)
}

func (s *Programmes) List(ctx context.Context, orgID string, f Filter) (Listing[Programme], error) {
	return s.r.list(ctx, orgID, f)
}

func (s *Programmes) Get(ctx context.Context, orgID, id string) (Programme, error) {
	return s.r.get(ctx, orgID, id)
}

func (s *Programmes) Edit(ctx context.Context, orgID, id string, in ProgrammeInput) (Programme, error) {
	return s.r.edit(ctx, orgID, id, in)
}

func (s *Programmes) Delete(ctx context.Context, orgID, id string) error {
	return s.r.delete(ctx, orgID, id)
}

type Projects struct{ r resource[Project] }

func (s *Projects) Create(ctx context.Context, orgID string, in ProjectInput) (Project, error) {
	return s.r.create(ctx, orgID, in)
}

func (s *Projects) List(ctx context.Context, orgID string, f Filter) (Listing[Project], error) {
	return s.r.list(ctx, orgID, f)
}

func (s *Projects) Get(ctx context.Context, orgID, id string) (Project, error) {
	return s.r.get(ctx, orgID, id)
}

func (s *Projects) Edit(ctx context.Context, orgID, id string, in ProjectInput) (Project, error) {
	return s.r.edit(ctx, orgID, id, in)
}

func (s *Projects) Delete(ctx context.Context, orgID, id string) error {
	return s.r.delete(ctx, orgID, id)
}

// Managers lists the people eligible to manage a project, which is everyone
// in the organisation.
func (s *Projects) Managers(ctx context.Context, orgID string, f Filter) (Listing[Person], error) {
	people := resource[Person]{c: s.r.c, name: "project manager", collection: "people"}
	op := opList
	op.name = "managers"
	return people.listAt(ctx, op, people.endpoint(orgID), f)
}

type Grades struct{ r resource[Grade] }

func (s *Grades) Create(ctx context.Context, orgID string, in GradeInput) (Grade, error) {
	return s.r.create(ctx, orgID, in)
}

func (s *Grades) List(ctx context.Context, orgID string, f Filter) (Listing[Grade], error) {
	return s.r.list(ctx, orgID, f)
}

func (s *Grades) Get(ctx context.Context, orgID, id string) (Grade, error) {
	return s.r.get(ctx, orgID, id)
}

func (s *Grades) Edit(ctx context.Context, orgID, id string, in GradeInput) (Grade, error) {
	return s.r.edit(ctx, orgID, id, in)
}

func (s *Grades) Delete(ctx context.Context, orgID, id string) error {
	return s.r.delete(ctx, orgID, id)
}

type Practices struct{ r resource[Practice] }

func (s *Practices) Create(ctx context.Context, orgID string, in PracticeInput) (Practice, error) {
	return s.r.create(ctx, orgID, in)
}

func (s *Practices) List(ctx context.Context, orgID string, f Filter) (Listing[Practice], error) {
	return s.r.list(ctx, orgID, f)
}

func (s *Practices) Get(ctx context.Context, orgID, id string) (Practice, error) {
	return s.r.get(ctx, orgID, id)
}

func (s *Practices) Edit(ctx context.Context, orgID, id string, in PracticeInput) (Practice, error) {
	return s.r.edit(ctx, orgID, id, in)
}

func (s *Practices) Delete(ctx context.Context, orgID, id string) error {
	return s.r.delete(ctx, orgID, id)
}

type Roles struct{ r resource[Role] }

func (s *Roles) Create(ctx context.Context, orgID string, in RoleInput) (Role, error) {
	return s.r.create(ctx, orgID, in)
}

func (s *Roles) List(ctx context.Context, orgID string, f Filter) (Listing[Role], error) {
	return s.r.list(ctx, orgID, f)
}

func (s *Roles) Get(ctx context.Context, orgID, id string) (Role, error) {
	return s.r.get(ctx, orgID, id)
}

func (s *Roles) Edit(ctx context.Context, orgID, id string, in RoleInput) (Role, error) {
	return s.r.edit(ctx, orgID, id, in)
}

func (s *Roles) Delete(ctx context.Context, orgID, id string) error {
	return s.r.delete(ctx, orgID, id)
}

// People is the only kind the API validates beyond presence checks, so a 400
// on create or edit surfaces as ErrValidationRejected.
type People struct{ r resource[Person] }

func (s *People) Create(ctx context.Context, orgID string, in PersonInput) (Person, error) {
	return s.r.create(ctx, orgID, in)
}

func (s *People) List(ctx context.Context, orgID string, f Filter) (Listing[Person], error) {
	return s.r.list(ctx, orgID, f)
}

func (s *People) Get(ctx context.Context, orgID, id string) (Person, error) {
	return s.r.get(ctx, orgID, id)
}

func (s *People) Edit(ctx context.Context, orgID, id string, in PersonInput) (Person, error) {
	return s.r.edit(ctx, orgID, id, in)
}

func (s *People) Delete(ctx context.Context, orgID, id string) error {
	return s.r.delete(ctx, orgID, id)
}

type Locations struct{ r resource[Location] }

func (s *Locations) Create(ctx context.Context, orgID string, in LocationInput) (Location, error) {
	return s.r.create(ctx, orgID, in)
}

func (s *Locations) List(ctx context.Context, orgID string, f Filter) (Listing[Location], error) {
	return s.r.list(ctx, orgID, f)
}

func (s *Locations) Get(ctx context.Context, orgID, id string) (Location, error) {
	return s.r.get(ctx, orgID, id)
}

func (s *Locations) Edit(ctx context.Context, orgID, id string, in LocationInput) (Location, error) {
	return s.r.edit(ctx, orgID, id, in)
}

func (s *Locations) Delete(ctx context.Context, orgID, id string) error {
	return s.r.delete(ctx, orgID, id)
}
