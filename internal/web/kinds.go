package web

import (
	"context"
	"strings"

	"fluxweb/sdk/flux"
)

func itemLink(org, collection, id string) string {
	return "/organisations/" + org + "/" + collection + "/" + id
}

// options turns a listing into select options. An absent listing yields none.
func options[T any](l flux.Listing[T], err error, id, label func(T) string) ([]option, error) {
	if err != nil {
		return nil, err
	}
	opts := make([]option, 0, len(l.Items))
	for _, v := range l.Items {
		opts = append(opts, option{Value: id(v), Label: label(v)})
	}
	return opts, nil
}

func personOptions(ctx context.Context, c *flux.Client, org string) ([]option, error) {
	l, err := c.People.List(ctx, org, nil)
	return options(l, err, func(p flux.Person) string { return p.ID }, func(p flux.Person) string { return p.Name })
}

func textField(name, label, value string, errs fieldErrors) formField {
	return formField{Name: name, Label: label, Type: "text", Value: value, Required: true, Error: errs[name]}
}

func selectField(name, label, value string, required bool, opts []option, errs fieldErrors) formField {
	return formField{Name: name, Label: label, Type: "select", Value: value, Required: required, Options: opts, Error: errs[name]}
}

func personName(p *flux.Person) (id, name string) {
	if p == nil {
		return "", ""
	}
	return p.ID, p.Name
}

var organisationPages = kindPages[flux.Organisation, organisationForm]{
	noun:      "organisation",
	plural:    "organisations",
	filterKey: "name",
	columns:   []string{"Name", "Domain"},
	row:       func(o flux.Organisation) []string { return []string{o.Name, o.Domain} },
	id:        func(o flux.Organisation) string { return o.ID },
	label:     func(o flux.Organisation) string { return o.Name },
	details: func(_ string, o flux.Organisation) []detail {
		return []detail{{Label: "Name", Value: o.Name}, {Label: "Domain", Value: o.Domain}}
	},
	stamps: func(o flux.Organisation) (flux.Timestamp, *flux.Timestamp) { return o.CreatedAt, o.UpdatedAt },
	children: func(id string) []crumb {
		var out []crumb
		for _, c := range []string{"programmes", "projects", "grades", "practices", "roles", "people", "locations"} {
			out = append(out, crumb{Label: strings.ToUpper(c[:1]) + c[1:], Link: "/organisations/" + id + "/" + c + "/"})
		}
		return out
	},
	list: func(ctx context.Context, c *flux.Client, _ string, f flux.Filter) (flux.Listing[flux.Organisation], error) {
		return c.Organisations.List(ctx, f)
	},
	get: func(ctx context.Context, c *flux.Client, _, id string) (flux.Organisation, error) {
		return c.Organisations.Get(ctx, id)
	},
	create: func(ctx context.Context, c *flux.Client, _ string, f organisationForm) (flux.Organisation, error) {
		return c.Organisations.Create(ctx, flux.OrganisationInput{Name: f.Name, Domain: f.Domain})
	},
	edit: func(ctx context.Context, c *flux.Client, _, id string, f organisationForm) (flux.Organisation, error) {
		return c.Organisations.Edit(ctx, id, flux.OrganisationInput{Name: f.Name, Domain: f.Domain})
	},
	remove: func(ctx context.Context, c *flux.Client, _, id string) error {
		return c.Organisations.Delete(ctx, id)
	},
	prefill: func(o flux.Organisation) organisationForm { return organisationForm{Name: o.Name, Domain: o.Domain} },
	fields: func(_ context.Context, _ *flux.Client, _ string, f organisationForm, errs fieldErrors) ([]formField, error) {
		domain := textField("domain", "Domain", f.Domain, errs)
		domain.Hint = "For example, example.com"
		return []formField{textField("name", "Name", f.Name, errs), domain}, nil
	},
}

var programmePages = kindPages[flux.Programme, programmeForm]{
	noun:       "programme",
	plural:     "programmes",
	collection: "programmes",
	filterKey:  "name",
	columns:    []string{"Name", "Manager"},
	row: func(p flux.Programme) []string {
		_, manager := personName(p.Manager)
		return []string{p.Name, manager}
	},
	id:    func(p flux.Programme) string { return p.ID },
	label: func(p flux.Programme) string { return p.Name },
	details: func(org string, p flux.Programme) []detail {
		out := []detail{{Label: "Name", Value: p.Name}}
		if id, name := personName(p.Manager); id != "" {
			return append(out, detail{Label: "Manager", Value: name, Link: itemLink(org, "people", id)})
		}
		return append(out, detail{Label: "Manager"})
	},
	stamps: func(p flux.Programme) (flux.Timestamp, *flux.Timestamp) { return p.CreatedAt, p.UpdatedAt },
	aliases: map[string]string{"manager_id": "manager"},
	list: func(ctx context.Context, c *flux.Client, org string, f flux.Filter) (flux.Listing[flux.Programme], error) {
		return c.Programmes.List(ctx, org, f)
	},
	get: func(ctx context.Context, c *flux.Client, org, id string) (flux.Programme, error) {
		return c.Programmes.Get(ctx, org, id)
	},
	create: func(ctx context.Context, c *flux.Client, org string, f programmeForm) (flux.Programme, error) {
		return c.Programmes.Create(ctx, org, flux.ProgrammeInput{Name: f.Name, ManagerID: f.Manager})
	},
	edit: func(ctx context.Context, c *flux.Client, org, id string, f programmeForm) (flux.Programme, error) {
		return c.Programmes.Edit(ctx, org, id, flux.ProgrammeInput{Name: f.Name, ManagerID: f.Manager})
	},
	remove: func(ctx context.Context, c *flux.Client, org, id string) error {
		return c.Programmes.Delete(ctx, org, id)
	},
	prefill: func(p flux.Programme) programmeForm {
		manager, _ := personName(p.Manager)
		return programmeForm{Name: p.Name, Manager: manager}
	},
	fields: func(ctx context.Context, c *flux.Client, org string, f programmeForm, errs fieldErrors) ([]formField, error) {
		people, err := personOptions(ctx, c, org)
		if err != nil {
			return nil, err
		}
		return []formField{
			textField("name", "Name", f.Name, errs),
			selectField("manager", "Manager", f.Manager, false, people, errs),
		}, nil
	},
}

var projectStatuses = []option{
	{Value: string(flux.ProjectActive), Label: "Active"},
	{Value: string(flux.ProjectPaused), Label: "Paused"},
	{Value: string(flux.ProjectClosed), Label: "Closed"},
}

func statusLabel(s flux.ProjectStatus) string {
	for _, o := range projectStatuses {
		if o.Value == string(s) {
			return o.Label
		}
	}
	return string(s)
}

var projectPages = kindPages[flux.Project, projectForm]{
	noun:       "project",
	plural:     "projects",
	collection: "projects",
	filterKey:  "name",
	columns:    []string{"Name", "Programme", "Status"},
	row: func(p flux.Project) []string {
		programme := ""
		if p.Programme != nil {
			programme = p.Programme.Name
		}
		return []string{p.Name, programme, statusLabel(p.Status)}
	},
	id:    func(p flux.Project) string { return p.ID },
	label: func(p flux.Project) string { return p.Name },
	details: func(org string, p flux.Project) []detail {
		out := []detail{{Label: "Name", Value: p.Name}}
		if id, name := personName(p.Manager); id != "" {
			out = append(out, detail{Label: "Manager", Value: name, Link: itemLink(org, "people", id)})
		} else {
			out = append(out, detail{Label: "Manager"})
		}
		if p.Programme != nil {
			out = append(out, detail{Label: "Programme", Value: p.Programme.Name, Link: itemLink(org, "programmes", p.Programme.ID)})
		} else {
			out = append(out, detail{Label: "Programme"})
		}
		return append(out, detail{Label: "Status", Value: statusLabel(p.Status)})
	},
	stamps:  func(p flux.Project) (flux.Timestamp, *flux.Timestamp) { return p.CreatedAt, p.UpdatedAt },
	aliases: map[string]string{"manager_id": "manager", "programme_id": "programme"},
	list: func(ctx context.Context, c *flux.Client, org string, f flux.Filter) (flux.Listing[flux.Project], error) {
		return c.Projects.List(ctx, org, f)
	},
	get: func(ctx context.Context, c *flux.Client, org, id string) (flux.Project, error) {
		return c.Projects.Get(ctx, org, id)
	},
	create: func(ctx context.Context, c *flux.Client, org string, f projectForm) (flux.Project, error) {
		return c.Projects.Create(ctx, org, projectInput(f))
	},
	edit: func(ctx context.Context, c *flux.Client, org, id string, f projectForm) (flux.Project, error) {
		return c.Projects.Edit(ctx, org, id, projectInput(f))
	},
	remove: func(ctx context.Context, c *flux.Client, org, id string) error {
		return c.Projects.Delete(ctx, org, id)
	},
	prefill: func(p flux.Project) projectForm {
		f := projectForm{Name: p.Name, Status: string(p.Status)}
		f.Manager, _ = personName(p.Manager)
		if p.Programme != nil {
			f.Programme = p.Programme.ID
		}
		return f
	},
	fields: func(ctx context.Context, c *flux.Client, org string, f projectForm, errs fieldErrors) ([]formField, error) {
		l, err := c.Projects.Managers(ctx, org, nil)
		managers, err := options(l, err, func(p flux.Person) string { return p.ID }, func(p flux.Person) string { return p.Name })
		if err != nil {
			return nil, err
		}
		pl, err := c.Programmes.List(ctx, org, nil)
		programmes, err := options(pl, err, func(p flux.Programme) string { return p.ID }, func(p flux.Programme) string { return p.Name })
		if err != nil {
			return nil, err
		}
		status := f.Status
		if status == "" {
			status = string(flux.ProjectActive)
		}
		return []formField{
			textField("name", "Name", f.Name, errs),
			selectField("manager", "Manager", f.Manager, false, managers, errs),
			selectField("programme", "Programme", f.Programme, false, programmes, errs),
			{Name: "status", Label: "Status", Type: "radio", Value: status, Options: projectStatuses, Required: true, Error: errs["status"]},
		}, nil
	},
}

func projectInput(f projectForm) flux.ProjectInput {
	return flux.ProjectInput{Name: f.Name, ManagerID: f.Manager, ProgrammeID: f.Programme, Status: flux.ProjectStatus(f.Status)}
}

var gradePages = kindPages[flux.Grade, gradeForm]{
	noun:       "grade",
	plural:     "grades",
	collection: "grades",
	filterKey:  "name",
	columns:    []string{"Name"},
	row:        func(g flux.Grade) []string { return []string{g.Name} },
	id:         func(g flux.Grade) string { return g.ID },
	label:      func(g flux.Grade) string { return g.Name },
	details: func(_ string, g flux.Grade) []detail {
		return []detail{{Label: "Name", Value: g.Name}}
	},
	stamps: func(g flux.Grade) (flux.Timestamp, *flux.Timestamp) { return g.CreatedAt, g.UpdatedAt },
	list: func(ctx context.Context, c *flux.Client, org string, f flux.Filter) (flux.Listing[flux.Grade], error) {
		return c.Grades.List(ctx, org, f)
	},
	get: func(ctx context.Context, c *flux.Client, org, id string) (flux.Grade, error) {
		return c.Grades.Get(ctx, org, id)
	},
	create: func(ctx context.Context, c *flux.Client, org string, f gradeForm) (flux.Grade, error) {
		return c.Grades.Create(ctx, org, flux.GradeInput{Name: f.Name})
	},
	edit: func(ctx context.Context, c *flux.Client, org, id string, f gradeForm) (flux.Grade, error) {
		return c.Grades.Edit(ctx, org, id, flux.GradeInput{Name: f.Name})
	},
	remove: func(ctx context.Context, c *flux.Client, org, id string) error {
		return c.Grades.Delete(ctx, org, id)
	},
	prefill: func(g flux.Grade) gradeForm { return gradeForm{Name: g.Name} },
	fields: func(_ context.Context, _ *flux.Client, _ string, f gradeForm, errs fieldErrors) ([]formField, error) {
		return []formField{textField("name", "Name", f.Name, errs)}, nil
	},
}

var practicePages = kindPages[flux.Practice, practiceForm]{
	noun:       "practice",
	plural:     "practices",
	collection: "practices",
	filterKey:  "name",
	columns:    []string{"Name", "Head", "Cost centre"},
	row: func(p flux.Practice) []string {
		_, head := personName(p.Head)
		return []string{p.Name, head, p.CostCentre}
	},
	id:    func(p flux.Practice) string { return p.ID },
	label: func(p flux.Practice) string { return p.Name },
	details: func(org string, p flux.Practice) []detail {
		out := []detail{{Label: "Name", Value: p.Name}}
		if id, name := personName(p.Head); id != "" {
			out = append(out, detail{Label: "Head", Value: name, Link: itemLink(org, "people", id)})
		} else {
			out = append(out, detail{Label: "Head"})
		}
		return append(out, detail{Label: "Cost centre", Value: p.CostCentre})
	},
	stamps:  func(p flux.Practice) (flux.Timestamp, *flux.Timestamp) { return p.CreatedAt, p.UpdatedAt },
	aliases: map[string]string{"head_id": "head"},
	list: func(ctx context.Context, c *flux.Client, org string, f flux.Filter) (flux.Listing[flux.Practice], error) {
		return c.Practices.List(ctx, org, f)
	},
	get: func(ctx context.Context, c *flux.Client, org, id string) (flux.Practice, error) {
		return c.Practices.Get(ctx, org, id)
	},
	create: func(ctx context.Context, c *flux.Client, org string, f practiceForm) (flux.Practice, error) {
		return c.Practices.Create(ctx, org, flux.PracticeInput{Name: f.Name, HeadID: f.Head, CostCentre: f.CostCentre})
	},
	edit: func(ctx context.Context, c *flux.Client, org, id string, f practiceForm) (flux.Practice, error) {
		return c.Practices.Edit(ctx, org, id, flux.PracticeInput{Name: f.Name, HeadID: f.Head, CostCentre: f.CostCentre})
	},
	remove: func(ctx context.Context, c *flux.Client, org, id string) error {
		return c.Practices.Delete(ctx, org, id)
	},
	prefill: func(p flux.Practice) practiceForm {
		head, _ := personName(p.Head)
		return practiceForm{Name: p.Name, Head: head, CostCentre: p.CostCentre}
	},
	fields: func(ctx context.Context, c *flux.Client, org string, f practiceForm, errs fieldErrors) ([]formField, error) {
		people, err := personOptions(ctx, c, org)
		if err != nil {
			return nil, err
		}
		cost := textField("cost_centre", "Cost centre", f.CostCentre, errs)
		cost.Required = false
		return []formField{
			textField("name", "Name", f.Name, errs),
			selectField("head", "Head", f.Head, false, people, errs),
			cost,
		}, nil
	},
}

var rolePages = kindPages[flux.Role, roleForm]{
	noun:       "role",
	plural:     "roles",
	collection: "roles",
	filterKey:  "title",
	columns:    []string{"Title", "Grade", "Practice"},
	row: func(r flux.Role) []string {
		var grade, practice string
		if r.Grade != nil {
			grade = r.Grade.Name
		}
		if r.Practice != nil {
			practice = r.Practice.Name
		}
		return []string{r.Title, grade, practice}
	},
	id:    func(r flux.Role) string { return r.ID },
	label: func(r flux.Role) string { return r.Title },
	details: func(org string, r flux.Role) []detail {
		out := []detail{{Label: "Title", Value: r.Title}}
		if r.Grade != nil {
			out = append(out, detail{Label: "Grade", Value: r.Grade.Name, Link: itemLink(org, "grades", r.Grade.ID)})
		} else {
			out = append(out, detail{Label: "Grade"})
		}
		if r.Practice != nil {
			return append(out, detail{Label: "Practice", Value: r.Practice.Name, Link: itemLink(org, "practices", r.Practice.ID)})
		}
		return append(out, detail{Label: "Practice"})
	},
	stamps:  func(r flux.Role) (flux.Timestamp, *flux.Timestamp) { return r.CreatedAt, r.UpdatedAt },
	aliases: map[string]string{"grade_id": "grade", "practice_id": "practice"},
	list: func(ctx context.Context, c *flux.Client, org string, f flux.Filter) (flux.Listing[flux.Role], error) {
		return c.Roles.List(ctx, org, f)
	},
	get: func(ctx context.Context, c *flux.Client, org, id string) (flux.Role, error) {
		return c.Roles.Get(ctx, org, id)
	},
	create: func(ctx context.Context, c *flux.Client, org string, f roleForm) (flux.Role, error) {
		return c.Roles.Create(ctx, org, flux.RoleInput{Title: f.Title, GradeID: f.Grade, PracticeID: f.Practice})
	},
	edit: func(ctx context.Context, c *flux.Client, org, id string, f roleForm) (flux.Role, error) {
		return c.Roles.Edit(ctx, org, id, flux.RoleInput{Title: f.Title, GradeID: f.Grade, PracticeID: f.Practice})
	},
	remove: func(ctx context.Context, c *flux.Client, org, id string) error {
		return c.Roles.Delete(ctx, org, id)
	},
	prefill: func(r flux.Role) roleForm {
		f := roleForm{Title: r.Title}
		if r.Grade != nil {
			f.Grade = r.Grade.ID
		}
		if r.Practice != nil {
			f.Practice = r.Practice.ID
		}
		return f
	},
	fields: func(ctx context.Context, c *flux.Client, org string, f roleForm, errs fieldErrors) ([]formField, error) {
		gl, err := c.Grades.List(ctx, org, nil)
		grades, err := options(gl, err, func(g flux.Grade) string { return g.ID }, func(g flux.Grade) string { return g.Name })
		if err != nil {
			return nil, err
		}
		pl, err := c.Practices.List(ctx, org, nil)
		practices, err := options(pl, err, func(p flux.Practice) string { return p.ID }, func(p flux.Practice) string { return p.Name })
		if err != nil {
			return nil, err
		}
		return []formField{
			textField("title", "Title", f.Title, errs),
			selectField("grade", "Grade", f.Grade, true, grades, errs),
			selectField("practice", "Practice", f.Practice, false, practices, errs),
		}, nil
	},
}

var employments = []option{
	{Value: string(flux.Permanent), Label: "Permanent"},
	{Value: string(flux.Contract), Label: "Contract"},
}

func employmentLabel(e flux.Employment) string {
	for _, o := range employments {
		if o.Value == string(e) {
			return o.Label
		}
	}
	return string(e)
}

var personPages = kindPages[flux.Person, personForm]{
	noun:       "person",
	plural:     "people",
	collection: "people",
	filterKey:  "name",
	columns:    []string{"Name", "Role", "Location"},
	row: func(p flux.Person) []string {
		var role, location string
		if p.Role != nil {
			role = p.Role.Title
		}
		if p.Location != nil {
			location = p.Location.Name
		}
		return []string{p.Name, role, location}
	},
	id:    func(p flux.Person) string { return p.ID },
	label: func(p flux.Person) string { return p.Name },
	details: func(org string, p flux.Person) []detail {
		out := []detail{
			{Label: "Name", Value: p.Name},
			{Label: "Email address", Value: p.EmailAddress, Link: "mailto:" + p.EmailAddress},
		}
		if p.Role != nil {
			out = append(out, detail{Label: "Role", Value: p.Role.Title, Link: itemLink(org, "roles", p.Role.ID)})
		} else {
			out = append(out, detail{Label: "Role"})
		}
		out = append(out,
			detail{Label: "Employment", Value: employmentLabel(p.Employment)},
			detail{Label: "Full-time equivalent", Value: formatFTE(p.FullTimeEquivalent)},
		)
		if p.Location != nil {
			return append(out, detail{Label: "Location", Value: p.Location.Name, Link: itemLink(org, "locations", p.Location.ID)})
		}
		return append(out, detail{Label: "Location"})
	},
	stamps: func(p flux.Person) (flux.Timestamp, *flux.Timestamp) { return p.CreatedAt, p.UpdatedAt },
	aliases: map[string]string{
		"role_id":     "role",
		"location_id": "location",
	},
	list: func(ctx context.Context, c *flux.Client, org string, f flux.Filter) (flux.Listing[flux.Person], error) {
		return c.People.List(ctx, org, f)
	},
	get: func(ctx context.Context, c *flux.Client, org, id string) (flux.Person, error) {
		return c.People.Get(ctx, org, id)
	},
	create: func(ctx context.Context, c *flux.Client, org string, f personForm) (flux.Person, error) {
		return c.People.Create(ctx, org, personInput(f))
	},
	edit: func(ctx context.Context, c *flux.Client, org, id string, f personForm) (flux.Person, error) {
		return c.People.Edit(ctx, org, id, personInput(f))
	},
	remove: func(ctx context.Context, c *flux.Client, org, id string) error {
		return c.People.Delete(ctx, org, id)
	},
	prefill: func(p flux.Person) personForm {
		f := personForm{
			Name:               p.Name,
			EmailAddress:       p.EmailAddress,
			Employment:         string(p.Employment),
			FullTimeEquivalent: p.FullTimeEquivalent,
		}
		if p.Role != nil {
			f.Role = p.Role.ID
		}
		if p.Location != nil {
			f.Location = p.Location.ID
		}
		return f
	},
	fields: func(ctx context.Context, c *flux.Client, org string, f personForm, errs fieldErrors) ([]formField, error) {
		rl, err := c.Roles.List(ctx, org, nil)
		roles, err := options(rl, err, func(r flux.Role) string { return r.ID }, func(r flux.Role) string { return r.Title })
		if err != nil {
			return nil, err
		}
		ll, err := c.Locations.List(ctx, org, nil)
		locations, err := options(ll, err, func(l flux.Location) string { return l.ID }, func(l flux.Location) string { return l.Name })
		if err != nil {
			return nil, err
		}
		email := textField("email_address", "Email address", f.EmailAddress, errs)
		email.Type = "email"
		fte := textField("full_time_equivalent", "Full-time equivalent", formatFTE(f.FullTimeEquivalent), errs)
		fte.Type = "number"
		fte.Step = "0.1"
		fte.Hint = "Between 0.1 and 1.0"
		return []formField{
			textField("name", "Name", f.Name, errs),
			email,
			selectField("role", "Role", f.Role, true, roles, errs),
			{Name: "employment", Label: "Employment", Type: "radio", Value: f.Employment, Options: employments, Required: true, Error: errs["employment"]},
			fte,
			selectField("location", "Location", f.Location, true, locations, errs),
		}, nil
	},
}

func personInput(f personForm) flux.PersonInput {
	return flux.PersonInput{
		Name:               f.Name,
		EmailAddress:       f.EmailAddress,
		RoleID:             f.Role,
		Employment:         flux.Employment(f.Employment),
		FullTimeEquivalent: f.FullTimeEquivalent,
		LocationID:         f.Location,
	}
}

var locationPages = kindPages[flux.Location, locationForm]{
	noun:       "location",
	plural:     "locations",
	collection: "locations",
	filterKey:  "name",
	columns:    []string{"Name", "Address"},
	row:        func(l flux.Location) []string { return []string{l.Name, l.Address} },
	id:         func(l flux.Location) string { return l.ID },
	label:      func(l flux.Location) string { return l.Name },
	details: func(_ string, l flux.Location) []detail {
		return []detail{{Label: "Name", Value: l.Name}, {Label: "Address", Value: l.Address}}
	},
	stamps: func(l flux.Location) (flux.Timestamp, *flux.Timestamp) { return l.CreatedAt, l.UpdatedAt },
	list: func(ctx context.Context, c *flux.Client, org string, f flux.Filter) (flux.Listing[flux.Location], error) {
		return c.Locations.List(ctx, org, f)
	},
	get: func(ctx context.Context, c *flux.Client, org, id string) (flux.Location, error) {
		return c.Locations.Get(ctx, org, id)
	},
	create: func(ctx context.Context, c *flux.Client, org string, f locationForm) (flux.Location, error) {
		return c.Locations.Create(ctx, org, flux.LocationInput{Name: f.Name, Address: f.Address})
	},
	edit: func(ctx context.Context, c *flux.Client, org, id string, f locationForm) (flux.Location, error) {
		return c.Locations.Edit(ctx, org, id, flux.LocationInput{Name: f.Name, Address: f.Address})
	},
	remove: func(ctx context.Context, c *flux.Client, org, id string) error {
		return c.Locations.Delete(ctx, org, id)
	},
	prefill: func(l flux.Location) locationForm { return locationForm{Name: l.Name, Address: l.Address} },
	fields: func(_ context.Context, _ *flux.Client, _ string, f locationForm, errs fieldErrors) ([]formField, error) {
		return []formField{textField("name", "Name", f.Name, errs), textField("address", "Address", f.Address, errs)}, nil
	},
}
