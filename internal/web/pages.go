package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"fluxweb/sdk/flux"
)

// kindPages describes the list, view, create, edit and delete pages of one
// resource kind. T is the record type, F the form it is edited through.
// An empty collection marks the top-level organisations pages.
type kindPages[T any, F any] struct {
	noun       string
	plural     string
	collection string
	filterKey  string
	columns    []string
	row        func(T) []string
	id         func(T) string
	label      func(T) string
	details    func(org string, v T) []detail
	stamps     func(T) (flux.Timestamp, *flux.Timestamp)
	children   func(id string) []crumb
	// aliases maps client input fields to form fields.
	aliases map[string]string

	list    func(ctx context.Context, c *flux.Client, org string, f flux.Filter) (flux.Listing[T], error)
	get     func(ctx context.Context, c *flux.Client, org, id string) (T, error)
	create  func(ctx context.Context, c *flux.Client, org string, form F) (T, error)
	edit    func(ctx context.Context, c *flux.Client, org, id string, form F) (T, error)
	remove  func(ctx context.Context, c *flux.Client, org, id string) error
	prefill func(T) F
	fields  func(ctx context.Context, c *flux.Client, org string, form F, errs fieldErrors) ([]formField, error)
}

func (p kindPages[T, F]) topLevel() bool { return p.collection == "" }

func (p kindPages[T, F]) scope(r *http.Request) string {
	if p.topLevel() {
		return ""
	}
	return chi.URLParam(r, "org")
}

func (p kindPages[T, F]) itemID(r *http.Request) string {
	if p.topLevel() {
		return chi.URLParam(r, "org")
	}
	return chi.URLParam(r, "id")
}

func (p kindPages[T, F]) base(org string) string {
	if p.topLevel() {
		return "/organisations/"
	}
	return "/organisations/" + org + "/" + p.collection + "/"
}

func (p kindPages[T, F]) item(org, id string) string {
	if p.topLevel() {
		return "/organisations/" + id
	}
	return p.base(org) + id
}

func (p kindPages[T, F]) title() string {
	return strings.ToUpper(p.plural[:1]) + p.plural[1:]
}

// trail returns breadcrumbs down to the kind's list page. The last crumb is
// linked only when more crumbs follow.
func (p kindPages[T, F]) trail(r *http.Request, more ...crumb) []crumb {
	crumbs := []crumb{{Label: "Organisations", Link: "/organisations/"}}
	if !p.topLevel() {
		org := organisationFrom(r.Context())
		crumbs = append(crumbs,
			crumb{Label: org.Name, Link: "/organisations/" + org.ID},
			crumb{Label: p.title(), Link: p.base(org.ID)},
		)
	}
	crumbs = append(crumbs, more...)
	crumbs[len(crumbs)-1].Link = ""
	return crumbs
}

func (p kindPages[T, F]) listPage(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org := p.scope(r)
		query := strings.TrimSpace(r.URL.Query().Get(p.filterKey))
		var filter flux.Filter
		if query != "" {
			filter = flux.Filter{p.filterKey: query}
		}
		listing, err := p.list(r.Context(), s.client, org, filter)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		view := listView{
			Heading:     p.title(),
			Noun:        p.noun,
			Plural:      p.plural,
			Columns:     p.columns,
			FilterKey:   p.filterKey,
			FilterValue: query,
			NewLink:     p.base(org) + "new",
		}
		if p.collection == "grades" || p.collection == "locations" {
			view.DownloadLink = p.base(org) + "download"
		}
		for _, v := range listing.Items {
			view.Rows = append(view.Rows, listRow{Link: p.item(org, p.id(v)), Cells: p.row(v)})
		}
		s.page(w, r, http.StatusOK, "list", pageData{Title: view.Heading, Crumbs: p.trail(r), Content: view})
	}
}

func (p kindPages[T, F]) viewPage(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, id := p.scope(r), p.itemID(r)
		v, err := p.get(r.Context(), s.client, org, id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		created, updated := p.stamps(v)
		view := viewView{
			Heading:    p.label(v),
			Details:    p.details(org, v),
			Created:    created,
			Updated:    updated,
			EditLink:   p.item(org, id) + "/edit",
			DeleteLink: p.item(org, id) + "/delete",
		}
		if p.children != nil {
			view.Children = p.children(id)
		}
		crumbs := p.trail(r, crumb{Label: view.Heading})
		if p.topLevel() {
			crumbs = []crumb{{Label: "Organisations", Link: "/organisations/"}, {Label: view.Heading}}
		}
		s.page(w, r, http.StatusOK, "view", pageData{Title: view.Heading, Crumbs: crumbs, Content: view})
	}
}

func (p kindPages[T, F]) showForm(w http.ResponseWriter, r *http.Request, s *server, heading, action, submit, cancel string, crumbs []crumb, form F, errs fieldErrors) {
	fields, err := p.fields(r.Context(), s.client, p.scope(r), form, errs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view := formView{Heading: heading, Action: action, Fields: fields, Submit: submit, CancelLink: cancel}
	s.page(w, r, http.StatusOK, "form", pageData{Title: heading, Crumbs: crumbs, Content: view})
}

func (p kindPages[T, F]) newPage(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org := p.scope(r)
		heading := "Create a new " + p.noun
		action := p.base(org) + "new"
		crumbs := p.trail(r, crumb{Label: "New"})
		if p.topLevel() {
			crumbs = []crumb{{Label: "Organisations", Link: "/organisations/"}, {Label: "New"}}
		}
		var form F
		if r.Method != http.MethodPost {
			p.showForm(w, r, s, heading, action, "Create", p.base(org), crumbs, form, nil)
			return
		}
		errs, err := s.forms.bind(r, &form)
		if err != nil {
			s.errorPage(w, r, http.StatusBadRequest)
			return
		}
		if errs != nil {
			p.showForm(w, r, s, heading, action, "Create", p.base(org), crumbs, form, errs)
			return
		}
		v, err := p.create(r.Context(), s.client, org, form)
		var ie *flux.InputError
		if errors.As(err, &ie) {
			p.showForm(w, r, s, heading, action, "Create", p.base(org), crumbs, form, inputErrors(ie, p.aliases))
			return
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.notify(w, r, Flash{
			Category: "success",
			Link:     p.item(org, p.id(v)),
			LinkText: p.label(v),
			Message:  " has been created.",
		}, p.base(org))
	}
}

func (p kindPages[T, F]) editPage(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, id := p.scope(r), p.itemID(r)
		current, err := p.get(r.Context(), s.client, org, id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		name := p.label(current)
		heading := "Edit " + name
		action := p.item(org, id) + "/edit"
		cancel := p.item(org, id)
		crumbs := p.trail(r, crumb{Label: name, Link: cancel}, crumb{Label: "Edit"})
		if p.topLevel() {
			crumbs = []crumb{{Label: "Organisations", Link: "/organisations/"}, {Label: name, Link: cancel}, {Label: "Edit"}}
		}
		if r.Method != http.MethodPost {
			p.showForm(w, r, s, heading, action, "Save changes", cancel, crumbs, p.prefill(current), nil)
			return
		}
		var form F
		errs, err := s.forms.bind(r, &form)
		if err != nil {
			s.errorPage(w, r, http.StatusBadRequest)
			return
		}
		if errs != nil {
			p.showForm(w, r, s, heading, action, "Save changes", cancel, crumbs, form, errs)
			return
		}
		v, err := p.edit(r.Context(), s.client, org, id, form)
		var ie *flux.InputError
		if errors.As(err, &ie) {
			p.showForm(w, r, s, heading, action, "Save changes", cancel, crumbs, form, inputErrors(ie, p.aliases))
			return
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.notify(w, r, Flash{
			Category: "success",
			Prefix:   "Your changes to ",
			Link:     p.item(org, id),
			LinkText: p.label(v),
			Message:  " have been saved.",
		}, p.base(org))
	}
}

func (p kindPages[T, F]) deletePage(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, id := p.scope(r), p.itemID(r)
		current, err := p.get(r.Context(), s.client, org, id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		name := p.label(current)
		if r.Method != http.MethodPost {
			crumbs := p.trail(r, crumb{Label: name, Link: p.item(org, id)}, crumb{Label: "Delete"})
			if p.topLevel() {
				crumbs = []crumb{{Label: "Organisations", Link: "/organisations/"}, {Label: name, Link: p.item(org, id)}, {Label: "Delete"}}
			}
			view := deleteView{Heading: "Delete " + name, Name: name, Action: p.item(org, id) + "/delete", CancelLink: p.item(org, id)}
			s.page(w, r, http.StatusOK, "delete", pageData{Title: view.Heading, Crumbs: crumbs, Content: view})
			return
		}
		if err := p.remove(r.Context(), s.client, org, id); err != nil {
			s.fail(w, r, err)
			return
		}
		s.notify(w, r, Flash{Category: "success", Message: name + " has been deleted."}, p.base(org))
	}
}

// mountTop registers the collection pages: list and create.
func mountTop[T, F any](r chi.Router, s *server, p kindPages[T, F]) {
	r.Get("/", p.listPage(s))
	r.Get("/new", p.newPage(s))
	r.Post("/new", p.newPage(s))
}

// mountItem registers the pages of a single record.
func mountItem[T, F any](r chi.Router, s *server, p kindPages[T, F]) {
	r.Get("/", p.viewPage(s))
	r.Get("/edit", p.editPage(s))
	r.Post("/edit", p.editPage(s))
	r.Get("/delete", p.deletePage(s))
	r.Post("/delete", p.deletePage(s))
}

func mountScoped[T, F any](r chi.Router, s *server, p kindPages[T, F], extra ...func(chi.Router)) {
	r.Route("/"+p.collection, func(r chi.Router) {
		mountTop(r, s, p)
		for _, fn := range extra {
			fn(r)
		}
		r.Route("/{id}", func(r chi.Router) {
			r.Use(s.requireUUID("id"))
			mountItem(r, s, p)
		})
	})
}
