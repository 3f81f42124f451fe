// Package stub serves a local stand-in for the Flux directory API, backed by
// sqlite. It implements the REST contract the flux client relies on and
// nothing more.
package stub

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"fluxweb/internal/domain"
	"fluxweb/internal/events"
	"fluxweb/internal/httplog"
	"fluxweb/internal/repo"
	"fluxweb/sdk/flux"
)

// Config for the stub API handler.
type Config struct {
	DB      *sql.DB
	Version string
	Logger  hclog.Logger
	Now     func() time.Time
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"person not found"`
	Details map[string]any `json:"details,omitempty"`
}

// apiError is the error envelope every failure is written in.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

var errConflict = errors.New("conflict")

type badReference struct{ key string }

func (e badReference) Error() string { return "unknown " + e.key }

type server struct {
	repo   repo.Repo
	events events.Writer
	log    hclog.Logger
	now    func() time.Time
	// mu serializes mutations so uniqueness checks and writes are atomic.
	mu sync.Mutex
}

// New returns an HTTP handler serving the directory API under /{version}.
func New(cfg Config) (http.Handler, error) {
	if cfg.DB == nil {
		return nil, errors.New("stub: db is required")
	}
	version := strings.Trim(cfg.Version, "/")
	if version == "" {
		version = flux.DefaultVersion
	}
	basePath := "/" + version
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	s := &server{
		repo:   repo.Repo{DB: cfg.DB},
		events: events.Writer{Now: now},
		log:    logger,
		now:    now,
	}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// Schema violations are reported as 400 like the real API.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			msgs := make([]string, 0, len(errs))
			for _, e := range errs {
				msgs = append(msgs, e.Error())
			}
			details = map[string]any{"errors": msgs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(httplog.Middleware(logger))
	router.Use(middleware.Recoverer)
	hcfg := huma.DefaultConfig("Flux Directory Stub", "1.0.0")
	hcfg.OpenAPIPath = basePath + "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerOrganisations(group, s)
	registerScoped[ProgrammeBody](group, s, programmeKind)
	registerScoped[ProjectBody](group, s, projectKind)
	registerScoped[GradeBody](group, s, gradeKind)
	registerScoped[PracticeBody](group, s, practiceKind)
	registerScoped[RoleBody](group, s, roleKind)
	registerScoped[PersonBody](group, s, personKind)
	registerScoped[LocationBody](group, s, locationKind)
	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{status: status, Body: apiErrorBody{Code: code, Message: message, Details: details}}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func (s *server) handleError(k kind, err error) huma.StatusError {
	var br badReference
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", k.name+" not found", nil)
	case errors.Is(err, errConflict):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	case errors.As(err, &br):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": br.key})
	default:
		s.log.Error("request failed", "kind", k.name, "error", err)
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

// FilterQuery holds every list filter; only those that apply to a kind are used.
type FilterQuery struct {
	Name        string `query:"name"`
	Title       string `query:"title"`
	ManagerID   string `query:"manager_id"`
	ProgrammeID string `query:"programme_id"`
	HeadID      string `query:"head_id"`
	GradeID     string `query:"grade_id"`
	PracticeID  string `query:"practice_id"`
	RoleID      string `query:"role_id"`
	LocationID  string `query:"location_id"`
}

func (q FilterQuery) filter(k kind, org string) repo.RecordFilter {
	f := repo.RecordFilter{Kind: k.name, OrganisationID: org}
	text := q.Name
	if k.sortField == "title" {
		text = q.Title
	}
	if text != "" {
		f.Contains = map[string]string{k.sortField: text}
	}
	byKey := map[string]string{
		"manager_id":   q.ManagerID,
		"programme_id": q.ProgrammeID,
		"head_id":      q.HeadID,
		"grade_id":     q.GradeID,
		"practice_id":  q.PracticeID,
		"role_id":      q.RoleID,
		"location_id":  q.LocationID,
	}
	for _, ref := range k.refs {
		if v := byKey[ref.key()]; v != "" {
			if f.Equals == nil {
				f.Equals = map[string]string{}
			}
			f.Equals[ref.key()] = v
		}
	}
	return f
}

type recordOutput struct {
	Body map[string]any `json:"body"`
}

func operations(k kind, collection, item string) (create, list, get, edit, del huma.Operation) {
	tags := []string{k.collection}
	create = huma.Operation{
		OperationID:   "create-" + k.name,
		Method:        http.MethodPost,
		Path:          collection,
		Summary:       "Create " + k.name,
		Tags:          tags,
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}
	list = huma.Operation{
		OperationID: "list-" + k.collection,
		Method:      http.MethodGet,
		Path:        collection,
		Summary:     "List " + k.collection,
		Description: "Answers 204 when nothing matches.",
		Tags:        tags,
		Errors:      []int{http.StatusNotFound},
	}
	get = huma.Operation{
		OperationID: "get-" + k.name,
		Method:      http.MethodGet,
		Path:        item,
		Summary:     "Get " + k.name,
		Tags:        tags,
		Errors:      []int{http.StatusNotFound},
	}
	edit = huma.Operation{
		OperationID: "edit-" + k.name,
		Method:      http.MethodPut,
		Path:        item,
		Summary:     "Edit " + k.name,
		Description: "Fields left out of the body keep their stored value.",
		Tags:        tags,
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}
	del = huma.Operation{
		OperationID:   "delete-" + k.name,
		Method:        http.MethodDelete,
		Path:          item,
		Summary:       "Delete " + k.name,
		Tags:          tags,
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}
	return create, list, get, edit, del
}

func registerOrganisations(api huma.API, s *server) {
	k := organisationKind
	create, list, get, edit, del := operations(k, "/organisations", "/organisations/{id}")
	type idPath struct {
		ID string `path:"id"`
	}

	huma.Register(api, create, func(ctx context.Context, input *struct {
		Body OrganisationBody
	}) (*recordOutput, error) {
		rec, err := s.create(ctx, k, "", input.Body.fields())
		return s.respond(ctx, k, rec, err)
	})
	huma.Register(api, list, func(ctx context.Context, input *struct {
		FilterQuery
	}) (*huma.StreamResponse, error) {
		return s.listing(ctx, k, input.filter(k, ""))
	})
	huma.Register(api, get, func(ctx context.Context, input *idPath) (*recordOutput, error) {
		rec, err := s.get(ctx, k, "", input.ID)
		return s.respond(ctx, k, rec, err)
	})
	huma.Register(api, edit, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body OrganisationBody
	}) (*recordOutput, error) {
		rec, err := s.edit(ctx, k, "", input.ID, input.Body.fields())
		return s.respond(ctx, k, rec, err)
	})
	huma.Register(api, del, func(ctx context.Context, input *idPath) (*struct{}, error) {
		return nil, s.handleError(k, s.delete(ctx, k, "", input.ID))
	})
}

// registerScoped wires the five operations of a kind that lives under an
// organisation.
func registerScoped[B body](api huma.API, s *server, k kind) {
	collection := "/organisations/{org}/" + k.collection
	create, list, get, edit, del := operations(k, collection, collection+"/{id}")
	type itemPath struct {
		Org string `path:"org"`
		ID  string `path:"id"`
	}

	huma.Register(api, create, func(ctx context.Context, input *struct {
		Org  string `path:"org"`
		Body B
	}) (*recordOutput, error) {
		rec, err := s.create(ctx, k, input.Org, input.Body.fields())
		return s.respond(ctx, k, rec, err)
	})
	huma.Register(api, list, func(ctx context.Context, input *struct {
		Org string `path:"org"`
		FilterQuery
	}) (*huma.StreamResponse, error) {
		return s.listing(ctx, k, input.filter(k, input.Org))
	})
	huma.Register(api, get, func(ctx context.Context, input *itemPath) (*recordOutput, error) {
		rec, err := s.get(ctx, k, input.Org, input.ID)
		return s.respond(ctx, k, rec, err)
	})
	huma.Register(api, edit, func(ctx context.Context, input *struct {
		Org  string `path:"org"`
		ID   string `path:"id"`
		Body B
	}) (*recordOutput, error) {
		rec, err := s.edit(ctx, k, input.Org, input.ID, input.Body.fields())
		return s.respond(ctx, k, rec, err)
	})
	huma.Register(api, del, func(ctx context.Context, input *itemPath) (*struct{}, error) {
		return nil, s.handleError(k, s.delete(ctx, k, input.Org, input.ID))
	})
}

func (s *server) respond(ctx context.Context, k kind, rec domain.Record, err error) (*recordOutput, error) {
	if err != nil {
		return nil, s.handleError(k, err)
	}
	out, err := s.render(ctx, k, rec)
	if err != nil {
		return nil, s.handleError(k, err)
	}
	return &recordOutput{Body: out}, nil
}

// listing answers 204 with no body when nothing matches.
func (s *server) listing(ctx context.Context, k kind, f repo.RecordFilter) (*huma.StreamResponse, error) {
	items, err := s.list(ctx, k, f)
	if err != nil {
		return nil, s.handleError(k, err)
	}
	return &huma.StreamResponse{Body: func(hctx huma.Context) {
		if len(items) == 0 {
			hctx.SetStatus(http.StatusNoContent)
			return
		}
		data, err := json.Marshal(items)
		if err != nil {
			s.log.Error("encode listing", "kind", k.name, "error", err)
			hctx.SetStatus(http.StatusInternalServerError)
			return
		}
		hctx.SetHeader("Content-Type", "application/json")
		hctx.SetStatus(http.StatusOK)
		hctx.BodyWriter().Write(data)
	}}, nil
}

func (s *server) timestamp() string {
	return s.now().UTC().Format(flux.TimestampLayout)
}

func (s *server) requireOrganisation(ctx context.Context, k kind, org string) error {
	if !k.scoped() {
		return nil
	}
	ok, err := s.repo.Exists(ctx, organisationKind.name, "", org)
	if err != nil {
		return err
	}
	if !ok {
		return repo.ErrNotFound
	}
	return nil
}

func (s *server) checkReferences(ctx context.Context, k kind, org string, fields map[string]any) error {
	for _, ref := range k.refs {
		id, _ := fields[ref.key()].(string)
		if id == "" {
			continue
		}
		ok, err := s.repo.Exists(ctx, ref.kind, org, id)
		if err != nil {
			return err
		}
		if !ok {
			return badReference{key: ref.key()}
		}
	}
	return nil
}

// checkUnique rejects an organisation whose name or domain is already taken.
func (s *server) checkUnique(ctx context.Context, k kind, selfID string, fields map[string]any) error {
	if k.scoped() {
		return nil
	}
	existing, err := s.repo.ListRecords(ctx, repo.RecordFilter{Kind: k.name})
	if err != nil {
		return err
	}
	name, _ := fields["name"].(string)
	domainName, _ := fields["domain"].(string)
	for _, rec := range existing {
		if rec.ID == selfID {
			continue
		}
		if n, _ := rec.Body["name"].(string); strings.EqualFold(n, name) {
			return fmt.Errorf("organisation name %q is taken: %w", name, errConflict)
		}
		if d, _ := rec.Body["domain"].(string); strings.EqualFold(d, domainName) {
			return fmt.Errorf("organisation domain %q is taken: %w", domainName, errConflict)
		}
	}
	return nil
}

func (s *server) create(ctx context.Context, k kind, org string, fields map[string]any) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOrganisation(ctx, k, org); err != nil {
		return domain.Record{}, err
	}
	dropEmpty(fields)
	if err := s.checkReferences(ctx, k, org, fields); err != nil {
		return domain.Record{}, err
	}
	if err := s.checkUnique(ctx, k, "", fields); err != nil {
		return domain.Record{}, err
	}
	rec := domain.Record{
		ID:             uuid.NewString(),
		Kind:           k.name,
		OrganisationID: org,
		Body:           fields,
		CreatedAt:      s.timestamp(),
	}
	rec.SortName, _ = fields[k.sortField].(string)
	err := s.mutate(ctx, domain.EventRecordCreated, rec, func(tx *sql.Tx) error {
		return s.repo.InsertRecord(ctx, tx, rec)
	})
	return rec, err
}

func (s *server) list(ctx context.Context, k kind, f repo.RecordFilter) ([]map[string]any, error) {
	if err := s.requireOrganisation(ctx, k, f.OrganisationID); err != nil {
		return nil, err
	}
	recs, err := s.repo.ListRecords(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		item, err := s.render(ctx, k, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *server) get(ctx context.Context, k kind, org, id string) (domain.Record, error) {
	if err := s.requireOrganisation(ctx, k, org); err != nil {
		return domain.Record{}, err
	}
	return s.repo.GetRecord(ctx, k.name, org, id)
}

func (s *server) edit(ctx context.Context, k kind, org, id string, fields map[string]any) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.get(ctx, k, org, id)
	if err != nil {
		return rec, err
	}
	for key, v := range fields {
		if str, ok := v.(string); ok && str == "" {
			delete(rec.Body, key)
			continue
		}
		rec.Body[key] = v
	}
	if err := s.checkReferences(ctx, k, org, rec.Body); err != nil {
		return rec, err
	}
	if err := s.checkUnique(ctx, k, rec.ID, rec.Body); err != nil {
		return rec, err
	}
	updated := s.timestamp()
	rec.UpdatedAt = &updated
	rec.SortName, _ = rec.Body[k.sortField].(string)
	err = s.mutate(ctx, domain.EventRecordUpdated, rec, func(tx *sql.Tx) error {
		return s.repo.UpdateRecord(ctx, tx, rec)
	})
	return rec, err
}

func (s *server) delete(ctx context.Context, k kind, org, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.get(ctx, k, org, id)
	if err != nil {
		return err
	}
	return s.mutate(ctx, domain.EventRecordDeleted, rec, func(tx *sql.Tx) error {
		return s.repo.DeleteRecord(ctx, tx, k.name, org, id)
	})
}

// mutate runs write and its event in one transaction.
func (s *server) mutate(ctx context.Context, evtType string, rec domain.Record, write func(tx *sql.Tx) error) error {
	tx, err := s.repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := write(tx); err != nil {
		return err
	}
	orgID := rec.OrganisationID
	if orgID == "" {
		orgID = rec.ID
	}
	if err := s.events.Append(ctx, tx, evtType, orgID, rec.Kind, rec.ID, events.Payload(rec.Body)); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Debug("record changed", "event", evtType, "kind", rec.Kind, "id", rec.ID)
	return nil
}

// render builds the wire form of rec with references expanded one level.
func (s *server) render(ctx context.Context, k kind, rec domain.Record) (map[string]any, error) {
	out := shallow(k, rec)
	for _, ref := range k.refs {
		id, _ := rec.Body[ref.key()].(string)
		if id == "" {
			continue
		}
		target, err := s.repo.GetRecord(ctx, ref.kind, rec.OrganisationID, id)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[ref.field] = shallow(kindByName(ref.kind), target)
	}
	return out, nil
}

func shallow(k kind, rec domain.Record) map[string]any {
	out := map[string]any{
		"id":         rec.ID,
		"created_at": rec.CreatedAt,
		"updated_at": nil,
	}
	if rec.UpdatedAt != nil {
		out["updated_at"] = *rec.UpdatedAt
	}
	if rec.OrganisationID != "" {
		out["organisation_id"] = rec.OrganisationID
	}
	refKeys := map[string]bool{}
	for _, ref := range k.refs {
		refKeys[ref.key()] = true
	}
	for key, v := range rec.Body {
		if !refKeys[key] {
			out[key] = v
		}
	}
	return out
}

func kindByName(name string) kind {
	for _, k := range []kind{organisationKind, programmeKind, projectKind, gradeKind, practiceKind, roleKind, personKind, locationKind} {
		if k.name == name {
			return k
		}
	}
	return kind{name: name}
}

func dropEmpty(fields map[string]any) {
	for key, v := range fields {
		if str, ok := v.(string); ok && str == "" {
			delete(fields, key)
		}
	}
}
