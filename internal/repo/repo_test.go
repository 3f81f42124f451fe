package repo

import (
	"context"
	"errors"
	"testing"

	"fluxweb/internal/db"
	"fluxweb/internal/domain"
	"fluxweb/internal/events"
	"fluxweb/internal/migrate"
)

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return Repo{DB: conn}
}

func insert(t *testing.T, r Repo, rec domain.Record) {
	t.Helper()
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if err := r.InsertRecord(ctx, tx, rec); err != nil {
		t.Fatalf("insert %s: %v", rec.ID, err)
	}
	if err := (events.Writer{}).Append(ctx, tx, domain.EventRecordCreated, rec.OrganisationID, rec.Kind, rec.ID, nil); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestRecordLifecycle(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	insert(t, r, domain.Record{ID: "org-1", Kind: "organisation", SortName: "Acme", Body: map[string]any{"name": "Acme"}, CreatedAt: "t0"})
	insert(t, r, domain.Record{ID: "g-2", Kind: "grade", OrganisationID: "org-1", SortName: "senior", Body: map[string]any{"name": "senior"}, CreatedAt: "t1"})
	insert(t, r, domain.Record{ID: "g-1", Kind: "grade", OrganisationID: "org-1", SortName: "Junior_1", Body: map[string]any{"name": "Junior_1", "band": "b1"}, CreatedAt: "t1"})

	got, err := r.GetRecord(ctx, "grade", "org-1", "g-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Body["name"] != "Junior_1" || got.UpdatedAt != nil {
		t.Fatalf("unexpected record %+v", got)
	}
	if _, err := r.GetRecord(ctx, "grade", "other-org", "g-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found across organisations, got %v", err)
	}

	all, err := r.ListRecords(ctx, RecordFilter{Kind: "grade", OrganisationID: "org-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].ID != "g-1" || all[1].ID != "g-2" {
		t.Fatalf("expected case-insensitive name order, got %+v", all)
	}
	matched, err := r.ListRecords(ctx, RecordFilter{Kind: "grade", OrganisationID: "org-1", Contains: map[string]string{"name": "JUNIOR_"}})
	if err != nil {
		t.Fatalf("list contains: %v", err)
	}
	if len(matched) != 1 || matched[0].ID != "g-1" {
		t.Fatalf("unexpected contains match %+v", matched)
	}
	underscore, err := r.ListRecords(ctx, RecordFilter{Kind: "grade", OrganisationID: "org-1", Contains: map[string]string{"name": "r_1"}})
	if err != nil {
		t.Fatalf("list underscore: %v", err)
	}
	if len(underscore) != 1 {
		t.Fatalf("underscore should match literally, got %+v", underscore)
	}
	equal, err := r.ListRecords(ctx, RecordFilter{Kind: "grade", OrganisationID: "org-1", Equals: map[string]string{"band": "b2"}})
	if err != nil {
		t.Fatalf("list equals: %v", err)
	}
	if len(equal) != 0 {
		t.Fatalf("expected no match, got %+v", equal)
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	updated := "t2"
	got.Body["name"] = "Junior"
	got.SortName = "Junior"
	got.UpdatedAt = &updated
	if err := r.UpdateRecord(ctx, tx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := r.UpdateRecord(ctx, tx, domain.Record{ID: "missing", Kind: "grade"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	got, err = r.GetRecord(ctx, "grade", "org-1", "g-1")
	if err != nil || got.UpdatedAt == nil || *got.UpdatedAt != "t2" {
		t.Fatalf("update not persisted: %+v %v", got, err)
	}

	tx, err = r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := r.DeleteRecord(ctx, tx, "organisation", "", "org-1"); err != nil {
		t.Fatalf("delete org: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if ok, err := r.Exists(ctx, "grade", "org-1", "g-2"); err != nil || ok {
		t.Fatalf("expected cascade delete, exists=%v err=%v", ok, err)
	}

	evts, err := r.ListEvents(ctx, "org-1")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 2 || evts[0].Type != domain.EventRecordCreated || evts[0].EntityID != "g-2" {
		t.Fatalf("unexpected events %+v", evts)
	}
}
