package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"fluxweb/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// RecordFilter selects records of one kind. An empty OrganisationID selects
// top-level records. Contains matches body fields case-insensitively by
// substring, Equals matches them exactly.
type RecordFilter struct {
	Kind           string
	OrganisationID string
	Contains       map[string]string
	Equals         map[string]string
}

type scanner interface {
	Scan(dest ...any) error
}

const recordColumns = `id,kind,organisation_id,sort_name,body_json,created_at,updated_at`

func scanRecord(row scanner) (domain.Record, error) {
	var rec domain.Record
	var orgID, updatedAt sql.NullString
	var body string
	if err := row.Scan(&rec.ID, &rec.Kind, &orgID, &rec.SortName, &body, &rec.CreatedAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, ErrNotFound
		}
		return rec, err
	}
	if orgID.Valid {
		rec.OrganisationID = orgID.String
	}
	if updatedAt.Valid {
		rec.UpdatedAt = &updatedAt.String
	}
	if err := json.Unmarshal([]byte(body), &rec.Body); err != nil {
		return rec, fmt.Errorf("decode record %s body: %w", rec.ID, err)
	}
	return rec, nil
}

func (r Repo) InsertRecord(ctx context.Context, tx *sql.Tx, rec domain.Record) error {
	body, err := encodeBody(rec.Body)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO records(`+recordColumns+`) VALUES (?,?,?,?,?,?,?)`,
		rec.ID, rec.Kind, nullable(rec.OrganisationID), rec.SortName, body, rec.CreatedAt, nullableStringPtr(rec.UpdatedAt))
	return err
}

func (r Repo) UpdateRecord(ctx context.Context, tx *sql.Tx, rec domain.Record) error {
	body, err := encodeBody(rec.Body)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE records SET sort_name=?, body_json=?, updated_at=? WHERE id=? AND kind=?`,
		rec.SortName, body, nullableStringPtr(rec.UpdatedAt), rec.ID, rec.Kind)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// DeleteRecord removes a record. Deleting an organisation cascades to
// everything scoped to it.
func (r Repo) DeleteRecord(ctx context.Context, tx *sql.Tx, kind, organisationID, id string) error {
	query := `DELETE FROM records WHERE id=? AND kind=? AND ` + orgClause(organisationID)
	args := []any{id, kind}
	if organisationID != "" {
		args = append(args, organisationID)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (r Repo) GetRecord(ctx context.Context, kind, organisationID, id string) (domain.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE id=? AND kind=? AND ` + orgClause(organisationID)
	args := []any{id, kind}
	if organisationID != "" {
		args = append(args, organisationID)
	}
	return scanRecord(r.DB.QueryRowContext(ctx, query, args...))
}

func (r Repo) Exists(ctx context.Context, kind, organisationID, id string) (bool, error) {
	_, err := r.GetRecord(ctx, kind, organisationID, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) ListRecords(ctx context.Context, f RecordFilter) ([]domain.Record, error) {
	clauses := []string{"kind=?", orgClause(f.OrganisationID)}
	args := []any{f.Kind}
	if f.OrganisationID != "" {
		args = append(args, f.OrganisationID)
	}
	for _, field := range sortedKeys(f.Contains) {
		clauses = append(clauses, `json_extract(body_json, ?) LIKE ? ESCAPE '\'`)
		args = append(args, "$."+field, "%"+escapeLike(f.Contains[field])+"%")
	}
	for _, field := range sortedKeys(f.Equals) {
		clauses = append(clauses, `json_extract(body_json, ?) = ?`)
		args = append(args, "$."+field, f.Equals[field])
	}
	query := `SELECT ` + recordColumns + ` FROM records WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY sort_name COLLATE NOCASE, id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// ListEvents returns the mutation log for an organisation, oldest first.
func (r Repo) ListEvents(ctx context.Context, organisationID string) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,COALESCE(organisation_id,''),entity_kind,COALESCE(entity_id,''),payload_json FROM events WHERE organisation_id=? ORDER BY id`, organisationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload string
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.OrganisationID, &e.EntityKind, &e.EntityID, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("decode event %d payload: %w", e.ID, err)
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func orgClause(organisationID string) string {
	if organisationID == "" {
		return "organisation_id IS NULL"
	}
	return "organisation_id=?"
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func encodeBody(body map[string]any) (string, error) {
	if body == nil {
		body = map[string]any{}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode record body: %w", err)
	}
	return string(data), nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
