package flux

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the wire format of created_at/updated_at.
const TimestampLayout = "2006-01-02T15:04:05.000000-07:00"

var timestampLayouts = []string{
	TimestampLayout,
	"2006-01-02T15:04:05.999999-0700",
	time.RFC3339Nano,
}

// Timestamp is an instant encoded in the API's timestamp layout.
type Timestamp struct {
	time.Time
}

// ParseTimestamp parses s in any accepted timestamp layout.
func ParseTimestamp(s string) (Timestamp, error) {
	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return Timestamp{Time: t}, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return Timestamp{}, fmt.Errorf("invalid timestamp %q: %w", s, firstErr)
}

func (t Timestamp) String() string {
	return t.Time.Format(TimestampLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectActive ProjectStatus = "active"
	ProjectPaused ProjectStatus = "paused"
	ProjectClosed ProjectStatus = "closed"
)

// Employment is a person's contract type.
type Employment string

const (
	Permanent Employment = "permanent"
	Contract  Employment = "contract"
)

type Organisation struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Domain    string     `json:"domain"`
	CreatedAt Timestamp  `json:"created_at"`
	UpdatedAt *Timestamp `json:"updated_at"`
}

type Programme struct {
	ID             string     `json:"id"`
	OrganisationID string     `json:"organisation_id,omitempty"`
	Name           string     `json:"name"`
	Manager        *Person    `json:"manager,omitempty"`
	CreatedAt      Timestamp  `json:"created_at"`
	UpdatedAt      *Timestamp `json:"updated_at"`
}

type Project struct {
	ID             string        `json:"id"`
	OrganisationID string        `json:"organisation_id,omitempty"`
	Name           string        `json:"name"`
	Manager        *Person       `json:"manager,omitempty"`
	Programme      *Programme    `json:"programme,omitempty"`
	Status         ProjectStatus `json:"status"`
	CreatedAt      Timestamp     `json:"created_at"`
	UpdatedAt      *Timestamp    `json:"updated_at"`
}

type Grade struct {
	ID             string     `json:"id"`
	OrganisationID string     `json:"organisation_id,omitempty"`
	Name           string     `json:"name"`
	CreatedAt      Timestamp  `json:"created_at"`
	UpdatedAt      *Timestamp `json:"updated_at"`
}

type Practice struct {
	ID             string     `json:"id"`
	OrganisationID string     `json:"organisation_id,omitempty"`
	Name           string     `json:"name"`
	Head           *Person    `json:"head,omitempty"`
	CostCentre     string     `json:"cost_centre,omitempty"`
	CreatedAt      Timestamp  `json:"created_at"`
	UpdatedAt      *Timestamp `json:"updated_at"`
}

type Role struct {
	ID             string     `json:"id"`
	OrganisationID string     `json:"organisation_id,omitempty"`
	Title          string     `json:"title"`
	Grade          *Grade     `json:"grade,omitempty"`
	Practice       *Practice  `json:"practice,omitempty"`
	CreatedAt      Timestamp  `json:"created_at"`
	UpdatedAt      *Timestamp `json:"updated_at"`
}

type Person struct {
	ID                 string     `json:"id"`
	OrganisationID     string     `json:"organisation_id,omitempty"`
	Name               string     `json:"name"`
	EmailAddress       string     `json:"email_address"`
	Role               *Role      `json:"role,omitempty"`
	Employment         Employment `json:"employment"`
	FullTimeEquivalent float64    `json:"full_time_equivalent"`
	Location           *Location  `json:"location,omitempty"`
	CreatedAt          Timestamp  `json:"created_at"`
	UpdatedAt          *Timestamp `json:"updated_at"`
}

type Location struct {
	ID             string     `json:"id"`
	OrganisationID string     `json:"organisation_id,omitempty"`
	Name           string     `json:"name"`
	Address        string     `json:"address"`
	CreatedAt      Timestamp  `json:"created_at"`
	UpdatedAt      *Timestamp `json:"updated_at"`
}

// Listing is the result of a list call. Absent is set when the API answered
// 204 No Content, which callers treat differently from an empty array.
type Listing[T any] struct {
	Items  []T
	Absent bool
}

// Len returns the number of items.
func (l Listing[T]) Len() int { return len(l.Items) }

// Filter narrows a list call. Keys are API query parameters.
type Filter map[string]string
