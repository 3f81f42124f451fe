package domain

// Record is one stored directory entity. Body holds the fields the API
// exposes besides id, organisation_id and the timestamps.
type Record struct {
	ID             string         `json:"id"`
	Kind           string         `json:"kind"`
	OrganisationID string         `json:"organisation_id,omitempty"`
	SortName       string         `json:"-"`
	Body           map[string]any `json:"body"`
	CreatedAt      string         `json:"created_at"`
	UpdatedAt      *string        `json:"updated_at"`
}

// Event is an entry in the mutation log.
type Event struct {
	ID             int64          `json:"id"`
	TS             string         `json:"ts"`
	Type           string         `json:"type"`
	OrganisationID string         `json:"organisation_id,omitempty"`
	EntityKind     string         `json:"entity_kind"`
	EntityID       string         `json:"entity_id,omitempty"`
	Payload        map[string]any `json:"payload"`
}

const (
	EventRecordCreated = "record.created"
	EventRecordUpdated = "record.updated"
	EventRecordDeleted = "record.deleted"
)
