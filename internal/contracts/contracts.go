package contracts

import "time"

const (
	ChangeInsert = "INSERT"
	ChangeUpdate = "UPDATE"
	ChangeDelete = "DELETE"
)

// ChangeNotification is published on a row's channel after a write commits.
// Record is the row in storage form (snake_case columns); for deletes it is
// the row as it was before removal.
type ChangeNotification struct {
	ID         string         `json:"id"`
	Table      string         `json:"table"`
	Kind       string         `json:"kind"`
	RowID      string         `json:"row_id"`
	OwnerID    string         `json:"owner_id"`
	Record     map[string]any `json:"record"`
	OccurredAt time.Time      `json:"occurred_at"`
}
