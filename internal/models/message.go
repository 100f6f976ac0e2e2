package models

// Message direction: whether this node produced the row or received it.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// MessageRecord is one row of the append-only message log. Every row
// belongs to exactly one group; rows are never deleted.
type MessageRecord struct {
	ID        int64   `json:"id"`
	TS        float64 `json:"ts"` // unix seconds
	Direction string  `json:"direction"`
	FromUser  string  `json:"from_user"`
	FirstName string  `json:"first_name,omitempty"`
	LastName  string  `json:"last_name,omitempty"`
	Group     string  `json:"group"`
	Text      string  `json:"text"`
}
