package models

// OnlineUser is one entry of a session's presence view. The group is the
// session's current group; presence is only meaningful inside it.
type OnlineUser struct {
	User      string `json:"user"`
	Group     string `json:"group"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}
