// Package reports aggregates crowd-reported group records and
// implements the public new-report submission workflow.
package reports

import "time"

// Post type and status vocabulary for report records.
const (
	PostTypeGroups = "groups"

	ContactStatusNew    = "new"
	ContactStatusActive = "active"

	GroupStatusActive = "active"
	GroupTypeChurch   = "church"
)

// Contact is a reporter resolved or created by the submission form.
type Contact struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	GridID    int64     `json:"grid_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Group is one reported group formation, tagged with the grid id of
// its reporting location.
type Group struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	GridID      int64      `json:"grid_id"`
	MemberCount int        `json:"member_count"`
	LeaderCount int        `json:"leader_count"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	Status      string     `json:"status"`
	GroupType   string     `json:"group_type"`
	ContactID   string     `json:"contact_id,omitempty"`
	PostType    string     `json:"post_type"`
	PeerIDs     []string   `json:"peer_ids,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// GroupEntry is one row of the submission form's group list.
type GroupEntry struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
	Start   string `json:"start,omitempty"`
}

// NewReportInput is the payload of a public new-report submission.
type NewReportInput struct {
	GridID         int64        `json:"grid_id"`
	Name           string       `json:"name"`
	Email          string       `json:"email"`
	Phone          string       `json:"phone"`
	ContactID      string       `json:"contact_id,omitempty"`
	ReturnReporter bool         `json:"return_reporter,omitempty"`
	List           []GroupEntry `json:"list"`
}

// NewReportResult reports what the submission created.
type NewReportResult struct {
	ContactID string   `json:"contact_id"`
	GroupIDs  []string `json:"group_ids"`
}
