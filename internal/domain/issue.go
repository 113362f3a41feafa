package domain

import "time"

// StatusCategory groups raw tracker statuses.
type StatusCategory string

const (
	CategoryTodo       StatusCategory = "todo"
	CategoryInProgress StatusCategory = "inprogress"
	CategoryDone       StatusCategory = "done"
	CategoryOther      StatusCategory = "other"
)

// RawIssue is an issue record as delivered by an upstream source.
type RawIssue struct {
	ID          int64
	Key         string
	ProjectKey  string
	Type        string
	Status      string
	StoryPoints string
	Created     string
	Resolved    string
	SprintID    *int64
}

// Issue is a normalized issue.
type Issue struct {
	ID                 int64
	Key                string
	ProjectKey         string
	Type               string
	Status             string
	StatusCategory     StatusCategory
	StoryPoints        float64
	StoryPointsImputed bool
	Created            *time.Time
	Resolved           *time.Time
	SprintID           *int64
	CycleTimeDays      Float
}

// InSprint reports whether the issue is assigned to the given sprint.
func (i Issue) InSprint(id int64) bool {
	return i.SprintID != nil && *i.SprintID == id
}

// RawTransition is a change-log entry as delivered by an upstream source.
type RawTransition struct {
	IssueID    int64
	Field      string
	FromStatus *string
	ToStatus   string
	Timestamp  string
}

// StatusTransition is one step of an issue's status history.
type StatusTransition struct {
	IssueID    int64
	Field      string
	FromStatus *string
	ToStatus   string
	Timestamp  time.Time
}

// Records bundles one acquisition batch.
type Records struct {
	Sprints     []RawSprint
	Issues      []RawIssue
	Transitions []RawTransition
}
