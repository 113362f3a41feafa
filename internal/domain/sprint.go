package domain

import "time"

// SprintState enumerates the lifecycle of a sprint.
type SprintState string

const (
	SprintFuture SprintState = "future"
	SprintActive SprintState = "active"
	SprintClosed SprintState = "closed"
)

// RawSprint is a sprint record as delivered by an upstream source.
type RawSprint struct {
	ID            int64
	Name          string
	StartDate     string
	EndDate       string
	CompletedDate string
	State         string
	Goal          string
}

// Sprint is a normalized sprint. Nil dates mean the source value was missing or unparsable.
type Sprint struct {
	ID            int64
	Name          string
	StartDate     *time.Time
	EndDate       *time.Time
	CompletedDate *time.Time
	State         SprintState
	Goal          string
	DurationDays  *int
}

// Closed reports whether the sprint finished.
func (s Sprint) Closed() bool {
	return s.State == SprintClosed
}

// SprintVelocity is a closed sprint with the story points it actually delivered.
type SprintVelocity struct {
	Sprint         Sprint
	ActualVelocity float64
}

// VelocityPoint is one entry of the historical velocity series used at inference.
type VelocityPoint struct {
	SprintID       int64
	StartDate      time.Time
	ActualVelocity float64
}
