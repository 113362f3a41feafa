package tracker

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"VelocityForecast/internal/domain"
	"VelocityForecast/internal/source"
)

const (
	sprintLength      = 13 * 24 * time.Hour
	trackerTimeLayout = "2006-01-02T15:04:05.000-0700"
	mockProjectKey    = "PROJ"
)

var (
	issueTypes      = []string{"Story", "Task", "Bug"}
	issueTypeWeight = []float64{0.6, 0.3, 0.1}
	pointChoices    = []string{"1", "2", "3", "5", "8", "13", ""}
	pointWeights    = []float64{0.1, 0.2, 0.3, 0.2, 0.1, 0.05, 0.05}
	doneStatuses    = []string{"Done", "Resolved", "Closed"}
	doneWeights     = []float64{0.8, 0.1, 0.1}
)

// MockOptions tune the generated history.
type MockOptions struct {
	Sprints         int
	IssuesPerSprint int
	StartDate       time.Time
	Seed            uint64
}

// MockGenerator produces a deterministic Jira-like history of consecutive
// two-week sprints. Sprint state is derived from the injected clock.
type MockGenerator struct {
	now func() time.Time
}

var _ source.Strategy = (*MockGenerator)(nil)

// NewMockGenerator wires the clock; nil means time.Now.
func NewMockGenerator(now func() time.Time) *MockGenerator {
	if now == nil {
		now = time.Now
	}
	return &MockGenerator{now: now}
}

// Kind identifies the strategy inside the registry.
func (g *MockGenerator) Kind() string {
	return "mock"
}

// Fetch generates records using the options of the configured source.
func (g *MockGenerator) Fetch(_ context.Context, req source.Request) (domain.Records, error) {
	opts, err := ParseMockOptions(req.Options)
	if err != nil {
		return domain.Records{}, fmt.Errorf("source %s: %w", req.Name, err)
	}
	return g.Generate(opts), nil
}

// ParseMockOptions reads sprints, issues_per_sprint, start_date and seed,
// falling back to 30 sprints of 15 issues starting 2023-01-09.
func ParseMockOptions(options map[string]string) (MockOptions, error) {
	opts := MockOptions{
		Sprints:         30,
		IssuesPerSprint: 15,
		StartDate:       time.Date(2023, time.January, 9, 0, 0, 0, 0, time.UTC),
		Seed:            42,
	}

	if v, ok := options["sprints"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return MockOptions{}, fmt.Errorf("%w: sprints=%q", domain.ErrInvalidInput, v)
		}
		opts.Sprints = n
	}
	if v, ok := options["issues_per_sprint"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return MockOptions{}, fmt.Errorf("%w: issues_per_sprint=%q", domain.ErrInvalidInput, v)
		}
		opts.IssuesPerSprint = n
	}
	if v, ok := options["start_date"]; ok {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			return MockOptions{}, fmt.Errorf("%w: start_date=%q", domain.ErrInvalidInput, v)
		}
		opts.StartDate = d
	}
	if v, ok := options["seed"]; ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return MockOptions{}, fmt.Errorf("%w: seed=%q", domain.ErrInvalidInput, v)
		}
		opts.Seed = n
	}
	return opts, nil
}

// Generate builds the history. The same options and clock always yield the
// same records.
func (g *MockGenerator) Generate(opts MockOptions) domain.Records {
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	now := g.now().UTC()

	var (
		records  domain.Records
		issueID  int64 = 1
		startDay       = opts.StartDate.UTC()
	)

	for i := 0; i < opts.Sprints; i++ {
		sprintID := int64(i + 1)
		endDay := startDay.Add(sprintLength)
		closed := endDay.Before(now)

		state := domain.SprintFuture
		switch {
		case closed:
			state = domain.SprintClosed
		case !now.Before(startDay) && !now.After(endDay):
			state = domain.SprintActive
		}

		completed := ""
		if closed {
			completed = endDay.AddDate(0, 0, rng.IntN(2)).Format(trackerTimeLayout)
		}

		records.Sprints = append(records.Sprints, domain.RawSprint{
			ID:            sprintID,
			Name:          fmt.Sprintf("Sprint %d", sprintID),
			StartDate:     startDay.Format(trackerTimeLayout),
			EndDate:       endDay.Format(trackerTimeLayout),
			CompletedDate: completed,
			State:         string(state),
			Goal:          fmt.Sprintf("Goal for Sprint %d", sprintID),
		})

		lo := opts.IssuesPerSprint * 8 / 10
		hi := opts.IssuesPerSprint * 12 / 10
		count := lo
		if hi > lo {
			count = lo + rng.IntN(hi-lo)
		}

		for j := 0; j < count; j++ {
			issue, transitions := g.issue(rng, issueID, sprintID, startDay, endDay, now, state)
			records.Issues = append(records.Issues, issue)
			records.Transitions = append(records.Transitions, transitions...)
			issueID++
		}

		startDay = endDay.AddDate(0, 0, 1)
	}

	return records
}

func (g *MockGenerator) issue(
	rng *rand.Rand,
	id, sprintID int64,
	start, end, now time.Time,
	state domain.SprintState,
) (domain.RawIssue, []domain.RawTransition) {
	issueType := weighted(rng, issueTypes, issueTypeWeight)
	created := start.AddDate(0, 0, -(1 + rng.IntN(19)))

	points := ""
	if issueType != "Bug" {
		points = weighted(rng, pointChoices, pointWeights)
	}

	status := "To Do"
	var inProgress, done *time.Time

	switch {
	case state == domain.SprintClosed && rng.Float64() < 0.9:
		status = weighted(rng, doneStatuses, doneWeights)
		ip := start.Add(days(rng.IntN(5)) + hours(rng.IntN(8)))
		resolved := ip.Add(days(1+rng.IntN(9)) + hours(rng.IntN(8)))
		if limit := end.Add(days(2)); resolved.After(limit) {
			resolved = limit
		}
		if floor := ip.Add(time.Hour); resolved.Before(floor) {
			resolved = floor
		}
		inProgress, done = &ip, &resolved
	case state == domain.SprintClosed:
		status = []string{"To Do", "In Progress"}[rng.IntN(2)]
		if status == "In Progress" {
			ip := start.Add(days(rng.IntN(10)) + hours(rng.IntN(8)))
			inProgress = &ip
		}
	case state == domain.SprintActive && rng.Float64() < 0.5:
		status = []string{"In Progress", "In Review"}[rng.IntN(2)]
		elapsed := int(now.Sub(start).Hours() / 24)
		ip := start.Add(days(rng.IntN(elapsed+1)) + hours(rng.IntN(8)))
		inProgress = &ip
	}

	sid := sprintID
	issue := domain.RawIssue{
		ID:          id,
		Key:         fmt.Sprintf("%s-%d", mockProjectKey, id),
		ProjectKey:  mockProjectKey,
		Type:        issueType,
		Status:      status,
		StoryPoints: points,
		Created:     created.Format(trackerTimeLayout),
		SprintID:    &sid,
	}
	if done != nil {
		issue.Resolved = done.Format(trackerTimeLayout)
	}

	transitions := []domain.RawTransition{{
		IssueID:   id,
		Field:     "status",
		ToStatus:  "To Do",
		Timestamp: created.Format(trackerTimeLayout),
	}}
	if inProgress != nil {
		from := "To Do"
		transitions = append(transitions, domain.RawTransition{
			IssueID:    id,
			Field:      "status",
			FromStatus: &from,
			ToStatus:   "In Progress",
			Timestamp:  inProgress.Format(trackerTimeLayout),
		})
	}
	if done != nil {
		from := "In Progress"
		transitions = append(transitions, domain.RawTransition{
			IssueID:    id,
			Field:      "status",
			FromStatus: &from,
			ToStatus:   status,
			Timestamp:  done.Format(trackerTimeLayout),
		})
	}

	return issue, transitions
}

func weighted(rng *rand.Rand, choices []string, weights []float64) string {
	x := rng.Float64()
	acc := 0.0
	for i, w := range weights {
		acc += w
		if x < acc {
			return choices[i]
		}
	}
	return choices[len(choices)-1]
}

func days(n int) time.Duration  { return time.Duration(n) * 24 * time.Hour }
func hours(n int) time.Duration { return time.Duration(n) * time.Hour }
