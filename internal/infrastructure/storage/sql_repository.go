package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"VelocityForecast/internal/domain"
	"VelocityForecast/internal/ports"
)

const insertBatchSize = 500

// SQLRepository persists raw records and stage tables into Postgres or SQLite.
// Every Save replaces the previous content of its tables in one transaction.
type SQLRepository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var (
	_ ports.RecordRepository = (*SQLRepository)(nil)
	_ ports.TableRepository  = (*SQLRepository)(nil)
)

// NewSQLRepository wires a sql.DB opened with the given driver.
func NewSQLRepository(db *sql.DB, driver string) (*SQLRepository, error) {
	format, err := placeholder(driver)
	if err != nil {
		return nil, err
	}
	return &SQLRepository{db: db, sb: sq.StatementBuilder.PlaceholderFormat(format)}, nil
}

type tableRows struct {
	table   string
	columns []string
	rows    [][]any
}

// SaveRecords replaces the raw sprint, issue and transition tables.
func (r *SQLRepository) SaveRecords(ctx context.Context, records domain.Records) error {
	sprints := tableRows{
		table:   "raw_sprints",
		columns: []string{"id", "name", "start_date", "end_date", "completed_date", "state", "goal"},
	}
	for _, s := range records.Sprints {
		sprints.rows = append(sprints.rows, []any{s.ID, s.Name, s.StartDate, s.EndDate, s.CompletedDate, s.State, s.Goal})
	}

	issues := tableRows{
		table:   "raw_issues",
		columns: []string{"id", "issue_key", "project_key", "issue_type", "status", "story_points", "created", "resolved", "sprint_id"},
	}
	for _, is := range records.Issues {
		issues.rows = append(issues.rows, []any{
			is.ID, is.Key, is.ProjectKey, is.Type, is.Status, is.StoryPoints, is.Created, is.Resolved, nullInt(is.SprintID),
		})
	}

	transitions := tableRows{
		table:   "raw_transitions",
		columns: []string{"ordinal", "issue_id", "field", "from_status", "to_status", "changed_at"},
	}
	for i, tr := range records.Transitions {
		transitions.rows = append(transitions.rows, []any{
			int64(i), tr.IssueID, tr.Field, nullString(tr.FromStatus), tr.ToStatus, tr.Timestamp,
		})
	}

	if err := r.replace(ctx, sprints, issues, transitions); err != nil {
		return fmt.Errorf("save raw records: %w", err)
	}
	return nil
}

// LoadRecords returns the stored raw records in their saved order.
func (r *SQLRepository) LoadRecords(ctx context.Context) (domain.Records, error) {
	var records domain.Records

	q := r.sb.Select("id", "name", "start_date", "end_date", "completed_date", "state", "goal").
		From("raw_sprints").OrderBy("id")
	err := r.query(ctx, q, func(rows *sql.Rows) error {
		var s domain.RawSprint
		if err := rows.Scan(&s.ID, &s.Name, &s.StartDate, &s.EndDate, &s.CompletedDate, &s.State, &s.Goal); err != nil {
			return err
		}
		records.Sprints = append(records.Sprints, s)
		return nil
	})
	if err != nil {
		return domain.Records{}, fmt.Errorf("load raw sprints: %w", err)
	}

	q = r.sb.Select("id", "issue_key", "project_key", "issue_type", "status", "story_points", "created", "resolved", "sprint_id").
		From("raw_issues").OrderBy("id")
	err = r.query(ctx, q, func(rows *sql.Rows) error {
		var (
			is     domain.RawIssue
			sprint sql.NullInt64
		)
		if err := rows.Scan(&is.ID, &is.Key, &is.ProjectKey, &is.Type, &is.Status, &is.StoryPoints, &is.Created, &is.Resolved, &sprint); err != nil {
			return err
		}
		is.SprintID = intPtr(sprint)
		records.Issues = append(records.Issues, is)
		return nil
	})
	if err != nil {
		return domain.Records{}, fmt.Errorf("load raw issues: %w", err)
	}

	q = r.sb.Select("issue_id", "field", "from_status", "to_status", "changed_at").
		From("raw_transitions").OrderBy("ordinal")
	err = r.query(ctx, q, func(rows *sql.Rows) error {
		var (
			tr   domain.RawTransition
			from sql.NullString
		)
		if err := rows.Scan(&tr.IssueID, &tr.Field, &from, &tr.ToStatus, &tr.Timestamp); err != nil {
			return err
		}
		if from.Valid {
			v := from.String
			tr.FromStatus = &v
		}
		records.Transitions = append(records.Transitions, tr)
		return nil
	})
	if err != nil {
		return domain.Records{}, fmt.Errorf("load raw transitions: %w", err)
	}

	return records, nil
}

var sprintColumns = []string{"id", "name", "start_date", "end_date", "completed_date", "state", "goal", "duration_days"}

// SaveSprints replaces the normalized sprint table.
func (r *SQLRepository) SaveSprints(ctx context.Context, sprints []domain.Sprint) error {
	t := tableRows{table: "sprints", columns: sprintColumns}
	for _, s := range sprints {
		var duration sql.NullInt64
		if s.DurationDays != nil {
			duration = sql.NullInt64{Int64: int64(*s.DurationDays), Valid: true}
		}
		t.rows = append(t.rows, []any{
			s.ID, s.Name, nullTime(s.StartDate), nullTime(s.EndDate), nullTime(s.CompletedDate), string(s.State), s.Goal, duration,
		})
	}
	if err := r.replace(ctx, t); err != nil {
		return fmt.Errorf("save sprints: %w", err)
	}
	return nil
}

// LoadSprints returns normalized sprints ordered by id.
func (r *SQLRepository) LoadSprints(ctx context.Context) ([]domain.Sprint, error) {
	var sprints []domain.Sprint
	q := r.sb.Select(sprintColumns...).From("sprints").OrderBy("id")
	err := r.query(ctx, q, func(rows *sql.Rows) error {
		s, err := scanSprint(rows)
		if err != nil {
			return err
		}
		sprints = append(sprints, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load sprints: %w", err)
	}
	return sprints, nil
}

var issueColumns = []string{
	"id", "issue_key", "project_key", "issue_type", "status", "status_category",
	"story_points", "story_points_imputed", "created", "resolved", "sprint_id", "cycle_time_days",
}

// SaveIssues replaces the normalized issue table.
func (r *SQLRepository) SaveIssues(ctx context.Context, issues []domain.Issue) error {
	t := tableRows{table: "issues", columns: issueColumns}
	for _, is := range issues {
		imputed := 0
		if is.StoryPointsImputed {
			imputed = 1
		}
		t.rows = append(t.rows, []any{
			is.ID, is.Key, is.ProjectKey, is.Type, is.Status, string(is.StatusCategory),
			is.StoryPoints, imputed, nullTime(is.Created), nullTime(is.Resolved), nullInt(is.SprintID), nullFloat(is.CycleTimeDays),
		})
	}
	if err := r.replace(ctx, t); err != nil {
		return fmt.Errorf("save issues: %w", err)
	}
	return nil
}

// LoadIssues returns normalized issues ordered by id.
func (r *SQLRepository) LoadIssues(ctx context.Context) ([]domain.Issue, error) {
	var issues []domain.Issue
	q := r.sb.Select(issueColumns...).From("issues").OrderBy("id")
	err := r.query(ctx, q, func(rows *sql.Rows) error {
		var (
			is                domain.Issue
			category          string
			imputed           int
			created, resolved sql.NullString
			sprint            sql.NullInt64
			cycle             sql.NullFloat64
		)
		if err := rows.Scan(&is.ID, &is.Key, &is.ProjectKey, &is.Type, &is.Status, &category,
			&is.StoryPoints, &imputed, &created, &resolved, &sprint, &cycle); err != nil {
			return err
		}
		var err error
		if is.Created, err = parseTime(created); err != nil {
			return err
		}
		if is.Resolved, err = parseTime(resolved); err != nil {
			return err
		}
		is.StatusCategory = domain.StatusCategory(category)
		is.StoryPointsImputed = imputed != 0
		is.SprintID = intPtr(sprint)
		if cycle.Valid {
			is.CycleTimeDays = domain.Some(cycle.Float64)
		}
		issues = append(issues, is)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load issues: %w", err)
	}
	return issues, nil
}

// SaveVelocity replaces the actual-velocity table. The sprints themselves are
// stored by SaveSprints.
func (r *SQLRepository) SaveVelocity(ctx context.Context, velocity []domain.SprintVelocity) error {
	t := tableRows{table: "sprint_velocity", columns: []string{"sprint_id", "actual_velocity"}}
	for _, v := range velocity {
		t.rows = append(t.rows, []any{v.Sprint.ID, v.ActualVelocity})
	}
	if err := r.replace(ctx, t); err != nil {
		return fmt.Errorf("save velocity: %w", err)
	}
	return nil
}

// LoadVelocity joins actual velocity with the stored sprints, ordered by sprint id.
func (r *SQLRepository) LoadVelocity(ctx context.Context) ([]domain.SprintVelocity, error) {
	cols := make([]string, 0, len(sprintColumns)+1)
	for _, c := range sprintColumns {
		cols = append(cols, "s."+c)
	}
	cols = append(cols, "v.actual_velocity")

	var out []domain.SprintVelocity
	q := r.sb.Select(cols...).
		From("sprint_velocity v").
		Join("sprints s ON s.id = v.sprint_id").
		OrderBy("v.sprint_id")
	err := r.query(ctx, q, func(rows *sql.Rows) error {
		var (
			s        domain.Sprint
			start    sql.NullString
			end      sql.NullString
			done     sql.NullString
			state    string
			duration sql.NullInt64
			velocity float64
		)
		if err := rows.Scan(&s.ID, &s.Name, &start, &end, &done, &state, &s.Goal, &duration, &velocity); err != nil {
			return err
		}
		if err := fillSprint(&s, start, end, done, state, duration); err != nil {
			return err
		}
		out = append(out, domain.SprintVelocity{Sprint: s, ActualVelocity: velocity})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load velocity: %w", err)
	}
	return out, nil
}

// SaveFeatures replaces the feature table and its column order.
func (r *SQLRepository) SaveFeatures(ctx context.Context, table domain.FeatureTable) error {
	cols := tableRows{table: "feature_columns", columns: []string{"ordinal", "name"}}
	for i, name := range table.Columns {
		cols.rows = append(cols.rows, []any{i, name})
	}

	rows := tableRows{
		table:   "feature_rows",
		columns: []string{"sprint_id", "ordinal", "state", "start_date", "actual_velocity", "feature_values"},
	}
	for i, row := range table.Rows {
		values, err := json.Marshal(row.Values)
		if err != nil {
			return fmt.Errorf("marshal features of sprint %d: %w", row.SprintID, err)
		}
		rows.rows = append(rows.rows, []any{
			row.SprintID, i, string(row.State), nullTime(row.StartDate), nullFloat(row.ActualVelocity), string(values),
		})
	}

	if err := r.replace(ctx, cols, rows); err != nil {
		return fmt.Errorf("save features: %w", err)
	}
	return nil
}

// LoadFeatures returns the feature table in its saved row and column order.
func (r *SQLRepository) LoadFeatures(ctx context.Context) (domain.FeatureTable, error) {
	var table domain.FeatureTable

	q := r.sb.Select("name").From("feature_columns").OrderBy("ordinal")
	err := r.query(ctx, q, func(rows *sql.Rows) error {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		table.Columns = append(table.Columns, name)
		return nil
	})
	if err != nil {
		return domain.FeatureTable{}, fmt.Errorf("load feature columns: %w", err)
	}

	q = r.sb.Select("sprint_id", "state", "start_date", "actual_velocity", "feature_values").
		From("feature_rows").OrderBy("ordinal")
	err = r.query(ctx, q, func(rows *sql.Rows) error {
		var (
			row      domain.FeatureRow
			state    string
			start    sql.NullString
			velocity sql.NullFloat64
			values   string
		)
		if err := rows.Scan(&row.SprintID, &state, &start, &velocity, &values); err != nil {
			return err
		}
		var err error
		if row.StartDate, err = parseTime(start); err != nil {
			return err
		}
		row.State = domain.SprintState(state)
		if velocity.Valid {
			row.ActualVelocity = domain.Some(velocity.Float64)
		}
		if err := json.Unmarshal([]byte(values), &row.Values); err != nil {
			return fmt.Errorf("decode features of sprint %d: %w", row.SprintID, err)
		}
		table.Rows = append(table.Rows, row)
		return nil
	})
	if err != nil {
		return domain.FeatureTable{}, fmt.Errorf("load feature rows: %w", err)
	}

	return table, nil
}

func (r *SQLRepository) replace(ctx context.Context, tables ...tableRows) (err error) {
	if r.db == nil {
		return errors.New("database is not configured")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, t := range tables {
		if err = execTx(ctx, tx, r.sb.Delete(t.table)); err != nil {
			return fmt.Errorf("clear %s: %w", t.table, err)
		}
		for start := 0; start < len(t.rows); start += insertBatchSize {
			end := min(start+insertBatchSize, len(t.rows))
			ins := r.sb.Insert(t.table).Columns(t.columns...)
			for _, row := range t.rows[start:end] {
				ins = ins.Values(row...)
			}
			if err = execTx(ctx, tx, ins); err != nil {
				return fmt.Errorf("insert %s: %w", t.table, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func execTx(ctx context.Context, tx *sql.Tx, stmt sq.Sqlizer) error {
	query, args, err := stmt.ToSql()
	if err != nil {
		return fmt.Errorf("build statement: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	return nil
}

func (r *SQLRepository) query(ctx context.Context, q sq.SelectBuilder, scan func(*sql.Rows) error) error {
	if r.db == nil {
		return errors.New("database is not configured")
	}

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}

	for rows.Next() {
		if err := scan(rows); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan row: %w", err)
		}
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return fmt.Errorf("close rows: %w", closeErr)
	}
	return nil
}

func scanSprint(rows *sql.Rows) (domain.Sprint, error) {
	var (
		s        domain.Sprint
		start    sql.NullString
		end      sql.NullString
		done     sql.NullString
		state    string
		duration sql.NullInt64
	)
	if err := rows.Scan(&s.ID, &s.Name, &start, &end, &done, &state, &s.Goal, &duration); err != nil {
		return domain.Sprint{}, err
	}
	if err := fillSprint(&s, start, end, done, state, duration); err != nil {
		return domain.Sprint{}, err
	}
	return s, nil
}

func fillSprint(s *domain.Sprint, start, end, done sql.NullString, state string, duration sql.NullInt64) error {
	var err error
	if s.StartDate, err = parseTime(start); err != nil {
		return err
	}
	if s.EndDate, err = parseTime(end); err != nil {
		return err
	}
	if s.CompletedDate, err = parseTime(done); err != nil {
		return err
	}
	s.State = domain.SprintState(state)
	if duration.Valid {
		d := int(duration.Int64)
		s.DurationDays = &d
	}
	return nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil, fmt.Errorf("parse stored time %q: %w", v.String, err)
	}
	t = t.UTC()
	return &t, nil
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullFloat(v domain.Float) sql.NullFloat64 {
	if !v.Valid {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v.Value, Valid: true}
}
