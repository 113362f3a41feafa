package tracker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"VelocityForecast/internal/domain"
	"VelocityForecast/internal/source"
)

const defaultPageSize = 200

// HTMLExport reads the HTML issue-navigator export of a tracker board: a
// sprint report table, the issue table and the status change log. Remote
// exports are paged with startAt/maxResults; local files are read whole.
type HTMLExport struct {
	client   *http.Client
	pageSize int
	logger   *slog.Logger
}

var _ source.Strategy = (*HTMLExport)(nil)

// NewHTMLExport wires an HTTP client; pageSize defaults to 200.
func NewHTMLExport(client *http.Client, logger *slog.Logger) *HTMLExport {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &HTMLExport{client: client, pageSize: defaultPageSize, logger: logger}
}

// Kind identifies the strategy inside the registry.
func (h *HTMLExport) Kind() string {
	return "html_export"
}

// Fetch loads the export named by the "url" or "path" option.
func (h *HTMLExport) Fetch(ctx context.Context, req source.Request) (domain.Records, error) {
	if path := req.Options["path"]; path != "" {
		f, err := os.Open(path)
		if err != nil {
			return domain.Records{}, fmt.Errorf("open export %s: %w", path, err)
		}
		defer f.Close()

		doc, err := goquery.NewDocumentFromReader(f)
		if err != nil {
			return domain.Records{}, fmt.Errorf("parse export %s: %w", path, err)
		}
		var records domain.Records
		collect(doc, &records, newSeen())
		return records, nil
	}

	base := req.Options["url"]
	if base == "" {
		return domain.Records{}, fmt.Errorf("%w: source %s needs a url or path option", domain.ErrInvalidInput, req.Name)
	}
	return h.fetchPaged(ctx, base)
}

func (h *HTMLExport) fetchPaged(ctx context.Context, base string) (domain.Records, error) {
	var (
		records domain.Records
		seen    = newSeen()
		startAt = 0
	)
	for {
		pageURL, err := buildPageURL(base, startAt, h.pageSize)
		if err != nil {
			return domain.Records{}, err
		}

		doc, err := h.fetchDocument(ctx, pageURL)
		if err != nil {
			return domain.Records{}, err
		}

		rows := collect(doc, &records, seen)
		h.debug("export page parsed", "url", pageURL, "issue_rows", rows)
		if rows < h.pageSize {
			break
		}
		startAt += h.pageSize
	}
	return records, nil
}

func (h *HTMLExport) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "VelocityForecast/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request export: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("export returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

type seenIDs struct {
	sprints     map[int64]struct{}
	issues      map[int64]struct{}
	transitions map[string]struct{}
}

func newSeen() *seenIDs {
	return &seenIDs{
		sprints:     map[int64]struct{}{},
		issues:      map[int64]struct{}{},
		transitions: map[string]struct{}{},
	}
}

// collect appends the rows of one page and returns how many issue rows it held.
func collect(doc *goquery.Document, records *domain.Records, seen *seenIDs) int {
	doc.Find("#sprints tr.sprint").Each(func(_ int, row *goquery.Selection) {
		sprint, ok := parseSprintRow(row)
		if !ok {
			return
		}
		if _, dup := seen.sprints[sprint.ID]; dup {
			return
		}
		seen.sprints[sprint.ID] = struct{}{}
		records.Sprints = append(records.Sprints, sprint)
	})

	issueRows := 0
	doc.Find("#issuetable tr.issuerow").Each(func(_ int, row *goquery.Selection) {
		issueRows++
		issue, ok := parseIssueRow(row)
		if !ok {
			return
		}
		if _, dup := seen.issues[issue.ID]; dup {
			return
		}
		seen.issues[issue.ID] = struct{}{}
		records.Issues = append(records.Issues, issue)
	})

	doc.Find("#changelog tr.transition").Each(func(_ int, row *goquery.Selection) {
		tr, ok := parseTransitionRow(row)
		if !ok {
			return
		}
		key := fmt.Sprintf("%d|%s|%s|%s", tr.IssueID, tr.Field, tr.ToStatus, tr.Timestamp)
		if _, dup := seen.transitions[key]; dup {
			return
		}
		seen.transitions[key] = struct{}{}
		records.Transitions = append(records.Transitions, tr)
	})

	return issueRows
}

func parseSprintRow(row *goquery.Selection) (domain.RawSprint, bool) {
	id, ok := attrInt(row, "data-sprint-id")
	if !ok {
		return domain.RawSprint{}, false
	}
	return domain.RawSprint{
		ID:            id,
		Name:          cell(row, ".name"),
		StartDate:     cell(row, ".start"),
		EndDate:       cell(row, ".end"),
		CompletedDate: cell(row, ".completed"),
		State:         cell(row, ".state"),
		Goal:          cell(row, ".goal"),
	}, true
}

func parseIssueRow(row *goquery.Selection) (domain.RawIssue, bool) {
	id, ok := attrInt(row, "data-issue-id")
	if !ok {
		return domain.RawIssue{}, false
	}
	key, _ := row.Attr("data-issue-key")
	issue := domain.RawIssue{
		ID:          id,
		Key:         strings.TrimSpace(key),
		ProjectKey:  cell(row, ".project"),
		Type:        cell(row, ".issuetype"),
		Status:      cell(row, ".status"),
		StoryPoints: cell(row, ".customfield_story_points"),
		Created:     cell(row, ".created"),
		Resolved:    cell(row, ".resolutiondate"),
	}
	if sprintID, ok := attrInt(row, "data-sprint-id"); ok {
		issue.SprintID = &sprintID
	}
	return issue, true
}

func parseTransitionRow(row *goquery.Selection) (domain.RawTransition, bool) {
	id, ok := attrInt(row, "data-issue-id")
	if !ok {
		return domain.RawTransition{}, false
	}
	tr := domain.RawTransition{
		IssueID:   id,
		Field:     cell(row, ".field"),
		ToStatus:  cell(row, ".to"),
		Timestamp: cell(row, ".when"),
	}
	if from := cell(row, ".from"); from != "" {
		tr.FromStatus = &from
	}
	return tr, true
}

func cell(row *goquery.Selection, selector string) string {
	return strings.TrimSpace(row.Find(selector).First().Text())
}

func attrInt(row *goquery.Selection, name string) (int64, bool) {
	raw, exists := row.Attr(name)
	if !exists {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func buildPageURL(base string, startAt, pageSize int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid export url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set("startAt", strconv.Itoa(startAt))
	query.Set("maxResults", strconv.Itoa(pageSize))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func (h *HTMLExport) debug(msg string, args ...any) {
	if h.logger != nil {
		h.logger.Debug(msg, args...)
	}
}
