// Package source resolves configured record sources to their strategies and
// merges what they return into one batch.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"VelocityForecast/internal/config"
	"VelocityForecast/internal/domain"
	"VelocityForecast/internal/ports"
)

// Request carries all parameters required to fetch from one configured source.
type Request struct {
	Name    string
	Options map[string]string
}

// Strategy captures a single acquisition implementation (mock, html_export, store).
type Strategy interface {
	Kind() string
	Fetch(ctx context.Context, req Request) (domain.Records, error)
}

// Registry keeps a mapping from strategy kinds to their implementations.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: map[string]Strategy{}}
}

// Register adds or replaces a strategy implementation.
func (r *Registry) Register(strategy Strategy) {
	if r.strategies == nil {
		r.strategies = map[string]Strategy{}
	}
	r.strategies[strategy.Kind()] = strategy
}

// Resolve returns a strategy by kind or an error if it is absent.
func (r *Registry) Resolve(kind string) (Strategy, error) {
	if strategy, ok := r.strategies[kind]; ok {
		return strategy, nil
	}
	return nil, fmt.Errorf("source kind %s is not registered", kind)
}

// Kinds lists registered strategy kinds.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.strategies))
	for k := range r.strategies {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Multi implements RecordSource via registered strategies, in config order.
type Multi struct {
	registry *Registry
	sources  []config.SourceConfig
	logger   *slog.Logger
}

var _ ports.RecordSource = (*Multi)(nil)

// NewMulti wires the strategy registry with config-defined sources.
func NewMulti(reg *Registry, sources []config.SourceConfig, log *slog.Logger) *Multi {
	return &Multi{
		registry: reg,
		sources:  sources,
		logger:   log,
	}
}

// Fetch runs every configured source and concatenates the results. A sprint
// or issue id already seen from an earlier source is skipped.
func (m *Multi) Fetch(ctx context.Context) (domain.Records, error) {
	if m.registry == nil {
		return domain.Records{}, fmt.Errorf("source registry is not configured")
	}

	m.debug("fetch records", "sources", len(m.sources))

	var (
		merged      domain.Records
		seenSprints = map[int64]struct{}{}
		seenIssues  = map[int64]struct{}{}
	)
	for _, src := range m.sources {
		strategy, err := m.registry.Resolve(src.Kind)
		if err != nil {
			return domain.Records{}, fmt.Errorf("source %s: %w", src.Name, err)
		}

		records, err := strategy.Fetch(ctx, Request{Name: src.Name, Options: src.Options})
		if err != nil {
			return domain.Records{}, fmt.Errorf("fetch source %s: %w", src.Name, err)
		}

		skipped := 0
		for _, s := range records.Sprints {
			if _, dup := seenSprints[s.ID]; dup {
				skipped++
				continue
			}
			seenSprints[s.ID] = struct{}{}
			merged.Sprints = append(merged.Sprints, s)
		}
		for _, is := range records.Issues {
			if _, dup := seenIssues[is.ID]; dup {
				skipped++
				continue
			}
			seenIssues[is.ID] = struct{}{}
			merged.Issues = append(merged.Issues, is)
		}
		merged.Transitions = append(merged.Transitions, records.Transitions...)

		m.debug("source produced records",
			"source", src.Name,
			"sprints", len(records.Sprints),
			"issues", len(records.Issues),
			"transitions", len(records.Transitions),
			"duplicates_skipped", skipped)
	}

	m.debug("multi source done", "sprints", len(merged.Sprints), "issues", len(merged.Issues))
	return merged, nil
}

func (m *Multi) debug(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}
