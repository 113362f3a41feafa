package tracker

import (
	"context"
	"fmt"

	"VelocityForecast/internal/domain"
	"VelocityForecast/internal/ports"
	"VelocityForecast/internal/source"
)

// StoreSource replays raw records previously saved by a seed run.
type StoreSource struct {
	repo ports.RecordRepository
}

var _ source.Strategy = (*StoreSource)(nil)

// NewStoreSource wires the raw-record repository.
func NewStoreSource(repo ports.RecordRepository) *StoreSource {
	return &StoreSource{repo: repo}
}

// Kind identifies the strategy inside the registry.
func (s *StoreSource) Kind() string {
	return "store"
}

// Fetch loads every stored raw record.
func (s *StoreSource) Fetch(ctx context.Context, req source.Request) (domain.Records, error) {
	if s.repo == nil {
		return domain.Records{}, fmt.Errorf("source %s: record repository is not configured", req.Name)
	}
	records, err := s.repo.LoadRecords(ctx)
	if err != nil {
		return domain.Records{}, fmt.Errorf("load stored records: %w", err)
	}
	return records, nil
}
