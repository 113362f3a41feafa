// Package split partitions time-ordered rows for cross-validation without
// look-ahead: every validation row is strictly later than its fold's training rows.
package split

import (
	"fmt"
	"sort"
	"time"

	"VelocityForecast/internal/domain"
)

// Fold is one expanding-window partition. Indices refer to the caller's rows.
type Fold struct {
	Train      []int
	Validation []int
}

// Temporal yields at most nSplits expanding-window folds over the rows sorted
// by date. The last fold's validation chunk absorbs the remainder. When the
// data cannot fill nSplits+1 chunks it degrades to leave-one-out.
func Temporal(dates []time.Time, nSplits int) ([]Fold, error) {
	if nSplits < 1 {
		return nil, fmt.Errorf("%w: n_splits must be positive, got %d", domain.ErrInvalidInput, nSplits)
	}

	order := make([]int, len(dates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return dates[order[a]].Before(dates[order[b]])
	})

	total := len(order)
	foldSize := total / (nSplits + 1)

	var folds []Fold
	if foldSize == 0 {
		for i := 1; i < total; i++ {
			if fold, ok := makeFold(dates, order, i, i+1); ok {
				folds = append(folds, fold)
			}
		}
		return folds, nil
	}

	for i := 0; i < nSplits; i++ {
		boundary := (i + 1) * foldSize
		if boundary >= total {
			break
		}
		end := boundary + foldSize
		if i == nSplits-1 {
			end = total
		}
		if fold, ok := makeFold(dates, order, boundary, end); ok {
			folds = append(folds, fold)
		}
	}
	return folds, nil
}

// makeFold trains on order[:boundary] and validates on order[boundary:end],
// dropping validation rows that share the latest training date.
func makeFold(dates []time.Time, order []int, boundary, end int) (Fold, bool) {
	if boundary <= 0 || boundary >= end {
		return Fold{}, false
	}
	train := append([]int(nil), order[:boundary]...)
	latest := dates[order[boundary-1]]

	validation := make([]int, 0, end-boundary)
	for _, idx := range order[boundary:end] {
		if dates[idx].After(latest) {
			validation = append(validation, idx)
		}
	}
	if len(validation) == 0 {
		return Fold{}, false
	}
	return Fold{Train: train, Validation: validation}, true
}
