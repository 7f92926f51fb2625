package backup

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/backupd/internal/model"
	"github.com/edvin/backupd/internal/storage"
)

// RetentionEngine applies the daily + weekly policy to one container prefix.
type RetentionEngine struct {
	logger  zerolog.Logger
	store   storage.ObjectStore
	metrics Metrics
}

// NewRetentionEngine creates a RetentionEngine. m may be nil.
func NewRetentionEngine(logger zerolog.Logger, store storage.ObjectStore, m Metrics) *RetentionEngine {
	if m == nil {
		m = nopMetrics{}
	}
	return &RetentionEngine{
		logger:  logger.With().Str("component", "backup-retention").Logger(),
		store:   store,
		metrics: m,
	}
}

// Enforce lists prefix, keeps the daily and weekly representatives and
// deletes everything else in one batched call. A listing failure is logged
// and yields an empty result; a failed delete is reported in Errors and
// leaves Kept intact.
func (e *RetentionEngine) Enforce(ctx context.Context, prefix string, cfg model.RetentionConfig, now time.Time) model.RetentionResult {
	logger := e.logger.With().Str("prefix", prefix).Logger()
	result := model.RetentionResult{Kept: []string{}, Deleted: []string{}, Errors: []string{}}

	objects, err := e.store.List(ctx, prefix)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list backups, skipping retention")
		return result
	}
	if len(objects) == 0 {
		return result
	}

	result.Kept, result.Deleted = SelectRetained(objects, cfg, now)

	if len(result.Deleted) > 0 {
		if err := e.store.RemoveMany(ctx, result.Deleted); err != nil {
			logger.Error().Err(err).Strs("paths", result.Deleted).Msg("failed to delete expired backups")
			result.Errors = append(result.Errors, err.Error())
		}
	}

	logger.Info().
		Int("kept", len(result.Kept)).
		Int("deleted", len(result.Deleted)).
		Int("errors", len(result.Errors)).
		Msg("retention enforced")
	e.metrics.ObserveRetention(result)
	return result
}

// SelectRetained partitions objects into kept and deleted paths, newest
// first. The newest cfg.DailyCount objects are kept; of the rest, the newest
// object of each of the cfg.WeeklyCount latest week buckets is kept as well.
// Objects younger than cfg.MinAge are always kept.
func SelectRetained(objects []model.SpacesObject, cfg model.RetentionConfig, now time.Time) (kept, deleted []string) {
	sorted := slices.Clone(objects)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.After(sorted[j].Date)
	})

	keep := make(map[string]bool, len(sorted))

	daily := min(max(cfg.DailyCount, 0), len(sorted))
	for _, obj := range sorted[:daily] {
		keep[obj.Path] = true
	}

	representative := make(map[string]string)
	var weeks []string
	for _, obj := range sorted[daily:] {
		if keep[obj.Path] {
			continue
		}
		week := ISOWeekKey(obj.Date)
		if _, ok := representative[week]; ok {
			continue
		}
		representative[week] = obj.Path
		weeks = append(weeks, week)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(weeks)))
	for _, week := range weeks[:min(max(cfg.WeeklyCount, 0), len(weeks))] {
		keep[representative[week]] = true
	}

	if cfg.MinAge > 0 {
		cutoff := now.Add(-cfg.MinAge)
		for _, obj := range sorted {
			if obj.Date.After(cutoff) {
				keep[obj.Path] = true
			}
		}
	}

	kept, deleted = []string{}, []string{}
	seen := make(map[string]bool, len(sorted))
	for _, obj := range sorted {
		if seen[obj.Path] {
			continue
		}
		seen[obj.Path] = true
		if keep[obj.Path] {
			kept = append(kept, obj.Path)
		} else {
			deleted = append(deleted, obj.Path)
		}
	}
	return kept, deleted
}

// ContainerPrefixes returns the sorted, distinct container prefixes
// ("nightly/{node}/{container}/") found in objects.
func ContainerPrefixes(objects []model.SpacesObject) []string {
	set := make(map[string]bool)
	for _, obj := range objects {
		if prefix, ok := storage.ContainerPrefixOf(obj.Path); ok {
			set[prefix] = true
		}
	}
	prefixes := make([]string, 0, len(set))
	for p := range set {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	return prefixes
}
