// Package pipeline drains a source listing, decides what each item means for
// the archive, and publishes the admitted ones.
package pipeline

import (
	"context"

	"github.com/redive-tools/newswatch/pkg/config"
	"github.com/redive-tools/newswatch/pkg/models"
	"github.com/redive-tools/newswatch/pkg/source"
	"github.com/redive-tools/newswatch/pkg/store"
)

// collect runs the fuse comparator over one listing stream: each record is
// paired with its stored counterpart, classified, and emitted unless nothing
// changed. The fuse stops the stream once consecutive uninteresting records
// exceed the limit; with no limit, the first out-of-range record stops it.
//
// Returned results are in oldest-first order so publishing follows upstream
// chronology. On a stream or store error the results gathered so far are
// still returned; they are safe to process.
func collect(ctx context.Context, it source.Iterator, meta store.MetaStore, strat config.Strategy) ([]models.FindResult, error) {
	var results []models.FindResult
	uninteresting := 0

	for {
		m, ok, err := it.Next(ctx)
		if err != nil {
			reverse(results)
			return results, err
		}
		if !ok {
			break
		}

		inRange := (strat.IgnoreIDLt == nil || m.ID >= *strat.IgnoreIDLt) &&
			(strat.IgnoreTimeLt == nil || !m.UpdateTime.Before(*strat.IgnoreTimeLt))

		prior, err := meta.Find(ctx, m.Source, m.ID)
		if err != nil {
			reverse(results)
			return results, err
		}

		result := models.Classify(m, prior)
		if result.State != models.StateSame {
			results = append(results, result)
		}

		switch {
		case result.State == models.StateSame:
			uninteresting++
		case inRange:
			uninteresting = 0
		default:
			uninteresting++
		}

		if strat.FuseLimit != nil && uninteresting > *strat.FuseLimit {
			break
		}
		if strat.FuseLimit == nil && !inRange {
			break
		}
	}

	reverse(results)
	return results, nil
}

func reverse(results []models.FindResult) {
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
}
