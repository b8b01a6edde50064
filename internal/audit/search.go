package audit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/neogan74/bakery/internal/logger"
	"github.com/neogan74/bakery/internal/metrics"
	"github.com/neogan74/bakery/internal/persistence"
)

// Searcher runs filtered queries over the audit document store.
type Searcher struct {
	engine persistence.Engine
	log    logger.Logger
}

func NewSearcher(engine persistence.Engine, log logger.Logger) *Searcher {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Searcher{engine: engine, log: log}
}

// Search returns the events matching f, oldest first.
//
// Documents of an unrecognized layout are skipped, not fatal: the store has
// held more than one schema over time and only the known ones can be
// normalized. Skips are counted in bakery_audit_records_skipped_total.
func (s *Searcher) Search(ctx context.Context, f Filter) ([]Event, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		metrics.AuditSearchDuration.Observe(time.Since(start).Seconds())
	}()

	var (
		results []Event
		skipped int
	)
	err := s.engine.Scan(ctx, func(key string, doc []byte) error {
		event, _, err := Decode(key, doc)
		if err != nil {
			skipped++
			metrics.AuditRecordsSkipped.Inc()
			s.log.Debug("Skipping audit record",
				logger.String("key", key),
				logger.Error(err))
			return nil
		}
		if f.Matches(event) {
			results = append(results, event)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	metrics.AuditSearchResults.Observe(float64(len(results)))
	s.log.Debug("Audit search completed",
		logger.Int("results", len(results)),
		logger.Int("skipped", skipped),
		logger.Duration("elapsed", time.Since(start)))

	if len(results) == 0 {
		return nil, ErrNoMatch
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Timestamp.Before(results[j].Timestamp)
	})
	return results, nil
}
