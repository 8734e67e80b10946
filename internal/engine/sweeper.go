package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tartampluch/go-hebrew-birthday/internal/config"
)

// Sweeper advances lapsed next-upcoming pointers of every active record.
type Sweeper struct {
	Projector    *Projector
	Store        RecordStore
	HorizonYears int
	Metrics      SyncObserver
}

// Sweep updates every active record whose next upcoming occurrence is absent or before ref,
// and commits all updates in one batch. It returns the number of records updated.
func (s *Sweeper) Sweep(ctx context.Context, ref time.Time) (int, error) {
	if s.Store == nil {
		return 0, errors.New(config.ErrStoreMissing)
	}
	refDay := CivilDate(ref, nil)

	log := slog.With(
		config.LogKeyComponent, config.CompSweeper,
		config.LogKeyReference, refDay.Format(config.DateLayout),
	)
	log.Info(config.MsgSweepStarted)

	records, err := s.Store.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", config.ErrListRecords, err)
	}

	var updates []RecordUpdate
	failed := 0
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if rec.Archived || rec.Derived.Hebrew.IsZero() {
			continue
		}
		next := rec.Derived.NextUpcoming
		if next != nil && !next.Date.Before(refDay) {
			continue
		}

		if upcoming := onOrAfter(rec.Derived.Future, refDay); len(upcoming) > 0 {
			log.Debug(config.MsgSweepAdvanced,
				config.LogKeyRecord, rec.ID,
				config.LogKeyNext, upcoming[0].Date.Format(config.DateLayout),
			)
			updates = append(updates, UpdateFor(rec, buildDerived(rec.Derived.Hebrew, upcoming)))
			continue
		}

		if s.Projector == nil {
			failed++
			continue
		}
		h := rec.Derived.Hebrew
		log.Info(config.MsgSweepFallback,
			config.LogKeyRecord, rec.ID,
			config.LogKeyHebrewYear, h.Year,
		)
		future := s.Projector.Project(ctx, h.Year, h.Month, h.Day, s.HorizonYears, refDay)
		if len(future) == 0 {
			log.Warn(config.MsgSweepNoFuture, config.LogKeyRecord, rec.ID)
			failed++
			continue
		}
		updates = append(updates, UpdateFor(rec, buildDerived(h, future)))
	}

	if len(updates) == 0 {
		s.observe(len(records), 0, failed)
		log.Info(config.MsgSweepNothing, config.LogKeyScanned, len(records))
		return 0, nil
	}
	applied, err := s.Store.CommitBatch(ctx, updates)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", config.ErrCommitBatch, err)
	}
	s.observe(len(records), applied, failed)

	log.Info(config.MsgSweepDone,
		config.LogKeyScanned, len(records),
		config.LogKeyUpdated, applied,
		config.LogKeySkipped, len(updates)-applied,
		config.LogKeyFailed, failed,
	)
	return applied, nil
}

func (s *Sweeper) observe(scanned, updated, failed int) {
	if s.Metrics != nil {
		s.Metrics.ObserveSweep(scanned, updated, failed)
	}
}

// onOrAfter returns the suffix of an ascending list whose dates are not before ref.
func onOrAfter(future []Occurrence, ref time.Time) []Occurrence {
	for i, o := range future {
		if !o.Date.Before(ref) {
			out := make([]Occurrence, len(future)-i)
			copy(out, future[i:])
			return out
		}
	}
	return nil
}
