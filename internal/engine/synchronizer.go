package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tartampluch/go-hebrew-birthday/internal/config"
)

// Outcome describes what a synchronization did.
type Outcome string

const (
	OutcomeSkipped    Outcome = "skipped"
	OutcomeUpdated    Outcome = "updated"
	OutcomeVanished   Outcome = "vanished"
	// OutcomeSuperseded means the birth date or sunset flag changed while computing;
	// the write that changed them triggers its own recomputation.
	OutcomeSuperseded Outcome = "superseded"
	OutcomeFailed     Outcome = "failed"
)

// Synchronizer keeps the derived Hebrew fields of records consistent with their source fields.
type Synchronizer struct {
	Converter Converter
	Projector *Projector
	Store     RecordStore
	Clock     Clock
	// Location defines the day boundary used for the future-only filter.
	Location     *time.Location
	HorizonYears int
	Metrics      SyncObserver
}

// NeedsRecompute reports whether a committed write left the record stale.
// A write that does not touch the birth date or the sunset flag is stale only when
// the Hebrew date was never computed, so the synchronizer's own write never re-triggers it.
func NeedsRecompute(change RecordChange) bool {
	after := change.After
	if after == nil {
		return false
	}
	if change.Before != nil && !TriggeringFieldsEqual(change.Before, after) {
		return true
	}
	return after.Derived.Hebrew == nil
}

// HandleWrite is the write trigger. It matches the store's change hook signature.
func (s *Synchronizer) HandleWrite(ctx context.Context, change RecordChange) error {
	_, err := s.Synchronize(ctx, change)
	return err
}

// Synchronize recomputes the derived fields when the change made them stale.
func (s *Synchronizer) Synchronize(ctx context.Context, change RecordChange) (Outcome, error) {
	if !NeedsRecompute(change) {
		if change.After != nil {
			slog.Debug(config.MsgSyncSkipped,
				config.LogKeyComponent, config.CompSync,
				config.LogKeyRecord, change.After.ID,
			)
		}
		s.observe(OutcomeSkipped)
		return OutcomeSkipped, nil
	}
	return s.Recompute(ctx, change.After)
}

// Recompute unconditionally converts, projects and persists the derived fields of rec.
// Nothing is written unless every required upstream call succeeded.
func (s *Synchronizer) Recompute(ctx context.Context, rec *BirthRecord) (Outcome, error) {
	if s.Converter == nil || s.Projector == nil {
		return OutcomeFailed, errors.New(config.ErrConverterMissing)
	}
	if s.Store == nil {
		return OutcomeFailed, errors.New(config.ErrStoreMissing)
	}

	log := slog.With(
		config.LogKeyComponent, config.CompSync,
		config.LogKeyRecord, rec.ID,
	)
	if rec.GregorianBirthDate.IsZero() {
		log.Info(config.MsgSyncSkipNoDate)
		s.observe(OutcomeSkipped)
		return OutcomeSkipped, nil
	}

	log.Info(config.MsgSyncStarted,
		config.LogKeyDate, rec.GregorianBirthDate.Format(config.DateLayout),
		config.LogKeyAfterSunset, rec.AfterSunset,
	)

	derived, err := s.compute(ctx, rec)
	if err != nil {
		log.Error(config.MsgSyncFailed, config.LogKeyError, err)
		s.observe(OutcomeFailed)
		return OutcomeFailed, err
	}

	if err := s.Store.UpdateDerived(ctx, rec, derived); err != nil {
		switch {
		case errors.Is(err, ErrRecordVanished):
			log.Info(config.MsgSyncVanished)
			s.observe(OutcomeVanished)
			return OutcomeVanished, nil
		case errors.Is(err, ErrRecordSuperseded):
			log.Info(config.MsgSyncSuperseded)
			s.observe(OutcomeSuperseded)
			return OutcomeSuperseded, nil
		}
		s.observe(OutcomeFailed)
		return OutcomeFailed, fmt.Errorf("%s: %w", config.ErrPersist, err)
	}

	attrs := []any{config.LogKeyCount, len(derived.Future)}
	if derived.NextUpcoming != nil {
		attrs = append(attrs, config.LogKeyNext, derived.NextUpcoming.Date.Format(config.DateLayout))
	}
	log.Info(config.MsgSyncDone, attrs...)
	s.observe(OutcomeUpdated)
	return OutcomeUpdated, nil
}

// compute resolves the Hebrew birth date, then projects from the current Hebrew year.
func (s *Synchronizer) compute(ctx context.Context, rec *BirthRecord) (DerivedFields, error) {
	hebrew, err := s.Converter.GregorianToHebrew(ctx, rec.GregorianBirthDate, rec.AfterSunset)
	if err != nil {
		return DerivedFields{}, fmt.Errorf("%s: %w", config.ErrGregToHeb, err)
	}

	startYear, err := s.Converter.CurrentHebrewYear(ctx)
	if err != nil {
		return DerivedFields{}, fmt.Errorf("%s: %w", config.ErrCurrentYear, err)
	}

	future := s.Projector.Project(ctx, startYear, hebrew.Month, hebrew.Day, s.HorizonYears, today(s.Clock, s.Location))
	return buildDerived(&hebrew, future), nil
}

// Backfill recomputes every active record that lacks complete derived data.
// Individual failures are logged and counted; the pass continues.
func (s *Synchronizer) Backfill(ctx context.Context) (int, error) {
	if s.Store == nil {
		return 0, errors.New(config.ErrStoreMissing)
	}
	records, err := s.Store.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", config.ErrListRecords, err)
	}

	updated, failed := 0, 0
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		if rec.HasHebrewData() {
			continue
		}
		outcome, err := s.Recompute(ctx, rec)
		if err != nil {
			failed++
			continue
		}
		if outcome == OutcomeUpdated {
			updated++
		}
	}

	slog.Info(config.MsgBackfillDone,
		config.LogKeyComponent, config.CompSync,
		config.LogKeyScanned, len(records),
		config.LogKeyUpdated, updated,
		config.LogKeyFailed, failed,
	)
	return updated, nil
}

func (s *Synchronizer) observe(o Outcome) {
	if s.Metrics != nil {
		s.Metrics.ObserveSync(string(o))
	}
}

// buildDerived sets the next upcoming occurrence to the head of future, or nil when empty.
func buildDerived(hebrew *HebrewDate, future []Occurrence) DerivedFields {
	d := DerivedFields{Hebrew: hebrew, Future: future}
	if d.Future == nil {
		d.Future = []Occurrence{}
	}
	if len(future) > 0 {
		next := future[0]
		d.NextUpcoming = &next
	}
	return d
}
