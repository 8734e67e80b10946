package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tartampluch/go-hebrew-birthday/internal/config"
	"golang.org/x/sync/errgroup"
)

// Projector resolves the future Gregorian dates of a Hebrew anniversary.
type Projector struct {
	Converter Converter
	// Concurrency bounds the number of in-flight conversion calls.
	Concurrency int
}

// Project requests startYear..startYear+horizonYears and returns the surviving
// candidates on or after ref, strictly ascending.
// A failed year is logged and dropped; an empty result is valid.
func (p *Projector) Project(ctx context.Context, startYear int, month string, day, horizonYears int, ref time.Time) []Occurrence {
	if horizonYears < 0 {
		horizonYears = 0
	}
	refDay := CivilDate(ref, nil)

	log := slog.With(
		config.LogKeyComponent, config.CompProjector,
		config.LogKeyStartYear, startYear,
		config.LogKeyHebrewMonth, month,
		config.LogKeyHebrewDay, day,
	)
	log.Debug(config.MsgProjectStart, config.LogKeyHorizon, horizonYears)

	var (
		mu         sync.Mutex
		candidates []Occurrence
	)

	g, gctx := errgroup.WithContext(ctx)
	if p.Concurrency > 0 {
		g.SetLimit(p.Concurrency)
	}

	for i := 0; i <= horizonYears; i++ {
		year := startYear + i
		g.Go(func() error {
			date, err := p.Converter.HebrewToGregorian(gctx, year, month, day)
			if err != nil {
				log.Warn(config.MsgProjectYearFail,
					config.LogKeyHebrewYear, year,
					config.LogKeyError, err,
				)
				return nil
			}
			date = CivilDate(date, nil)
			if date.Before(refDay) {
				return nil
			}
			mu.Lock()
			candidates = append(candidates, Occurrence{Date: date, HebrewYear: year})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Date.Before(candidates[j].Date)
	})
	out := dedupeDates(candidates)

	if len(out) == 0 {
		log.Warn(config.MsgProjectEmpty, config.LogKeyReference, refDay.Format(config.DateLayout))
	} else {
		log.Debug(config.MsgProjectDone, config.LogKeyCount, len(out))
	}
	return out
}

// dedupeDates keeps the first of any run of equal dates so the result is strictly ascending.
func dedupeDates(sorted []Occurrence) []Occurrence {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, o := range sorted[1:] {
		if o.Date.Equal(out[len(out)-1].Date) {
			continue
		}
		out = append(out, o)
	}
	return out
}
