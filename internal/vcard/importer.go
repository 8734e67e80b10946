// Package vcard imports birth records from vCard (.vcf) streams.
package vcard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-vcard"
	"github.com/google/uuid"
	"github.com/tartampluch/go-hebrew-birthday/internal/config"
	"github.com/tartampluch/go-hebrew-birthday/internal/engine"
)

// maxDecodeFailures stops a stream that keeps failing instead of spinning on it.
const maxDecodeFailures = 10

// Saver persists a record and fires the write trigger. *store.Records satisfies it.
type Saver interface {
	Save(ctx context.Context, rec *engine.BirthRecord) (*engine.BirthRecord, error)
}

// Stats summarizes one import.
type Stats struct {
	Processed int
	Imported  int
	Skipped   int
	Failed    int
}

// Importer turns every card with a full birth date into a record of one tenant.
type Importer struct {
	Records Saver
}

// Import decodes r card by card. Cards without a full BDAY (for instance "--0415") are skipped
// because they cannot be converted. Unreadable cards and failed saves are logged and counted.
func (im *Importer) Import(ctx context.Context, r io.Reader, tenantID string) (Stats, error) {
	var stats Stats
	if im.Records == nil {
		return stats, errors.New(config.ErrStoreMissing)
	}

	log := slog.With(
		config.LogKeyComponent, config.CompImport,
		config.LogKeyTenant, tenantID,
	)

	decoder := vcard.NewDecoder(r)
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		card, err := decoder.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			failures++
			if failures > maxDecodeFailures {
				return stats, fmt.Errorf("%s: %w", config.ErrVCardParse, err)
			}
			log.Warn(config.MsgImportBadCard, config.LogKeyError, err)
			continue
		}
		failures = 0
		stats.Processed++

		rec, ok := recordFromCard(card, tenantID)
		if !ok {
			stats.Skipped++
			log.Debug(config.MsgImportSkipped, config.LogKeyDate, card.Value(config.VCardBDAY))
			continue
		}

		if _, err := im.Records.Save(ctx, rec); err != nil {
			stats.Failed++
			log.Error(config.MsgImportFailed, config.LogKeyRecord, rec.ID, config.LogKeyError, err)
			continue
		}
		stats.Imported++
	}

	log.Info(config.MsgImportDone,
		config.LogKeyCount, stats.Imported,
		config.LogKeyScanned, stats.Processed,
		config.LogKeyFailed, stats.Failed,
	)
	return stats, nil
}

// recordFromCard builds a new record, or reports false when the card has no usable birth date.
func recordFromCard(card vcard.Card, tenantID string) (*engine.BirthRecord, bool) {
	bday := card.Get(config.VCardBDAY)
	if bday == nil || bday.Value == "" {
		return nil, false
	}
	birth, err := parseDate(bday.Value)
	if err != nil {
		return nil, false
	}

	rec := &engine.BirthRecord{
		ID:                 uuid.NewString(),
		TenantID:           tenantID,
		GregorianBirthDate: birth,
		Notes:              card.Value(config.VCardNote),
	}

	// Name: structured N first, then the formatted FN.
	if n := card.Name(); n != nil && (n.GivenName != "" || n.FamilyName != "") {
		rec.FirstName = n.GivenName
		rec.LastName = n.FamilyName
	} else if fn := strings.TrimSpace(card.Value(config.VCardFN)); fn != "" {
		rec.FirstName, rec.LastName = splitName(fn)
	} else {
		rec.FirstName = config.FallbackName
	}
	return rec, true
}

// splitName keeps the last word as the family name.
func splitName(full string) (string, string) {
	fields := strings.Fields(full)
	if len(fields) < 2 {
		return full, ""
	}
	return strings.Join(fields[:len(fields)-1], " "), fields[len(fields)-1]
}

// parseDate accepts the vCard date forms that carry a year and returns the civil date.
func parseDate(value string) (time.Time, error) {
	formats := []string{
		config.DateFormatFullDash,
		config.DateFormatFullBasic,
		config.DateFormatRFC3339,
		config.DateFormatFullT,
	}
	for _, f := range formats {
		if t, err := time.Parse(f, value); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, errors.New(config.ErrDateParse)
}
