// Package feed renders projected Hebrew birthdays as an iCalendar feed.
package feed

import (
	"bytes"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-ical"
	"github.com/tartampluch/go-hebrew-birthday/internal/config"
	"github.com/tartampluch/go-hebrew-birthday/internal/engine"
)

// Translator localizes one message. It matches i18n.Catalog.Get.
type Translator interface {
	Get(lang, key string, data map[string]any) string
}

// Generator builds the calendar of a tenant's upcoming Hebrew birthdays.
type Generator struct {
	Clock      engine.Clock
	Translator Translator
	// Reminder is an ISO-8601 duration for a DISPLAY alarm (e.g. "-P1D"). Empty disables alarms.
	Reminder string
}

// Render returns one all-day VEVENT per stored future occurrence of every record, in lang.
// A tenant without occurrences still gets a valid, empty VCALENDAR.
func (g *Generator) Render(records []*engine.BirthRecord, lang string) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(config.PropVersion, config.ICalVersion)
	cal.Props.SetText(config.PropProdid, config.ICalProdid)
	cal.Props.SetText(config.PropXWRCalName, config.ICalCalName)
	cal.Props.SetText(config.PropCalScale, config.ICalScale)
	cal.Props.SetText(config.PropMethod, config.ICalMethod)

	// RFC 7986 refresh hint.
	refreshProp := ical.NewProp(config.PropRefresh)
	refreshProp.SetDuration(config.DefaultICalRefresh)
	cal.Props.Set(refreshProp)

	clock := g.Clock
	if clock == nil {
		clock = engine.RealClock{}
	}
	// DTSTAMP is pinned to the day so identical data renders identically and keeps its ETag.
	dtStampProp := ical.NewProp(config.PropDTStamp)
	dtStampProp.SetDateTime(engine.CivilDate(clock.Now(), time.UTC))

	events := 0
	for _, rec := range records {
		for _, occ := range rec.Derived.Future {
			event := g.createEvent(rec, occ, lang)
			event.Props.Set(dtStampProp)
			cal.Children = append(cal.Children, event.Component)
			events++
		}
	}

	if events == 0 {
		var buf bytes.Buffer
		buf.WriteString(config.StubVCalendar)
		return buf.Bytes(), nil
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrICalEncode, err)
	}

	slog.Debug(config.MsgFeedRendered,
		config.LogKeyComponent, config.CompFeed,
		config.LogKeyCount, events,
		config.LogKeyLang, lang,
	)
	return buf.Bytes(), nil
}

func (g *Generator) createEvent(rec *engine.BirthRecord, occ engine.Occurrence, lang string) *ical.Event {
	event := ical.NewEvent()
	event.Props.SetText(config.PropUID, fmt.Sprintf(config.FormatUID, rec.ID, occ.HebrewYear, config.ICalDomain))

	summary := g.summary(rec, occ, lang)
	event.Props.SetText(config.PropSummary, summary)

	if desc := g.description(rec, lang); desc != "" {
		event.Props.SetText(config.PropDescription, desc)
	}

	dtStartProp := ical.NewProp(config.PropDTStart)
	dtStartProp.SetDate(occ.Date)
	event.Props.Set(dtStartProp)

	if g.Reminder != "" {
		addAlarm(event, g.Reminder, summary)
	}
	return event
}

func (g *Generator) summary(rec *engine.BirthRecord, occ engine.Occurrence, lang string) string {
	name := rec.DisplayName()
	if g.Translator == nil {
		return name
	}
	if age := rec.HebrewAgeAt(occ); age > 0 {
		return g.Translator.Get(lang, config.TKeyEvtSummaryAge, map[string]any{"Name": name, "Age": age})
	}
	return g.Translator.Get(lang, config.TKeyEvtSummary, map[string]any{"Name": name})
}

func (g *Generator) description(rec *engine.BirthRecord, lang string) string {
	if g.Translator == nil || rec.Derived.Hebrew == nil {
		return ""
	}
	desc := g.Translator.Get(lang, config.TKeyEvtDescription, map[string]any{"HebrewDate": rec.Derived.Hebrew.String})
	if rec.AfterSunset {
		desc += "\n" + g.Translator.Get(lang, config.TKeyEvtAfterSunset, nil)
	}
	return desc
}

// addAlarm appends a DISPLAY alarm to the event.
func addAlarm(event *ical.Event, trigger, description string) {
	alarm := ical.NewComponent(config.ICalComponent)
	alarm.Props.SetText(config.PropAction, config.ICalAction)
	alarm.Props.SetText(config.PropDescription, description)

	// Set the raw value to avoid a VALUE=TEXT parameter.
	triggerProp := ical.NewProp(config.PropTrigger)
	triggerProp.Value = trigger
	alarm.Props.Set(triggerProp)

	event.Children = append(event.Children, alarm)
}
