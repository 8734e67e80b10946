package feed_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tartampluch/go-hebrew-birthday/internal/config"
	"github.com/tartampluch/go-hebrew-birthday/internal/engine"
	"github.com/tartampluch/go-hebrew-birthday/internal/feed"
	"github.com/tartampluch/go-hebrew-birthday/internal/i18n"
)

type MockClock struct {
	CurrentTime time.Time
}

func (m MockClock) Now() time.Time {
	return m.CurrentTime
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func syncedRecord() *engine.BirthRecord {
	return &engine.BirthRecord{
		ID:                 "rec-1",
		TenantID:           "tenant-a",
		FirstName:          "Noa",
		LastName:           "Levi",
		GregorianBirthDate: date(2020, time.March, 15),
		AfterSunset:        true,
		Derived: engine.DerivedFields{
			Hebrew: &engine.HebrewDate{String: "19 Adar 5780", Year: 5780, Month: "Adar", Day: 19},
			Future: []engine.Occurrence{
				{Date: date(2026, time.March, 8), HebrewYear: 5786},
				{Date: date(2027, time.March, 26), HebrewYear: 5787},
			},
		},
	}
}

func newGenerator(t *testing.T) *feed.Generator {
	t.Helper()
	catalog, err := i18n.NewCatalog()
	require.NoError(t, err)
	return &feed.Generator{
		Clock:      MockClock{CurrentTime: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)},
		Translator: catalog,
	}
}

func decode(t *testing.T, data []byte) *ical.Calendar {
	t.Helper()
	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	require.NoError(t, err)
	return cal
}

func TestRender_OneEventPerOccurrence(t *testing.T) {
	gen := newGenerator(t)

	data, err := gen.Render([]*engine.BirthRecord{syncedRecord()}, "en")
	require.NoError(t, err)

	cal := decode(t, data)
	events := cal.Events()
	require.Len(t, events, 2)

	uid, err := events[0].Props.Text(config.PropUID)
	require.NoError(t, err)
	assert.Equal(t, "rec-1-5786@gohebrewbirthday", uid)

	summary, err := events[0].Props.Text(config.PropSummary)
	require.NoError(t, err)
	assert.Equal(t, "Hebrew birthday: Noa Levi (6)", summary)

	desc, err := events[1].Props.Text(config.PropDescription)
	require.NoError(t, err)
	assert.Contains(t, desc, "19 Adar 5780")
	assert.Contains(t, desc, "Born after sunset")

	start, err := events[1].DateTimeStart(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, date(2027, time.March, 26), start)
}

func TestRender_Hebrew(t *testing.T) {
	gen := newGenerator(t)

	data, err := gen.Render([]*engine.BirthRecord{syncedRecord()}, "he")
	require.NoError(t, err)

	summary, err := decode(t, data).Events()[0].Props.Text(config.PropSummary)
	require.NoError(t, err)
	assert.Contains(t, summary, "Noa Levi")
	assert.NotContains(t, summary, "Hebrew birthday")
}

func TestRender_EmptyIsStub(t *testing.T) {
	gen := newGenerator(t)

	unsynced := syncedRecord()
	unsynced.Derived = engine.DerivedFields{}

	data, err := gen.Render([]*engine.BirthRecord{unsynced}, "en")
	require.NoError(t, err)
	assert.Equal(t, config.StubVCalendar, string(data))

	data, err = gen.Render(nil, "en")
	require.NoError(t, err)
	assert.Equal(t, config.StubVCalendar, string(data))
}

func TestRender_WithoutTranslatorUsesName(t *testing.T) {
	gen := &feed.Generator{Clock: MockClock{CurrentTime: time.Now()}}

	data, err := gen.Render([]*engine.BirthRecord{syncedRecord()}, "en")
	require.NoError(t, err)

	event := decode(t, data).Events()[0]
	summary, err := event.Props.Text(config.PropSummary)
	require.NoError(t, err)
	assert.Equal(t, "Noa Levi", summary)
	assert.Nil(t, event.Props.Get(config.PropDescription))
}

func TestRender_WithReminders(t *testing.T) {
	gen := newGenerator(t)
	gen.Reminder = "-P1D"

	data, err := gen.Render([]*engine.BirthRecord{syncedRecord()}, "en")
	require.NoError(t, err)

	icsStr := string(data)
	assert.Contains(t, icsStr, "BEGIN:VALARM")
	assert.Contains(t, icsStr, "TRIGGER:-P1D")
	assert.Contains(t, icsStr, "ACTION:DISPLAY")
}

func TestRender_StableWithinADay(t *testing.T) {
	gen := newGenerator(t)
	records := []*engine.BirthRecord{syncedRecord()}

	first, err := gen.Render(records, "en")
	require.NoError(t, err)

	gen.Clock = MockClock{CurrentTime: time.Date(2026, 1, 1, 21, 45, 0, 0, time.UTC)}
	second, err := gen.Render(records, "en")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
