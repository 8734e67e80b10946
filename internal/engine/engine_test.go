package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/go-hebrew-birthday/internal/engine"
)

// -----------------------------------------------------------------------------
// Mocks
// -----------------------------------------------------------------------------

// MockConverter simulates the upstream conversion service using `testify/mock`.
type MockConverter struct {
	mock.Mock
}

func (m *MockConverter) GregorianToHebrew(ctx context.Context, date time.Time, afterSunset bool) (engine.HebrewDate, error) {
	args := m.Called(ctx, date, afterSunset)
	return args.Get(0).(engine.HebrewDate), args.Error(1)
}

func (m *MockConverter) HebrewToGregorian(ctx context.Context, year int, month string, day int) (time.Time, error) {
	args := m.Called(ctx, year, month, day)
	// Allow per-year answers from a single expectation.
	if fn, ok := args.Get(0).(func(context.Context, int, string, int) time.Time); ok {
		return fn(ctx, year, month, day), args.Error(1)
	}
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *MockConverter) CurrentHebrewYear(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// MockClock controls time for deterministic testing.
type MockClock struct {
	CurrentTime time.Time
}

func (m MockClock) Now() time.Time {
	return m.CurrentTime
}

// memStore is an in-memory RecordStore that counts writes.
// afterList, when set, runs once ListActive has taken its snapshot.
type memStore struct {
	mu        sync.Mutex
	records   map[string]*engine.BirthRecord
	writes    int
	batches   [][]engine.RecordUpdate
	updateErr error
	afterList func()
}

func newMemStore(recs ...*engine.BirthRecord) *memStore {
	s := &memStore{records: map[string]*engine.BirthRecord{}}
	for _, r := range recs {
		s.records[r.ID] = r
	}
	return s
}

func (s *memStore) Get(_ context.Context, id string) (*engine.BirthRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, engine.ErrRecordNotFound
	}
	cp := *r
	return &cp, nil
}

// redate replaces the source fields and derived data of a stored record, like a concurrent user write
// that was already synchronized.
func (s *memStore) redate(id string, birth time.Time, d engine.DerivedFields) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.records[id]
	r.GregorianBirthDate = birth
	r.Derived = d
}

func (s *memStore) UpdateDerived(_ context.Context, src *engine.BirthRecord, d engine.DerivedFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	r, ok := s.records[src.ID]
	if !ok {
		return engine.ErrRecordVanished
	}
	if !engine.TriggeringFieldsEqual(r, src) {
		return engine.ErrRecordSuperseded
	}
	r.Derived = d
	s.writes++
	return nil
}

func (s *memStore) ListActive(_ context.Context) ([]*engine.BirthRecord, error) {
	s.mu.Lock()
	var out []*engine.BirthRecord
	for _, r := range s.records {
		if !r.Archived {
			cp := *r
			out = append(out, &cp)
		}
	}
	s.mu.Unlock()

	if s.afterList != nil {
		s.afterList()
	}
	return out, nil
}

func (s *memStore) CommitBatch(_ context.Context, updates []engine.RecordUpdate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, updates)
	applied := 0
	for _, u := range updates {
		r, ok := s.records[u.ID]
		if !ok || !r.GregorianBirthDate.Equal(u.BirthDate) || r.AfterSunset != u.AfterSunset {
			continue
		}
		r.Derived = u.Derived
		applied++
	}
	return applied, nil
}

// -----------------------------------------------------------------------------
// Fixtures
// -----------------------------------------------------------------------------

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// adar19 maps 19 Adar of each Hebrew year to a plausible Gregorian date.
func adar19(year int) time.Time {
	return date(year-3760, time.March, 10+(year%7))
}

func newRecord() *engine.BirthRecord {
	return &engine.BirthRecord{
		ID:                 "rec-1",
		TenantID:           "tenant-a",
		FirstName:          "Noa",
		GregorianBirthDate: date(2020, time.March, 15),
	}
}

func stubProjection(conv *MockConverter) {
	conv.On("HebrewToGregorian", mock.Anything, mock.AnythingOfType("int"), "Adar", 19).
		Return(func(_ context.Context, year int, _ string, _ int) time.Time { return adar19(year) }, nil)
}

func newSynchronizer(conv *MockConverter, store engine.RecordStore) *engine.Synchronizer {
	return &engine.Synchronizer{
		Converter:    conv,
		Projector:    &engine.Projector{Converter: conv, Concurrency: 4},
		Store:        store,
		Clock:        MockClock{CurrentTime: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)},
		Location:     time.UTC,
		HorizonYears: 10,
	}
}

// -----------------------------------------------------------------------------
// Synchronizer
// -----------------------------------------------------------------------------

func TestSynchronize_NewRecord_ComputesAndPersists(t *testing.T) {
	conv := new(MockConverter)
	conv.On("GregorianToHebrew", mock.Anything, date(2020, time.March, 15), false).
		Return(engine.HebrewDate{String: "19 Adar 5780", Year: 5780, Month: "Adar", Day: 19}, nil).Once()
	conv.On("CurrentHebrewYear", mock.Anything).Return(5785, nil).Once()
	stubProjection(conv)

	rec := newRecord()
	store := newMemStore(rec)
	s := newSynchronizer(conv, store)

	outcome, err := s.Synchronize(context.Background(), engine.RecordChange{After: rec})
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeUpdated, outcome)

	stored, _ := store.Get(context.Background(), rec.ID)
	require.True(t, stored.HasHebrewData())
	assert.Equal(t, "19 Adar 5780", stored.Derived.Hebrew.String)
	assert.Equal(t, adar19(5785), stored.Derived.NextUpcoming.Date)
	assert.Equal(t, 5785, stored.Derived.NextUpcoming.HebrewYear)
	assert.Equal(t, stored.Derived.Future[0], *stored.Derived.NextUpcoming)
	assert.LessOrEqual(t, len(stored.Derived.Future), 11)
	for i := 1; i < len(stored.Derived.Future); i++ {
		assert.True(t, stored.Derived.Future[i].Date.After(stored.Derived.Future[i-1].Date))
	}
	assert.Equal(t, 5, stored.HebrewAgeAt(*stored.Derived.NextUpcoming))
	conv.AssertNumberOfCalls(t, "HebrewToGregorian", 11)
}

func TestSynchronize_Idempotent(t *testing.T) {
	conv := new(MockConverter)
	conv.On("GregorianToHebrew", mock.Anything, mock.Anything, false).
		Return(engine.HebrewDate{String: "19 Adar 5780", Year: 5780, Month: "Adar", Day: 19}, nil).Once()
	conv.On("CurrentHebrewYear", mock.Anything).Return(5785, nil).Once()
	stubProjection(conv)

	rec := newRecord()
	store := newMemStore(rec)
	s := newSynchronizer(conv, store)

	_, err := s.Synchronize(context.Background(), engine.RecordChange{After: rec})
	require.NoError(t, err)
	calls := len(conv.Calls)

	synced, _ := store.Get(context.Background(), rec.ID)
	outcome, err := s.Synchronize(context.Background(), engine.RecordChange{Before: synced, After: synced})
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeSkipped, outcome)
	assert.Len(t, conv.Calls, calls, "second call must not reach upstream")
	assert.Equal(t, 1, store.writes, "second call must not write")
}

func TestNeedsRecompute(t *testing.T) {
	synced := newRecord()
	synced.Derived = engine.DerivedFields{
		Hebrew:       &engine.HebrewDate{String: "19 Adar 5780", Year: 5780, Month: "Adar", Day: 19},
		NextUpcoming: &engine.Occurrence{Date: date(2025, time.March, 19), HebrewYear: 5785},
		Future:       []engine.Occurrence{{Date: date(2025, time.March, 19), HebrewYear: 5785}},
	}

	notesOnly := *synced
	notesOnly.Notes = "likes cake"

	sunset := *synced
	sunset.AfterSunset = true

	moved := *synced
	moved.GregorianBirthDate = date(2020, time.March, 16)

	// Same day, different clock time: not a change.
	sameDay := *synced
	sameDay.GregorianBirthDate = synced.GregorianBirthDate.Add(5 * time.Hour)

	fresh := newRecord()
	emptyProjection := *synced
	emptyProjection.Derived = engine.DerivedFields{Hebrew: synced.Derived.Hebrew, Future: []engine.Occurrence{}}

	tests := []struct {
		name   string
		change engine.RecordChange
		want   bool
	}{
		{"Created without derived fields", engine.RecordChange{After: fresh}, true},
		{"Created with derived fields", engine.RecordChange{After: synced}, false},
		{"Notes edited", engine.RecordChange{Before: synced, After: &notesOnly}, false},
		{"Sunset flag flipped", engine.RecordChange{Before: synced, After: &sunset}, true},
		{"Birth date moved", engine.RecordChange{Before: synced, After: &moved}, true},
		{"Same civil day", engine.RecordChange{Before: synced, After: &sameDay}, false},
		{"Deleted", engine.RecordChange{Before: synced}, false},
		{"Own write with empty projection", engine.RecordChange{Before: fresh, After: &emptyProjection}, false},
		{"Unrelated edit before first computation", engine.RecordChange{Before: fresh, After: fresh}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, engine.NeedsRecompute(tt.change))
		})
	}
}

func TestSynchronize_SunsetChangeRecomputes(t *testing.T) {
	conv := new(MockConverter)
	conv.On("GregorianToHebrew", mock.Anything, mock.Anything, true).
		Return(engine.HebrewDate{String: "20 Adar 5780", Year: 5780, Month: "Adar", Day: 20}, nil).Once()
	conv.On("CurrentHebrewYear", mock.Anything).Return(5785, nil).Once()
	conv.On("HebrewToGregorian", mock.Anything, mock.AnythingOfType("int"), "Adar", 20).
		Return(func(_ context.Context, year int, _ string, _ int) time.Time { return adar19(year).AddDate(0, 0, 1) }, nil)

	before := newRecord()
	before.Derived = engine.DerivedFields{
		Hebrew:       &engine.HebrewDate{String: "19 Adar 5780", Year: 5780, Month: "Adar", Day: 19},
		NextUpcoming: &engine.Occurrence{Date: adar19(5785), HebrewYear: 5785},
		Future:       []engine.Occurrence{{Date: adar19(5785), HebrewYear: 5785}},
	}
	after := *before
	after.AfterSunset = true

	store := newMemStore(&after)
	s := newSynchronizer(conv, store)

	outcome, err := s.Synchronize(context.Background(), engine.RecordChange{Before: before, After: &after})
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeUpdated, outcome)

	stored, _ := store.Get(context.Background(), after.ID)
	assert.Equal(t, 20, stored.Derived.Hebrew.Day)
	conv.AssertExpectations(t)
}

func TestSynchronize_ConversionFailure_NoWrite(t *testing.T) {
	tests := []struct {
		name  string
		setup func(conv *MockConverter)
		want  error
	}{
		{
			name: "Unavailable",
			setup: func(conv *MockConverter) {
				conv.On("GregorianToHebrew", mock.Anything, mock.Anything, false).
					Return(engine.HebrewDate{}, engine.ErrConversionUnavailable)
			},
			want: engine.ErrConversionUnavailable,
		},
		{
			name: "Malformed",
			setup: func(conv *MockConverter) {
				conv.On("GregorianToHebrew", mock.Anything, mock.Anything, false).
					Return(engine.HebrewDate{}, engine.ErrConversionMalformed)
			},
			want: engine.ErrConversionMalformed,
		},
		{
			name: "Current year unavailable",
			setup: func(conv *MockConverter) {
				conv.On("GregorianToHebrew", mock.Anything, mock.Anything, false).
					Return(engine.HebrewDate{String: "19 Adar 5780", Year: 5780, Month: "Adar", Day: 19}, nil)
				conv.On("CurrentHebrewYear", mock.Anything).Return(0, engine.ErrConversionUnavailable)
			},
			want: engine.ErrConversionUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := new(MockConverter)
			tt.setup(conv)
			rec := newRecord()
			store := newMemStore(rec)

			outcome, err := newSynchronizer(conv, store).Synchronize(context.Background(), engine.RecordChange{After: rec})
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, engine.OutcomeFailed, outcome)
			assert.Zero(t, store.writes)
			conv.AssertNotCalled(t, "HebrewToGregorian", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestSynchronize_RecordVanished_IsBenign(t *testing.T) {
	conv := new(MockConverter)
	conv.On("GregorianToHebrew", mock.Anything, mock.Anything, false).
		Return(engine.HebrewDate{String: "19 Adar 5780", Year: 5780, Month: "Adar", Day: 19}, nil)
	conv.On("CurrentHebrewYear", mock.Anything).Return(5785, nil)
	stubProjection(conv)

	// The store never held the record: it was deleted before persistence.
	store := newMemStore()
	outcome, err := newSynchronizer(conv, store).Synchronize(context.Background(), engine.RecordChange{After: newRecord()})

	assert.NoError(t, err)
	assert.Equal(t, engine.OutcomeVanished, outcome)
}

func TestSynchronize_SourceChangedDuringCompute_KeepsNewerResult(t *testing.T) {
	rec := newRecord()
	store := newMemStore(rec)
	newer := engine.DerivedFields{
		Hebrew: &engine.HebrewDate{String: "24 Adar 5780", Year: 5780, Month: "Adar", Day: 24},
		Future: []engine.Occurrence{},
	}

	conv := new(MockConverter)
	conv.On("GregorianToHebrew", mock.Anything, date(2020, time.March, 15), false).
		Run(func(mock.Arguments) {
			// A user moves the birth date while the upstream call is in flight,
			// and that write is synchronized first.
			store.redate(rec.ID, date(2020, time.March, 20), newer)
		}).
		Return(engine.HebrewDate{String: "19 Adar 5780", Year: 5780, Month: "Adar", Day: 19}, nil).Once()
	conv.On("CurrentHebrewYear", mock.Anything).Return(5785, nil)
	stubProjection(conv)

	image := *rec
	outcome, err := newSynchronizer(conv, store).Recompute(context.Background(), &image)
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeSuperseded, outcome)

	stored, _ := store.Get(context.Background(), rec.ID)
	assert.Equal(t, date(2020, time.March, 20), stored.GregorianBirthDate)
	assert.Equal(t, 24, stored.Derived.Hebrew.Day, "the stale result must not overwrite the newer one")
	assert.Zero(t, store.writes)
}

func TestSynchronize_OtherWriteErrorsSurface(t *testing.T) {
	conv := new(MockConverter)
	conv.On("GregorianToHebrew", mock.Anything, mock.Anything, false).
		Return(engine.HebrewDate{String: "19 Adar 5780", Year: 5780, Month: "Adar", Day: 19}, nil)
	conv.On("CurrentHebrewYear", mock.Anything).Return(5785, nil)
	stubProjection(conv)

	rec := newRecord()
	store := newMemStore(rec)
	store.updateErr = errors.New("disk full")

	outcome, err := newSynchronizer(conv, store).Synchronize(context.Background(), engine.RecordChange{After: rec})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, engine.ErrRecordVanished)
	assert.Equal(t, engine.OutcomeFailed, outcome)
}

func TestSynchronize_EmptyProjectionPersistsNullNext(t *testing.T) {
	conv := new(MockConverter)
	conv.On("GregorianToHebrew", mock.Anything, mock.Anything, false).
		Return(engine.HebrewDate{String: "19 Adar 5780", Year: 5780, Month: "Adar", Day: 19}, nil)
	conv.On("CurrentHebrewYear", mock.Anything).Return(5785, nil)
	conv.On("HebrewToGregorian", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(time.Time{}, engine.ErrConversionUnavailable)

	rec := newRecord()
	store := newMemStore(rec)

	outcome, err := newSynchronizer(conv, store).Synchronize(context.Background(), engine.RecordChange{After: rec})
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeUpdated, outcome)

	stored, _ := store.Get(context.Background(), rec.ID)
	assert.NotNil(t, stored.Derived.Hebrew)
	assert.Nil(t, stored.Derived.NextUpcoming)
	assert.Empty(t, stored.Derived.Future)
	assert.False(t, stored.HasHebrewData())
}

func TestBackfill_OnlyIncompleteRecords(t *testing.T) {
	conv := new(MockConverter)
	conv.On("GregorianToHebrew", mock.Anything, mock.Anything, false).
		Return(engine.HebrewDate{String: "19 Adar 5780", Year: 5780, Month: "Adar", Day: 19}, nil).Once()
	conv.On("CurrentHebrewYear", mock.Anything).Return(5785, nil).Once()
	stubProjection(conv)

	missing := newRecord()
	complete := newRecord()
	complete.ID = "rec-2"
	complete.Derived = engine.DerivedFields{
		Hebrew:       &engine.HebrewDate{String: "19 Adar 5780", Year: 5780, Month: "Adar", Day: 19},
		NextUpcoming: &engine.Occurrence{Date: adar19(5785), HebrewYear: 5785},
		Future:       []engine.Occurrence{{Date: adar19(5785), HebrewYear: 5785}},
	}
	archived := newRecord()
	archived.ID = "rec-3"
	archived.Archived = true

	store := newMemStore(missing, complete, archived)
	n, err := newSynchronizer(conv, store).Backfill(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	conv.AssertExpectations(t)
}
