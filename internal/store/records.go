package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tartampluch/go-hebrew-birthday/internal/config"
	"github.com/tartampluch/go-hebrew-birthday/internal/engine"
)

// ChangeHook is notified after every committed single-record write.
type ChangeHook func(ctx context.Context, change engine.RecordChange) error

// Records implements engine.RecordStore over the birthdays table.
type Records struct {
	db *sql.DB

	mu    sync.RWMutex
	hooks []ChangeHook
}

// NewRecords creates a new SQLite record repository.
func NewRecords(db *sql.DB) *Records {
	return &Records{db: db}
}

// OnChange registers a hook. Hooks run synchronously, in registration order, after commit.
func (r *Records) OnChange(h ChangeHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, h)
}

const recordColumns = `id, tenant_id, first_name, last_name, birth_date, after_sunset, notes, archived,
	hebrew_string, hebrew_year, hebrew_month, hebrew_day, next_upcoming, next_upcoming_hebrew_year, future_occurrences`

type rowScanner interface {
	Scan(dest ...any) error
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// occurrenceJSON is the persisted shape of one future occurrence.
type occurrenceJSON struct {
	Date       string `json:"date"`
	HebrewYear int    `json:"hebrew_year"`
}

// Get retrieves a record by id.
func (r *Records) Get(ctx context.Context, id string) (*engine.BirthRecord, error) {
	return getRecord(ctx, r.db, id)
}

func getRecord(ctx context.Context, q queryRower, id string) (*engine.BirthRecord, error) {
	row := q.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM birthdays WHERE id = ?", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", engine.ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

// ListActive returns every non-archived record.
func (r *Records) ListActive(ctx context.Context) ([]*engine.BirthRecord, error) {
	return r.list(ctx, "SELECT "+recordColumns+" FROM birthdays WHERE archived = 0 ORDER BY id")
}

// ListByTenant returns the non-archived records of one tenant.
func (r *Records) ListByTenant(ctx context.Context, tenantID string) ([]*engine.BirthRecord, error) {
	return r.list(ctx, "SELECT "+recordColumns+" FROM birthdays WHERE archived = 0 AND tenant_id = ? ORDER BY next_upcoming, id", tenantID)
}

func (r *Records) list(ctx context.Context, query string, args ...any) ([]*engine.BirthRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var out []*engine.BirthRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Save inserts or updates the source fields of rec and returns the stored image.
// An empty id is assigned a new UUID. Changing the birth date or the sunset flag
// clears every derived field in the same write. Saving over another tenant's record
// returns engine.ErrPermissionDenied.
func (r *Records) Save(ctx context.Context, rec *engine.BirthRecord) (*engine.BirthRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	before, err := getRecord(ctx, tx, rec.ID)
	if err != nil && !errors.Is(err, engine.ErrRecordNotFound) {
		return nil, err
	}

	// The owner of an existing id never changes.
	if before != nil && before.TenantID != rec.TenantID {
		return nil, fmt.Errorf("%w: %s", engine.ErrPermissionDenied, rec.ID)
	}

	birth := rec.GregorianBirthDate.Format(config.DateLayout)
	if before == nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO birthdays (id, tenant_id, first_name, last_name, birth_date, after_sunset, notes, archived)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.TenantID, rec.FirstName, rec.LastName, birth, rec.AfterSunset, rec.Notes, rec.Archived,
		)
	} else {
		query := `UPDATE birthdays SET first_name = ?, last_name = ?, birth_date = ?, after_sunset = ?,
			notes = ?, archived = ?, updated_at = CURRENT_TIMESTAMP`
		if !engine.TriggeringFieldsEqual(before, rec) {
			query += `, hebrew_string = NULL, hebrew_year = NULL, hebrew_month = NULL, hebrew_day = NULL,
				next_upcoming = NULL, next_upcoming_hebrew_year = NULL, future_occurrences = '[]'`
		}
		_, err = tx.ExecContext(ctx, query+" WHERE id = ?",
			rec.FirstName, rec.LastName, birth, rec.AfterSunset, rec.Notes, rec.Archived, rec.ID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save record: %w", err)
	}

	after, err := getRecord(ctx, tx, rec.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit record: %w", err)
	}

	r.notify(ctx, engine.RecordChange{Before: before, After: after})
	return after, nil
}

// UpdateDerived writes every derived field of src when the stored birth date and
// sunset flag still match src. It returns engine.ErrRecordVanished when the record
// was deleted meanwhile and engine.ErrRecordSuperseded when its source fields changed.
func (r *Records) UpdateDerived(ctx context.Context, src *engine.BirthRecord, d engine.DerivedFields) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	before, err := getRecord(ctx, tx, src.ID)
	if errors.Is(err, engine.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", engine.ErrRecordVanished, src.ID)
	}
	if err != nil {
		return err
	}
	if !engine.TriggeringFieldsEqual(before, src) {
		return fmt.Errorf("%w: %s", engine.ErrRecordSuperseded, src.ID)
	}

	applied, err := execDerived(ctx, tx, engine.UpdateFor(src, d))
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("%w: %s", engine.ErrRecordSuperseded, src.ID)
	}

	after, err := getRecord(ctx, tx, src.ID)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit derived fields: %w", err)
	}

	r.notify(ctx, engine.RecordChange{Before: before, After: after})
	return nil
}

// CommitBatch applies every sweep update in one transaction and returns how many matched.
// Records deleted or re-dated since they were listed are skipped.
func (r *Records) CommitBatch(ctx context.Context, updates []engine.RecordUpdate) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	applied := 0
	for _, u := range updates {
		ok, err := execDerived(ctx, tx, u)
		if err != nil {
			return 0, err
		}
		if ok {
			applied++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit batch: %w", err)
	}
	return applied, nil
}

// Delete removes a record and notifies the hooks with an empty after image.
func (r *Records) Delete(ctx context.Context, id string) error {
	before, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, "DELETE FROM birthdays WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	r.notify(ctx, engine.RecordChange{Before: before})
	return nil
}

func (r *Records) notify(ctx context.Context, change engine.RecordChange) {
	r.mu.RLock()
	hooks := append([]ChangeHook(nil), r.hooks...)
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := h(ctx, change); err != nil {
			id := ""
			if change.After != nil {
				id = change.After.ID
			} else if change.Before != nil {
				id = change.Before.ID
			}
			slog.Error(config.MsgHookFailed,
				config.LogKeyComponent, config.CompStore,
				config.LogKeyRecord, id,
				config.LogKeyError, err,
			)
		}
	}
}

// execDerived writes u.Derived to the row whose id, birth date and sunset flag match u.
// It reports false when no row matched.
func execDerived(ctx context.Context, tx *sql.Tx, u engine.RecordUpdate) (bool, error) {
	d := u.Derived
	var (
		hebString, hebMonth sql.NullString
		hebYear, hebDay     sql.NullInt64
		next                sql.NullString
		nextYear            sql.NullInt64
	)
	if d.Hebrew != nil {
		hebString = sql.NullString{String: d.Hebrew.String, Valid: true}
		hebYear = sql.NullInt64{Int64: int64(d.Hebrew.Year), Valid: true}
		hebMonth = sql.NullString{String: d.Hebrew.Month, Valid: true}
		hebDay = sql.NullInt64{Int64: int64(d.Hebrew.Day), Valid: true}
	}
	if d.NextUpcoming != nil {
		next = sql.NullString{String: d.NextUpcoming.Date.Format(config.DateLayout), Valid: true}
		nextYear = sql.NullInt64{Int64: int64(d.NextUpcoming.HebrewYear), Valid: true}
	}

	future := make([]occurrenceJSON, 0, len(d.Future))
	for _, o := range d.Future {
		future = append(future, occurrenceJSON{Date: o.Date.Format(config.DateLayout), HebrewYear: o.HebrewYear})
	}
	futureJSON, err := json.Marshal(future)
	if err != nil {
		return false, fmt.Errorf("failed to encode future occurrences: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE birthdays SET hebrew_string = ?, hebrew_year = ?, hebrew_month = ?, hebrew_day = ?,
			next_upcoming = ?, next_upcoming_hebrew_year = ?, future_occurrences = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND birth_date = ? AND after_sunset = ?`,
		hebString, hebYear, hebMonth, hebDay, next, nextYear, string(futureJSON),
		u.ID, u.BirthDate.Format(config.DateLayout), u.AfterSunset,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update derived fields: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update derived fields: %w", err)
	}
	return n > 0, nil
}

func scanRecord(s rowScanner) (*engine.BirthRecord, error) {
	var (
		rec                 engine.BirthRecord
		birth               string
		hebString, hebMonth sql.NullString
		hebYear, hebDay     sql.NullInt64
		next                sql.NullString
		nextYear            sql.NullInt64
		futureJSON          string
	)
	err := s.Scan(&rec.ID, &rec.TenantID, &rec.FirstName, &rec.LastName, &birth, &rec.AfterSunset, &rec.Notes, &rec.Archived,
		&hebString, &hebYear, &hebMonth, &hebDay, &next, &nextYear, &futureJSON)
	if err != nil {
		return nil, err
	}

	if rec.GregorianBirthDate, err = parseDay(birth); err != nil {
		return nil, err
	}
	if hebString.Valid {
		rec.Derived.Hebrew = &engine.HebrewDate{
			String: hebString.String,
			Year:   int(hebYear.Int64),
			Month:  hebMonth.String,
			Day:    int(hebDay.Int64),
		}
	}
	if next.Valid {
		day, err := parseDay(next.String)
		if err != nil {
			return nil, err
		}
		rec.Derived.NextUpcoming = &engine.Occurrence{Date: day, HebrewYear: int(nextYear.Int64)}
	}

	var future []occurrenceJSON
	if err := json.Unmarshal([]byte(futureJSON), &future); err != nil {
		return nil, fmt.Errorf("failed to decode future occurrences: %w", err)
	}
	rec.Derived.Future = make([]engine.Occurrence, 0, len(future))
	for _, o := range future {
		day, err := parseDay(o.Date)
		if err != nil {
			return nil, err
		}
		rec.Derived.Future = append(rec.Derived.Future, engine.Occurrence{Date: day, HebrewYear: o.HebrewYear})
	}

	return &rec, nil
}

func parseDay(s string) (time.Time, error) {
	t, err := time.Parse(config.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s %q: %w", config.ErrDateParse, s, err)
	}
	return t, nil
}
