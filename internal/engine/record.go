package engine

import "time"

// HebrewDate is the structured result of a Gregorian to Hebrew conversion.
type HebrewDate struct {
	// String is the display rendering returned by the converter (e.g. "19 Adar 5780").
	String string
	Year   int
	// Month is the converter's month token (e.g. "Adar II", "Sh'vat").
	Month string
	Day   int
}

// IsZero reports whether the structured components are missing.
func (h *HebrewDate) IsZero() bool {
	return h == nil || h.Year == 0 || h.Month == "" || h.Day == 0
}

// Occurrence is one Gregorian date on which a Hebrew anniversary falls.
type Occurrence struct {
	// Date is the civil date at midnight UTC.
	Date time.Time
	// HebrewYear is the Hebrew year this anniversary belongs to.
	HebrewYear int
}

// DerivedFields groups every value computed from the source fields of a record.
// They are always written together.
type DerivedFields struct {
	Hebrew       *HebrewDate
	NextUpcoming *Occurrence
	Future       []Occurrence
}

// BirthRecord is a tenant-owned birthday entry.
type BirthRecord struct {
	ID                 string
	TenantID           string
	FirstName          string
	LastName           string
	GregorianBirthDate time.Time
	AfterSunset        bool
	Notes              string
	Archived           bool

	Derived DerivedFields
}

// DisplayName joins the first and last names.
func (r *BirthRecord) DisplayName() string {
	switch {
	case r.FirstName == "":
		return r.LastName
	case r.LastName == "":
		return r.FirstName
	default:
		return r.FirstName + " " + r.LastName
	}
}

// HasHebrewData reports whether every derived field is populated.
func (r *BirthRecord) HasHebrewData() bool {
	d := r.Derived
	return d.Hebrew != nil && d.Hebrew.String != "" && d.NextUpcoming != nil && len(d.Future) > 0
}

// TriggeringFieldsEqual reports whether two images agree on the fields that drive recomputation.
func TriggeringFieldsEqual(a, b *BirthRecord) bool {
	return sameDay(a.GregorianBirthDate, b.GregorianBirthDate) && a.AfterSunset == b.AfterSunset
}

// HebrewAgeAt returns the Hebrew age reached at the given occurrence.
// It returns -1 when the birth Hebrew year is unknown.
func (r *BirthRecord) HebrewAgeAt(o Occurrence) int {
	if r.Derived.Hebrew.IsZero() {
		return -1
	}
	return o.HebrewYear - r.Derived.Hebrew.Year
}

// RecordChange carries the before and after images of a committed write.
// Before is nil on creation; After is nil on deletion.
type RecordChange struct {
	Before *BirthRecord
	After  *BirthRecord
}

// RecordUpdate is one entry of a sweep batch. BirthDate and AfterSunset are the
// source fields Derived was computed from; the store drops the entry when they no longer match.
type RecordUpdate struct {
	ID          string
	BirthDate   time.Time
	AfterSunset bool
	Derived     DerivedFields
}

// UpdateFor builds a batch entry pinned to the source fields of rec.
func UpdateFor(rec *BirthRecord, d DerivedFields) RecordUpdate {
	return RecordUpdate{ID: rec.ID, BirthDate: rec.GregorianBirthDate, AfterSunset: rec.AfterSunset, Derived: d}
}

// CivilDate truncates t to its calendar date in loc and returns it at midnight UTC.
func CivilDate(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
