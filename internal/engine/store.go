package engine

import "context"

// RecordStore is the persistence contract used by the synchronizer, the sweeper and the refresh path.
type RecordStore interface {
	// Get returns ErrRecordNotFound when the id is unknown.
	Get(ctx context.Context, id string) (*BirthRecord, error)
	// UpdateDerived writes every derived field of src in a single write, provided the stored
	// birth date and sunset flag still equal those of src.
	// It returns ErrRecordVanished when the record no longer exists and
	// ErrRecordSuperseded when its source fields changed.
	UpdateDerived(ctx context.Context, src *BirthRecord, d DerivedFields) error
	// ListActive returns every non-archived record.
	ListActive(ctx context.Context) ([]*BirthRecord, error)
	// CommitBatch applies all updates atomically and returns how many were applied.
	// Entries whose record vanished or was superseded are skipped.
	CommitBatch(ctx context.Context, updates []RecordUpdate) (int, error)
}

// SyncObserver receives the outcome of synchronizations and sweeps.
type SyncObserver interface {
	ObserveSync(outcome string)
	ObserveSweep(scanned, updated, failed int)
}
