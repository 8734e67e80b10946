package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tartampluch/go-hebrew-birthday/internal/config"
)

// RateLimiter admits or rejects one request for a key.
// Allow returns ErrRateLimited when the key is over quota.
type RateLimiter interface {
	Allow(ctx context.Context, key string) error
}

// RefreshService forces recomputation of one record on behalf of an authenticated caller.
type RefreshService struct {
	Store        RecordStore
	Synchronizer *Synchronizer
	Limiter      RateLimiter
}

// Refresh checks authentication, then the caller's quota, then tenant ownership,
// and finally recomputes the record bypassing the staleness check.
// A missing record is reported as ErrPermissionDenied so ids cannot be probed.
func (r *RefreshService) Refresh(ctx context.Context, callerID, tenantID, recordID string) error {
	log := slog.With(
		config.LogKeyComponent, config.CompRefresh,
		config.LogKeyCaller, callerID,
		config.LogKeyTenant, tenantID,
		config.LogKeyRecord, recordID,
	)

	if callerID == "" {
		return ErrUnauthenticated
	}

	if r.Limiter != nil {
		if err := r.Limiter.Allow(ctx, callerID+config.RefreshLimitSuffix); err != nil {
			log.Warn(config.MsgRefreshDenied, config.LogKeyError, err)
			if errors.Is(err, ErrRateLimited) {
				return ErrRateLimited
			}
			return err
		}
	}

	rec, err := r.Store.Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			log.Warn(config.MsgRefreshDenied, config.LogKeyError, err)
			return ErrPermissionDenied
		}
		return err
	}
	if rec.TenantID != tenantID {
		log.Warn(config.MsgRefreshDenied, config.LogKeyReason, config.ErrPermissionDenied)
		return ErrPermissionDenied
	}

	outcome, err := r.Synchronizer.Recompute(ctx, rec)
	if err != nil {
		return err
	}

	log.Info(config.MsgRefreshDone, config.LogKeyReason, string(outcome))
	return nil
}
