package engine

import (
	"errors"

	"github.com/tartampluch/go-hebrew-birthday/internal/config"
)

// Error taxonomy shared by the converter, the synchronizer and the refresh path.
var (
	ErrConversionUnavailable = errors.New(config.ErrConversionUnavailable)
	ErrConversionMalformed   = errors.New(config.ErrConversionMalformed)
	ErrRecordVanished        = errors.New(config.ErrRecordVanished)
	ErrRecordSuperseded      = errors.New(config.ErrRecordSuperseded)
	ErrRecordNotFound        = errors.New(config.ErrRecordNotFound)
	ErrRateLimited           = errors.New(config.ErrRateLimited)
	ErrPermissionDenied      = errors.New(config.ErrPermissionDenied)
	ErrUnauthenticated       = errors.New(config.ErrUnauthenticated)
)
