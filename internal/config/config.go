package config

import (
	"io/fs"
	"time"
)

// -----------------------------------------------------------------------------
// Build Information
// -----------------------------------------------------------------------------

// Build variables are injected via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// UserAgent identifies the HTTP client towards the conversion service.
var UserAgent = "Go-Hebrew-Birthday/" + Version

// -----------------------------------------------------------------------------
// Application Constants
// -----------------------------------------------------------------------------

const (
	AppName        = "Go Hebrew Birthday"
	AppID          = "com.github.tartampluch.go-hebrew-birthday"
	BinaryName     = "go-hebrew-birthday"
	KeyringService = "com.github.tartampluch.go-hebrew-birthday"
	LogFileName    = "app.log"
)

// -----------------------------------------------------------------------------
// Exit Codes
// -----------------------------------------------------------------------------

const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

// -----------------------------------------------------------------------------
// System & File Permissions
// -----------------------------------------------------------------------------

const (
	// FilePermUserRW represents -rw------- (Read/Write for owner only).
	// Used for logs and the settings file, which may hold the auth secret.
	FilePermUserRW fs.FileMode = 0600

	// DirPermUserRWX represents drwx------ (Read/Write/Exec for owner only).
	DirPermUserRWX fs.FileMode = 0700

	// ChannelBufferSize defines the standard buffer size for internal signaling channels.
	ChannelBufferSize = 1
)

// -----------------------------------------------------------------------------
// CLI Flags & Descriptions
// -----------------------------------------------------------------------------

const (
	FlagConfig       = "config"
	FlagDebug        = "debug"
	FlagTenant       = "tenant"
	FlagDescConfig   = "Path to the YAML settings file"
	FlagDescDebug    = "Enable debug logging"
	FlagDescTenant   = "Tenant that owns the imported records"
	MsgVersionOutput = "%s version %s (commit %s, built %s, %s/%s)\n"

	CmdShortRoot     = "Hebrew birthday projection service"
	CmdShortServe    = "Run the HTTP API and the daily sweep"
	CmdShortSweep    = "Run one sweep over all active records and exit"
	CmdShortSync     = "Force recomputation of one record's Hebrew dates"
	CmdShortBackfill = "Recompute every active record missing Hebrew data"
	CmdShortImport   = "Import birth records from a vCard file"
	CmdShortVersion  = "Print version information"

	CmdUseServe    = "serve"
	CmdUseSweep    = "sweep"
	CmdUseSync     = "sync <record-id>"
	CmdUseBackfill = "backfill"
	CmdUseImport   = "import <file.vcf>"
	CmdUseVersion  = "version"

	DefaultConfigPath = "./go-hebrew-birthday.yaml"

	// CLI summaries (printed, not logged).
	MsgCLISweepDone    = "Sweep complete: %d record(s) updated\n"
	MsgCLISyncDone     = "Record %s: %s\n"
	MsgCLIBackfillDone = "Backfill complete: %d record(s) updated\n"
	MsgCLIImportDone   = "Imported %d of %d card(s) (%d skipped, %d failed)\n"
	MsgCLIError        = "Error: %v\n"
)

// -----------------------------------------------------------------------------
// Default Values & Business Logic
// -----------------------------------------------------------------------------

const (
	DefaultListen       = "127.0.0.1:18080"
	DefaultDatabasePath = "./go-hebrew-birthday.db"
	DefaultTimezone     = "Asia/Jerusalem"
	DefaultSweepCron    = "0 0 * * *"
	DefaultLanguage     = "en"

	// DefaultHorizonYears bounds a projection to HorizonYears+1 upstream calls.
	DefaultHorizonYears = 10

	DefaultHebcalURL         = "https://www.hebcal.com/converter"
	DefaultHebcalLanguage    = "s"
	DefaultHebcalTimeout     = 5 * time.Second
	DefaultHebcalMaxTries    = 3
	DefaultHebcalConcurrency = 4
	DefaultRetryInterval     = 200 * time.Millisecond

	DefaultRefreshMaxRequests = 3
	DefaultRefreshWindow      = 30 * time.Second

	// RefreshLimitSuffix is appended to the caller id to build the rate-limit key.
	RefreshLimitSuffix = "_refresh"

	EnvAuthSecret = "HEBDAY_AUTH_SECRET"

	// DateLayout is the canonical civil-date layout (storage, API, logs).
	DateLayout = "2006-01-02"
)

// -----------------------------------------------------------------------------
// Upstream Conversion Service (Hebcal)
// -----------------------------------------------------------------------------

const (
	ParamConfig      = "cfg"
	ParamGregYear    = "gy"
	ParamGregMonth   = "gm"
	ParamGregDay     = "gd"
	ParamHebYear     = "hy"
	ParamHebMonth    = "hm"
	ParamHebDay      = "hd"
	ParamG2H         = "g2h"
	ParamH2G         = "h2g"
	ParamAfterSunset = "gs"
	ParamLanguage    = "lg"

	ValueJSON = "json"
	ValueOn   = "on"
	ValueOne  = "1"

	// MaxHTTPResponseSize caps a converter payload; real responses are well under 4KB.
	MaxHTTPResponseSize = 64 * 1024

	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
)

// -----------------------------------------------------------------------------
// Standards: iCalendar & vCard
// -----------------------------------------------------------------------------

const (
	ICalVersion   = "2.0"
	ICalProdid    = "-//Go Hebrew Birthday//Feed//EN"
	ICalCalName   = "Hebrew Birthdays"
	ICalMethod    = "PUBLISH"
	ICalScale     = "GREGORIAN"
	ICalComponent = "VALARM"
	ICalAction    = "DISPLAY"
	ICalDomain    = "gohebrewbirthday"

	PropUID         = "UID"
	PropSummary     = "SUMMARY"
	PropDTStart     = "DTSTART"
	PropDTStamp     = "DTSTAMP"
	PropRefresh     = "REFRESH-INTERVAL"
	PropAction      = "ACTION"
	PropDescription = "DESCRIPTION"
	PropTrigger     = "TRIGGER"
	PropVersion     = "VERSION"
	PropProdid      = "PRODID"
	PropXWRCalName  = "X-WR-CALNAME"
	PropCalScale    = "CALSCALE"
	PropMethod      = "METHOD"

	VCardBDAY = "BDAY"
	VCardFN   = "FN"
	VCardNote = "NOTE"

	// FallbackName is used when a card has neither N nor FN.
	FallbackName = "Unknown"

	DefaultICalRefresh = 12 * time.Hour

	FormatUID = "%s-%d@%s"

	// StubVCalendar is the minimal valid iCalendar object used when a tenant has no occurrences.
	StubVCalendar = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:" + ICalProdid + "\r\nEND:VCALENDAR\r\n"
)

// Date layouts accepted for vCard BDAY fields.
const (
	DateFormatFullDash  = "2006-01-02"
	DateFormatFullBasic = "20060102"
	DateFormatRFC3339   = time.RFC3339
	DateFormatFullT     = "2006-01-02T15:04:05Z"
)

// -----------------------------------------------------------------------------
// Network & Timeouts
// -----------------------------------------------------------------------------

const (
	ShutdownTimeout    = 5 * time.Second
	ServerReadTimeout  = 10 * time.Second
	ServerWriteTimeout = 60 * time.Second
	ServerIdleTimeout  = 60 * time.Second
	MaxRequestBodySize = 64 * 1024

	RouteHealth    = "/health"
	RouteMetrics   = "/metrics"
	RouteAPI       = "/api"
	RouteBirthdays = "/tenants/{tenantID}/birthdays"
	RouteBirthday  = RouteBirthdays + "/{birthdayID}"
	RouteRefresh   = RouteBirthday + "/refresh"
	RouteCalendar  = "/tenants/{tenantID}/calendar.ics"

	URLParamTenant   = "tenantID"
	URLParamBirthday = "birthdayID"
	QueryParamLang   = "lang"

	HealthStatusOK = "ok"
)

// -----------------------------------------------------------------------------
// HTTP Headers & MIME Types
// -----------------------------------------------------------------------------

const (
	HeaderContentType    = "Content-Type"
	HeaderCacheControl   = "Cache-Control"
	HeaderETag           = "ETag"
	HeaderXContentType   = "X-Content-Type-Options"
	HeaderUserAgent      = "User-Agent"
	HeaderAccept         = "Accept"
	HeaderIfNoneMatch    = "If-None-Match"
	HeaderAuthorization  = "Authorization"
	HeaderWWWAuth        = "WWW-Authenticate"
	HeaderAcceptLanguage = "Accept-Language"
	HeaderRetryAfter     = "Retry-After"

	MimeJSON            = "application/json"
	MimeTextCalendar    = "text/calendar; charset=utf-8"
	MimeNoSniff         = "nosniff"
	CacheControlPrivate = "private, no-cache"
	BearerPrefix        = "Bearer "
	BearerRealm         = `Bearer realm="go-hebrew-birthday"`

	// FormatETag expects a string argument.
	FormatETag = `"%s"`
)

// API error codes returned in JSON error bodies.
const (
	CodeUnauthenticated   = "unauthenticated"
	CodePermissionDenied  = "permission-denied"
	CodeResourceExhausted = "resource-exhausted"
	CodeInvalidArgument   = "invalid-argument"
	CodeInternal          = "internal"
)

// -----------------------------------------------------------------------------
// Translation Keys (I18n)
// -----------------------------------------------------------------------------

const (
	TKeyRefreshSuccess   = "refresh_success"
	TKeyErrUnauth        = "err_unauthenticated"
	TKeyErrPermission    = "err_permission_denied"
	TKeyErrRateLimited   = "err_rate_limited"
	TKeyErrRefreshFailed = "err_refresh_failed"
	TKeyErrInvalidInput  = "err_invalid_argument"
	TKeyErrInternal      = "err_internal"
	TKeyEvtSummary       = "event_summary"     // Requires Name
	TKeyEvtSummaryAge    = "event_summary_age" // Requires Name, Age
	TKeyEvtDescription   = "event_description" // Requires HebrewDate
	TKeyEvtAfterSunset   = "event_after_sunset"
)

// -----------------------------------------------------------------------------
// Error Messages (Technical/Logs)
// -----------------------------------------------------------------------------

const (
	ErrConversionUnavailable = "conversion service unavailable"
	ErrConversionMalformed   = "conversion response malformed"
	ErrRecordVanished        = "record no longer exists"
	ErrRecordSuperseded      = "record source fields changed since computation"
	ErrRecordNotFound        = "record not found"
	ErrRateLimited           = "too many refresh requests"
	ErrPermissionDenied      = "permission denied"
	ErrUnauthenticated       = "caller is not authenticated"
	ErrInvalidURL            = "invalid URL structure"
	ErrProtocol              = "unsupported protocol scheme (http/https only)"
	ErrConverterMissing      = "internal error: converter is not initialized"
	ErrStoreMissing          = "internal error: record store is not initialized"
	ErrSweeperMissing        = "internal error: sweeper is not initialized"
	ErrCurrentYear           = "failed to resolve current Hebrew year"
	ErrGregToHeb             = "failed to convert Gregorian date"
	ErrPersist               = "failed to persist derived fields"
	ErrListRecords           = "failed to list active records"
	ErrCommitBatch           = "failed to commit sweep batch"
	ErrConfigPathEmpty       = "config path is empty"
	ErrConfigNil             = "config is nil"
	ErrConfigTimezone        = "invalid timezone"
	ErrSecretMissing         = "no auth secret configured"
	ErrServerStartup         = "server startup failed"
	ErrServerShutdown        = "server shutdown failed"
	ErrICalEncode            = "failed to encode iCalendar data"
	ErrDateParse             = "unable to parse date"
	ErrVCardParse            = "failed to parse vCard stream"
	ErrLogFile               = "failed to open log file"
	ErrCacheDir              = "could not determine user cache dir"
	ErrCreateDir             = "could not create app cache dir"
	ErrAppFailed             = "application failed unexpectedly"
	ErrWriteResp             = "failed to write response body"
	ErrLocalesAccess         = "failed to access embedded locales"
	ErrLocaleLoad            = "failed to load locale file"
	ErrOpenDB                = "failed to open database"
	ErrSchema                = "failed to initialize schema"
	ErrCronSpec              = "invalid sweep schedule"
	ErrListenRequired        = "listen address is required"
	ErrDecodeBody            = "failed to decode request body"
	ErrTenantRequired        = "--tenant is required"
	ErrOpenImport            = "failed to open vCard file"
	ErrCloseDB               = "failed to close database"
)

// -----------------------------------------------------------------------------
// Log Messages
// -----------------------------------------------------------------------------

const (
	MsgAppStarting     = "Starting application"
	MsgAppStop         = "Application stopped gracefully"
	MsgServerListen    = "HTTP server listening"
	MsgServerStop      = "Shutting down HTTP server..."
	MsgConvertRequest  = "Calling conversion service"
	MsgConvertRetry    = "Conversion attempt failed, retrying"
	MsgUpstreamStatus  = "Conversion service returned error status"
	MsgProjectStart    = "Projecting future occurrences"
	MsgProjectYearFail = "Skipping projection year after conversion failure"
	MsgProjectDone     = "Projection finished"
	MsgProjectEmpty    = "Projection produced no future occurrence"
	MsgSyncSkipped     = "No relevant changes detected, skipping calculation"
	MsgSyncSkipNoDate  = "Record has no Gregorian birth date, skipping"
	MsgSyncStarted     = "Recomputing Hebrew dates"
	MsgSyncDone        = "Hebrew dates persisted"
	MsgSyncVanished    = "Record was deleted during processing, skipping update"
	MsgSyncSuperseded  = "Birth date changed during processing, discarding result"
	MsgSyncFailed      = "Hebrew date computation failed"
	MsgBackfillDone    = "Backfill finished"
	MsgSweepStarted    = "Sweep started"
	MsgSweepAdvanced   = "Advanced next occurrence from cached dates"
	MsgSweepFallback   = "Cached dates exhausted, projecting again"
	MsgSweepNoFuture   = "Fallback projection returned nothing, leaving record unchanged"
	MsgSweepDone       = "Sweep finished"
	MsgSweepNothing    = "No birthdays needed updating"
	MsgRefreshDenied   = "Refresh request rejected"
	MsgRefreshDone     = "Hebrew dates refreshed"
	MsgSchedulerStart  = "Sweep scheduler started"
	MsgSchedulerStop   = "Sweep scheduler stopping"
	MsgSchedulerFailed = "Scheduled sweep failed"
	MsgHookFailed      = "Write trigger failed"
	MsgImportSkipped   = "Skipping vCard without a full birth date"
	MsgImportDone      = "vCard import finished"
	MsgImportFailed    = "Failed to save imported record"
	MsgImportBadCard   = "Skipping unreadable vCard"
	MsgLocaleLoaded    = "Locale loaded successfully"
	MsgTransMissing    = "Missing translation key"
	MsgAuthFailed      = "Token validation failed"
	MsgSecretKeyring   = "Auth secret not found in keyring"
	MsgFeedRendered    = "Calendar feed rendered"
	MsgLogWarning      = "Warning: %s: %v\n"
	MsgRequestServed   = "HTTP request served"
	MsgRequestFailed   = "Request handling failed"
)

// -----------------------------------------------------------------------------
// Structured Logging Keys (slog)
// -----------------------------------------------------------------------------

const (
	LogKeyComponent   = "component"
	LogKeyError       = "error"
	LogKeyURL         = "url"
	LogKeyStatus      = "status_code"
	LogKeyFile        = "file"
	LogKeyLang        = "lang"
	LogKeyKey         = "key"
	LogKeyListen      = "listen"
	LogKeyRecord      = "record_id"
	LogKeyTenant      = "tenant_id"
	LogKeyCaller      = "caller"
	LogKeyDate        = "date"
	LogKeyAfterSunset = "after_sunset"
	LogKeyHebrewYear  = "hebrew_year"
	LogKeyHebrewMonth = "hebrew_month"
	LogKeyHebrewDay   = "hebrew_day"
	LogKeyStartYear   = "start_year"
	LogKeyHorizon     = "horizon_years"
	LogKeyReference   = "reference_date"
	LogKeyNext        = "next_upcoming"
	LogKeyCount       = "count"
	LogKeyUpdated     = "updated"
	LogKeyScanned     = "scanned"
	LogKeySkipped     = "skipped"
	LogKeyFailed      = "failed"
	LogKeyAttempt     = "attempt"
	LogKeyReason      = "reason"
	LogKeySchedule    = "schedule"
	LogKeyTimezone    = "timezone"
	LogKeyDuration    = "duration_ms"
	LogKeyMethod      = "method"
	LogKeyPath        = "path"
	LogKeyRequestID   = "request_id"

	// Startup
	LogKeyCommand = "command"
	LogKeyVersion = "version"
	LogKeyGoVer   = "go_version"
	LogKeyPID     = "pid"
)

// -----------------------------------------------------------------------------
// Log Components
// -----------------------------------------------------------------------------

const (
	CompMain      = "main"
	CompConverter = "converter"
	CompProjector = "projector"
	CompSync      = "synchronizer"
	CompSweeper   = "sweeper"
	CompRefresh   = "refresh"
	CompScheduler = "scheduler"
	CompServer    = "server"
	CompAuth      = "auth"
	CompStore     = "store"
	CompFeed      = "feed"
	CompI18n      = "i18n"
	CompImport    = "import"
)
