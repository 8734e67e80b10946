// Package server exposes the HTTP surface: on-demand refresh, record upsert, calendar feed, health and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tartampluch/go-hebrew-birthday/internal/config"
	"github.com/tartampluch/go-hebrew-birthday/internal/engine"
	"github.com/tartampluch/go-hebrew-birthday/internal/telemetry"
)

// Refresher runs the on-demand refresh. *engine.RefreshService satisfies it.
type Refresher interface {
	Refresh(ctx context.Context, callerID, tenantID, recordID string) error
}

// RecordRepository is the part of the record store the HTTP surface needs. *store.Records satisfies it.
type RecordRepository interface {
	Get(ctx context.Context, id string) (*engine.BirthRecord, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*engine.BirthRecord, error)
	Save(ctx context.Context, rec *engine.BirthRecord) (*engine.BirthRecord, error)
	Delete(ctx context.Context, id string) error
}

// FeedRenderer renders a tenant calendar. *feed.Generator satisfies it.
type FeedRenderer interface {
	Render(records []*engine.BirthRecord, lang string) ([]byte, error)
}

// Localizer picks a language and localizes messages. *i18n.Catalog satisfies it.
type Localizer interface {
	Match(acceptLanguage string) string
	Get(lang, key string, data map[string]any) string
}

// Server wires the handlers onto a chi router.
type Server struct {
	Listen    string
	Refresher Refresher
	Records   RecordRepository
	Feed      FeedRenderer
	Localizer Localizer
	// Authenticate resolves the caller of each request (see auth.Authenticator.Middleware).
	Authenticate func(http.Handler) http.Handler
	Metrics      *telemetry.Metrics
	// RetryAfter is advertised on rate-limited refreshes.
	RetryAfter time.Duration
	// FeedLanguage is used when a feed request names no language.
	FeedLanguage string
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.Metrics.Middleware)
	r.Use(middleware.RequestSize(config.MaxRequestBodySize))
	r.Use(requestLogger)

	r.Get(config.RouteHealth, s.handleHealth)
	r.Method(http.MethodGet, config.RouteMetrics, s.Metrics.Handler())

	r.Group(func(r chi.Router) {
		if s.Authenticate != nil {
			r.Use(s.Authenticate)
		}
		r.Route(config.RouteAPI, func(r chi.Router) {
			r.Get(config.RouteBirthdays, s.handleListBirthdays)
			r.Get(config.RouteBirthday, s.handleGetBirthday)
			r.Put(config.RouteBirthday, s.handlePutBirthday)
			r.Delete(config.RouteBirthday, s.handleDeleteBirthday)
			r.Post(config.RouteRefresh, s.handleRefresh)
		})
		r.Get(config.RouteCalendar, s.handleCalendar)
	})
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if s.Listen == "" {
		return errors.New(config.ErrListenRequired)
	}

	srv := &http.Server{
		Addr:         s.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	serverError := make(chan error, config.ChannelBufferSize)

	go func() {
		slog.Info(config.MsgServerListen,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyListen, s.Listen,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverError <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info(config.MsgServerStop, config.LogKeyComponent, config.CompServer)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s: %w", config.ErrServerShutdown, err)
		}
		return nil

	case err := <-serverError:
		return fmt.Errorf("%s: %w", config.ErrServerStartup, err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	WriteJSONResponse(w, map[string]string{"status": config.HealthStatusOK}, http.StatusOK)
}

// requestLogger logs one debug line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		slog.Debug(config.MsgRequestServed,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyMethod, r.Method,
			config.LogKeyPath, r.URL.Path,
			config.LogKeyStatus, ww.Status(),
			config.LogKeyRequestID, middleware.GetReqID(r.Context()),
			config.LogKeyDuration, time.Since(start).Milliseconds(),
		)
	})
}
