package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tartampluch/go-hebrew-birthday/internal/auth"
	"github.com/tartampluch/go-hebrew-birthday/internal/config"
	"github.com/tartampluch/go-hebrew-birthday/internal/engine"
	"github.com/tartampluch/go-hebrew-birthday/internal/feed"
	"github.com/tartampluch/go-hebrew-birthday/internal/i18n"
	"github.com/tartampluch/go-hebrew-birthday/internal/ratelimit"
	"github.com/tartampluch/go-hebrew-birthday/internal/scheduler"
	"github.com/tartampluch/go-hebrew-birthday/internal/server"
	"github.com/tartampluch/go-hebrew-birthday/internal/store"
	"github.com/tartampluch/go-hebrew-birthday/internal/telemetry"
	"github.com/tartampluch/go-hebrew-birthday/internal/vcard"
)

// application holds every wired component for one process.
type application struct {
	settings *config.Settings
	location *time.Location

	db           *store.Store
	records      *store.Records
	metrics      *telemetry.Metrics
	converter    *engine.HebcalClient
	synchronizer *engine.Synchronizer
	sweeper      *engine.Sweeper
	refresh      *engine.RefreshService
	scheduler    *scheduler.Scheduler
	importer     *vcard.Importer
}

// newApplication opens the database and wires the core. The synchronizer is registered
// as the write trigger of the record store, so every committed write is kept consistent.
func newApplication(s *config.Settings) (*application, error) {
	loc, err := s.Location()
	if err != nil {
		return nil, err
	}

	db, err := store.Open(s.Database)
	if err != nil {
		return nil, err
	}

	app := &application{
		settings: s,
		location: loc,
		db:       db,
		records:  store.NewRecords(db.DB()),
		metrics:  telemetry.NewMetrics(),
	}

	app.converter = &engine.HebcalClient{
		Client:        &http.Client{},
		BaseURL:       s.Hebcal.BaseURL,
		Language:      s.Hebcal.Language,
		Timeout:       s.Hebcal.Timeout,
		MaxTries:      s.Hebcal.MaxTries,
		RetryInterval: config.DefaultRetryInterval,
		Clock:         engine.RealClock{},
		Location:      loc,
		Metrics:       app.metrics,
	}
	projector := &engine.Projector{Converter: app.converter, Concurrency: s.Hebcal.Concurrency}

	app.synchronizer = &engine.Synchronizer{
		Converter:    app.converter,
		Projector:    projector,
		Store:        app.records,
		Clock:        engine.RealClock{},
		Location:     loc,
		HorizonYears: s.HorizonYears,
		Metrics:      app.metrics,
	}
	app.records.OnChange(app.synchronizer.HandleWrite)

	app.sweeper = &engine.Sweeper{
		Projector:    projector,
		Store:        app.records,
		HorizonYears: s.HorizonYears,
		Metrics:      app.metrics,
	}
	app.scheduler = &scheduler.Scheduler{
		Spec:     s.SweepCron,
		Location: loc,
		Sweeper:  app.sweeper,
		Clock:    engine.RealClock{},
	}

	limiter := ratelimit.New(store.NewRateLimits(db.DB()))
	limiter.Max = s.RefreshLimit.MaxRequests
	limiter.Window = s.RefreshLimit.Window
	app.refresh = &engine.RefreshService{
		Store:        app.records,
		Synchronizer: app.synchronizer,
		Limiter:      limiter,
	}

	app.importer = &vcard.Importer{Records: app.records}
	return app, nil
}

// httpServer builds the HTTP surface. It needs the bearer-token secret.
func (a *application) httpServer() (*server.Server, error) {
	secret, err := auth.ResolveSecret(a.settings.Auth)
	if err != nil {
		return nil, err
	}
	catalog, err := i18n.NewCatalog()
	if err != nil {
		return nil, err
	}

	return &server.Server{
		Listen:    a.settings.Listen,
		Refresher: a.refresh,
		Records:   a.records,
		Feed: &feed.Generator{
			Clock:      engine.RealClock{},
			Translator: catalog,
			Reminder:   a.settings.Calendar.Reminder,
		},
		Localizer:    catalog,
		Authenticate: auth.NewAuthenticator(secret).Middleware,
		Metrics:      a.metrics,
		RetryAfter:   a.settings.RefreshLimit.Window,
		FeedLanguage: a.settings.Calendar.Language,
	}, nil
}

// syncRecord forces recomputation of one record.
func (a *application) syncRecord(ctx context.Context, id string) (engine.Outcome, error) {
	rec, err := a.records.Get(ctx, id)
	if err != nil {
		return engine.OutcomeFailed, fmt.Errorf("%s: %w", id, err)
	}
	return a.synchronizer.Recompute(ctx, rec)
}

func (a *application) Close() error {
	return a.db.Close()
}
