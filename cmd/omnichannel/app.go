package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/omnichannel-gateway/internal/channels"
	"github.com/tbourn/omnichannel-gateway/internal/commands"
	"github.com/tbourn/omnichannel-gateway/internal/config"
	apphttp "github.com/tbourn/omnichannel-gateway/internal/http"
	"github.com/tbourn/omnichannel-gateway/internal/repo"
	"github.com/tbourn/omnichannel-gateway/internal/services"
)

// app is the wired object graph behind `serve`.
type app struct {
	engine  *gin.Engine
	outbox  *services.Outbox
	sweeper *services.Sweeper
	workers []*channels.Worker
}

// openDB opens the configured store and brings its schema up to date:
// GORM AutoMigrate for SQLite, the embedded SQL migrations for Postgres.
func openDB(cfg config.Config, log zerolog.Logger) (*gorm.DB, error) {
	db, err := repo.Open(cfg.DB.Driver, cfg.DB.Path, cfg.DB.URL)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DB.Driver, err)
	}
	if cfg.DB.Driver == repo.DriverPostgres {
		st, err := repo.RunMigrations(cfg.DB.URL, "up")
		if err != nil {
			return nil, err
		}
		log.Info().Uint("version", st.Version).Bool("dirty", st.Dirty).Msg("schema migrated")
		return db, nil
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return db, nil
}

func newOutbox(db *gorm.DB, cfg config.Config) *services.Outbox {
	return &services.Outbox{
		DB:           db,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
		LeaseTimeout: cfg.Outbox.LeaseTimeout,
		RetryBase:    cfg.Outbox.RetryBase,
		RetryMax:     cfg.Outbox.RetryMax,
	}
}

// buildApp wires services, HTTP routes, sender workers and the sweeper. The
// tool ports are left empty until the profile, planning, try-on and checkout
// backends are deployed; their tools answer with an "unavailable" reply.
func buildApp(db *gorm.DB, cfg config.Config, log zerolog.Logger) (*app, error) {
	links := &services.LinkService{DB: db, PublicBaseURL: cfg.PublicBaseURL, TokenTTL: cfg.LinkTokenTTL}
	outbox := newOutbox(db, cfg)
	idem := &services.IdempotencyCache{DB: db, TTL: cfg.IdempotencyTTL}
	exec := commands.NewExecutor(commands.Ports{})

	orch := &services.Orchestrator{
		Links:    links,
		Inbound:  &services.InboundRecorder{DB: db},
		Outbox:   outbox,
		Executor: exec,
		Audit:    services.DBAuditSink{DB: db},
		Log:      log,
	}

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	apphttp.RegisterRoutes(engine, db, apphttp.Services{
		Inbound:     orch,
		Links:       links,
		Outbox:      outbox,
		Tools:       exec,
		Idempotency: idem,
	}, cfg)

	senders, err := buildSenders(cfg)
	if err != nil {
		return nil, err
	}
	workers := make([]*channels.Worker, 0, len(senders))
	for _, s := range senders {
		workers = append(workers, channels.NewWorker(outbox, s.sender, channels.WorkerConfig{
			PollInterval: cfg.Outbox.PollInterval,
			BatchSize:    cfg.Outbox.BatchSize,
			MaxAttempts:  cfg.Outbox.MaxAttempts,
			SendRPS:      s.rps,
		}, log))
	}

	return &app{
		engine: engine,
		outbox: outbox,
		sweeper: &services.Sweeper{
			Outbox:          outbox,
			Idempotency:     idem,
			Log:             log,
			RequeueSchedule: cfg.Outbox.RequeueSchedule,
			ReclaimSchedule: cfg.Outbox.ReclaimSchedule,
			PurgeSchedule:   cfg.Outbox.PurgeSchedule,
		},
		workers: workers,
	}, nil
}

type throttledSender struct {
	sender channels.Sender
	rps    float64
}

// buildSenders returns one push sender per enabled provider. Pull channels
// (iMessage, ChatGPT) are drained through the bridge API instead.
func buildSenders(cfg config.Config) ([]throttledSender, error) {
	var out []throttledSender
	if cfg.Telegram.Enabled {
		s, err := channels.NewTelegramSender(channels.TelegramConfig{
			BotToken:   cfg.Telegram.BotToken,
			APIBaseURL: cfg.Telegram.APIBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("telegram sender: %w", err)
		}
		out = append(out, throttledSender{sender: s, rps: cfg.Telegram.SendRPS})
	}
	if cfg.WhatsApp.Enabled {
		s, err := channels.NewWhatsAppSender(channels.WhatsAppConfig{
			AccessToken:   cfg.WhatsApp.AccessToken,
			PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
			APIBaseURL:    cfg.WhatsApp.APIBaseURL,
			APIVersion:    cfg.WhatsApp.APIVersion,
		})
		if err != nil {
			return nil, fmt.Errorf("whatsapp sender: %w", err)
		}
		out = append(out, throttledSender{sender: s, rps: cfg.WhatsApp.SendRPS})
	}
	return out, nil
}

// startBackground starts the workers and the sweeper.
func (a *app) startBackground(ctx context.Context) error {
	for _, w := range a.workers {
		w.Start(ctx)
	}
	return a.sweeper.Start()
}

// stopBackground waits for in-flight sends and sweeps to finish.
func (a *app) stopBackground() {
	for _, w := range a.workers {
		w.Stop()
	}
	a.sweeper.Stop()
}
