package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mlynnf123/voicedesk/internal/bridge"
	"github.com/mlynnf123/voicedesk/internal/eventlog"
	"github.com/mlynnf123/voicedesk/internal/extract"
	"github.com/mlynnf123/voicedesk/internal/httpapi"
	"github.com/mlynnf123/voicedesk/internal/llm"
	"github.com/mlynnf123/voicedesk/internal/notify"
	"github.com/mlynnf123/voicedesk/internal/realtime"
	"github.com/mlynnf123/voicedesk/internal/store"
)

type App struct {
	cfg       Config
	logger    *log.Logger
	db        *pgxpool.Pool // optional, event log only
	store     *store.Store
	llm       *llm.OpenAIClient
	hub       *notify.Hub
	sms       *notify.SMSClient
	apns      *notify.APNsClient
	sessions  *bridge.Store
	extractor *extract.Extractor
	eventLog  *eventlog.Logger
}

func New(cfg Config, logger *log.Logger) (*App, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is required")
	}
	if cfg.SupabaseURL == "" || cfg.SupabaseAPIKey == "" {
		return nil, errors.New("SUPABASE_URL and SUPABASE_API_KEY are required")
	}

	s, err := store.New(store.Config{URL: cfg.SupabaseURL, APIKey: cfg.SupabaseAPIKey})
	if err != nil {
		return nil, err
	}

	// The diagnostic event log is optional; without DATABASE_URL it is a
	// no-op.
	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		db, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	el := eventlog.New(db)

	llmClient := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.ExtractionModel,
	})

	hub := notify.NewHub(logger)

	sms := notify.NewSMSClient(notify.SMSConfig{
		AccountSID:   cfg.TwilioAccountSID,
		AuthToken:    cfg.TwilioAuthToken,
		SenderNumber: cfg.TwilioPhoneNumber,
	}, logger)

	apns, err := notify.NewAPNsClient(notify.APNsConfig{
		KeyPath:    cfg.APNsKeyPath,
		KeyID:      cfg.APNsKeyID,
		TeamID:     cfg.APNsTeamID,
		BundleID:   cfg.APNsBundleID,
		Production: cfg.APNsProduction,
	}, logger)
	if err != nil {
		logger.Printf("warning: APNs client initialization failed: %v", err)
	}

	return &App{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		store:     s,
		llm:       llmClient,
		hub:       hub,
		sms:       sms,
		apns:      apns,
		sessions:  bridge.NewStore(logger),
		extractor: extract.New(llmClient, s, hub, apns, el, logger),
		eventLog:  el,
	}, nil
}

func (a *App) Router(calls *httpapi.CallRegistry) http.Handler {
	routerCfg := httpapi.RouterConfig{
		PublicBaseURL:            a.cfg.PublicBaseURL,
		RealtimeVoice:            a.cfg.RealtimeVoice,
		ReceptionistInstructions: a.cfg.Instructions,
		GreetingText:             a.cfg.GreetingText,
		TwilioPhoneNumber:        a.cfg.TwilioPhoneNumber,
		DashboardJWTSecret:       a.cfg.DashboardJWTSecret,
	}

	dialAI := func(ctx context.Context) (httpapi.AILeg, error) {
		return realtime.Dial(ctx, realtime.Config{
			APIKey:       a.cfg.OpenAIAPIKey,
			Model:        a.cfg.RealtimeModel,
			Voice:        a.cfg.RealtimeVoice,
			Instructions: a.cfg.Instructions,
		}, a.logger)
	}

	return httpapi.NewRouter(routerCfg, a.logger, httpapi.Deps{
		Store:     a.store,
		LLM:       a.llm,
		Hub:       a.hub,
		SMS:       a.sms,
		Sessions:  a.sessions,
		Extractor: a.extractor,
		Events:    a.eventLog,
		Calls:     calls,
		DialAI:    dialAI,
	})
}

func (a *App) Close() error {
	if a.db != nil {
		a.db.Close()
	}
	return nil
}
