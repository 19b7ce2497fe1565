package app

import (
	"os"

	"github.com/mlynnf123/voicedesk/internal/llm"
)

type Config struct {
	HTTPAddr      string
	PublicBaseURL string
	SentryDSN     string

	// AI endpoints
	OpenAIAPIKey    string
	RealtimeModel   string
	ExtractionModel string
	RealtimeVoice   string
	Instructions    string
	GreetingText    string

	// Storage
	SupabaseURL    string
	SupabaseAPIKey string
	DatabaseURL    string // optional, enables the call event log

	// Twilio (SMS outreach)
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string

	// Dashboard WebSocket auth (empty disables token checks)
	DashboardJWTSecret string

	// APNs push
	APNsKeyPath    string
	APNsKeyID      string
	APNsTeamID     string
	APNsBundleID   string
	APNsProduction bool
}

func LoadConfigFromEnv() Config {
	return Config{
		HTTPAddr:      getenv("HTTP_ADDR", ":5050"),
		PublicBaseURL: getenv("PUBLIC_BASE_URL", "http://localhost:5050"),
		SentryDSN:     getenv("SENTRY_DSN", ""),

		OpenAIAPIKey:    getenv("OPENAI_API_KEY", ""),
		RealtimeModel:   getenv("REALTIME_MODEL", "gpt-4o-realtime-preview-2024-10-01"),
		ExtractionModel: getenv("EXTRACTION_MODEL", "gpt-4o"),
		RealtimeVoice:   getenv("REALTIME_VOICE", "alloy"),
		Instructions:    getenv("AGENT_INSTRUCTIONS", llm.ReceptionistInstructions),
		GreetingText:    getenv("GREETING_TEXT", "Hi, you have called Bart's Automotive Centre. How can we help?"),

		SupabaseURL:    getenv("SUPABASE_URL", ""),
		SupabaseAPIKey: getenv("SUPABASE_API_KEY", ""),
		DatabaseURL:    getenv("DATABASE_URL", ""),

		TwilioAccountSID:  getenv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:   getenv("TWILIO_AUTH_TOKEN", ""),
		TwilioPhoneNumber: getenv("TWILIO_PHONE_NUMBER", ""),

		DashboardJWTSecret: os.Getenv("DASHBOARD_JWT_SECRET"),

		APNsKeyPath:    getenv("APNS_KEY_PATH", ""),
		APNsKeyID:      getenv("APNS_KEY_ID", ""),
		APNsTeamID:     getenv("APNS_TEAM_ID", ""),
		APNsBundleID:   getenv("APNS_BUNDLE_ID", ""),
		APNsProduction: getenv("APNS_PRODUCTION", "") == "true",
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
