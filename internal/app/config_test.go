package app

import (
	"testing"

	"github.com/mlynnf123/voicedesk/internal/llm"
)

func TestGetenv(t *testing.T) {
	t.Setenv("VOICEDESK_TEST_KEY", "set")
	if got := getenv("VOICEDESK_TEST_KEY", "fallback"); got != "set" {
		t.Errorf("getenv = %q, want set", got)
	}
	if got := getenv("VOICEDESK_TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("getenv = %q, want fallback", got)
	}

	t.Setenv("VOICEDESK_TEST_EMPTY", "")
	if got := getenv("VOICEDESK_TEST_EMPTY", "fallback"); got != "fallback" {
		t.Errorf("getenv with empty value = %q, want fallback", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{
		"HTTP_ADDR", "PUBLIC_BASE_URL", "REALTIME_MODEL", "EXTRACTION_MODEL",
		"REALTIME_VOICE", "AGENT_INSTRUCTIONS", "GREETING_TEXT", "APNS_PRODUCTION",
	} {
		t.Setenv(k, "")
	}

	cfg := LoadConfigFromEnv()

	if cfg.HTTPAddr != ":5050" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.PublicBaseURL != "http://localhost:5050" {
		t.Errorf("PublicBaseURL = %q", cfg.PublicBaseURL)
	}
	if cfg.RealtimeModel != "gpt-4o-realtime-preview-2024-10-01" {
		t.Errorf("RealtimeModel = %q", cfg.RealtimeModel)
	}
	if cfg.ExtractionModel != "gpt-4o" {
		t.Errorf("ExtractionModel = %q", cfg.ExtractionModel)
	}
	if cfg.RealtimeVoice != "alloy" {
		t.Errorf("RealtimeVoice = %q", cfg.RealtimeVoice)
	}
	if cfg.Instructions != llm.ReceptionistInstructions {
		t.Errorf("Instructions not defaulted to the receptionist prompt")
	}
	if cfg.APNsProduction {
		t.Error("APNsProduction should default to false")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("REALTIME_VOICE", "echo")
	t.Setenv("APNS_PRODUCTION", "true")
	t.Setenv("DASHBOARD_JWT_SECRET", "s3cret")

	cfg := LoadConfigFromEnv()

	if cfg.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.RealtimeVoice != "echo" {
		t.Errorf("RealtimeVoice = %q", cfg.RealtimeVoice)
	}
	if !cfg.APNsProduction {
		t.Error("APNsProduction = false with APNS_PRODUCTION=true")
	}
	if cfg.DashboardJWTSecret != "s3cret" {
		t.Errorf("DashboardJWTSecret = %q", cfg.DashboardJWTSecret)
	}
}
