package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	pkgconfig "github.com/soramir/inkwell/pkg/config"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.App.HTTP.Address() != ":8060" {
		t.Errorf("address = %q", cfg.App.HTTP.Address())
	}
}

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAIConfig_ProviderValidation(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.AI.Provider = "claude"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown provider should fail validation")
	}
}

func TestAIConfig_EmptyAPIKeyIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.AI.Deepseek.APIKey = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty api key should validate: %v", err)
	}
}

func TestAIConfig_Active(t *testing.T) {
	cfg := AIConfig{
		Provider: ProviderMinimax,
		Deepseek: ProviderConfig{Model: "deepseek-chat"},
		Minimax:  ProviderConfig{Model: "abab6.5s-chat"},
		Custom:   ProviderConfig{Model: "local"},
	}
	if got := cfg.Active().Model; got != "abab6.5s-chat" {
		t.Errorf("active model = %q, want minimax", got)
	}
	cfg.Provider = ProviderCustom
	if got := cfg.Active().Model; got != "local" {
		t.Errorf("active model = %q, want custom", got)
	}
	// Unknown or empty provider falls back to deepseek.
	cfg.Provider = ""
	if got := cfg.Active().Model; got != "deepseek-chat" {
		t.Errorf("active model = %q, want deepseek fallback", got)
	}
}

func TestRunLogConfig_Enabled(t *testing.T) {
	if (&RunLogConfig{}).Enabled() {
		t.Error("empty path should disable the run log")
	}
	if !(&RunLogConfig{Path: "./runs.db"}).Enabled() {
		t.Error("non-empty path should enable the run log")
	}
}

func TestLoadOptionalMissingFileKeepsDefaults(t *testing.T) {
	cfg := NewDefaultConfig()
	err := pkgconfig.LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), cfg)
	if err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if cfg.Capture.NotebookName != "MessageNote" {
		t.Errorf("notebook = %q, want default", cfg.Capture.NotebookName)
	}
}

func TestLoadOptionalOverridesAndExpandsEnv(t *testing.T) {
	t.Setenv("INKWELL_TEST_KEY", "sk-test")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
kernel:
  base_url: http://127.0.0.1:7000
ai:
  provider: custom
  system_prompt: Write a short diary entry.
  custom:
    base_url: http://localhost:8080/v1
    api_key: ${INKWELL_TEST_KEY}
    model: local-model
auth:
  mode: token
  token: secret
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.LoadOptional(path, cfg); err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if cfg.Kernel.BaseURL != "http://127.0.0.1:7000" {
		t.Errorf("kernel base url = %q", cfg.Kernel.BaseURL)
	}
	if got := cfg.AI.Active(); got.APIKey != "sk-test" || got.Model != "local-model" {
		t.Errorf("active provider = %+v", got)
	}
	if !cfg.Auth.AuthEnabled() {
		t.Error("auth should be enabled")
	}
	// Untouched sections keep their defaults.
	if cfg.App.HTTP.Port != 8060 {
		t.Errorf("port = %d, want default 8060", cfg.App.HTTP.Port)
	}
}

func TestLoadOptionalRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("app:\n  http:\n    port: -1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg := NewDefaultConfig()
	if err := pkgconfig.LoadOptional(path, cfg); err == nil {
		t.Fatal("invalid port should fail validation")
	}
}
