package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// AI provider names.
const (
	ProviderDeepseek = "deepseek"
	ProviderMinimax  = "minimax"
	ProviderCustom   = "custom"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Kernel  KernelConfig      `yaml:"kernel"`
	AI      AIConfig          `yaml:"ai"`
	Capture CaptureConfig     `yaml:"capture"`
	State   StateConfig       `yaml:"state"`
	RunLog  RunLogConfig      `yaml:"runlog"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Kernel.Validate(); err != nil {
		return err
	}
	if err := c.AI.Validate(); err != nil {
		return err
	}
	if err := c.Capture.Validate(); err != nil {
		return err
	}
	if err := c.State.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// KernelConfig holds the SiYuan kernel endpoint.
type KernelConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// Validate validates the kernel configuration.
func (c *KernelConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
	)
}

// ProviderConfig holds one AI provider endpoint.
type ProviderConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// AIConfig holds the AI provider table and the shared diary prompt.
type AIConfig struct {
	Provider     string         `yaml:"provider"`
	SystemPrompt string         `yaml:"system_prompt"`
	Deepseek     ProviderConfig `yaml:"deepseek"`
	Minimax      ProviderConfig `yaml:"minimax"`
	Custom       ProviderConfig `yaml:"custom"`
}

// Active returns the settings of the selected provider.
func (c *AIConfig) Active() ProviderConfig {
	switch c.Provider {
	case ProviderMinimax:
		return c.Minimax
	case ProviderCustom:
		return c.Custom
	default:
		return c.Deepseek
	}
}

// Validate validates the AI configuration. An empty API key is valid:
// generation is simply refused until one is configured.
func (c *AIConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required,
			validation.In(ProviderDeepseek, ProviderMinimax, ProviderCustom)),
		validation.Field(&c.SystemPrompt, validation.Required),
	)
}

// CaptureConfig holds the reserved kernel container names.
type CaptureConfig struct {
	NotebookName string `yaml:"notebook_name"`
	DiaryDocPath string `yaml:"diary_doc_path"`
}

// Validate validates the capture configuration.
func (c *CaptureConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.NotebookName, validation.Required),
		validation.Field(&c.DiaryDocPath, validation.Required),
	)
}

// StateConfig holds the path of the persisted state file.
type StateConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the state configuration.
func (c *StateConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// RunLogConfig holds the diary run log database path. An empty path
// disables the run log.
type RunLogConfig struct {
	Path string `yaml:"path"`
}

// Enabled reports whether the run log is active.
func (c *RunLogConfig) Enabled() bool {
	return c.Path != ""
}

// AuthConfig holds HTTP API authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled".
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8060,
			},
		},
		Kernel: KernelConfig{
			BaseURL: "http://127.0.0.1:6806",
		},
		AI: AIConfig{
			Provider: ProviderDeepseek,
			SystemPrompt: "You are a diary assistant. Based on the user's messages from today, " +
				"write a natural, emotionally warm diary entry.",
			Deepseek: ProviderConfig{BaseURL: "https://api.deepseek.com/v1", Model: "deepseek-chat"},
			Minimax:  ProviderConfig{BaseURL: "https://api.minimax.chat/v1", Model: "abab6.5s-chat"},
		},
		Capture: CaptureConfig{
			NotebookName: "MessageNote",
			DiaryDocPath: "/Diary",
		},
		State: StateConfig{
			Path: "./inkwell-state.json",
		},
		RunLog: RunLogConfig{
			Path: "./inkwell.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
