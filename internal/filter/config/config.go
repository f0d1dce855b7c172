package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// StorePath is the bbolt database file backing the shared rule state.
	StorePath string `koanf:"store_path" validate:"required"`

	// AccountSourceURL is the remote artifact holding the bulk account set.
	AccountSourceURL string `koanf:"account_source_url" validate:"required,url"`

	// KeywordSourceURL is the remote artifact holding the bulk keyword set.
	KeywordSourceURL string `koanf:"keyword_source_url" validate:"required,url"`

	// StreamURL is the websocket endpoint delivering new records.
	StreamURL string `koanf:"stream_url" validate:"required,url"`

	// ReportURL is the base endpoint for feedback and manual report calls.
	ReportURL string `koanf:"report_url" validate:"required,url"`

	// ReportKey is the shared symmetric key for sealing report payloads.
	ReportKey string `koanf:"report_key" validate:"required,report_key"`

	// ControlAddr is the local listen address of the command surface.
	ControlAddr string `koanf:"control_addr" validate:"required,hostname_port"`

	// RefreshMinutes is the period of the remote source refresh check. A
	// refresh only actually runs when the data is older than this period.
	RefreshMinutes int `koanf:"refresh_minutes" validate:"required,gte=1"`

	// DebounceMillis is the coalescing window for forced re-evaluation.
	DebounceMillis int `koanf:"debounce_millis" validate:"required,gte=1"`

	// RetryAttempts bounds retries for each remote source load.
	RetryAttempts int `koanf:"retry_attempts" validate:"required,gte=1,lte=10"`

	// NameCacheSize caps the display-name resolution cache.
	NameCacheSize int `koanf:"name_cache_size" validate:"required,gte=1"`
}

// DEFAULT_APP_CONFIG defines the default configuration for the filter daemon.
// URLs and the report key have no sane defaults and must come from the
// environment.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:            "prod",
	LogLevel:       "info",
	StorePath:      "/var/lib/tweetfilter/state.db",
	ControlAddr:    "127.0.0.1:8573",
	RefreshMinutes: 60,
	DebounceMillis: 300,
	RetryAttempts:  3,
	NameCacheSize:  1024,
}

// validReportKey verifies the shared key is long enough for AES-256. The
// sealing layer truncates to the first 32 bytes, so longer keys are fine.
func validReportKey(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) >= 32
}

// envLoader loads environment variables with the prefix "FILTER_",
// lowercasing keys and stripping the prefix. Mockable in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "FILTER_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "FILTER_"))
			value = strings.TrimSpace(value)
			return key, value
		},
	}), nil)
}

// defaultLoader loads default configuration values into the provided Koanf
// instance using the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the custom "report_key" validation.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("report_key", validReportKey)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
