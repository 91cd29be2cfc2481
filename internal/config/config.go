package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config contains all runtime settings for the shopping chat service.
type Config struct {
	Host             string
	Port             int
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	Environment string
	Debug       bool
	LogLevel    string
	LogFormat   string

	ResponseLanguage string

	CompletionProvider    string
	CompletionTimeout     time.Duration
	CompletionTemperature float64
	CompletionHTTPURL     string
	CompletionMaxRetries  int

	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	AnthropicAPIKey string
	AnthropicModel  string
	GoogleAPIKey    string
	GeminiModel     string
	GeminiBaseURL   string

	SearchProvider        string
	SearchBaseURL         string
	SearchHTMLURL         string
	SearchTimeout         time.Duration
	SearchCacheTTL        time.Duration
	SearchCacheMaxEntries int

	DatabaseURL     string
	ChatLogCapacity int
}

// BindAddr joins host and port into a listen address.
func (c Config) BindAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// IsProduction reports whether APP_ENVIRONMENT is "production".
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

// keys maps viper keys to the environment variables that may set them, in
// precedence order.
var keys = map[string][]string{
	"host":                     {"APP_HOST", "FASTAPI_HOST"},
	"port":                     {"APP_PORT", "FASTAPI_PORT"},
	"shutdown_timeout":         {"APP_SHUTDOWN_TIMEOUT"},
	"metrics_namespace":        {"APP_METRICS_NAMESPACE"},
	"allow_any_origin":         {"APP_ALLOW_ANY_ORIGIN"},
	"environment":              {"APP_ENVIRONMENT", "ENVIRONMENT"},
	"debug":                    {"APP_DEBUG", "DEBUG"},
	"log_level":                {"LOG_LEVEL"},
	"log_format":               {"LOG_FORMAT"},
	"response_language":        {"RESPONSE_LANGUAGE"},
	"completion_provider":      {"COMPLETION_PROVIDER"},
	"completion_timeout":       {"COMPLETION_TIMEOUT"},
	"completion_temperature":   {"COMPLETION_TEMPERATURE"},
	"completion_http_url":      {"COMPLETION_HTTP_URL"},
	"completion_max_retries":   {"COMPLETION_MAX_RETRIES"},
	"openai_api_key":           {"OPENAI_API_KEY"},
	"openai_base_url":          {"OPENAI_BASE_URL"},
	"openai_model":             {"OPENAI_MODEL"},
	"anthropic_api_key":        {"ANTHROPIC_API_KEY"},
	"anthropic_model":          {"ANTHROPIC_MODEL"},
	"google_api_key":           {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
	"gemini_model":             {"GEMINI_MODEL"},
	"gemini_base_url":          {"GEMINI_BASE_URL"},
	"search_provider":          {"SEARCH_PROVIDER"},
	"search_base_url":          {"SEARCH_BASE_URL"},
	"search_html_url":          {"SEARCH_HTML_URL"},
	"search_timeout":           {"SEARCH_TIMEOUT"},
	"search_cache_ttl":         {"SEARCH_CACHE_TTL"},
	"search_cache_max_entries": {"SEARCH_CACHE_MAX_ENTRIES"},
	"database_url":             {"DATABASE_URL"},
	"chat_log_capacity":        {"CHAT_LOG_CAPACITY"},
}

var defaults = map[string]any{
	"host":                     "localhost",
	"port":                     "8000",
	"shutdown_timeout":         "15s",
	"metrics_namespace":        "shopchat",
	"allow_any_origin":         "true",
	"environment":              "development",
	"debug":                    "true",
	"log_level":                "info",
	"log_format":               "pretty",
	"response_language":        "한국어",
	"completion_provider":      "auto",
	"completion_timeout":       "45s",
	"completion_temperature":   "0.1",
	"completion_max_retries":   "1",
	"openai_model":             "gpt-4o-mini",
	"anthropic_model":          "claude-3-5-haiku-latest",
	"gemini_model":             "gemini-2.0-flash",
	"gemini_base_url":          "https://generativelanguage.googleapis.com/v1beta/openai/",
	"search_provider":          "duckduckgo",
	"search_base_url":          "https://api.duckduckgo.com/",
	"search_html_url":          "https://html.duckduckgo.com/html/",
	"search_timeout":           "15s",
	"search_cache_ttl":         "5m",
	"search_cache_max_entries": "1000",
	"chat_log_capacity":        "0",
}

// NewViper returns a viper instance with defaults registered and every key
// bound to its environment variables. Callers may bind CLI flags on top.
func NewViper() *viper.Viper {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	for key, envs := range keys {
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}
	return v
}

// LoadDotEnv loads variables from the given .env files (".env" when none are
// given) without overriding the existing environment. Missing files are fine.
func LoadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load .env: %w", err)
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	return FromViper(NewViper())
}

// FromViper builds and validates a Config from v.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Host:               trimSpace(v.GetString("host")),
		MetricsNamespace:   trimSpace(v.GetString("metrics_namespace")),
		Environment:        trimSpace(v.GetString("environment")),
		LogLevel:           strings.ToLower(trimSpace(v.GetString("log_level"))),
		LogFormat:          strings.ToLower(trimSpace(v.GetString("log_format"))),
		ResponseLanguage:   trimSpace(v.GetString("response_language")),
		CompletionProvider: strings.ToLower(trimSpace(v.GetString("completion_provider"))),
		CompletionHTTPURL:  trimSpace(v.GetString("completion_http_url")),
		OpenAIAPIKey:       trimSpace(v.GetString("openai_api_key")),
		OpenAIBaseURL:      trimSpace(v.GetString("openai_base_url")),
		OpenAIModel:        trimSpace(v.GetString("openai_model")),
		AnthropicAPIKey:    trimSpace(v.GetString("anthropic_api_key")),
		AnthropicModel:     trimSpace(v.GetString("anthropic_model")),
		GoogleAPIKey:       trimSpace(v.GetString("google_api_key")),
		GeminiModel:        trimSpace(v.GetString("gemini_model")),
		GeminiBaseURL:      trimSpace(v.GetString("gemini_base_url")),
		SearchProvider:     strings.ToLower(trimSpace(v.GetString("search_provider"))),
		SearchBaseURL:      trimSpace(v.GetString("search_base_url")),
		SearchHTMLURL:      trimSpace(v.GetString("search_html_url")),
		DatabaseURL:        trimSpace(v.GetString("database_url")),
	}

	var err error
	if cfg.Port, err = intValue(v, "port"); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = durationValue(v, "shutdown_timeout"); err != nil {
		return Config{}, err
	}
	if cfg.AllowAnyOrigin, err = boolValue(v, "allow_any_origin"); err != nil {
		return Config{}, err
	}
	if cfg.Debug, err = boolValue(v, "debug"); err != nil {
		return Config{}, err
	}
	if cfg.CompletionTimeout, err = durationValue(v, "completion_timeout"); err != nil {
		return Config{}, err
	}
	if cfg.CompletionTemperature, err = floatValue(v, "completion_temperature"); err != nil {
		return Config{}, err
	}
	if cfg.CompletionMaxRetries, err = intValue(v, "completion_max_retries"); err != nil {
		return Config{}, err
	}
	if cfg.SearchTimeout, err = durationValue(v, "search_timeout"); err != nil {
		return Config{}, err
	}
	if cfg.SearchCacheTTL, err = durationValue(v, "search_cache_ttl"); err != nil {
		return Config{}, err
	}
	if cfg.SearchCacheMaxEntries, err = intValue(v, "search_cache_max_entries"); err != nil {
		return Config{}, err
	}
	if cfg.ChatLogCapacity, err = intValue(v, "chat_log_capacity"); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("APP_PORT must be between 1 and 65535")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.CompletionTimeout <= 0 {
		return fmt.Errorf("COMPLETION_TIMEOUT must be positive")
	}
	if c.SearchTimeout <= 0 {
		return fmt.Errorf("SEARCH_TIMEOUT must be positive")
	}
	if c.SearchCacheTTL < 0 {
		return fmt.Errorf("SEARCH_CACHE_TTL must be >= 0")
	}
	if c.SearchCacheMaxEntries <= 0 {
		return fmt.Errorf("SEARCH_CACHE_MAX_ENTRIES must be positive")
	}
	if c.CompletionMaxRetries < 0 {
		return fmt.Errorf("COMPLETION_MAX_RETRIES must be >= 0")
	}
	if c.ChatLogCapacity < 0 {
		return fmt.Errorf("CHAT_LOG_CAPACITY must be >= 0")
	}
	if c.CompletionTemperature < 0 || c.CompletionTemperature > 2 {
		return fmt.Errorf("COMPLETION_TEMPERATURE must be between 0 and 2")
	}

	switch c.CompletionProvider {
	case "auto", "openai", "anthropic", "gemini", "mock", "none":
	case "http":
		if c.CompletionHTTPURL == "" {
			return fmt.Errorf("COMPLETION_HTTP_URL is required when COMPLETION_PROVIDER=http")
		}
	default:
		return fmt.Errorf("invalid COMPLETION_PROVIDER: %q (expected auto|openai|anthropic|gemini|http|mock|none)", c.CompletionProvider)
	}

	switch c.SearchProvider {
	case "duckduckgo", "mock":
	default:
		return fmt.Errorf("invalid SEARCH_PROVIDER: %q (expected duckduckgo|mock)", c.SearchProvider)
	}

	switch c.LogFormat {
	case "pretty", "json":
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %q (expected pretty|json)", c.LogFormat)
	}
	return nil
}

func trimSpace(v string) string {
	return strings.TrimSpace(v)
}

// envName returns the primary environment variable for key, for error messages.
func envName(key string) string {
	if envs := keys[key]; len(envs) > 0 {
		return envs[0]
	}
	return strings.ToUpper(key)
}

func durationValue(v *viper.Viper, key string) (time.Duration, error) {
	raw := trimSpace(v.GetString(key))
	if raw == "" {
		raw = fmt.Sprint(defaults[key])
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", envName(key), err)
	}
	return d, nil
}

func intValue(v *viper.Viper, key string) (int, error) {
	raw := trimSpace(v.GetString(key))
	if raw == "" {
		raw = fmt.Sprint(defaults[key])
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", envName(key), err)
	}
	return n, nil
}

func floatValue(v *viper.Viper, key string) (float64, error) {
	raw := trimSpace(v.GetString(key))
	if raw == "" {
		raw = fmt.Sprint(defaults[key])
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", envName(key), err)
	}
	return f, nil
}

func boolValue(v *viper.Viper, key string) (bool, error) {
	raw := strings.ToLower(trimSpace(v.GetString(key)))
	if raw == "" {
		raw = fmt.Sprint(defaults[key])
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", envName(key))
	}
}
