// Package config はエクスポーターの設定を読み込む。
// 既定値、YAMLファイル、環境変数の順に上書きし、コマンドラインフラグは呼び出し側で最後に適用する。
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIBaseURL       = "https://api.onepeloton.com"
	DefaultThrottleInterval = 3 * time.Second
	DefaultHTTPTimeout      = 30 * time.Second
	DefaultLogLevel         = "info"
)

// Config はエクスポーター全体の設定を保持する。
// 起動時に1回読み込み、フラグを適用した後はイミュータブルとして扱う。
type Config struct {
	// Credentials
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Export
	OutputDir     string `yaml:"output_dir"`
	Overwrite     bool   `yaml:"overwrite"`
	ExportDetails bool   `yaml:"export_details"`
	SaveRawJSON   bool   `yaml:"save_raw_json"`

	// API
	APIBaseURL       string        `yaml:"api_base_url"`
	ThrottleInterval time.Duration `yaml:"throttle_interval"`
	HTTPTimeout      time.Duration `yaml:"http_timeout"`

	// Catalog
	CatalogURL string `yaml:"catalog_url"`

	// Metrics
	MetricsAddr     string `yaml:"metrics_addr"`
	MetricsTextfile string `yaml:"metrics_textfile"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// Default は既定値のConfigを返す。
func Default() *Config {
	return &Config{
		APIBaseURL:       DefaultAPIBaseURL,
		ThrottleInterval: DefaultThrottleInterval,
		HTTPTimeout:      DefaultHTTPTimeout,
		LogLevel:         DefaultLogLevel,
	}
}

// Load は既定値にYAMLファイルと環境変数を重ねたConfigを返す。
// pathが空の場合はファイルを読まない。検証はValidateで行う。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗しました: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("設定ファイルの解析に失敗しました: %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error

	c.Username = getEnvString("PELOTON_USERNAME", c.Username)
	c.Password = getEnvString("PELOTON_PASSWORD", c.Password)
	c.OutputDir = getEnvString("PELOTON_OUTPUT_DIR", c.OutputDir)
	c.APIBaseURL = getEnvString("PELOTON_API_BASE_URL", c.APIBaseURL)
	c.CatalogURL = getEnvString("PELOTON_CATALOG_URL", c.CatalogURL)
	c.MetricsAddr = getEnvString("PELOTON_METRICS_ADDR", c.MetricsAddr)
	c.MetricsTextfile = getEnvString("PELOTON_METRICS_TEXTFILE", c.MetricsTextfile)
	c.LogLevel = getEnvString("LOG_LEVEL", c.LogLevel)

	var err error
	if c.Overwrite, err = getEnvBool("PELOTON_OVERWRITE", c.Overwrite); err != nil {
		errs = append(errs, err)
	}
	if c.ExportDetails, err = getEnvBool("PELOTON_EXPORT_DETAILS", c.ExportDetails); err != nil {
		errs = append(errs, err)
	}
	if c.SaveRawJSON, err = getEnvBool("PELOTON_SAVE_RAW", c.SaveRawJSON); err != nil {
		errs = append(errs, err)
	}
	if c.ThrottleInterval, err = getEnvDuration("PELOTON_THROTTLE_INTERVAL", c.ThrottleInterval); err != nil {
		errs = append(errs, err)
	}
	if c.HTTPTimeout, err = getEnvDuration("PELOTON_HTTP_TIMEOUT", c.HTTPTimeout); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Validate はエクスポート実行に必要な設定がそろっているかを検証する。
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.OutputDir) == "" {
		problems = append(problems, "output directory is required (--out or PELOTON_OUTPUT_DIR)")
	}
	if c.ThrottleInterval < 0 {
		problems = append(problems, fmt.Sprintf("throttle interval must not be negative: %s", c.ThrottleInterval))
	}
	if c.HTTPTimeout <= 0 {
		problems = append(problems, fmt.Sprintf("http timeout must be positive: %s", c.HTTPTimeout))
	}
	if u, err := url.Parse(c.APIBaseURL); err != nil || u.Scheme != "https" || u.Host == "" {
		problems = append(problems, fmt.Sprintf("api base url must be an https URL: %q", c.APIBaseURL))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("unknown log level: %q", c.LogLevel))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s must be a boolean: %q", key, v)
	}
	return b, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s must be a duration: %q", key, v)
	}
	return d, nil
}
