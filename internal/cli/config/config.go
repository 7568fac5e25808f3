package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sumfields/sumfields/internal/params"
)

// Data update methods
const (
	ViaTriggers = "via_triggers"
	ViaCron     = "via_cron"
)

// EnvPrefix prefixes environment overrides, e.g. SUMFIELDS_SERVER_PORT
const EnvPrefix = "SUMFIELDS"

// configNames are the file names FindConfigFile looks for
var configNames = []string{"sumfields.yml", "sumfields.yaml"}

// Config represents the sumfields configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Sumfields SumfieldsConfig `mapstructure:"sumfields"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL          string `mapstructure:"url"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	Host        string   `mapstructure:"host"`
	APIPrefix   string   `mapstructure:"api_prefix"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// RedisConfig represents the status store configuration. An empty Addr
// keeps status in memory.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// AuthConfig represents API authentication. With neither field set the
// API is open.
type AuthConfig struct {
	JWTSecret  string `mapstructure:"jwt_secret"`
	APIKeyHash string `mapstructure:"api_key_hash"`
}

// Enabled reports whether any authentication is configured
func (a AuthConfig) Enabled() bool {
	return a.JWTSecret != "" || a.APIKeyHash != ""
}

// LogConfig represents logging configuration
type LogConfig struct {
	Mode string `mapstructure:"mode"`
}

// SumfieldsConfig holds the site administrator's summary field settings
type SumfieldsConfig struct {
	ActiveFields               []string      `mapstructure:"active_fields"`
	FinancialTypeIDs           []int         `mapstructure:"financial_type_ids"`
	MembershipFinancialTypeIDs []int         `mapstructure:"membership_financial_type_ids"`
	EventTypeIDs               []int         `mapstructure:"event_type_ids"`
	ParticipantStatusIDs       []int         `mapstructure:"participant_status_ids"`
	ParticipantNoshowStatusIDs []int         `mapstructure:"participant_noshow_status_ids"`
	FiscalYearStart            string        `mapstructure:"fiscal_year_start"`
	Locale                     string        `mapstructure:"locale"`
	EnabledComponents          []string      `mapstructure:"enabled_components"`
	DataUpdateMethod           string        `mapstructure:"data_update_method"`
	CronInterval               time.Duration `mapstructure:"cron_interval"`
	SummaryTable               string        `mapstructure:"summary_table"`
	DefinitionsFile            string        `mapstructure:"definitions_file"`
	LockTTL                    time.Duration `mapstructure:"lock_ttl"`
}

// ParamSet returns the placeholder parameters
func (s SumfieldsConfig) ParamSet() (params.Set, error) {
	start, err := params.ParseMonthDay(s.FiscalYearStart)
	if err != nil {
		return params.Set{}, fmt.Errorf("sumfields.fiscal_year_start: %w", err)
	}
	return params.Set{
		FinancialTypeIDs:           s.FinancialTypeIDs,
		MembershipFinancialTypeIDs: s.MembershipFinancialTypeIDs,
		EventTypeIDs:               s.EventTypeIDs,
		ParticipantStatusIDs:       s.ParticipantStatusIDs,
		ParticipantNoshowStatusIDs: s.ParticipantNoshowStatusIDs,
		FiscalYearStart:            start,
	}, nil
}

// UsesTriggers reports whether fields are kept current by triggers
func (s SumfieldsConfig) UsesTriggers() bool {
	return s.DataUpdateMethod != ViaCron
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.api_prefix", "")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "sumfields:")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.api_key_hash", "")
	v.SetDefault("log.mode", "dev")
	v.SetDefault("sumfields.active_fields", []string{})
	v.SetDefault("sumfields.financial_type_ids", []int{})
	v.SetDefault("sumfields.membership_financial_type_ids", []int{})
	v.SetDefault("sumfields.event_type_ids", []int{})
	v.SetDefault("sumfields.participant_status_ids", []int{})
	v.SetDefault("sumfields.participant_noshow_status_ids", []int{})
	v.SetDefault("sumfields.fiscal_year_start", "01-01")
	v.SetDefault("sumfields.locale", "")
	v.SetDefault("sumfields.enabled_components", []string{"CiviContribute", "CiviMember", "CiviEvent"})
	v.SetDefault("sumfields.data_update_method", ViaTriggers)
	v.SetDefault("sumfields.cron_interval", time.Hour)
	v.SetDefault("sumfields.summary_table", "civicrm_value_summary_fields")
	v.SetDefault("sumfields.definitions_file", "")
	v.SetDefault("sumfields.lock_ttl", time.Hour)
}

// Load loads the configuration from the nearest sumfields.yml or
// sumfields.yaml
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads the configuration from path. With an empty path the
// nearest sumfields.yml from the working directory up is used.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Enable environment variable support
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		// no file anywhere up the tree means defaults
		path, _ = FindConfigFile()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		config.Database.URL = url
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// FindConfigFile looks for sumfields.yml from the working directory up
func FindConfigFile() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		for _, name := range configNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no sumfields.yml found")
		}
		dir = parent
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Server.APIPrefix != "" {
		if !strings.HasPrefix(cfg.Server.APIPrefix, "/") {
			return fmt.Errorf("server.api_prefix must start with '/', got: %s", cfg.Server.APIPrefix)
		}
		if strings.HasSuffix(cfg.Server.APIPrefix, "/") {
			return fmt.Errorf("server.api_prefix must not end with '/', got: %s", cfg.Server.APIPrefix)
		}
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}

	s := cfg.Sumfields
	switch s.DataUpdateMethod {
	case ViaTriggers:
	case ViaCron:
		if s.CronInterval <= 0 {
			return fmt.Errorf("sumfields.cron_interval must be positive when data_update_method is %s", ViaCron)
		}
	default:
		return fmt.Errorf("sumfields.data_update_method must be %s or %s, got: %s", ViaTriggers, ViaCron, s.DataUpdateMethod)
	}

	if _, err := params.ParseMonthDay(s.FiscalYearStart); err != nil {
		return fmt.Errorf("sumfields.fiscal_year_start: %w", err)
	}

	if s.SummaryTable == "" {
		return fmt.Errorf("sumfields.summary_table must not be empty")
	}

	return nil
}
