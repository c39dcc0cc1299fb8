package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/simp-lee/crmdesk/internal/collection"
)

// Environment prefixes for the two binaries.
const (
	EnvPrefix     = "APP__"
	StubEnvPrefix = "CRMSTUB__"
)

// Config is the dashboard backend configuration.
type Config struct {
	Server ServerConfig `koanf:"server"`
	Log    LogConfig    `koanf:"log"`
	CRM    CRMConfig    `koanf:"crm"`
	Views  ViewsConfig  `koanf:"views"`
}

// StubConfig is the configuration of the local CRM stand-in.
type StubConfig struct {
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	Database DatabaseConfig `koanf:"database"`
	Stub     StubSettings   `koanf:"stub"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string     `koanf:"host"`
	Port            int        `koanf:"port"`
	Mode            string     `koanf:"mode"`
	ShutdownTimeout string     `koanf:"shutdown_timeout"`
	CORS            CORSConfig `koanf:"cors"`
}

// CORSConfig holds CORS middleware settings.
type CORSConfig struct {
	AllowOrigins     []string `koanf:"allow_origins"`
	AllowMethods     []string `koanf:"allow_methods"`
	AllowHeaders     []string `koanf:"allow_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           string   `koanf:"max_age"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `koanf:"driver"`
	SQLite   SQLiteConfig   `koanf:"sqlite"`
	Postgres PostgresConfig `koanf:"postgres"`
	Pool     PoolConfig     `koanf:"pool"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	DBName   string `koanf:"dbname"`
	SSLMode  string `koanf:"sslmode"`
}

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxIdleConns    int    `koanf:"max_idle_conns"`
	MaxOpenConns    int    `koanf:"max_open_conns"`
	ConnMaxLifetime string `koanf:"conn_max_lifetime"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level           string `koanf:"level"`
	Format          string `koanf:"format"`
	Color           *bool  `koanf:"color"`
	FilePath        string `koanf:"file_path"`
	MaxSizeMB       int    `koanf:"max_size_mb"`
	RetentionDays   int    `koanf:"retention_days"`
	MaxBackups      int    `koanf:"max_backups"`
	CompressRotated *bool  `koanf:"compress_rotated"`
}

// CRMConfig holds the CRM REST client settings.
type CRMConfig struct {
	BaseURL    string `koanf:"base_url"`
	APIKey     string `koanf:"api_key"`
	UserAgent  string `koanf:"user_agent"`
	Timeout    string `koanf:"timeout"`
	MaxRetries int    `koanf:"max_retries"`
	RetryBase  string `koanf:"retry_base"`
}

// ViewsConfig holds list-view session settings and the per-entity view
// definitions.
type ViewsConfig struct {
	IdleTimeout   string             `koanf:"idle_timeout"`
	SweepInterval string             `koanf:"sweep_interval"`
	MaxSessions   int                `koanf:"max_sessions"`
	Entities      []ViewEntityConfig `koanf:"entities"`
}

// ViewEntityConfig defines the list view of one CRM entity.
type ViewEntityConfig struct {
	Name              string          `koanf:"name"`
	DefaultSort       SortConfig      `koanf:"default_sort"`
	PageSize          int             `koanf:"page_size"`
	MaxPageSize       int             `koanf:"max_page_size"`
	SearchDebounce    string          `koanf:"search_debounce"`
	ViewModes         []string        `koanf:"view_modes"`
	DefaultViewMode   string          `koanf:"default_view_mode"`
	Select            []string        `koanf:"select"`
	ReadOnly          bool            `koanf:"read_only"`
	ResetPageOnFilter bool            `koanf:"reset_page_on_filter"`
	FilterSources     map[string]bool `koanf:"filter_sources"`
}

// SortConfig is a sort key and direction.
type SortConfig struct {
	Key       string `koanf:"key"`
	Direction string `koanf:"direction"`
}

// StubSettings holds CRM stub behavior.
type StubSettings struct {
	APIKey   string   `koanf:"api_key"`
	Seed     bool     `koanf:"seed"`
	Entities []string `koanf:"entities"`
}

// View defaults applied by Validate.
const (
	DefaultPageSize       = 20
	DefaultMaxPageSize    = 200
	DefaultSearchDebounce = "400ms"
	DefaultIdleTimeout    = "30m"
	DefaultSweepInterval  = "1m"
	DefaultMaxSessions    = 1000
)

// DefaultViewModes is the allow-list used when an entity configures none.
var DefaultViewModes = []string{"table", "grid", "map"}

// Load reads the dashboard configuration from a YAML file and overlays
// environment variables. Environment variables use the prefix "APP__" and
// double-underscore as the hierarchy separator. Single underscores are
// preserved as part of the key name. For example, APP__SERVER__PORT=9090
// overrides server.port and APP__CRM__API_KEY overrides crm.api_key.
func Load(configPath string) (*Config, error) {
	var cfg Config
	if err := load(configPath, EnvPrefix, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadStub reads the CRM stub configuration. It works like Load with the
// prefix "CRMSTUB__".
func LoadStub(configPath string) (*StubConfig, error) {
	var cfg StubConfig
	if err := load(configPath, StubEnvPrefix, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func load(configPath, prefix string, out any) error {
	k := koanf.New(".")

	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}

	// APP__SERVER__PORT -> server.port
	// APP__VIEWS__IDLE_TIMEOUT -> views.idle_timeout
	if err := k.Load(env.Provider(prefix, ".", func(s string) string {
		key := strings.TrimPrefix(s, prefix)
		key = strings.ToLower(key)
		key = strings.ReplaceAll(key, "__", ".")
		return key
	}), nil); err != nil {
		return fmt.Errorf("failed to load env variables: %w", err)
	}

	if err := k.Unmarshal("", out); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

// Validate checks cross-field constraints and supported values, and applies
// defaults.
func (c *Config) Validate() error {
	if err := c.Server.validate(); err != nil {
		return err
	}
	if err := c.Log.validate(); err != nil {
		return err
	}
	if err := c.CRM.validate(c.Server.Mode); err != nil {
		return err
	}
	return c.Views.validate()
}

// Validate checks the stub configuration.
func (c *StubConfig) Validate() error {
	if err := c.Server.validate(); err != nil {
		return err
	}
	if err := c.Log.validate(); err != nil {
		return err
	}
	if err := c.Database.validate(c.Server.Mode); err != nil {
		return err
	}

	c.Stub.APIKey = strings.TrimSpace(c.Stub.APIKey)
	if c.Stub.APIKey == "" && c.Server.Mode == gin.ReleaseMode {
		return fmt.Errorf("stub.api_key is required in release mode")
	}
	entities, err := normalizeNames("stub.entities", c.Stub.Entities)
	if err != nil {
		return err
	}
	if len(entities) == 0 {
		return fmt.Errorf("stub.entities requires at least one entity")
	}
	c.Stub.Entities = entities
	return nil
}

func (s *ServerConfig) validate() error {
	mode := strings.TrimSpace(s.Mode)
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		s.Mode = mode
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", s.Mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}

	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", s.Port)
	}

	host := strings.TrimSpace(s.Host)
	if host == "" {
		return fmt.Errorf("server.host is required")
	}
	s.Host = host

	// Whitespace-only means unset.
	s.ShutdownTimeout = strings.TrimSpace(s.ShutdownTimeout)
	s.CORS.MaxAge = strings.TrimSpace(s.CORS.MaxAge)

	if err := checkPositiveDuration("server.shutdown_timeout", s.ShutdownTimeout); err != nil {
		return err
	}
	if ma := s.CORS.MaxAge; ma != "" {
		d, err := time.ParseDuration(ma)
		if err != nil {
			return fmt.Errorf("invalid server.cors.max_age %q: must be a valid duration (e.g. \"24h\", \"3600s\"): %w", s.CORS.MaxAge, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid server.cors.max_age %q: must be greater than 0", s.CORS.MaxAge)
		}
	}
	return nil
}

// ShutdownTimeoutDuration returns the graceful shutdown deadline, 5s when unset.
func (s ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return durationOr(s.ShutdownTimeout, 5*time.Second)
}

func (l *LogConfig) validate() error {
	level := strings.ToLower(strings.TrimSpace(l.Level))
	switch level {
	case "debug", "info", "warn", "error":
		l.Level = level
	default:
		return fmt.Errorf("invalid log.level %q: must be one of %q, %q, %q, %q", l.Level, "debug", "info", "warn", "error")
	}

	format := strings.ToLower(strings.TrimSpace(l.Format))
	switch format {
	case "text", "json":
		l.Format = format
	default:
		return fmt.Errorf("invalid log.format %q: must be one of %q, %q", l.Format, "text", "json")
	}
	return nil
}

func (d *DatabaseConfig) validate(serverMode string) error {
	switch d.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database.driver %q: must be one of %q, %q", d.Driver, "sqlite", "postgres")
	}

	if d.Driver == "sqlite" {
		sqlitePath := strings.TrimSpace(d.SQLite.Path)
		if sqlitePath == "" {
			return fmt.Errorf("database.sqlite.path is required when driver is sqlite")
		}
		d.SQLite.Path = sqlitePath
	}

	if d.Driver == "postgres" {
		host := strings.TrimSpace(d.Postgres.Host)
		if host == "" {
			return fmt.Errorf("database.postgres.host is required when driver is postgres")
		}
		if d.Postgres.Port < 1 || d.Postgres.Port > 65535 {
			return fmt.Errorf("invalid database.postgres.port %d: must be between 1 and 65535", d.Postgres.Port)
		}
		user := strings.TrimSpace(d.Postgres.User)
		if user == "" {
			return fmt.Errorf("database.postgres.user is required when driver is postgres")
		}
		dbName := strings.TrimSpace(d.Postgres.DBName)
		if dbName == "" {
			return fmt.Errorf("database.postgres.dbname is required when driver is postgres")
		}
		sslMode := strings.TrimSpace(d.Postgres.SSLMode)
		switch sslMode {
		case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
		default:
			return fmt.Errorf("invalid database.postgres.sslmode %q: must be one of %q, %q, %q, %q, %q, %q", d.Postgres.SSLMode, "disable", "allow", "prefer", "require", "verify-ca", "verify-full")
		}
		if serverMode == gin.ReleaseMode {
			switch sslMode {
			case "require", "verify-ca", "verify-full":
			default:
				return fmt.Errorf("invalid database.postgres.sslmode %q for server.mode %q: must be one of %q, %q, %q", d.Postgres.SSLMode, gin.ReleaseMode, "require", "verify-ca", "verify-full")
			}
		}

		d.Postgres.Host = host
		d.Postgres.User = user
		d.Postgres.DBName = dbName
		d.Postgres.SSLMode = sslMode
	}

	d.Pool.ConnMaxLifetime = strings.TrimSpace(d.Pool.ConnMaxLifetime)
	return checkPositiveDuration("database.pool.conn_max_lifetime", d.Pool.ConnMaxLifetime)
}

func (c *CRMConfig) validate(serverMode string) error {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return fmt.Errorf("crm.base_url is required")
	}
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("invalid crm.base_url %q: %w", c.BaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid crm.base_url %q: must be an absolute http(s) url", c.BaseURL)
	}
	c.BaseURL = base

	c.APIKey = strings.TrimSpace(c.APIKey)
	if c.APIKey == "" && serverMode == gin.ReleaseMode {
		return fmt.Errorf("crm.api_key is required in release mode")
	}
	c.UserAgent = strings.TrimSpace(c.UserAgent)

	if c.MaxRetries < 0 {
		return fmt.Errorf("invalid crm.max_retries %d: must not be negative", c.MaxRetries)
	}

	c.Timeout = strings.TrimSpace(c.Timeout)
	c.RetryBase = strings.TrimSpace(c.RetryBase)
	if err := checkPositiveDuration("crm.timeout", c.Timeout); err != nil {
		return err
	}
	return checkPositiveDuration("crm.retry_base", c.RetryBase)
}

// TimeoutDuration returns the per-request timeout, zero when unset.
func (c CRMConfig) TimeoutDuration() time.Duration {
	return durationOr(c.Timeout, 0)
}

// RetryBaseDuration returns the first retry delay, zero when unset.
func (c CRMConfig) RetryBaseDuration() time.Duration {
	return durationOr(c.RetryBase, 0)
}

func (v *ViewsConfig) validate() error {
	v.IdleTimeout = strings.TrimSpace(v.IdleTimeout)
	if v.IdleTimeout == "" {
		v.IdleTimeout = DefaultIdleTimeout
	}
	v.SweepInterval = strings.TrimSpace(v.SweepInterval)
	if v.SweepInterval == "" {
		v.SweepInterval = DefaultSweepInterval
	}
	if err := checkPositiveDuration("views.idle_timeout", v.IdleTimeout); err != nil {
		return err
	}
	if err := checkPositiveDuration("views.sweep_interval", v.SweepInterval); err != nil {
		return err
	}
	if v.MaxSessions < 0 {
		return fmt.Errorf("invalid views.max_sessions %d: must not be negative", v.MaxSessions)
	}
	if v.MaxSessions == 0 {
		v.MaxSessions = DefaultMaxSessions
	}

	if len(v.Entities) == 0 {
		return fmt.Errorf("views.entities requires at least one entity")
	}
	seen := make(map[string]struct{}, len(v.Entities))
	for i := range v.Entities {
		e := &v.Entities[i]
		if err := e.validate(i); err != nil {
			return err
		}
		if _, dup := seen[e.Name]; dup {
			return fmt.Errorf("views.entities[%d]: duplicate entity %q", i, e.Name)
		}
		seen[e.Name] = struct{}{}
	}
	return nil
}

// IdleTimeoutDuration returns how long an untouched view session lives.
func (v ViewsConfig) IdleTimeoutDuration() time.Duration {
	return durationOr(v.IdleTimeout, 30*time.Minute)
}

// SweepIntervalDuration returns how often idle sessions are collected.
func (v ViewsConfig) SweepIntervalDuration() time.Duration {
	return durationOr(v.SweepInterval, time.Minute)
}

// Entity returns the view definition for name.
func (v ViewsConfig) Entity(name string) (ViewEntityConfig, bool) {
	for _, e := range v.Entities {
		if e.Name == name {
			return e, true
		}
	}
	return ViewEntityConfig{}, false
}

func (e *ViewEntityConfig) validate(idx int) error {
	prefix := fmt.Sprintf("views.entities[%d]", idx)

	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if e.PageSize == 0 {
		e.PageSize = DefaultPageSize
	}
	if e.MaxPageSize == 0 {
		e.MaxPageSize = DefaultMaxPageSize
	}
	e.SearchDebounce = strings.TrimSpace(e.SearchDebounce)
	if e.SearchDebounce == "" {
		e.SearchDebounce = DefaultSearchDebounce
	}
	if _, err := time.ParseDuration(e.SearchDebounce); err != nil {
		return fmt.Errorf("invalid %s.search_debounce %q: %w", prefix, e.SearchDebounce, err)
	}
	if len(e.ViewModes) == 0 {
		e.ViewModes = append([]string(nil), DefaultViewModes...)
	}

	dir := strings.TrimSpace(e.DefaultSort.Direction)
	if dir == "" {
		dir = string(collection.Asc)
	}
	parsed, ok := collection.ParseDirection(dir)
	if !ok {
		return fmt.Errorf("invalid %s.default_sort.direction %q: must be %q or %q", prefix, e.DefaultSort.Direction, collection.Asc, collection.Desc)
	}
	e.DefaultSort.Direction = string(parsed)
	e.DefaultSort.Key = strings.TrimSpace(e.DefaultSort.Key)

	if err := e.Collection().Validate(); err != nil {
		return fmt.Errorf("invalid %s: %w", prefix, err)
	}
	return nil
}

// Collection converts a validated entity view definition into a controller
// configuration.
func (e ViewEntityConfig) Collection() collection.Config {
	debounce, _ := time.ParseDuration(e.SearchDebounce)
	dir, _ := collection.ParseDirection(e.DefaultSort.Direction)
	return collection.Config{
		Entity:            e.Name,
		DefaultSort:       collection.Sort{Key: e.DefaultSort.Key, Direction: dir},
		DefaultPageSize:   e.PageSize,
		MaxPageSize:       e.MaxPageSize,
		SearchDebounce:    debounce,
		ViewModes:         append([]string(nil), e.ViewModes...),
		DefaultViewMode:   e.DefaultViewMode,
		Select:            append([]string(nil), e.Select...),
		ResetPageOnFilter: e.ResetPageOnFilter,
		FilterResetPage:   e.FilterSources,
	}
}

func normalizeNames(field string, names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for i, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			return nil, fmt.Errorf("%s[%d] cannot be empty", field, i)
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}

// checkPositiveDuration validates an optional duration field.
func checkPositiveDuration(field, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", field, v, err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid %s %q: must be greater than 0", field, v)
	}
	return nil
}

func durationOr(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
