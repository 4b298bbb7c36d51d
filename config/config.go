// Package config loads service settings from config.toml, an optional
// config.<SERVICE_ENV>.toml overlay and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvServiceEnv = "SERVICE_ENV"
	EnvServerAddr = "SERVER_ADDR"
	EnvDebug      = "DEBUG"

	// The database variables keep the names of the Supabase connection settings.
	EnvDBUser     = "user"
	EnvDBPassword = "password"
	EnvDBHost     = "host"
	EnvDBPort     = "port"
	EnvDBName     = "dbname"
	EnvDBSSLMode  = "sslmode"

	EnvJWTSecret   = "SUPABASE_JWT_SECRET"
	EnvCORSOrigins = "CORS_ORIGINS"

	EnvDeleteDelay        = "EDITOR_DELETE_DELAY"
	EnvCollapseDelay      = "EDITOR_COLLAPSE_DELAY"
	EnvHoverCollapseDelay = "EDITOR_HOVER_COLLAPSE_DELAY"
	EnvSaveTimeout        = "EDITOR_SAVE_TIMEOUT"
	EnvCollapseComments   = "EDITOR_COLLAPSE_COMMENTS"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Auth     AuthConfig     `toml:"auth"`
	CORS     CORSConfig     `toml:"cors"`
	Editor   EditorConfig   `toml:"editor"`
	Debug    bool           `toml:"debug"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type DatabaseConfig struct {
	User     string `toml:"user"`
	Password string `toml:"password"`
	Host     string `toml:"host"`
	Port     string `toml:"port"`
	Name     string `toml:"name"`
	SSLMode  string `toml:"sslmode"`
}

// DSN is the lib/pq connection URL.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
}

type CORSConfig struct {
	Origins        []string `toml:"origins"`
	AllowedMethods []string `toml:"allowed_methods"`
	AllowedHeaders []string `toml:"allowed_headers"`
}

// EditorConfig holds the comment debounce delays as duration strings.
type EditorConfig struct {
	DeleteDelay        string `toml:"delete_delay"`
	CollapseDelay      string `toml:"collapse_delay"`
	HoverCollapseDelay string `toml:"hover_collapse_delay"`
	SaveTimeout        string `toml:"save_timeout"`
	CollapseComments   bool   `toml:"collapse_comments"`
}

func (e EditorConfig) DeleteDelayDuration() time.Duration        { return duration(e.DeleteDelay) }
func (e EditorConfig) CollapseDelayDuration() time.Duration      { return duration(e.CollapseDelay) }
func (e EditorConfig) HoverCollapseDelayDuration() time.Duration { return duration(e.HoverCollapseDelay) }
func (e EditorConfig) SaveTimeoutDuration() time.Duration        { return duration(e.SaveTimeout) }

func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// Load reads the configuration files in dir and finalizes the result. A
// missing base file is not an error; the environment alone may configure the service.
func Load(dir string) (*Config, error) {
	cfg, err := load(filepath.Join(dir, BaseConfigFile))
	if err != nil {
		return nil, err
	}
	if env := os.Getenv(EnvServiceEnv); env != "" {
		overlay, err := load(filepath.Join(dir, fmt.Sprintf(OverlayConfigPattern, env)))
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", env, err)
		}
		cfg.Merge(overlay)
	}
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize applies defaults and environment overrides, then validates.
func (c *Config) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge copies every non-zero value of overlay into c.
func (c *Config) Merge(o *Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Server.Addr, o.Server.Addr)
	set(&c.Database.User, o.Database.User)
	set(&c.Database.Password, o.Database.Password)
	set(&c.Database.Host, o.Database.Host)
	set(&c.Database.Port, o.Database.Port)
	set(&c.Database.Name, o.Database.Name)
	set(&c.Database.SSLMode, o.Database.SSLMode)
	set(&c.Auth.JWTSecret, o.Auth.JWTSecret)
	set(&c.Editor.DeleteDelay, o.Editor.DeleteDelay)
	set(&c.Editor.CollapseDelay, o.Editor.CollapseDelay)
	set(&c.Editor.HoverCollapseDelay, o.Editor.HoverCollapseDelay)
	set(&c.Editor.SaveTimeout, o.Editor.SaveTimeout)
	if o.Editor.CollapseComments {
		c.Editor.CollapseComments = true
	}
	if o.Debug {
		c.Debug = true
	}
	if o.CORS.Origins != nil {
		c.CORS.Origins = o.CORS.Origins
	}
	if o.CORS.AllowedMethods != nil {
		c.CORS.AllowedMethods = o.CORS.AllowedMethods
	}
	if o.CORS.AllowedHeaders != nil {
		c.CORS.AllowedHeaders = o.CORS.AllowedHeaders
	}
}

func (c *Config) loadDefaults() {
	defaults := []struct {
		dst *string
		v   string
	}{
		{&c.Server.Addr, ":8080"},
		{&c.Database.Port, "5432"},
		{&c.Database.SSLMode, "require"},
		{&c.Editor.DeleteDelay, "400ms"},
		{&c.Editor.CollapseDelay, "800ms"},
		{&c.Editor.HoverCollapseDelay, "400ms"},
		{&c.Editor.SaveTimeout, "30s"},
	}
	for _, d := range defaults {
		if *d.dst == "" {
			*d.dst = d.v
		}
	}
	if len(c.CORS.AllowedMethods) == 0 {
		c.CORS.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(c.CORS.AllowedHeaders) == 0 {
		c.CORS.AllowedHeaders = []string{"Content-Type", "Authorization"}
	}
}

func (c *Config) loadEnv() {
	env := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	env(&c.Server.Addr, EnvServerAddr)
	env(&c.Database.User, EnvDBUser)
	env(&c.Database.Password, EnvDBPassword)
	env(&c.Database.Host, EnvDBHost)
	env(&c.Database.Port, EnvDBPort)
	env(&c.Database.Name, EnvDBName)
	env(&c.Database.SSLMode, EnvDBSSLMode)
	env(&c.Auth.JWTSecret, EnvJWTSecret)
	env(&c.Editor.DeleteDelay, EnvDeleteDelay)
	env(&c.Editor.CollapseDelay, EnvCollapseDelay)
	env(&c.Editor.HoverCollapseDelay, EnvHoverCollapseDelay)
	env(&c.Editor.SaveTimeout, EnvSaveTimeout)

	if v := os.Getenv(EnvCollapseComments); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Editor.CollapseComments = b
		}
	}
	if v := os.Getenv(EnvDebug); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Debug = b
		}
	}
	if v := os.Getenv(EnvCORSOrigins); v != "" {
		c.CORS.Origins = nil
		for _, origin := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				c.CORS.Origins = append(c.CORS.Origins, trimmed)
			}
		}
	}
}

func (c *Config) validate() error {
	for name, v := range map[string]string{
		"delete_delay":         c.Editor.DeleteDelay,
		"collapse_delay":       c.Editor.CollapseDelay,
		"hover_collapse_delay": c.Editor.HoverCollapseDelay,
		"save_timeout":         c.Editor.SaveTimeout,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("editor: invalid %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("editor: %s must be positive", name)
		}
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
