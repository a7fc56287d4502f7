// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"route-proxy-go/internal/router"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/route-proxy/config.toml",
	"configs/config.toml",
}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config   string `kong:"short='c',help='Path to TOML config file. Created with defaults if it does not exist.',env='CONFIG_PATH'"`
	Host     string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port     int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	LogLevel string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	TLS      *TLSConfig     `toml:"tls"`
	Proxy    ProxyConfig    `toml:"proxy"`
	Upstream UpstreamConfig `toml:"upstream"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (8080); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// TLSConfig points at the PEM certificate and private key used to serve TLS.
// When the [tls] table is absent the proxy serves plain HTTP.
type TLSConfig struct {
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`
}

// ProxyConfig holds the routing table and proxy response settings.
type ProxyConfig struct {
	// ErrorServerHeader is written into the Server header of responses the
	// proxy synthesizes itself (404 no route, 502 upstream failure).
	ErrorServerHeader string        `toml:"error_server_header"`
	Routes            []RouteConfig `toml:"routes"`
}

// RouteConfig is one routing rule as written in the config file.
// Order in the file is significant: earlier routes win ties.
type RouteConfig struct {
	Host            string            `toml:"host"`
	PathPrefix      string            `toml:"path_prefix"`
	Default         bool              `toml:"default"`
	Upstream        string            `toml:"upstream"`
	StripPathPrefix bool              `toml:"strip_path_prefix"`
	ResponseHeaders map[string]string `toml:"response_headers"`
}

// UpstreamConfig holds connection settings shared by all upstream calls.
type UpstreamConfig struct {
	TimeoutSeconds  int `toml:"timeout_seconds"`
	IdleConnections int `toml:"idle_connections"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// When an explicit path is given (via --config or CONFIG_PATH) and the file
// does not exist, a default config is written there first. When no explicit
// path is given, /etc/route-proxy/config.toml then configs/config.toml are
// searched.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
		if path == "" {
			return nil, fmt.Errorf("config: no config file found (searched %v)", configSearchPaths)
		}
	} else if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefault(path); err != nil {
			return nil, fmt.Errorf("config: create default %s: %w", path, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.filePath = path
	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// Reload re-reads the config from the same file this Config was loaded from,
// with full validation. CLI overrides are not reapplied: reload only affects
// routing, and the CLI carries no routing flags.
func (c *Config) Reload() (*Config, error) {
	return Load(&CLI{Config: c.filePath})
}

// Path returns the config file this Config was loaded from.
func (c *Config) Path() string {
	return c.filePath
}

// RouterState builds the immutable routing snapshot state from the config.
func (c *Config) RouterState() *router.State {
	routes := make([]router.Route, 0, len(c.Proxy.Routes))
	for _, rc := range c.Proxy.Routes {
		routes = append(routes, router.Route{
			Host:            rc.Host,
			PathPrefix:      rc.PathPrefix,
			Default:         rc.Default,
			Upstream:        rc.Upstream,
			StripPathPrefix: rc.StripPathPrefix,
			ResponseHeaders: rc.ResponseHeaders,
		})
	}
	return &router.State{
		Table:             router.NewTable(routes),
		ErrorServerHeader: c.Proxy.ErrorServerHeader,
		LoadedAt:          time.Now(),
	}
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	if err := c.validateRoutes(); err != nil {
		return err
	}

	// TLS files must exist before serving begins.
	if c.TLS != nil {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("tls.cert_file and tls.key_file are both required when [tls] is set")
		}
		if _, err := os.Stat(c.TLS.CertFile); err != nil {
			return fmt.Errorf("tls.cert_file: %w", err)
		}
		if _, err := os.Stat(c.TLS.KeyFile); err != nil {
			return fmt.Errorf("tls.key_file: %w", err)
		}
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/healthz", "/proxy/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// validateRoutes checks every route entry and the default-route invariant:
// at most one default per distinct host, and at most one host-less default.
func (c *Config) validateRoutes() error {
	defaultsByHost := make(map[string]int)
	for i, rc := range c.Proxy.Routes {
		if rc.Upstream == "" {
			return fmt.Errorf("proxy.routes[%d]: upstream is required", i)
		}
		u, err := url.Parse(rc.Upstream)
		if err != nil {
			return fmt.Errorf("proxy.routes[%d]: upstream is not a valid URL: %w", i, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("proxy.routes[%d]: upstream must include scheme and host; got %q", i, rc.Upstream)
		}
		if rc.PathPrefix != "" && rc.PathPrefix[0] != '/' {
			return fmt.Errorf("proxy.routes[%d]: path_prefix must start with '/'; got %q", i, rc.PathPrefix)
		}
		if rc.Default {
			if j, dup := defaultsByHost[rc.Host]; dup {
				if rc.Host == "" {
					return fmt.Errorf("proxy.routes[%d]: duplicate default route (routes[%d] is already the default)", i, j)
				}
				return fmt.Errorf("proxy.routes[%d]: duplicate default route for host %q (routes[%d] is already its default)", i, rc.Host, j)
			}
			defaultsByHost[rc.Host] = i
		}
	}
	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key. Setting port=0 in
// the config file therefore results in the default port (8080).
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 120
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// defaultConfig is the config written when an explicit path does not exist yet.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Proxy: ProxyConfig{
			Routes: []RouteConfig{
				{PathPrefix: "/foo", Upstream: "http://foo.example.com"},
			},
		},
	}
}

// writeDefault serializes the default config to path, creating parent
// directories as needed.
func writeDefault(path string) error {
	data, err := toml.Marshal(defaultConfig())
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o600)
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
