package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateCompletion(); err != nil {
		return err
	}

	if err := c.validateRun(); err != nil {
		return err
	}

	if err := c.validateLog(); err != nil {
		return err
	}

	if err := c.validateStatus(); err != nil {
		return err
	}

	return c.validateOTel()
}

// IsPostgres reports whether the database URL selects PostgreSQL.
func (c *Config) IsPostgres() bool {
	u, err := url.Parse(c.Database.URL.Value())
	return err == nil && (u.Scheme == "postgres" || u.Scheme == "postgresql")
}

func (c *Config) validateDatabase() error {
	raw := c.Database.URL.Value()
	if raw == "" {
		return fmt.Errorf("database.url is required")
	}

	dbURL, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("database.url is not a valid URL: %w", err)
	}

	switch dbURL.Scheme {
	case "postgres", "postgresql":
		if dbURL.Hostname() == "" {
			return fmt.Errorf("database.url must include a host")
		}

		if !isLoopbackHost(dbURL.Hostname()) && dbURL.Query().Get("sslmode") == "disable" {
			return fmt.Errorf("database.url sslmode=disable is not allowed for non-local host %q", dbURL.Hostname())
		}
	case "sqlite", "file":
		if strings.TrimPrefix(strings.TrimPrefix(raw, "sqlite://"), "file:") == "" {
			return fmt.Errorf("database.url must name a sqlite file")
		}
	default:
		return fmt.Errorf("database.url scheme must be postgres://, postgresql://, sqlite:// or file:")
	}

	if c.Database.MaxConns < 1 || c.Database.MaxConns > 200 {
		return fmt.Errorf("database.max_conns must be an integer between 1 and 200")
	}

	return nil
}

func (c *Config) validateCompletion() error {
	u, err := url.ParseRequestURI(c.Completion.URL)
	if err != nil {
		return fmt.Errorf("completion.url is not a valid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("completion.url scheme must be http or https")
	}

	if !isLoopbackHost(u.Hostname()) && !c.Completion.AllowRemote {
		return fmt.Errorf("completion.url must point to localhost (set completion.allow_remote=true for a remote server)")
	}

	if c.Completion.Timeout <= 0 {
		return fmt.Errorf("completion.timeout must be positive")
	}

	if c.Completion.PredictTokens < 1 {
		return fmt.Errorf("completion.predict_tokens must be at least 1")
	}

	if c.Completion.ContextTokens <= c.Completion.PredictTokens {
		return fmt.Errorf("completion.context_tokens must exceed completion.predict_tokens")
	}

	if c.Completion.RateLimit < 0 {
		return fmt.Errorf("completion.rate_limit must not be negative")
	}

	return nil
}

func (c *Config) validateRun() error {
	if c.Run.Workers < 1 || c.Run.Workers > 32 {
		return fmt.Errorf("run.workers must be an integer between 1 and 32")
	}

	if c.Run.Workers > 1 && !c.IsPostgres() {
		return fmt.Errorf("run.workers > 1 requires a postgres database")
	}

	if c.Run.Workers >= c.Database.MaxConns && c.IsPostgres() {
		return fmt.Errorf("database.max_conns must exceed run.workers")
	}

	switch c.Run.Strategy {
	case "shortest-path", "max-leaf":
	default:
		return fmt.Errorf("run.strategy must be 'shortest-path' or 'max-leaf', got %q", c.Run.Strategy)
	}

	return nil
}

func (c *Config) validateLog() error {
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be 'text' or 'json', got %q", c.Log.Format)
	}

	return nil
}

func (c *Config) validateStatus() error {
	if c.Status.Addr == "" {
		return nil
	}

	host, portStr, err := net.SplitHostPort(c.Status.Addr)
	if err != nil {
		return fmt.Errorf("status.addr must be host:port: %w", err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("status.addr port must be between 1 and 65535")
	}

	// Loopback for local runs, wildcard for containers where the boundary is external.
	switch host {
	case "127.0.0.1", "::1", "localhost", "0.0.0.0", "::":
	default:
		return fmt.Errorf("status.addr host must be a loopback address or 0.0.0.0/:: for containers (got %q)", host)
	}

	return nil
}

func (c *Config) validateOTel() error {
	if c.OTel.Endpoint == "" {
		return nil
	}

	u, err := url.ParseRequestURI(c.OTel.Endpoint)
	if err != nil || u.Host == "" {
		return fmt.Errorf("otel.endpoint must be an absolute URL, got %q", c.OTel.Endpoint)
	}

	return nil
}

func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
