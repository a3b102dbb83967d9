package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Initialize loads, expands, validates and returns a ready-to-use
// configuration. This is the primary entry point.
//
// Steps performed:
//  1. Read the YAML file
//  2. Expand environment variables ({{.VAR}} syntax)
//  3. Parse YAML into the Config struct
//  4. Validate every section
func Initialize(path string) (*Config, error) {
	log := slog.With("config", path)
	log.Info("Initializing configuration")

	cfg, err := load(path)
	if err != nil {
		return nil, NewLoadError(path, err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized",
		"api_servers", len(cfg.Fetch.Server.API),
		"sources", len(cfg.Fetch.SourceNames()),
		"scheduled", len(cfg.Fetch.Schedule),
		"tags", len(cfg.Tags))

	return cfg, nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	data = ExpandEnv(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return &cfg, nil
}

// cronParser accepts the standard five-field cron syntax used in
// fetch.schedule.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func validate(cfg *Config) error {
	if cfg.Mongo.ConnectionString == "" {
		return NewValidationError("mongo", "connection_string", ErrMissingRequiredField)
	}
	if cfg.Mongo.Database == "" {
		return NewValidationError("mongo", "database", ErrMissingRequiredField)
	}

	if cfg.Telegram.Token == "" {
		return NewValidationError("telegram", "token", ErrMissingRequiredField)
	}
	if cfg.Telegram.Recipient.Post == "" {
		return NewValidationError("telegram", "recipient.post", ErrMissingRequiredField)
	}
	if cfg.Telegram.WebhookURL != "" && cfg.Telegram.ListenAddr == "" {
		return NewValidationError("telegram", "listen_addr",
			fmt.Errorf("%w: required when webhook_url is set", ErrMissingRequiredField))
	}

	if cfg.Telegraph.AccessToken == "" {
		return NewValidationError("telegraph", "access_token", ErrMissingRequiredField)
	}
	if cfg.Telegraph.ShortName == "" {
		return NewValidationError("telegraph", "short_name", ErrMissingRequiredField)
	}

	seen := make(map[string]bool)
	for i, s := range cfg.Fetch.Server.API {
		field := fmt.Sprintf("server.api[%d]", i)
		if s.ID == "" {
			return NewValidationError("fetch", field+".id", ErrMissingRequiredField)
		}
		if s.URL == "" {
			return NewValidationError("fetch", field+".url", ErrMissingRequiredField)
		}
		if seen[s.ID] {
			return NewValidationError("fetch", field+".id",
				fmt.Errorf("%w: duplicate server id %q", ErrInvalidValue, s.ID))
		}
		seen[s.ID] = true
	}
	if len(cfg.Fetch.Server.API) == 0 && cfg.Fetch.Server.News == "" {
		return NewValidationError("fetch", "server",
			fmt.Errorf("%w: no upstream configured", ErrMissingRequiredField))
	}

	known := make(map[string]bool)
	for _, name := range cfg.Fetch.SourceNames() {
		known[name] = true
	}
	for name, exprs := range cfg.Fetch.Schedule {
		if !known[name] {
			return NewValidationError("fetch", "schedule",
				fmt.Errorf("%w: %q", ErrUnknownSource, name))
		}
		if len(exprs) == 0 {
			return NewValidationError("fetch", "schedule."+name,
				fmt.Errorf("%w: empty cron list", ErrInvalidValue))
		}
		for _, expr := range exprs {
			if _, err := cronParser.Parse(expr); err != nil {
				return NewValidationError("fetch", "schedule."+name,
					fmt.Errorf("%w: cron %q: %v", ErrInvalidValue, expr, err))
			}
		}
	}
	for name := range cfg.Fetch.Strategy.Overrides {
		if !known[name] {
			return NewValidationError("fetch", "strategy",
				fmt.Errorf("%w: %q", ErrUnknownSource, name))
		}
	}

	for tag, patterns := range cfg.Tags {
		for _, p := range patterns {
			if _, err := regexp.Compile(p); err != nil {
				return NewValidationError("tags", tag,
					fmt.Errorf("%w: pattern %q: %v", ErrInvalidValue, p, err))
			}
		}
	}

	return nil
}
