// Package config loads, expands, validates and exposes the newswatch
// configuration file.
package config

import (
	"fmt"
	"time"
)

// Config is the fully loaded and validated configuration.
type Config struct {
	// Tags maps a tag name to the regex patterns that assign it. A data
	// version gets every tag whose patterns match its title.
	Tags map[string][]string `yaml:"tags" json:"tags,omitempty"`

	Client    ClientConfig    `yaml:"client" json:"client,omitempty"`
	Mongo     MongoConfig     `yaml:"mongo" json:"mongo"`
	Telegram  TelegramConfig  `yaml:"telegram" json:"telegram"`
	Telegraph TelegraphConfig `yaml:"telegraph" json:"telegraph"`
	Fetch     FetchConfig     `yaml:"fetch" json:"fetch"`
}

// ClientConfig tunes outbound HTTP behavior.
type ClientConfig struct {
	UserAgent string `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
	// Proxy is an http(s)/socks5 URL; when empty the ALL_PROXY environment
	// variable is consulted.
	Proxy   string `yaml:"proxy,omitempty" json:"proxy,omitempty"`
	NoProxy string `yaml:"no_proxy,omitempty" json:"no_proxy,omitempty"`
	// TimeoutSec is the per-request timeout in seconds; 0 means 30.
	TimeoutSec int `yaml:"timeout_sec,omitempty" json:"timeout_sec,omitempty"`
}

// Timeout returns the per-request timeout with the default applied.
func (c ClientConfig) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// MongoConfig locates the persistent store.
type MongoConfig struct {
	ConnectionString string `yaml:"connection_string" json:"connection_string"`
	Database         string `yaml:"database" json:"database"`
}

// TelegramConfig configures the chat transport and the command listener.
type TelegramConfig struct {
	Token string `yaml:"token" json:"token"`
	// WebhookURL switches update delivery from long-polling to a webhook
	// served on ListenAddr.
	WebhookURL     string          `yaml:"webhook_url,omitempty" json:"webhook_url,omitempty"`
	ListenAddr     string          `yaml:"listen_addr,omitempty" json:"listen_addr,omitempty"`
	PollTimeoutSec int             `yaml:"poll_timeout_sec,omitempty" json:"poll_timeout_sec,omitempty"`
	Recipient      RecipientConfig `yaml:"recipient" json:"recipient"`
}

// RecipientConfig names the chats messages go to. Values are @channelnames
// or numeric chat ids.
type RecipientConfig struct {
	// Debug receives operational error reports from the scheduler.
	Debug string `yaml:"debug" json:"debug"`
	// Post receives announcement and news notifications.
	Post string `yaml:"post" json:"post"`
	// Cartoon receives cartoon episode notifications.
	Cartoon string `yaml:"cartoon" json:"cartoon"`
}

// TelegraphConfig configures the archive host account.
type TelegraphConfig struct {
	ShortName   string `yaml:"short_name" json:"short_name"`
	AccessToken string `yaml:"access_token" json:"access_token"`
	AuthorName  string `yaml:"author_name,omitempty" json:"author_name,omitempty"`
	AuthorURL   string `yaml:"author_url,omitempty" json:"author_url,omitempty"`
}

// APIServerConfig is one announce API server. ID distinguishes servers in
// persistence; Name is the human label used in messages.
type APIServerConfig struct {
	ID   string `yaml:"id" json:"id"`
	URL  string `yaml:"url" json:"url"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
}

// ServerConfig holds the upstream base URLs.
type ServerConfig struct {
	News string            `yaml:"news" json:"news"`
	API  []APIServerConfig `yaml:"api" json:"api"`
}

// FetchConfig drives the scheduler and the per-source pipelines.
type FetchConfig struct {
	Server ServerConfig `yaml:"server" json:"server"`
	// Schedule maps a source name to its cron expressions. Source names:
	// "announce-<server id>", "news", "cartoon".
	Schedule map[string][]string `yaml:"schedule" json:"schedule"`
	Strategy StrategyConfig      `yaml:"strategy" json:"strategy,omitempty"`
	// Silent lists title substrings that mark a notification silent.
	Silent []string `yaml:"silent,omitempty" json:"silent,omitempty"`
}

// SourceNames returns every source name derivable from the server config, in
// a stable order.
func (f FetchConfig) SourceNames() []string {
	names := make([]string, 0, len(f.Server.API)+2)
	for _, s := range f.Server.API {
		names = append(names, AnnounceSourceName(s.ID))
	}
	if f.Server.News != "" {
		names = append(names, SourceNameNews)
	}
	names = append(names, SourceNameCartoon)
	return names
}

// Well-known source names used as schedule and strategy keys.
const (
	SourceNameNews    = "news"
	SourceNameCartoon = "cartoon"
)

// AnnounceSourceName builds the source name for one announce API server.
func AnnounceSourceName(serverID string) string {
	return fmt.Sprintf("announce-%s", serverID)
}
