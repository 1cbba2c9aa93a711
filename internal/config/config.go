// Package config loads the process configuration from an optional YAML
// file, an optional .env file and the environment, in that precedence
// order (environment wins). Configuration is immutable after startup;
// validation failures are fatal before any connection is attempted.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	IRC      IRC      `yaml:"irc"`
	Trigger  Trigger  `yaml:"trigger"`
	Pushover Pushover `yaml:"pushover"`
	Notify   Notify   `yaml:"notify"`
	Health   Health   `yaml:"health"`
	Log      Log      `yaml:"log"`
}

// IRC is the connection parameter block, read-only to the session.
type IRC struct {
	Server   string `yaml:"server"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	Nickname string `yaml:"nickname"`
	Realname string `yaml:"realname"`
	Channel  string `yaml:"channel"`

	DialTimeout      time.Duration `yaml:"-"`
	KeepaliveTimeout time.Duration `yaml:"-"`

	BackoffMin         time.Duration `yaml:"-"`
	BackoffMax         time.Duration `yaml:"-"`
	BackoffStableReset time.Duration `yaml:"-"`
}

type Trigger struct {
	Phrase        string        `yaml:"phrase"`
	CaseSensitive bool          `yaml:"case_sensitive"`
	Cooldown      time.Duration `yaml:"-"`
}

type Pushover struct {
	AppToken string `yaml:"app_token"`
	UserKey  string `yaml:"user_key"`
	Endpoint string `yaml:"endpoint"`
}

type Notify struct {
	Timeout   time.Duration `yaml:"-"`
	QueueSize int           `yaml:"queue_size"`
	Title     string        `yaml:"title"`
	Message   string        `yaml:"message"`
	URL       string        `yaml:"url"`
	URLTitle  string        `yaml:"url_title"`
}

type Health struct {
	Addr string `yaml:"addr"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
	File   string `yaml:"file"`
}

// Default returns the configuration before any file or environment
// overlay.
func Default() Config {
	return Config{
		IRC: IRC{
			Port:               6697,
			TLS:                true,
			Nickname:           "topicwatch",
			Realname:           "Topic Watcher",
			DialTimeout:        15 * time.Second,
			KeepaliveTimeout:   5 * time.Minute,
			BackoffMin:         5 * time.Second,
			BackoffMax:         5 * time.Minute,
			BackoffStableReset: time.Minute,
		},
		Trigger: Trigger{
			CaseSensitive: true,
			Cooldown:      30 * time.Minute,
		},
		Notify: Notify{
			Timeout:   30 * time.Second,
			QueueSize: 8,
			Title:     "IRC Topic Alert",
			Message:   "Topic matched: %s",
		},
		Health: Health{Addr: ":8080"},
		Log:    Log{Level: "info", Format: "console"},
	}
}

// Validate collects every problem instead of stopping at the first, so an
// operator fixes one startup round, not five.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.IRC.Server) == "" {
		errs = append(errs, errors.New("irc.server is required"))
	}
	if c.IRC.Port <= 0 || c.IRC.Port > 65535 {
		errs = append(errs, fmt.Errorf("irc.port %d out of range", c.IRC.Port))
	}
	if strings.TrimSpace(c.IRC.Nickname) == "" {
		errs = append(errs, errors.New("irc.nickname is required"))
	}
	switch ch := strings.TrimSpace(c.IRC.Channel); {
	case ch == "":
		errs = append(errs, errors.New("irc.channel is required"))
	case !strings.HasPrefix(ch, "#") && !strings.HasPrefix(ch, "&"):
		errs = append(errs, fmt.Errorf("irc.channel %q must start with '#' or '&'", ch))
	}

	// An empty phrase would match every topic; that is a configuration
	// error, never a wildcard.
	if c.Trigger.Phrase == "" {
		errs = append(errs, errors.New("trigger.phrase must not be empty"))
	}
	if c.Trigger.Cooldown < 0 {
		errs = append(errs, errors.New("trigger.cooldown must be >= 0"))
	}

	if strings.TrimSpace(c.Pushover.AppToken) == "" {
		errs = append(errs, errors.New("pushover.app_token is required"))
	}
	if strings.TrimSpace(c.Pushover.UserKey) == "" {
		errs = append(errs, errors.New("pushover.user_key is required"))
	}

	if c.Notify.QueueSize <= 0 {
		errs = append(errs, errors.New("notify.queue_size must be > 0"))
	}

	switch strings.ToLower(strings.TrimSpace(c.Log.Format)) {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be \"console\" or \"json\"", c.Log.Format))
	}

	return errors.Join(errs...)
}
