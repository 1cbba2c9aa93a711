package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// fileConfig mirrors the YAML layout with pointer fields so an absent key
// leaves the default untouched while an explicit zero still applies.
// Durations are Go duration strings (e.g. "30s", "5m").
type fileConfig struct {
	IRC struct {
		Server           *string `yaml:"server"`
		Port             *int    `yaml:"port"`
		TLS              *bool   `yaml:"tls"`
		Nickname         *string `yaml:"nickname"`
		Realname         *string `yaml:"realname"`
		Channel          *string `yaml:"channel"`
		DialTimeout      *string `yaml:"dial_timeout"`
		KeepaliveTimeout *string `yaml:"keepalive_timeout"`
		Backoff          struct {
			Min         *string `yaml:"min"`
			Max         *string `yaml:"max"`
			StableReset *string `yaml:"stable_reset"`
		} `yaml:"backoff"`
	} `yaml:"irc"`
	Trigger struct {
		Phrase        *string `yaml:"phrase"`
		CaseSensitive *bool   `yaml:"case_sensitive"`
		Cooldown      *string `yaml:"cooldown"`
	} `yaml:"trigger"`
	Pushover struct {
		AppToken *string `yaml:"app_token"`
		UserKey  *string `yaml:"user_key"`
		Endpoint *string `yaml:"endpoint"`
	} `yaml:"pushover"`
	Notify struct {
		Timeout   *string `yaml:"timeout"`
		QueueSize *int    `yaml:"queue_size"`
		Title     *string `yaml:"title"`
		Message   *string `yaml:"message"`
		URL       *string `yaml:"url"`
		URLTitle  *string `yaml:"url_title"`
	} `yaml:"notify"`
	Health struct {
		Addr *string `yaml:"addr"`
	} `yaml:"health"`
	Log struct {
		Level  *string `yaml:"level"`
		Format *string `yaml:"format"`
		File   *string `yaml:"file"`
	} `yaml:"log"`
}

// applyFile overlays the YAML file at path onto cfg. Unknown keys are
// rejected so a typoed option fails startup instead of silently using the
// default.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var fc fileConfig
	if err := dec.Decode(&fc); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	setString(&cfg.IRC.Server, fc.IRC.Server)
	setInt(&cfg.IRC.Port, fc.IRC.Port)
	setBool(&cfg.IRC.TLS, fc.IRC.TLS)
	setString(&cfg.IRC.Nickname, fc.IRC.Nickname)
	setString(&cfg.IRC.Realname, fc.IRC.Realname)
	setString(&cfg.IRC.Channel, fc.IRC.Channel)

	setString(&cfg.Trigger.Phrase, fc.Trigger.Phrase)
	setBool(&cfg.Trigger.CaseSensitive, fc.Trigger.CaseSensitive)

	setString(&cfg.Pushover.AppToken, fc.Pushover.AppToken)
	setString(&cfg.Pushover.UserKey, fc.Pushover.UserKey)
	setString(&cfg.Pushover.Endpoint, fc.Pushover.Endpoint)

	setInt(&cfg.Notify.QueueSize, fc.Notify.QueueSize)
	setString(&cfg.Notify.Title, fc.Notify.Title)
	setString(&cfg.Notify.Message, fc.Notify.Message)
	setString(&cfg.Notify.URL, fc.Notify.URL)
	setString(&cfg.Notify.URLTitle, fc.Notify.URLTitle)

	setString(&cfg.Health.Addr, fc.Health.Addr)
	setString(&cfg.Log.Level, fc.Log.Level)
	setString(&cfg.Log.Format, fc.Log.Format)
	setString(&cfg.Log.File, fc.Log.File)

	durs := []struct {
		key string
		dst *time.Duration
		src *string
	}{
		{"irc.dial_timeout", &cfg.IRC.DialTimeout, fc.IRC.DialTimeout},
		{"irc.keepalive_timeout", &cfg.IRC.KeepaliveTimeout, fc.IRC.KeepaliveTimeout},
		{"irc.backoff.min", &cfg.IRC.BackoffMin, fc.IRC.Backoff.Min},
		{"irc.backoff.max", &cfg.IRC.BackoffMax, fc.IRC.Backoff.Max},
		{"irc.backoff.stable_reset", &cfg.IRC.BackoffStableReset, fc.IRC.Backoff.StableReset},
		{"trigger.cooldown", &cfg.Trigger.Cooldown, fc.Trigger.Cooldown},
		{"notify.timeout", &cfg.Notify.Timeout, fc.Notify.Timeout},
	}
	for _, d := range durs {
		if d.src == nil {
			continue
		}
		v, err := parseDuration(d.key, *d.src)
		if err != nil {
			return err
		}
		*d.dst = v
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
