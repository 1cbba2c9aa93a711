package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load builds the effective configuration: defaults, then the optional
// YAML file, then the environment. envFile, when non-empty, must exist;
// otherwise a ".env" in the working directory is picked up best-effort.
func Load(path, envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("loading env file: %w", err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		// Optional convenience for local runs; real deployments set the
		// environment through the supervisor.
		_ = godotenv.Load()
	}

	cfg := Default()
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto cfg. Parse failures are
// collected so every bad variable surfaces at once.
func applyEnv(cfg *Config) error {
	var errs []error

	envString("IRC_SERVER", &cfg.IRC.Server)
	envInt("IRC_PORT", &cfg.IRC.Port, &errs)
	envBool("IRC_TLS", &cfg.IRC.TLS, &errs)
	envString("IRC_NICKNAME", &cfg.IRC.Nickname)
	envString("IRC_REALNAME", &cfg.IRC.Realname)
	envString("IRC_CHANNEL", &cfg.IRC.Channel)
	envDuration("IRC_DIAL_TIMEOUT", &cfg.IRC.DialTimeout, &errs)
	envDuration("IRC_KEEPALIVE_TIMEOUT", &cfg.IRC.KeepaliveTimeout, &errs)
	envDuration("IRC_BACKOFF_MIN", &cfg.IRC.BackoffMin, &errs)
	envDuration("IRC_BACKOFF_MAX", &cfg.IRC.BackoffMax, &errs)
	envDuration("IRC_BACKOFF_STABLE_RESET", &cfg.IRC.BackoffStableReset, &errs)

	envString("TRIGGER_PHRASE", &cfg.Trigger.Phrase)
	envBool("TRIGGER_CASE_SENSITIVE", &cfg.Trigger.CaseSensitive, &errs)
	envDuration("NOTIFICATION_COOLDOWN", &cfg.Trigger.Cooldown, &errs)

	envString("PUSHOVER_APP_TOKEN", &cfg.Pushover.AppToken)
	envString("PUSHOVER_USER_KEY", &cfg.Pushover.UserKey)
	envString("PUSHOVER_ENDPOINT", &cfg.Pushover.Endpoint)

	envDuration("NOTIFY_TIMEOUT", &cfg.Notify.Timeout, &errs)
	envInt("NOTIFY_QUEUE_SIZE", &cfg.Notify.QueueSize, &errs)
	envString("NOTIFICATION_TITLE", &cfg.Notify.Title)
	envString("NOTIFICATION_MESSAGE", &cfg.Notify.Message)
	envString("NOTIFICATION_URL", &cfg.Notify.URL)
	envString("NOTIFICATION_URL_TITLE", &cfg.Notify.URLTitle)

	envString("HEALTH_ADDR", &cfg.Health.Addr)
	envString("LOG_LEVEL", &cfg.Log.Level)
	envString("LOG_FORMAT", &cfg.Log.Format)
	envString("LOG_FILE", &cfg.Log.File)

	return errors.Join(errs...)
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envInt(key string, dst *int, errs *[]error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return
	}
	*dst = n
}

func envBool(key string, dst *bool, errs *[]error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return
	}
	*dst = b
}

func envDuration(key string, dst *time.Duration, errs *[]error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	d, err := parseDuration(key, v)
	if err != nil {
		*errs = append(*errs, err)
		return
	}
	*dst = d
}

func parseDuration(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	// Bare numbers are a common operator mistake; read them as seconds
	// rather than rejecting.
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}
