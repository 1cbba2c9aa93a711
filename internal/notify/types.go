package notify

import (
	"fmt"
	"time"
)

// DefaultEndpoint is the Pushover message API.
const DefaultEndpoint = "https://api.pushover.net/1/messages.json"

// Kind classifies a delivery failure. Auth failures are the only kind that
// is pointless to retry: the token or user key is wrong and will stay wrong
// until an operator fixes it.
type Kind string

const (
	KindNetwork     Kind = "network"
	KindAuth        Kind = "auth"
	KindRateLimited Kind = "rate_limited"
	KindBadResponse Kind = "bad_response"
)

// Error wraps a delivery failure with its classification and, when the
// provider answered at all, the HTTP status.
type Error struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("notify: %s (http %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("notify: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether a later attempt could plausibly succeed.
func (e *Error) Retryable() bool { return e.Kind != KindAuth }

// Message is one notification, built fresh per trigger event. ID correlates
// queue/sent/failed log lines and bus events for a single dispatch.
type Message struct {
	ID       string
	Title    string
	Body     string
	URL      string
	URLTitle string
	Priority int
	Sound    string
}

// Config controls message content and the dispatch pipeline. Provider
// endpoint and credentials belong to the Client, not here.
type Config struct {
	Timeout   time.Duration // per-send bound; default 30s
	QueueSize int           // default 8
	RateEvery time.Duration // min spacing between provider calls; default 3s

	// Message template. Title and Format render every dispatched
	// notification; Format may contain one %s for the topic text.
	Title    string
	Format   string
	URL      string
	URLTitle string
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 8
	}
	if c.RateEvery <= 0 {
		c.RateEvery = 3 * time.Second
	}
	if c.Title == "" {
		c.Title = "IRC Topic Alert"
	}
	if c.Format == "" {
		c.Format = "Topic matched: %s"
	}
	return c
}

// Event is the payload of "notify.*" bus events.
type Event struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Kind  Kind      `json:"kind,omitempty"`
	At    time.Time `json:"at"`
	Error string    `json:"error,omitempty"`
}
