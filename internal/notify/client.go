package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Client performs a single form-encoded POST against the Pushover message
// API. It never retries; the caller owns the context deadline.
type Client struct {
	endpoint string
	token    string
	user     string
	http     *http.Client
}

// NewClient builds a client for the given endpoint and credentials. The
// underlying http.Client carries no timeout of its own; every Send is
// bounded by its context.
func NewClient(endpoint, appToken, userKey string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		token:    appToken,
		user:     userKey,
		http:     &http.Client{},
	}
}

// apiResponse is the provider's JSON body. status 1 means accepted;
// status 0 carries per-field errors.
type apiResponse struct {
	Status  int      `json:"status"`
	Errors  []string `json:"errors"`
	Request string   `json:"request"`
}

// Send delivers one message. A nil return means the provider accepted it
// (HTTP 200 and body status 1); anything else is a *Error with a Kind.
func (c *Client) Send(ctx context.Context, m Message) error {
	form := url.Values{
		"token":    {c.token},
		"user":     {c.user},
		"message":  {m.Body},
		"title":    {m.Title},
		"priority": {strconv.Itoa(m.Priority)},
	}
	if m.Sound != "" {
		form.Set("sound", m.Sound)
	}
	if m.URL != "" {
		form.Set("url", m.URL)
		if m.URLTitle != "" {
			form.Set("url_title", m.URLTitle)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &Error{Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return &Error{Kind: KindNetwork, Status: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var ar apiResponse
		if err := json.Unmarshal(body, &ar); err != nil {
			return &Error{Kind: KindBadResponse, Status: resp.StatusCode, Err: fmt.Errorf("decoding body: %w", err)}
		}
		if ar.Status != 1 {
			return &Error{Kind: KindAuth, Status: resp.StatusCode, Err: fmt.Errorf("provider rejected: %s", joinedErrors(ar))}
		}
		return nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Status: resp.StatusCode, Err: errors.New("provider throttled")}

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// Pushover answers 4xx for bad tokens, bad user keys and malformed
		// requests alike; all of them need operator action, not a retry.
		var ar apiResponse
		if err := json.Unmarshal(body, &ar); err == nil && len(ar.Errors) > 0 {
			return &Error{Kind: KindAuth, Status: resp.StatusCode, Err: fmt.Errorf("provider rejected: %s", joinedErrors(ar))}
		}
		return &Error{Kind: KindAuth, Status: resp.StatusCode, Err: errors.New("provider rejected request")}

	case resp.StatusCode >= 500:
		return &Error{Kind: KindNetwork, Status: resp.StatusCode, Err: errors.New("provider unavailable")}

	default:
		return &Error{Kind: KindBadResponse, Status: resp.StatusCode, Err: errors.New("unexpected status")}
	}
}

func joinedErrors(ar apiResponse) string {
	if len(ar.Errors) == 0 {
		return "no error detail"
	}
	return strings.Join(ar.Errors, "; ")
}
