// Package notify delivers push notifications through Pushover.
//
// It has two layers. Client performs a single bounded HTTP POST against the
// provider and classifies failures (network, auth, rate limit, bad response)
// so callers can log and alert on them distinctly. Service wraps a Client in
// a bounded queue with one delivery worker and a provider-side rate limiter,
// so a slow or stalled provider never blocks the IRC read loop: enqueueing
// is non-blocking and a full queue drops the notification instead of
// waiting.
//
// Neither layer retries. The cooldown gate upstream already spaces dispatch
// attempts, and retrying an auth rejection would never succeed.
package notify
