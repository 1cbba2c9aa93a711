package irc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"ircwatch/internal/eventbus"
	"ircwatch/internal/trigger"
	logx "ircwatch/pkg/logx"
)

// Options is the immutable connection configuration for a Session.
type Options struct {
	Server   string
	Port     int
	TLS      bool
	Nickname string
	Realname string
	Channel  string

	DialTimeout      time.Duration // default 15s
	KeepaliveTimeout time.Duration // read deadline per wait; default 5m

	BackoffMin         time.Duration // default 5s
	BackoffMax         time.Duration // default 5m
	BackoffStableReset time.Duration // default 60s
}

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 15 * time.Second
	}
	if o.KeepaliveTimeout <= 0 {
		o.KeepaliveTimeout = 5 * time.Minute
	}
	if o.BackoffMin <= 0 {
		o.BackoffMin = 5 * time.Second
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 5 * time.Minute
	}
	if o.BackoffStableReset <= 0 {
		o.BackoffStableReset = time.Minute
	}
	return o
}

// Notifier receives topics that passed both the trigger and the cooldown
// checks. Implementations must not block the caller; queueing and delivery
// happen elsewhere.
type Notifier interface {
	TopicMatched(topic string) error
}

// Session owns the socket-level protocol state machine: connect, registration,
// join, topic tracking, keepalive and the disconnect/backoff/reconnect loop.
//
// The session is a read-only channel member. It sends NICK, USER, JOIN and
// PONG and never a channel message.
type Session struct {
	opts     Options
	matcher  *trigger.Matcher
	gate     *trigger.Gate
	notifier Notifier
	log      logx.Logger
	bus      eventbus.Bus

	// dial and now are injection points for tests.
	dial func(ctx context.Context) (net.Conn, error)
	now  func() time.Time

	snap atomic.Value // stores Snapshot

	// Owned by the run loop; exported only through the snapshot.
	state       State
	since       time.Time
	topic       string
	topicSetAt  time.Time
	connects    uint64
	lastErrKind ErrorKind
	lastErr     string
}

func New(opts Options, matcher *trigger.Matcher, gate *trigger.Gate, notifier Notifier, log logx.Logger, bus eventbus.Bus) (*Session, error) {
	if opts.Server == "" {
		return nil, errors.New("irc: server is empty")
	}
	if opts.Port <= 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("irc: invalid port %d", opts.Port)
	}
	if opts.Nickname == "" {
		return nil, errors.New("irc: nickname is empty")
	}
	if opts.Channel == "" {
		return nil, errors.New("irc: channel is empty")
	}
	if matcher == nil {
		return nil, errors.New("irc: matcher is nil")
	}
	if gate == nil {
		return nil, errors.New("irc: cooldown gate is nil")
	}
	if notifier == nil {
		return nil, errors.New("irc: notifier is nil")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	s := &Session{
		opts:     opts.withDefaults(),
		matcher:  matcher,
		gate:     gate,
		notifier: notifier,
		log:      log,
		bus:      bus,
		now:      time.Now,
	}
	s.dial = s.dialServer
	s.since = s.now()
	s.publishSnapshot()
	return s, nil
}

// Snapshot returns the current read-only session view. It never blocks on
// session I/O.
func (s *Session) Snapshot() Snapshot {
	v := s.snap.Load()
	if v == nil {
		return Snapshot{}
	}
	sn, _ := v.(Snapshot)
	return sn
}

// Run drives the connect/register/join/read loop until ctx is canceled,
// absorbing every network failure into a backoff delay. The returned error is
// always the context's.
func (s *Session) Run(ctx context.Context) error {
	bo := NewBackoff(s.opts.BackoffMin, s.opts.BackoffMax, s.opts.BackoffStableReset)
	attempt := 0
	for {
		if ctx.Err() != nil {
			s.setState(StateDisconnected, "", nil)
			return ctx.Err()
		}

		attempt++
		uptime, err := s.runOnce(ctx)
		if ctx.Err() != nil {
			s.setState(StateDisconnected, "", nil)
			return ctx.Err()
		}

		kind := KindTransport
		var se *SessionError
		if errors.As(err, &se) && se.Kind != "" {
			kind = se.Kind
		}

		bo.NoteUptime(uptime)
		delay := bo.Next()
		s.setState(StateBackoff, kind, err)
		s.log.Warn("connection lost; backing off",
			logx.String("error_kind", string(kind)),
			logx.Err(err),
			logx.Duration("delay", delay),
			logx.Int("attempt", attempt),
		)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			s.setState(StateDisconnected, "", nil)
			return ctx.Err()
		case <-t.C:
		}
	}
}

// runOnce handles a single connection lifetime and reports how long the
// transport was up, so the backoff policy can reset after sustained runs.
func (s *Session) runOnce(ctx context.Context) (time.Duration, error) {
	s.setState(StateConnecting, "", nil)
	s.log.Info("connecting",
		logx.String("server", s.opts.Server),
		logx.Int("port", s.opts.Port),
		logx.Bool("tls", s.opts.TLS),
	)

	conn, err := s.dial(ctx)
	if err != nil {
		return 0, &SessionError{Kind: KindTransport, Err: err}
	}
	connectedAt := s.now()
	s.connects++

	// Shutdown must unblock a pending read promptly.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	err = s.converse(ctx, conn)
	return s.now().Sub(connectedAt), err
}

func (s *Session) dialServer(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(s.opts.Server, strconv.Itoa(s.opts.Port))
	d := &net.Dialer{Timeout: s.opts.DialTimeout}
	if s.opts.TLS {
		td := &tls.Dialer{NetDialer: d, Config: &tls.Config{ServerName: s.opts.Server}}
		return td.DialContext(ctx, "tcp", addr)
	}
	return d.DialContext(ctx, "tcp", addr)
}

// converse runs the protocol conversation for one connection: registration,
// join, then the steady read/react loop. It returns when the transport dies,
// the server rejects us, or ctx is canceled.
func (s *Session) converse(ctx context.Context, conn net.Conn) error {
	lr := newLineReader(conn)

	s.setState(StateRegistering, "", nil)
	if err := s.send(conn, "NICK %s", s.opts.Nickname); err != nil {
		return err
	}
	if err := s.send(conn, "USER %s 0 * :%s", s.opts.Nickname, s.opts.Realname); err != nil {
		return err
	}

	for {
		// The read deadline doubles as the dead-connection detector: a
		// server that goes silent past the keepalive window forces a
		// reconnect instead of hanging forever.
		if err := conn.SetReadDeadline(time.Now().Add(s.opts.KeepaliveTimeout)); err != nil {
			return &SessionError{Kind: KindTransport, Err: err}
		}
		line, err := lr.ReadLine()
		if errors.Is(err, errLineTooLong) {
			s.log.Warn("dropping oversized line", logx.String("error_kind", string(KindProtocol)))
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &SessionError{Kind: KindTransport, Err: err}
		}
		if line == "" {
			continue
		}

		msg, err := ParseMessage(line)
		if err != nil {
			return &SessionError{Kind: KindProtocol, Err: err}
		}
		if err := s.handle(conn, msg); err != nil {
			return err
		}
	}
}

func (s *Session) handle(conn net.Conn, msg Message) error {
	// Keepalive and server errors apply in every state.
	switch msg.Command {
	case "PING":
		return s.send(conn, "PONG :%s", msg.Trailing())
	case "ERROR":
		return &SessionError{Kind: KindProtocol, Err: fmt.Errorf("server error: %s", msg.Trailing())}
	}

	switch s.state {
	case StateRegistering:
		return s.handleRegistering(conn, msg)
	case StateJoining:
		return s.handleJoining(msg)
	case StateJoined:
		return s.handleJoined(msg)
	}
	return nil
}

func (s *Session) handleRegistering(conn net.Conn, msg Message) error {
	switch msg.Command {
	case "001":
		s.log.Info("registered; joining", logx.String("channel", s.opts.Channel))
		if err := s.send(conn, "JOIN %s", s.opts.Channel); err != nil {
			return err
		}
		s.setState(StateJoining, "", nil)
	case "431", "432", "433", "436":
		return &SessionError{
			Kind: KindRegistration,
			Err:  fmt.Errorf("nick %q rejected: %s %s", s.opts.Nickname, msg.Command, msg.Trailing()),
		}
	}
	return nil
}

func (s *Session) handleJoining(msg Message) error {
	switch msg.Command {
	case "332": // RPL_TOPIC: <me> <channel> :<topic>
		if !equalFold(msg.Param(1), s.opts.Channel) {
			return nil
		}
		// The join-time topic is recorded but never trigger-checked; only
		// changes observed while joined fire notifications.
		s.recordTopic(msg.Param(2))
		s.enterJoined()
	case "331": // RPL_NOTOPIC
		if !equalFold(msg.Param(1), s.opts.Channel) {
			return nil
		}
		s.recordTopic("")
		s.enterJoined()
	case "366": // RPL_ENDOFNAMES arrives even when the server sends no topic reply.
		if !equalFold(msg.Param(1), s.opts.Channel) {
			return nil
		}
		s.enterJoined()
	case "403", "405", "471", "473", "474", "475", "476":
		return &SessionError{
			Kind: KindProtocol,
			Err:  fmt.Errorf("cannot join %s: %s %s", s.opts.Channel, msg.Command, msg.Trailing()),
		}
	}
	return nil
}

func (s *Session) enterJoined() {
	if s.state == StateJoined {
		return
	}
	s.setState(StateJoined, "", nil)
	s.log.Info("joined",
		logx.String("channel", s.opts.Channel),
		logx.Int("topic_len", len(s.topic)),
	)
}

func (s *Session) handleJoined(msg Message) error {
	switch msg.Command {
	case "TOPIC": // :setter TOPIC <channel> :<new topic>
		if !equalFold(msg.Param(0), s.opts.Channel) {
			return nil
		}
		s.onTopicChange(msg.Nick(), msg.Param(1))
	case "332": // late topic reply: record only, a reply is not a change
		if equalFold(msg.Param(1), s.opts.Channel) {
			s.recordTopic(msg.Param(2))
		}
	case "KICK": // <channel> <nick> [:reason]
		if equalFold(msg.Param(0), s.opts.Channel) && equalFold(msg.Param(1), s.opts.Nickname) {
			return &SessionError{
				Kind: KindProtocol,
				Err:  fmt.Errorf("kicked from %s: %s", s.opts.Channel, msg.Trailing()),
			}
		}
	}
	return nil
}

func (s *Session) onTopicChange(by, topic string) {
	if topic == s.topic {
		// Servers may replay the identical topic; that must neither fire the
		// matcher nor consume the cooldown.
		s.log.Debug("topic unchanged", logx.String("by", by))
		return
	}

	now := s.now()
	s.recordTopic(topic)

	matched := s.matcher.Match(topic)
	s.log.Info("topic changed",
		logx.String("by", by),
		logx.Int("len", len(topic)),
		logx.Bool("matched", matched),
	)
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "session.topic", Data: TopicChange{
			Channel: s.opts.Channel,
			Topic:   topic,
			Matched: matched,
			At:      now,
		}})
	}

	if !matched {
		return
	}
	if !s.gate.Allow(now) {
		s.log.Info("notification suppressed by cooldown",
			logx.Duration("remaining", s.gate.Remaining(now)),
		)
		return
	}
	if err := s.notifier.TopicMatched(topic); err != nil {
		s.log.Error("notification dispatch failed", logx.Err(err))
	}
	// Allow armed the gate; refresh the cooldown view in the snapshot.
	s.publishSnapshot()
}

func (s *Session) recordTopic(topic string) {
	s.topic = topic
	s.topicSetAt = s.now()
	s.publishSnapshot()
}

func (s *Session) setState(to State, kind ErrorKind, err error) {
	from := s.state
	s.state = to
	s.since = s.now()
	if err != nil {
		s.lastErrKind = kind
		s.lastErr = err.Error()
	}
	s.publishSnapshot()

	if to == from {
		return
	}
	s.log.Debug("session state",
		logx.String("from", from.String()),
		logx.String("to", to.String()),
	)
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "session.state", Data: StateChange{
			From: from,
			To:   to,
			Kind: kind,
			At:   s.since,
		}})
	}
}

func (s *Session) publishSnapshot() {
	sn := Snapshot{
		State:         s.state,
		Since:         s.since,
		Topic:         s.topic,
		TopicSetAt:    s.topicSetAt,
		Connects:      s.connects,
		LastErrorKind: s.lastErrKind,
		LastError:     s.lastErr,
	}
	if last, ok := s.gate.LastAttempt(); ok {
		sn.LastNotifyAt = last
		sn.CooldownUntil = last.Add(s.gate.Window())
	}
	s.snap.Store(sn)
}

func (s *Session) send(conn net.Conn, format string, args ...any) error {
	line := fmt.Sprintf(format, args...)
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if _, err := io.WriteString(conn, line+"\r\n"); err != nil {
		return &SessionError{Kind: KindTransport, Err: err}
	}
	s.log.Trace("send", logx.String("line", line))
	return nil
}
