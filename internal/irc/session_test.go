package irc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ircwatch/internal/trigger"
	logx "ircwatch/pkg/logx"
)

// recordingNotifier captures matched topics and returns a scripted error.
type recordingNotifier struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (n *recordingNotifier) TopicMatched(topic string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.topics = append(n.topics, topic)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.topics)
}

func (n *recordingNotifier) topic(i int) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.topics[i]
}

// testServer drives the far end of a net.Pipe as a scripted IRC server.
type testServer struct {
	t    *testing.T
	conn net.Conn
	br   *bufio.Reader
}

func (ts *testServer) readLine() string {
	ts.t.Helper()
	_ = ts.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := ts.br.ReadString('\n')
	if err != nil {
		ts.t.Fatalf("server read: %v", err)
	}
	return strings.TrimRight(line, "\r\n")
}

func (ts *testServer) expect(prefix string) string {
	ts.t.Helper()
	line := ts.readLine()
	if !strings.HasPrefix(line, prefix) {
		ts.t.Fatalf("client sent %q, want prefix %q", line, prefix)
	}
	return line
}

func (ts *testServer) sendf(format string, args ...any) {
	ts.t.Helper()
	_ = ts.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := fmt.Fprintf(ts.conn, format+"\r\n", args...); err != nil {
		ts.t.Fatalf("server write: %v", err)
	}
}

// completeJoin walks the registration and join handshake. topic == ""
// replies with RPL_NOTOPIC.
func (ts *testServer) completeJoin(topic string) {
	ts.t.Helper()
	ts.expect("NICK watcher")
	ts.expect("USER watcher")
	ts.sendf(":irc.test 001 watcher :Welcome to the test network")
	ts.expect("JOIN #lab")
	if topic == "" {
		ts.sendf(":irc.test 331 watcher #lab :No topic is set")
		return
	}
	ts.sendf(":irc.test 332 watcher #lab :%s", topic)
}

// ping round-trips a keepalive, which doubles as a barrier: the session
// loop is single-threaded, so the PONG proves every earlier line was
// handled.
func (ts *testServer) ping(token string) {
	ts.t.Helper()
	ts.sendf("PING :%s", token)
	ts.expect("PONG :" + token)
}

func startSession(t *testing.T, n Notifier, window time.Duration) (*Session, *testServer, func()) {
	t.Helper()

	matcher, err := trigger.NewMatcher("OPEN", false)
	if err != nil {
		t.Fatal(err)
	}
	sess, err := New(Options{
		Server:   "irc.test",
		Port:     6667,
		Nickname: "watcher",
		Realname: "Watcher",
		Channel:  "#lab",

		KeepaliveTimeout: 5 * time.Second,
		// Keep the session parked in Backoff after a disconnect so tests
		// observe the state instead of racing a reconnect.
		BackoffMin:         time.Hour,
		BackoffMax:         time.Hour,
		BackoffStableReset: time.Hour,
	}, matcher, trigger.NewGate(window), n, logx.Nop(), nil)
	if err != nil {
		t.Fatal(err)
	}

	client, server := net.Pipe()
	var dialed atomic.Bool
	sess.dial = func(ctx context.Context) (net.Conn, error) {
		if dialed.CompareAndSwap(false, true) {
			return client, nil
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	cleanup := func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("session did not stop after cancel")
		}
		_ = server.Close()
	}
	return sess, &testServer{t: t, conn: server, br: bufio.NewReader(server)}, cleanup
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Snapshot().State == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", s.Snapshot().State, want)
}

func TestSessionTopicChangeDispatchesOneNotification(t *testing.T) {
	t.Parallel()

	n := &recordingNotifier{}
	sess, srv, cleanup := startSession(t, n, 30*time.Minute)
	defer cleanup()

	srv.completeJoin("general chat")
	waitState(t, sess, StateJoined)

	srv.sendf(":alice!a@host TOPIC #lab :Status: OPEN")
	srv.ping("sync1")

	if n.count() != 1 {
		t.Fatalf("notifications = %d, want 1", n.count())
	}
	if !strings.Contains(n.topic(0), "OPEN") {
		t.Errorf("notified topic %q does not contain the trigger", n.topic(0))
	}
	if got := sess.Snapshot().Topic; got != "Status: OPEN" {
		t.Errorf("snapshot topic = %q", got)
	}
}

func TestSessionCooldownSuppressesSecondMatch(t *testing.T) {
	t.Parallel()

	n := &recordingNotifier{}
	sess, srv, cleanup := startSession(t, n, 30*time.Minute)
	defer cleanup()

	srv.completeJoin("general chat")
	waitState(t, sess, StateJoined)

	srv.sendf(":alice!a@host TOPIC #lab :Status: OPEN")
	srv.sendf(":bob!b@host TOPIC #lab :Status: OPEN again")
	srv.ping("sync1")

	if n.count() != 1 {
		t.Fatalf("notifications = %d, want 1 (second suppressed by cooldown)", n.count())
	}
	// The record still tracks the latest topic even when suppressed.
	if got := sess.Snapshot().Topic; got != "Status: OPEN again" {
		t.Errorf("snapshot topic = %q", got)
	}
}

func TestSessionJoinTimeTopicNeverTriggers(t *testing.T) {
	t.Parallel()

	n := &recordingNotifier{}
	sess, srv, cleanup := startSession(t, n, 30*time.Minute)
	defer cleanup()

	// The existing topic already matches the trigger at join time.
	srv.completeJoin("Status: OPEN")
	waitState(t, sess, StateJoined)
	srv.ping("sync1")

	if n.count() != 0 {
		t.Fatalf("notifications = %d, want 0 (join-time topic must not trigger)", n.count())
	}
	if got := sess.Snapshot().Topic; got != "Status: OPEN" {
		t.Errorf("snapshot topic = %q", got)
	}
}

func TestSessionIdenticalTopicReplayDoesNotConsumeCooldown(t *testing.T) {
	t.Parallel()

	n := &recordingNotifier{}
	sess, srv, cleanup := startSession(t, n, 30*time.Minute)
	defer cleanup()

	srv.completeJoin("general chat")
	waitState(t, sess, StateJoined)

	srv.sendf(":alice!a@host TOPIC #lab :quiet day")
	srv.sendf(":alice!a@host TOPIC #lab :quiet day")
	srv.ping("sync1")
	srv.sendf(":alice!a@host TOPIC #lab :Status: OPEN")
	srv.ping("sync2")

	if n.count() != 1 {
		t.Fatalf("notifications = %d, want 1", n.count())
	}
}

func TestSessionNotifierFailureKeepsSessionJoined(t *testing.T) {
	t.Parallel()

	n := &recordingNotifier{err: errors.New("notify: auth (http 400): provider rejected")}
	sess, srv, cleanup := startSession(t, n, 30*time.Minute)
	defer cleanup()

	srv.completeJoin("general chat")
	waitState(t, sess, StateJoined)

	srv.sendf(":alice!a@host TOPIC #lab :Status: OPEN")
	srv.ping("sync1")

	if n.count() != 1 {
		t.Fatalf("notifications = %d, want 1 attempt", n.count())
	}
	if got := sess.Snapshot().State; got != StateJoined {
		t.Fatalf("state = %s, want joined after notifier failure", got)
	}
	// The loop is still live.
	srv.ping("sync2")
}

func TestSessionIgnoresTopicForOtherChannels(t *testing.T) {
	t.Parallel()

	n := &recordingNotifier{}
	sess, srv, cleanup := startSession(t, n, 30*time.Minute)
	defer cleanup()

	srv.completeJoin("general chat")
	waitState(t, sess, StateJoined)

	srv.sendf(":alice!a@host TOPIC #other :Status: OPEN")
	srv.ping("sync1")

	if n.count() != 0 {
		t.Fatalf("notifications = %d, want 0 for an unmonitored channel", n.count())
	}
	if got := sess.Snapshot().Topic; got != "general chat" {
		t.Errorf("snapshot topic = %q, must be unchanged", got)
	}
}

func TestSessionChannelComparisonIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	n := &recordingNotifier{}
	sess, srv, cleanup := startSession(t, n, 30*time.Minute)
	defer cleanup()

	srv.completeJoin("general chat")
	waitState(t, sess, StateJoined)

	srv.sendf(":alice!a@host TOPIC #LAB :Status: OPEN")
	srv.ping("sync1")

	if n.count() != 1 {
		t.Fatalf("notifications = %d, want 1 (IRC channels casefold)", n.count())
	}
}

func TestSessionNoTopicReplyStillJoins(t *testing.T) {
	t.Parallel()

	n := &recordingNotifier{}
	sess, srv, cleanup := startSession(t, n, 30*time.Minute)
	defer cleanup()

	srv.completeJoin("")
	waitState(t, sess, StateJoined)

	if got := sess.Snapshot().Topic; got != "" {
		t.Errorf("snapshot topic = %q, want empty", got)
	}
}

func TestSessionNickRejectedGoesToBackoffWithRegistrationKind(t *testing.T) {
	t.Parallel()

	n := &recordingNotifier{}
	sess, srv, cleanup := startSession(t, n, 30*time.Minute)
	defer cleanup()

	srv.expect("NICK watcher")
	srv.expect("USER watcher")
	srv.sendf(":irc.test 433 * watcher :Nickname is already in use")

	waitState(t, sess, StateBackoff)
	if got := sess.Snapshot().LastErrorKind; got != KindRegistration {
		t.Errorf("error kind = %s, want %s", got, KindRegistration)
	}
}

func TestSessionServerErrorGoesToBackoff(t *testing.T) {
	t.Parallel()

	n := &recordingNotifier{}
	sess, srv, cleanup := startSession(t, n, 30*time.Minute)
	defer cleanup()

	srv.completeJoin("general chat")
	waitState(t, sess, StateJoined)

	srv.sendf("ERROR :Closing Link: watcher (Banned)")
	waitState(t, sess, StateBackoff)
	if got := sess.Snapshot().LastErrorKind; got != KindProtocol {
		t.Errorf("error kind = %s, want %s", got, KindProtocol)
	}
}

func TestSessionKickGoesToBackoff(t *testing.T) {
	t.Parallel()

	n := &recordingNotifier{}
	sess, srv, cleanup := startSession(t, n, 30*time.Minute)
	defer cleanup()

	srv.completeJoin("general chat")
	waitState(t, sess, StateJoined)

	srv.sendf(":op!o@host KICK #lab watcher :bye")
	waitState(t, sess, StateBackoff)
}

func TestSessionDisconnectGoesToBackoff(t *testing.T) {
	t.Parallel()

	n := &recordingNotifier{}
	sess, srv, cleanup := startSession(t, n, 30*time.Minute)
	defer cleanup()

	srv.completeJoin("general chat")
	waitState(t, sess, StateJoined)

	_ = srv.conn.Close()
	waitState(t, sess, StateBackoff)
	if got := sess.Snapshot().LastErrorKind; got != KindTransport {
		t.Errorf("error kind = %s, want %s", got, KindTransport)
	}
}

func TestSessionTopicSplitAcrossWritesMatchesSingleWrite(t *testing.T) {
	t.Parallel()

	n := &recordingNotifier{}
	sess, srv, cleanup := startSession(t, n, 30*time.Minute)
	defer cleanup()

	srv.completeJoin("general chat")
	waitState(t, sess, StateJoined)

	// Deliver one TOPIC line in two raw writes ending mid-line; the codec
	// must buffer and complete it.
	line := ":alice!a@host TOPIC #lab :Status: OPEN\r\n"
	half := len(line) / 2
	_ = srv.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := srv.conn.Write([]byte(line[:half])); err != nil {
		t.Fatalf("first write: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := srv.conn.Write([]byte(line[half:])); err != nil {
		t.Fatalf("second write: %v", err)
	}
	srv.ping("sync1")

	if n.count() != 1 {
		t.Fatalf("notifications = %d, want 1", n.count())
	}
	if got := sess.Snapshot().Topic; got != "Status: OPEN" {
		t.Errorf("snapshot topic = %q, want identical to single-write delivery", got)
	}
}
