package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"ircwatch/internal/eventbus"
	rtsup "ircwatch/internal/runtime/supervisor"
	logx "ircwatch/pkg/logx"
)

var (
	ErrQueueFull = errors.New("notify: queue full")
	ErrStopped   = errors.New("notify: service stopped")
)

// Sender is the delivery seam; *Client in production, a fake in tests.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Service is the async dispatch pipeline: bounded queue, one delivery
// worker, provider-side rate limiter, per-send timeout. Enqueueing never
// blocks, so the IRC read loop is insulated from a slow provider.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	bus    eventbus.Bus
	sender Sender

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	queue     chan Message
	sup       *rtsup.Supervisor
	stopDone  chan struct{} // non-nil while stopping
}

func NewService(cfg Config, sender Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Service{
		log:    log,
		bus:    bus,
		sender: sender,
		cfg:    cfg,
		// One request per RateEvery is well under Pushover's limits while
		// still letting distinct triggers through promptly.
		limiter: rate.NewLimiter(rate.Every(cfg.RateEvery), 1),
	}
}

// Start is idempotent. The worker runs under the given context until Stop
// or cancellation.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan Message, s.cfg.QueueSize)
	s.accepting = true
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "notify"))),
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	q := s.queue
	s.mu.Unlock()

	sup.GoRestart("worker", func(c context.Context) error {
		s.workerLoop(c, q)
		// A closed queue is the shutdown path, not a failure.
		s.mu.Lock()
		stopping := s.stopDone != nil
		s.mu.Unlock()
		if stopping || c.Err() != nil {
			return context.Canceled
		}
		return errors.New("notify worker exited unexpectedly")
	}, rtsup.WithPublishFirstError(true))
}

// Stop blocks intake and drains the queue best-effort until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q := s.queue
	sup := s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		func() {
			defer func() { _ = recover() }()
			close(q)
		}()
		if sup != nil {
			_ = sup.Wait(context.Background())
		}
		s.mu.Lock()
		s.queue = nil
		s.sup = nil
		s.stopDone = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if sup != nil {
			sup.Cancel()
		}
	}
}

// TopicMatched builds a notification for the matched topic and enqueues it.
// It satisfies the session's Notifier contract and never blocks.
func (s *Service) TopicMatched(topic string) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	return s.Enqueue(Message{
		Title:    cfg.Title,
		Body:     renderBody(cfg.Format, topic),
		URL:      cfg.URL,
		URLTitle: cfg.URLTitle,
		Priority: 1,
		Sound:    "persistent",
	})
}

// Enqueue hands a message to the worker without blocking. A full queue
// drops the message and reports ErrQueueFull.
func (s *Service) Enqueue(m Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	s.mu.Unlock()

	select {
	case q <- m:
		s.publish("notify.queued", m, nil)
		s.log.Debug("notification queued",
			logx.String("id", m.ID),
			logx.String("title", m.Title),
		)
		return nil
	default:
		s.publish("notify.dropped", m, ErrQueueFull)
		s.log.Warn("notification dropped: queue full", logx.String("id", m.ID))
		return ErrQueueFull
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-q:
			if !ok {
				return
			}
			s.deliver(ctx, m)
		}
	}
}

func (s *Service) deliver(ctx context.Context, m Message) {
	s.mu.Lock()
	timeout := s.cfg.Timeout
	lim := s.limiter
	s.mu.Unlock()

	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	err := s.sender.Send(callCtx, m)
	cancel()

	if err == nil {
		s.publish("notify.sent", m, nil)
		s.log.Info("notification sent", logx.String("id", m.ID))
		return
	}

	s.publish("notify.failed", m, err)
	var ne *Error
	if errors.As(err, &ne) && !ne.Retryable() {
		// Wrong token or user key: a retry can never succeed, so make the
		// line stand out for operators.
		s.log.Error("notification rejected by provider (check credentials)",
			logx.String("id", m.ID),
			logx.String("kind", string(ne.Kind)),
			logx.Err(err),
		)
		return
	}
	kind := KindNetwork
	if ne != nil {
		kind = ne.Kind
	}
	s.log.Warn("notification failed",
		logx.String("id", m.ID),
		logx.String("kind", string(kind)),
		logx.Err(err),
	)
}

func (s *Service) publish(typ string, m Message, err error) {
	if s.bus == nil {
		return
	}
	ev := Event{ID: m.ID, Title: m.Title, At: time.Now()}
	if err != nil {
		ev.Error = err.Error()
		var ne *Error
		if errors.As(err, &ne) {
			ev.Kind = ne.Kind
		}
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

func renderBody(format, topic string) string {
	if strings.Contains(format, "%s") {
		return fmt.Sprintf(format, topic)
	}
	return format
}
