package metrics

import (
	"context"

	"ircwatch/internal/eventbus"
	"ircwatch/internal/irc"
	"ircwatch/internal/notify"
)

// Observer translates bus events into Prometheus metric updates. It is the
// only bridge between the event stream and the collectors, so publishers
// stay free of metric concerns.
type Observer struct {
	bus eventbus.Bus
}

func NewObserver(bus eventbus.Bus) *Observer {
	return &Observer{bus: bus}
}

// Run consumes bus events until ctx is canceled. Dropped events are
// acceptable: metrics are best-effort signals, not an audit log.
func (o *Observer) Run(ctx context.Context) error {
	ch, unsub := o.bus.Subscribe(64)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			o.handle(ev)
		}
	}
}

func (o *Observer) handle(ev eventbus.Event) {
	switch ev.Type {
	case "session.state":
		sc, ok := ev.Data.(irc.StateChange)
		if !ok {
			return
		}
		SetSessionState(sc.To.String())
		switch sc.To {
		case irc.StateRegistering:
			// The transport came up; registration is the first thing sent on it.
			IncConnect()
		case irc.StateBackoff:
			IncDisconnect(string(sc.Kind))
		}

	case "session.topic":
		tc, ok := ev.Data.(irc.TopicChange)
		if !ok {
			return
		}
		IncTopicChange(tc.Matched)

	case "notify.queued":
		IncNotification("queued")
	case "notify.sent":
		IncNotification("sent")
	case "notify.dropped":
		IncNotification("dropped")
	case "notify.failed":
		IncNotification("failed")
		if ne, ok := ev.Data.(notify.Event); ok {
			IncNotifyFailure(string(ne.Kind))
		}
	}
}
