// Package poll samples the remaining degree on a fixed period and feeds it
// into the active room's log.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/engine"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/fault"
)

// Defaults used when Loop fields are zero.
const (
	DefaultInterval = 10 * time.Second
	DefaultTimeout  = 15 * time.Second
)

// Sampler queries the degree and records it. *engine.Engine satisfies it.
type Sampler interface {
	Sample(ctx context.Context) (engine.Reading, error)
}

// Loop is the single periodic writer into the active room's log.
type Loop struct {
	Sampler  Sampler
	Interval time.Duration
	// Timeout bounds one tick's query.
	Timeout time.Duration
	Logger  *zap.SugaredLogger
	// Events, when set, receives every event without blocking the loop.
	Events chan<- Event
	// Hooks are called synchronously with every event.
	Hooks []func(Event)
	// BeforeTick runs at the start of every tick, e.g. to pick up changed
	// settings.
	BeforeTick func(ctx context.Context)

	now   func() time.Time
	state State
}

// Run ticks immediately and then every Interval until ctx is cancelled. It
// always returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	l.emit(Event{Kind: EventInfo, Message: fmt.Sprintf("polling every %s", interval)})
	l.logger().Infow("polling started", "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		l.Tick(ctx)
		select {
		case <-ctx.Done():
			l.emit(Event{Kind: EventStopped, Message: "polling stopped"})
			l.logger().Infow("polling stopped", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// State returns the current authentication state.
func (l *Loop) State() State { return l.state }

// Tick samples once and returns the resulting event. Run calls it; it is
// exported for callers that drive the loop themselves.
func (l *Loop) Tick(ctx context.Context) Event {
	if ctx.Err() != nil {
		return Event{Kind: EventStopped, State: l.state}
	}
	if l.BeforeTick != nil {
		l.BeforeTick(ctx)
	}
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tickCtx, cancel := context.WithTimeout(ctx, timeout)
	reading, err := l.Sampler.Sample(tickCtx)
	cancel()

	ev := Event{Room: reading.Room.DirName()}
	log := l.logger()
	switch {
	case err == nil:
		if l.state == StateSuppressedNotAuthenticated {
			log.Infow("upstream accepts the credentials again", "room", ev.Room)
		}
		l.state = StateNormal
		ev.Kind = EventSample
		ev.Value = reading.Value
		ev.Recorded = reading.Recorded
		if reading.Recorded {
			ev.Message = fmt.Sprintf("degree %.2f recorded", reading.Value)
		} else {
			ev.Message = fmt.Sprintf("degree %.2f unchanged", reading.Value)
		}
		log.Debugw("sampled", "room", ev.Room, "degree", reading.Value, "recorded", reading.Recorded)

	case errors.Is(err, fault.NotAuthenticated):
		ev.Kind = EventNotAuthenticated
		ev.ErrKind = fault.NotAuthenticated
		ev.Message = err.Error()
		if l.state == StateNormal {
			log.Warnw("upstream rejected the credentials; further rejections are not logged", "room", ev.Room, "error", err)
			l.state = StateSuppressedNotAuthenticated
		} else {
			ev.Suppressed = true
		}

	default:
		if ctx.Err() != nil {
			return Event{Kind: EventStopped, State: l.state}
		}
		ev.Kind = EventError
		ev.ErrKind = fault.KindOf(err)
		ev.Message = err.Error()
		log.Errorw("sampling failed", "room", ev.Room, "kind", ev.ErrKind.String(), "error", err)
	}
	ev.State = l.state
	l.emit(ev)
	return ev
}

func (l *Loop) logger() *zap.SugaredLogger {
	if l.Logger == nil {
		l.Logger = zap.NewNop().Sugar()
	}
	return l.Logger
}

func (l *Loop) emit(ev Event) {
	if ev.Timestamp.IsZero() {
		now := l.now
		if now == nil {
			now = time.Now
		}
		ev.Timestamp = now()
	}
	if ev.Kind == EventInfo || ev.Kind == EventStopped {
		ev.State = l.state
	}
	for _, h := range l.Hooks {
		h(ev)
	}
	if l.Events == nil {
		return
	}
	select {
	case l.Events <- ev:
	default:
	}
}
