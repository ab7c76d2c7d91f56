// Package notify sends fire-and-forget HTTP notifications for polling
// events. The primary use case is ntfy.sh, but any HTTP webhook works.
package notify

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/poll"
)

// Options selects which events produce a notification.
type Options struct {
	// LowDegree, when positive, alerts once the remaining degree drops
	// below it.
	LowDegree float32
	// Interval is the minimum time between two low-degree alerts.
	Interval time.Duration
	// OnAuth alerts when the upstream starts rejecting the credentials.
	OnAuth bool
	// OnStop alerts when polling stops.
	OnStop bool
}

// Notifier posts plain-text HTTP notifications for selected poll events.
type Notifier struct {
	url    string
	title  string
	opts   Options
	client *http.Client
	now    func() time.Time

	mu      sync.Mutex
	lastLow time.Time
	wg      sync.WaitGroup
}

// New creates a Notifier. title is used as the X-Title header; if empty,
// "PowerUsage" is used instead.
func New(notifURL, title string, opts Options) *Notifier {
	if title == "" {
		title = "PowerUsage"
	}
	return &Notifier{
		url:    notifURL,
		title:  title,
		opts:   opts,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Hook is a poll.Loop hook. It fires asynchronous POSTs for events that
// match the configured options.
func (n *Notifier) Hook(ev poll.Event) {
	switch ev.Kind {
	case poll.EventSample:
		if n.opts.LowDegree > 0 && ev.Value < n.opts.LowDegree && n.allowLow() {
			n.send(fmt.Sprintf("%s: %.2f degree left (below %.2f)", ev.Room, ev.Value, n.opts.LowDegree))
		}
	case poll.EventNotAuthenticated:
		if n.opts.OnAuth && !ev.Suppressed {
			n.send(fmt.Sprintf("%s: credentials rejected: %s", ev.Room, ev.Message))
		}
	case poll.EventStopped:
		if n.opts.OnStop {
			n.send(ev.Message)
		}
	}
}

// Wait blocks until every notification sent so far has completed.
func (n *Notifier) Wait() { n.wg.Wait() }

func (n *Notifier) allowLow() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.now()
	if !n.lastLow.IsZero() && now.Sub(n.lastLow) < n.opts.Interval {
		return false
	}
	n.lastLow = now
	return true
}

func (n *Notifier) send(message string) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.post(message)
	}()
}

// post sends a plain-text POST to the configured URL. Errors are silently
// discarded so notification failures never interrupt polling.
func (n *Notifier) post(message string) {
	req, err := http.NewRequest(http.MethodPost, n.url, strings.NewReader(message))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-Title", n.title)
	resp, err := n.client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}
