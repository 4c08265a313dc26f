// internal/browser/probe.go
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// maxProbeEvents bounds the buffer; a long-lived media page can fire tens of
// thousands of requests and only the recent ones matter to callers.
const maxProbeEvents = 8192

// RequestEvent is one outgoing request observed on the devtools wire.
type RequestEvent struct {
	URL          string
	Method       string
	ResourceType string
	Timestamp    time.Time
}

// Probe records every request a page makes. Chrome delivers events on the
// CDP message loop, so the handler must never block; it only appends under a
// short critical section.
type Probe struct {
	logger *zap.Logger

	mu      sync.Mutex
	events  []RequestEvent
	stopped bool
}

func newProbe(ctx context.Context, logger *zap.Logger) *Probe {
	p := &Probe{logger: logger.Named("probe")}

	chromedp.ListenTarget(ctx, func(ev interface{}) {
		e, ok := ev.(*network.EventRequestWillBeSent)
		if !ok {
			return
		}
		p.record(RequestEvent{
			URL:          e.Request.URL,
			Method:       e.Request.Method,
			ResourceType: e.Type.String(),
			Timestamp:    time.Now(),
		})
	})

	return p
}

func (p *Probe) record(ev RequestEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	if len(p.events) >= maxProbeEvents {
		// Drop the oldest half rather than one at a time.
		copy(p.events, p.events[len(p.events)/2:])
		p.events = p.events[:len(p.events)-len(p.events)/2]
	}
	p.events = append(p.events, ev)
}

// Drain returns all events observed so far and clears the buffer, so a
// caller polling in a loop only sees new traffic each time.
func (p *Probe) Drain() []RequestEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.events
	p.events = nil
	return out
}

// Len reports how many events are buffered.
func (p *Probe) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func (p *Probe) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	p.events = nil
}
