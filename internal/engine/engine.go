// Package engine wires the status poller, the discovery aggregator and their
// schedules into the single service instance the rest of the process reads.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/john/livewatch/internal/discovery"
	"github.com/john/livewatch/internal/live"
	"github.com/john/livewatch/internal/poller"
	"github.com/john/livewatch/internal/scheduler"
	"github.com/john/livewatch/internal/tracked"
)

// Event types delivered to subscribers.
const (
	EventStatus      = "status"
	EventSuggestions = "suggestions"
)

// subscriberQueue is how many events may wait for one subscriber.
const subscriberQueue = 16

// Event is one publication. Exactly one of Statuses and Suggestions is set,
// according to Type.
type Event struct {
	Type        string                 `json:"type"`
	Statuses    live.StatusMap         `json:"statuses,omitempty"`
	Suggestions []live.SuggestedStream `json:"suggestions,omitempty"`
}

// MarshalJSON writes only the payload matching Type, and always writes it:
// an empty publication is an empty object or array, never a missing field.
func (ev Event) MarshalJSON() ([]byte, error) {
	switch ev.Type {
	case EventStatus:
		statuses := ev.Statuses
		if statuses == nil {
			statuses = live.StatusMap{}
		}
		return json.Marshal(struct {
			Type     string         `json:"type"`
			Statuses live.StatusMap `json:"statuses"`
		}{ev.Type, statuses})
	case EventSuggestions:
		suggestions := ev.Suggestions
		if suggestions == nil {
			suggestions = []live.SuggestedStream{}
		}
		return json.Marshal(struct {
			Type        string                 `json:"type"`
			Suggestions []live.SuggestedStream `json:"suggestions"`
		}{ev.Type, suggestions})
	}
	type plain Event
	return json.Marshal(plain(ev))
}

// Deps are the collaborators of an Engine. Notifier, Top and Featured are optional.
type Deps struct {
	Source   tracked.Source
	Notifier tracked.Notifier
	Adapters []live.StatusAdapter
	Top      discovery.TopSource
	Featured discovery.FeaturedSource
}

// Options tunes an Engine.
type Options struct {
	PollInterval       time.Duration
	SuggestionInterval time.Duration // 0 refreshes suggestions only on Start and on demand
	Language           string
	Discovery          discovery.Config
}

// Engine is the live-status and discovery service.
type Engine struct {
	source   tracked.Source
	notifier tracked.Notifier
	poller   *poller.Poller
	agg      *discovery.Aggregator

	polls       *scheduler.Scheduler
	suggestions *scheduler.Scheduler

	// ctx outlives Start/Stop; only Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	running     bool
	closed      bool
	lastSize    int
	unsubscribe func()

	subMu  sync.Mutex
	nextID int
	subs   map[int]chan Event // nil once closed
}

// New builds a stopped engine.
func New(deps Deps, opts Options) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		source:   deps.Source,
		notifier: deps.Notifier,
		poller:   poller.New(deps.Source, deps.Adapters...),
		agg:      discovery.New(deps.Top, deps.Featured, opts.Discovery, opts.Language),
		ctx:      ctx,
		cancel:   cancel,
		subs:     make(map[int]chan Event),
	}

	e.polls = scheduler.New(opts.PollInterval, func(ctx context.Context) { e.poller.CheckAll(ctx) })
	if opts.SuggestionInterval > 0 {
		e.suggestions = scheduler.New(opts.SuggestionInterval, func(ctx context.Context) { e.agg.Refresh(ctx) })
	}

	e.poller.OnPublish(func(m live.StatusMap) {
		e.emit(Event{Type: EventStatus, Statuses: m})
	})
	e.agg.OnPublish(func(list []live.SuggestedStream) {
		e.emit(Event{Type: EventSuggestions, Suggestions: list})
	})
	return e
}

// Start begins polling immediately and on every interval, refreshes the
// suggestions, and re-polls whenever the tracked set changes size. Calling
// Start twice does nothing.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	if e.closed {
		slog.Warn("engine: start after close ignored")
		return
	}
	e.running = true
	e.lastSize = len(e.source.Snapshot())

	if e.notifier != nil {
		e.unsubscribe = e.notifier.Subscribe(e.onTrackedChange)
	}

	e.polls.Start(e.ctx)
	if e.suggestions != nil {
		e.suggestions.Start(e.ctx)
	} else {
		go e.agg.Refresh(e.ctx)
	}

	slog.Info("engine: started", slog.Int("tracked", e.lastSize), slog.String("language", e.agg.Language()))
}

// Stop halts the schedules and the tracked-set watcher. Cycles already in
// flight run to completion.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	e.polls.Stop()
	if e.suggestions != nil {
		e.suggestions.Stop()
	}
	slog.Info("engine: stopped")
}

// Close stops the engine for good. In-flight cycles are aborted without
// publishing and every subscription ends. Start does nothing afterwards.
func (e *Engine) Close() {
	e.Stop()

	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.cancel()

	e.subMu.Lock()
	for _, ch := range e.subs {
		close(ch)
	}
	e.subs = nil
	e.subMu.Unlock()
}

// onTrackedChange re-polls when the number of tracked channels changed.
func (e *Engine) onTrackedChange() {
	size := len(e.source.Snapshot())

	e.mu.Lock()
	changed := e.running && size != e.lastSize
	e.lastSize = size
	e.mu.Unlock()

	if changed {
		slog.Debug("engine: tracked set changed", slog.Int("size", size))
		go e.poller.CheckAll(e.ctx)
	}
}

// CheckAll forces a poll cycle. It reports false if one was already running.
func (e *Engine) CheckAll(ctx context.Context) bool {
	return e.poller.CheckAll(ctx)
}

// RefreshSuggestions forces a suggestion refresh. It reports false if one was
// already running.
func (e *Engine) RefreshSuggestions(ctx context.Context) bool {
	return e.agg.Refresh(ctx)
}

// Statuses returns a copy of the last published status map.
func (e *Engine) Statuses() live.StatusMap { return e.poller.Statuses() }

// Status looks up one channel. It reports false when the status is unknown.
func (e *Engine) Status(channel string, platform live.Platform) (live.LiveStatus, bool) {
	return e.poller.Status(channel, platform)
}

// Suggestions returns a copy of the last published suggestion list.
func (e *Engine) Suggestions() []live.SuggestedStream { return e.agg.Suggestions() }

// SeedSuggestions installs a previously saved suggestion list.
func (e *Engine) SeedSuggestions(list []live.SuggestedStream) { e.agg.Seed(list) }

func (e *Engine) IsChecking() bool           { return e.poller.IsChecking() }
func (e *Engine) IsLoadingSuggestions() bool { return e.agg.IsLoading() }
func (e *Engine) Language() string           { return e.agg.Language() }
func (e *Engine) SetLanguage(code string)    { e.agg.SetLanguage(code) }

// Running reports whether the engine is started.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Subscribe registers fn for every publication and returns a function that
// removes it. Each subscriber is fed from its own queue on its own goroutine,
// in publication order, so a slow fn never holds up a cycle. When fn falls
// more than subscriberQueue events behind, newer events are dropped for it.
// fn must not modify the event it receives.
func (e *Engine) Subscribe(fn func(Event)) func() {
	events := make(chan Event, subscriberQueue)

	e.subMu.Lock()
	if e.subs == nil {
		e.subMu.Unlock()
		return func() {}
	}
	id := e.nextID
	e.nextID++
	e.subs[id] = events
	e.subMu.Unlock()

	go func() {
		for ev := range events {
			fn(ev)
		}
	}()

	return func() {
		e.subMu.Lock()
		if ch, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(ch)
		}
		e.subMu.Unlock()
	}
}

func (e *Engine) emit(ev Event) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for id, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("engine: subscriber falling behind, dropping event",
				slog.Int("subscriber", id),
				slog.String("type", ev.Type),
			)
		}
	}
}
