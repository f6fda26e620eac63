// Package poller runs live-status poll cycles over the tracked channel set.
//
// A cycle snapshots the set, groups it by platform, queries every adapter
// concurrently, merges the partial results and publishes the merged map in a
// single step. At most one cycle runs at a time; a CheckAll issued while a
// cycle is in flight returns immediately without doing anything.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/john/livewatch/internal/live"
	"github.com/john/livewatch/internal/metrics"
	"github.com/john/livewatch/internal/tracked"
)

// Poller owns the published StatusMap.
type Poller struct {
	source   tracked.Source
	adapters map[live.Platform]live.StatusAdapter

	checking atomic.Bool

	mu       sync.RWMutex
	statuses live.StatusMap
	subs     []func(live.StatusMap)
}

// New creates a poller over source. Adapters are keyed by their platform; a
// platform without an adapter is never queried.
func New(source tracked.Source, adapters ...live.StatusAdapter) *Poller {
	m := make(map[live.Platform]live.StatusAdapter, len(adapters))
	for _, a := range adapters {
		m[a.Platform()] = a
	}
	return &Poller{
		source:   source,
		adapters: m,
		statuses: live.StatusMap{},
	}
}

// OnPublish registers fn to receive a copy of every published map. Callbacks
// run synchronously on the polling goroutine while the cycle still counts as
// in flight, so they must return promptly.
func (p *Poller) OnPublish(fn func(live.StatusMap)) {
	p.mu.Lock()
	p.subs = append(p.subs, fn)
	p.mu.Unlock()
}

// CheckAll runs one poll cycle. It reports false when a cycle was already in
// flight and this call did nothing. A cycle whose ctx is cancelled before it
// completes publishes nothing.
func (p *Poller) CheckAll(ctx context.Context) bool {
	if !p.checking.CompareAndSwap(false, true) {
		metrics.IncrPollSkipped()
		slog.Debug("poll: cycle already in flight, skipping")
		return false
	}
	defer p.checking.Store(false)

	metrics.IncrPollCycles()
	start := time.Now()

	groups := p.partition(p.source.Snapshot())
	if len(groups) == 0 {
		p.publish(live.StatusMap{})
		return true
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	merged := live.StatusMap{}
	for platform, channels := range groups {
		adapter := p.adapters[platform]
		wg.Add(1)
		go func() {
			defer wg.Done()
			partial, err := query(ctx, adapter, channels)
			if err != nil {
				slog.Warn("poll: adapter failed",
					slog.String("platform", string(platform)),
					slog.Any("error", err),
				)
				return
			}
			mu.Lock()
			for k, v := range partial {
				merged[k] = v
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	// Adapters fail closed, so a cancelled cycle would report everything offline.
	if err := ctx.Err(); err != nil {
		slog.Warn("poll: cycle cancelled, keeping previous statuses", slog.Any("error", err))
		return true
	}
	p.publish(merged)

	online := 0
	for _, s := range merged {
		if s.IsLive {
			online++
		}
	}
	slog.Info("poll: cycle complete",
		slog.Int("channels", len(merged)),
		slog.Int("live", online),
		slog.Duration("took", time.Since(start)),
	)
	return true
}

// query shields the cycle from a panicking adapter.
func query(ctx context.Context, adapter live.StatusAdapter, channels []string) (result live.StatusMap, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter panic: %v", r)
		}
	}()
	return adapter.QueryStatus(ctx, channels), nil
}

// partition groups the snapshot by platform, dropping duplicates and
// platforms without an adapter.
func (p *Poller) partition(refs []live.ChannelRef) map[live.Platform][]string {
	groups := make(map[live.Platform][]string)
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if _, ok := p.adapters[ref.Platform]; !ok || !ref.Platform.SupportsStatus() {
			continue
		}
		key := ref.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		groups[ref.Platform] = append(groups[ref.Platform], live.NormalizeChannel(ref.Channel))
	}
	return groups
}

func (p *Poller) publish(m live.StatusMap) {
	p.mu.Lock()
	p.statuses = m
	subs := make([]func(live.StatusMap), len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()

	for _, fn := range subs {
		fn(m.Clone())
	}
}

// Status returns the last published status for a channel. It reports false
// when the status is unknown: the platform has no status support or the
// channel was not part of the last cycle.
func (p *Poller) Status(channel string, platform live.Platform) (live.LiveStatus, bool) {
	if !platform.SupportsStatus() {
		return live.LiveStatus{}, false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.statuses[live.Key(platform, channel)]
	return s, ok
}

// Statuses returns a copy of the last published map.
func (p *Poller) Statuses() live.StatusMap {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.statuses.Clone()
}

// IsChecking reports whether a cycle is in flight.
func (p *Poller) IsChecking() bool {
	return p.checking.Load()
}
