// Package metrics keeps process-wide operational counters.
package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"
)

var counters struct {
	TwitchRequests      atomic.Int64
	TwitchErrors        atomic.Int64
	KickRequests        atomic.Int64
	KickErrors          atomic.Int64
	PollCycles          atomic.Int64
	PollSkipped         atomic.Int64
	SuggestionRefreshes atomic.Int64
	SuggestionSkipped   atomic.Int64
	TransportRetries    atomic.Int64
}

var order = []string{
	"twitch_requests", "twitch_errors",
	"kick_requests", "kick_errors",
	"poll_cycles", "poll_skipped",
	"suggestion_refreshes", "suggestion_skipped",
	"transport_retries",
}

// Snapshot returns the current value of every counter.
func Snapshot() map[string]int64 {
	return map[string]int64{
		"twitch_requests":      counters.TwitchRequests.Load(),
		"twitch_errors":        counters.TwitchErrors.Load(),
		"kick_requests":        counters.KickRequests.Load(),
		"kick_errors":          counters.KickErrors.Load(),
		"poll_cycles":          counters.PollCycles.Load(),
		"poll_skipped":         counters.PollSkipped.Load(),
		"suggestion_refreshes": counters.SuggestionRefreshes.Load(),
		"suggestion_skipped":   counters.SuggestionSkipped.Load(),
		"transport_retries":    counters.TransportRetries.Load(),
	}
}

// Format renders the counters as "name value" lines.
func Format() string {
	m := Snapshot()
	var sb strings.Builder
	for _, k := range order {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

func IncrTwitchRequests()      { counters.TwitchRequests.Add(1) }
func IncrTwitchErrors()        { counters.TwitchErrors.Add(1) }
func IncrKickRequests()        { counters.KickRequests.Add(1) }
func IncrKickErrors()          { counters.KickErrors.Add(1) }
func IncrPollCycles()          { counters.PollCycles.Add(1) }
func IncrPollSkipped()         { counters.PollSkipped.Add(1) }
func IncrSuggestionRefreshes() { counters.SuggestionRefreshes.Add(1) }
func IncrSuggestionSkipped()   { counters.SuggestionSkipped.Add(1) }
func IncrTransportRetries()    { counters.TransportRetries.Add(1) }
