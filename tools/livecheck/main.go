package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anatolykoptev/go-kit/env"

	"github.com/john/livewatch/internal/discovery"
	"github.com/john/livewatch/internal/kick"
	"github.com/john/livewatch/internal/live"
	"github.com/john/livewatch/internal/poller"
	"github.com/john/livewatch/internal/transport"
	"github.com/john/livewatch/internal/twitch"
)

type channelList []live.ChannelRef

func (c channelList) Snapshot() []live.ChannelRef { return c }

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: livecheck <platform:channel> [platform:channel] ...")
		fmt.Println("       livecheck suggest [language]")
		fmt.Println("\nExample:")
		fmt.Println("  livecheck twitch:gaules kick:westcol")
		fmt.Println("  livecheck suggest es")
		os.Exit(1)
	}

	httpClient, err := transport.New(transport.Options{
		Mode:       transport.Mode(env.Str("TRANSPORT_MODE", string(transport.ModeAuto))),
		Timeout:    10 * time.Second,
		MaxRetries: 1,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create http client: %v\n", err)
		os.Exit(1)
	}
	twitchClient := twitch.New(httpClient, "", "")
	kickClient := kick.New(httpClient, kick.Options{RequestsPerSecond: 2})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if os.Args[1] == "suggest" {
		lang := "en"
		if len(os.Args) > 2 {
			lang = os.Args[2]
		}
		suggest(ctx, twitchClient, kickClient, lang)
		return
	}

	var refs channelList
	var invalid []string
	for _, arg := range os.Args[1:] {
		ref, ok := parseRef(arg)
		if !ok {
			invalid = append(invalid, arg)
			continue
		}
		refs = append(refs, ref)
	}

	p := poller.New(refs, twitchClient, kickClient)
	p.CheckAll(ctx)

	fmt.Printf("Checked %d channel(s):\n---\n", len(refs))
	for _, ref := range refs {
		st, ok := p.Status(ref.Channel, ref.Platform)
		switch {
		case !ok:
			fmt.Printf("? %s: status not supported\n", ref.Key())
		case st.IsLive:
			fmt.Printf("● %s: LIVE %d viewers | %s | %s\n", ref.Key(), st.ViewerCount, st.Category, st.Title)
		default:
			fmt.Printf("○ %s: offline\n", ref.Key())
		}
	}

	if len(invalid) > 0 {
		fmt.Println("\n✗ Could not parse (want platform:channel):")
		fmt.Println("---")
		for _, arg := range invalid {
			fmt.Println(arg)
		}
		os.Exit(1)
	}
}

func suggest(ctx context.Context, top discovery.TopSource, featured discovery.FeaturedSource, lang string) {
	agg := discovery.New(top, featured, discovery.DefaultConfig(), lang)
	agg.Refresh(ctx)

	list := agg.Suggestions()
	fmt.Printf("%d suggestion(s) for language %q:\n---\n", len(list), agg.Language())
	for i, s := range list {
		fmt.Printf("%2d. [%s] %s (%d viewers) %s\n", i+1, s.Platform, s.Channel, s.ViewerCount, s.Title)
	}
}

func parseRef(arg string) (live.ChannelRef, bool) {
	platform, channel, found := strings.Cut(arg, ":")
	if !found || strings.TrimSpace(channel) == "" {
		return live.ChannelRef{}, false
	}
	p, ok := live.ParsePlatform(platform)
	if !ok {
		return live.ChannelRef{}, false
	}
	return live.ChannelRef{Channel: strings.TrimSpace(channel), Platform: p}, true
}
