// Package language maps the viewer's preferred UI language to the codes and
// names each platform uses to tag streams.
package language

import (
	"sort"
	"strings"
)

// Language holds the per-platform identifiers for one UI language.
type Language struct {
	Code       string // two-letter UI code, e.g. "en"
	Name       string // native display name
	TwitchCode string // broadcastSettings.language value, e.g. "EN"
	KickCode   string // path segment of the featured-livestreams endpoint
	KickName   string // language name Kick reports on each stream
}

// Default is used when the preferred code is unknown.
const Default = "en"

var supported = map[string]Language{
	"en": {Code: "en", Name: "English", TwitchCode: "EN", KickCode: "en", KickName: "English"},
	"pt": {Code: "pt", Name: "Português", TwitchCode: "PT", KickCode: "pt", KickName: "Portuguese"},
	"es": {Code: "es", Name: "Español", TwitchCode: "ES", KickCode: "es", KickName: "Spanish"},
	"de": {Code: "de", Name: "Deutsch", TwitchCode: "DE", KickCode: "de", KickName: "German"},
	"cn": {Code: "cn", Name: "简体中文", TwitchCode: "ZH", KickCode: "zh", KickName: "Chinese"},
	"ru": {Code: "ru", Name: "Русский", TwitchCode: "RU", KickCode: "ru", KickName: "Russian"},
}

// Lookup returns the language for a two-letter code.
func Lookup(code string) (Language, bool) {
	l, ok := supported[strings.ToLower(strings.TrimSpace(code))]
	return l, ok
}

// Resolve is like Lookup but falls back to Default.
func Resolve(code string) Language {
	if l, ok := Lookup(code); ok {
		return l
	}
	return supported[Default]
}

// Codes returns the supported codes in sorted order.
func Codes() []string {
	out := make([]string, 0, len(supported))
	for code := range supported {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
