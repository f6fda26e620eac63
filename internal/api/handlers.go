package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/john/livewatch/internal/language"
	"github.com/john/livewatch/internal/live"
)

type statusResponse struct {
	Statuses live.StatusMap `json:"statuses"`
	Checking bool           `json:"checking"`
}

type channelStatusResponse struct {
	Channel  string           `json:"channel"`
	Platform live.Platform    `json:"platform"`
	Known    bool             `json:"known"`
	Status   *live.LiveStatus `json:"status,omitempty"`
}

type suggestionsResponse struct {
	Suggestions []live.SuggestedStream `json:"suggestions"`
	Loading     bool                   `json:"loading"`
	Language    string                 `json:"language"`
}

type triggerResponse struct {
	Ran bool `json:"ran"`
}

type languageRequest struct {
	Language string `json:"language"`
}

func (s *Server) handleStatuses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Statuses: s.svc.Statuses(),
		Checking: s.svc.IsChecking(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	platform, ok := live.ParsePlatform(r.PathValue("platform"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown platform")
		return
	}
	channel := live.NormalizeChannel(r.PathValue("channel"))

	resp := channelStatusResponse{Channel: channel, Platform: platform}
	if status, known := s.svc.Status(channel, platform); known {
		resp.Known = true
		resp.Status = &status
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCheck runs a poll cycle before responding. Ran is false when a cycle
// was already in flight. The cycle outlives a client that hangs up.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, triggerResponse{Ran: s.svc.CheckAll(context.WithoutCancel(r.Context()))})
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, suggestionsResponse{
		Suggestions: s.svc.Suggestions(),
		Loading:     s.svc.IsLoadingSuggestions(),
		Language:    s.svc.Language(),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, triggerResponse{Ran: s.svc.RefreshSuggestions(context.WithoutCancel(r.Context()))})
}

func (s *Server) handleGetLanguage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, languageRequest{Language: s.svc.Language()})
}

func (s *Server) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	var req languageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if _, ok := language.Lookup(req.Language); !ok {
		writeError(w, http.StatusBadRequest, "unsupported language")
		return
	}
	s.svc.SetLanguage(req.Language)
	writeJSON(w, http.StatusOK, languageRequest{Language: s.svc.Language()})
}

func (s *Server) handleTrackedList(w http.ResponseWriter, r *http.Request) {
	list, ok := s.lists[r.PathValue("list")]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown list")
		return
	}
	writeJSON(w, http.StatusOK, list.Snapshot())
}

func (s *Server) handleTrackedAdd(w http.ResponseWriter, r *http.Request) {
	list, ok := s.lists[r.PathValue("list")]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown list")
		return
	}

	var ref live.ChannelRef
	if err := json.NewDecoder(r.Body).Decode(&ref); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	platform, ok := live.ParsePlatform(string(ref.Platform))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown platform")
		return
	}
	ref.Platform = platform
	if live.NormalizeChannel(ref.Channel) == "" {
		writeError(w, http.StatusBadRequest, "channel is required")
		return
	}

	code := http.StatusOK
	if list.Add(ref) {
		code = http.StatusCreated
	}
	writeJSON(w, code, list.Snapshot())
}

func (s *Server) handleTrackedRemove(w http.ResponseWriter, r *http.Request) {
	list, ok := s.lists[r.PathValue("list")]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown list")
		return
	}
	platform, ok := live.ParsePlatform(r.PathValue("platform"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown platform")
		return
	}
	if !list.Remove(live.ChannelRef{Channel: r.PathValue("channel"), Platform: platform}) {
		writeError(w, http.StatusNotFound, "not tracked")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
