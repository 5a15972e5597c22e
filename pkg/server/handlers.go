package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/RuneRubble/rs-proxy/pkg/cache"
	"github.com/RuneRubble/rs-proxy/pkg/metrics"
)

type errorResponse struct {
	Error string `json:"error"`
}

type trackedResponse struct {
	Message string      `json:"message"`
	Data    trackedUser `json:"data"`
}

type trackedUser struct {
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type userSummary struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", err)
	}
}

func (s *Server) handleTrackUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "username is required"})
		return
	}

	rec, err := s.ingester.Ingest(r.Context(), body.Username)
	if err != nil {
		// show the real cause to the client
		s.writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, trackedResponse{
		Message: "User tracked",
		Data: trackedUser{
			Username:    rec.Username,
			DisplayName: rec.DisplayName,
			LastUpdated: rec.LastUpdated,
		},
	})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	rec, err := s.store.FindByUsername(r.Context(), normalize(username))
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if !rec.Active() {
		// auto-create or revive by ingesting now
		rec, err = s.ingester.Ingest(r.Context(), username)
		if err != nil {
			s.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.ListActive(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	summaries := make([]userSummary, 0, len(names))
	for _, name := range names {
		rec, err := s.store.FindByUsername(r.Context(), name)
		if err != nil {
			s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		if rec == nil {
			continue
		}
		display := rec.DisplayName
		if display == "" {
			display = rec.Username
		}
		summaries = append(summaries, userSummary{Username: rec.Username, DisplayName: display})
	}
	s.writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.FindByUsername(r.Context(), normalize(r.PathValue("username")))
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if rec == nil {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "user not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, rec.SortedSnapshots())
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	modified, err := s.store.MarkInactive(r.Context(), normalize(r.PathValue("username")))
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "modified": modified})
}

// handleRunemetricsProxy passes the raw profile response through
// unchanged, status included.
func (s *Server) handleRunemetricsProxy(w http.ResponseWriter, r *http.Request) {
	target := fmt.Sprintf("%s?user=%s&activities=%d",
		s.upstream.ProfileURL,
		url.QueryEscape(r.PathValue("username")),
		s.upstream.ActivityWindow)

	body, status, err := s.fetchUpstream(r, target)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: fmt.Sprintf("runemetrics proxy failed: %v", err)})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func (s *Server) handleChronotes(w http.ResponseWriter, r *http.Request) {
	s.serveCachedProxy(w, r, "proxy:chronotes", s.upstream.PriceURL, "chronotes fetch failed")
}

func (s *Server) handleItemDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	target := fmt.Sprintf("%s?item=%s", s.upstream.ItemURL, url.QueryEscape(id))
	s.serveCachedProxy(w, r, "proxy:item:"+id, target, "item fetch failed")
}

// serveCachedProxy reads the upstream response through the cache; only
// successful bodies are cached.
func (s *Server) serveCachedProxy(w http.ResponseWriter, r *http.Request, key, target, failureMsg string) {
	if body, err := s.cache.Get(r.Context(), key); err == nil {
		metrics.ProxyCacheHitsTotal.Inc()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
		return
	} else if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("proxy cache read failed", zap.String("key", key), zap.Error(err))
	}
	metrics.ProxyCacheMissesTotal.Inc()

	body, status, err := s.fetchUpstream(r, target)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: fmt.Sprintf("%s: %v", failureMsg, err)})
		return
	}
	if status != http.StatusOK {
		s.writeJSON(w, status, errorResponse{Error: fmt.Sprintf("upstream status %d", status)})
		return
	}

	if err := s.cache.Set(r.Context(), key, body); err != nil {
		s.logger.Warn("proxy cache write failed", zap.String("key", key), zap.Error(err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Server) fetchUpstream(r *http.Request, target string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := s.proxyClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
