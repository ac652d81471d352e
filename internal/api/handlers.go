package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"agentindex/internal/compress"
	"agentindex/internal/models"
)

var errNotFound = errors.New("not found")

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusPayload is the /status response shape: cursor position plus row
// counts, enough for an operator to tell the indexer is keeping up.
type statusPayload struct {
	LastSlot        uint64 `json:"last_slot"`
	LastSignature   string `json:"last_signature"`
	Source          string `json:"source"`
	TotalAgents     int64  `json:"total_agents"`
	PendingAgents   int64  `json:"pending_agents"`
	OrphanedAgents  int64  `json:"orphaned_agents"`
	TotalFeedbacks  int64  `json:"total_feedbacks"`
	DeadLetterCount int64  `json:"dead_letter_count"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := time.Now()

	s.statusCache.mu.Lock()
	if now.Before(s.statusCache.expiresAt) && len(s.statusCache.payload) > 0 {
		cached := append([]byte(nil), s.statusCache.payload...)
		s.statusCache.mu.Unlock()
		w.WriteHeader(http.StatusOK)
		w.Write(cached)
		return
	}
	s.statusCache.mu.Unlock()

	cursor, err := s.repo.GetCursor(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	stats, err := s.repo.GetStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	payload, err := json.Marshal(statusPayload{
		LastSlot:        cursor.LastSlot,
		LastSignature:   cursor.LastSignature,
		Source:          cursor.Source,
		TotalAgents:     stats.TotalAgents,
		PendingAgents:   stats.PendingAgents,
		OrphanedAgents:  stats.OrphanedAgents,
		TotalFeedbacks:  stats.TotalFeedbacks,
		DeadLetterCount: stats.DeadLetterCount,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	ttl := time.Duration(s.cfg.StatsCacheTTLMS) * time.Millisecond
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	s.statusCache.mu.Lock()
	s.statusCache.payload = payload
	s.statusCache.expiresAt = time.Now().Add(ttl)
	s.statusCache.mu.Unlock()

	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

// agentView is the agent-detail response: the agent row plus its
// decoded off-chain metadata namespace (both the on-chain handler-owned
// keys and the URI worker's _uri:* rows).
type agentView struct {
	models.Agent
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]
	agent, err := s.repo.GetAgent(r.Context(), asset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if agent == nil {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}

	entries, err := s.repo.ListMetadataByAsset(r.Context(), asset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	meta := make(map[string]string, len(entries))
	for _, e := range entries {
		raw, err := compress.Decompress(e.Value)
		if err != nil {
			continue
		}
		meta[e.Key] = string(raw)
	}

	writeJSON(w, http.StatusOK, agentView{Agent: *agent, Metadata: meta})
}

func (s *Server) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]
	limit := parseLimit(r)

	feedback, err := s.repo.ListFeedbacksByAsset(r.Context(), asset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feedback": feedback})
}

func (s *Server) handleListAgentsByCollection(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]
	limit := parseLimit(r)

	agents, err := s.repo.ListAgentsByCollection(r.Context(), collection, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

func parseLimit(r *http.Request) int {
	const def, max = 50, 200
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
