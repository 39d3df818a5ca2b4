package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/manpreetbhatti/codesync/backend/internal/executor"
	"github.com/manpreetbhatti/codesync/backend/internal/ratelimit"
	"github.com/manpreetbhatti/codesync/backend/internal/room"
	"github.com/manpreetbhatti/codesync/backend/internal/store"
)

const maxExecuteBody = 1 << 20

// Presence reports live connection counts; ws.Hub implements it
type Presence interface {
	GetRoomCount() int
	GetClientCount() int
	GetActiveRooms() map[string]int
}

type pinger interface {
	Ping(ctx context.Context) error
}

type API struct {
	presence Presence
	store    store.Store
	executor executor.Executor
	limiters *ratelimit.ClientLimiters
}

func New(presence Presence, st store.Store, exec executor.Executor, limiters *ratelimit.ClientLimiters) *API {
	return &API{
		presence: presence,
		store:    st,
		executor: exec,
		limiters: limiters,
	}
}

// Routes registers the HTTP side-channel on r
func (a *API) Routes(r *mux.Router) {
	r.Use(corsMiddleware)
	r.HandleFunc("/health", a.HealthHandler).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/stats", a.StatsHandler).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/rooms/{id}", a.GetRoomHandler).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/execute", a.ExecuteHandler).Methods(http.MethodPost, http.MethodOptions)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("error encoding JSON response")
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if p, ok := a.store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			log.Warn().Err(err).Msg("health check: store unreachable")
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["store"] = "unavailable"
		} else {
			body["store"] = "ok"
		}
	}

	jsonResponse(w, status, body)
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"active_rooms":   a.presence.GetRoomCount(),
		"active_clients": a.presence.GetClientCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if lister, ok := a.store.(store.Lister); ok {
		ids, err := lister.List(r.Context())
		if err == nil {
			stats["total_rooms"] = len(ids)
		}
	}

	jsonResponse(w, http.StatusOK, stats)
}

type RoomResponse struct {
	ID           string             `json:"id"`
	Code         string             `json:"code"`
	Language     string             `json:"language"`
	Participants []room.Participant `json:"participants"`
	ActiveUsers  int                `json:"active_users"`
}

func (a *API) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	rm, err := a.store.Get(r.Context(), roomID)
	if err != nil {
		log.Error().Err(err).Str("room", roomID).Msg("failed to load room")
		errorResponse(w, http.StatusServiceUnavailable, "Failed to get room")
		return
	}

	if rm == nil {
		errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	jsonResponse(w, http.StatusOK, RoomResponse{
		ID:           roomID,
		Code:         rm.Code,
		Language:     rm.Language,
		Participants: rm.Participants,
		ActiveUsers:  a.presence.GetActiveRooms()[roomID],
	})
}

type ExecuteRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

func (a *API) ExecuteHandler(w http.ResponseWriter, r *http.Request) {
	if a.limiters != nil && !a.limiters.Allow(clientIP(r)) {
		errorResponse(w, http.StatusTooManyRequests, "Too many requests")
		return
	}

	var req ExecuteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxExecuteBody)).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Language == "" {
		errorResponse(w, http.StatusBadRequest, "language is required")
		return
	}

	result, err := a.executor.Execute(r.Context(), req.Language, req.Code)
	if err != nil {
		log.Error().Err(err).Str("language", req.Language).Msg("error executing code")
		errorResponse(w, http.StatusInternalServerError, "Failed to execute code.")
		return
	}

	jsonResponse(w, http.StatusOK, result)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
