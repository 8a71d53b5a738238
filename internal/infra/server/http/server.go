// Package httpserver exposes the pushbridge control API: health, journal
// inspection and ad-hoc script execution.
package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/coachpo/pushbridge/internal/infra/config"
	"github.com/coachpo/pushbridge/internal/infra/journal"
)

const (
	maxJSONBodyBytes int64 = 1 << 20 // 1 MiB

	healthPath  = "/healthz"
	journalPath = "/journal"
	scriptsPath = "/scripts"

	defaultJournalLimit = 100
	maxJournalLimit     = 1000
)

// ScriptRunner evaluates JavaScript against the plugin.
type ScriptRunner interface {
	RunScript(name, src string) error
}

// CallTracker reports native calls still waiting for a result.
type CallTracker interface {
	Pending() int
}

// Deps are the components the control API reads from. Nil members disable
// the endpoints that need them.
type Deps struct {
	AppID     func() string
	Journal   journal.Store
	Scripts   ScriptRunner
	Transport CallTracker
}

type handlerFunc func(http.ResponseWriter, *http.Request)

type httpServer struct {
	environment config.Environment
	deps        Deps
}

// NewHandler creates the control API handler.
func NewHandler(environment config.Environment, deps Deps) http.Handler {
	server := &httpServer{environment: environment, deps: deps}
	mux := http.NewServeMux()

	mux.Handle(healthPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.health,
	}))
	mux.Handle(journalPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.recentJournal,
	}))
	mux.Handle(scriptsPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodPost: server.runScript,
	}))

	return withCORS(mux)
}

func (s *httpServer) methodHandlers(handlers map[string]handlerFunc) http.Handler {
	allowed := allowedMethods(handlers)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler(w, r)
			return
		}
		methodNotAllowed(w, allowed...)
	})
}

func allowedMethods(handlers map[string]handlerFunc) []string {
	if len(handlers) == 0 {
		return nil
	}
	allowed := make([]string, 0, len(handlers))
	for method := range handlers {
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	return allowed
}

type healthResponse struct {
	Status       string `json:"status"`
	Environment  string `json:"environment"`
	AppID        string `json:"appId,omitempty"`
	PendingCalls int    `json:"pendingCalls"`
	Journal      bool   `json:"journal"`
}

func (s *httpServer) health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:      "ok",
		Environment: string(s.environment),
		Journal:     s.deps.Journal != nil,
	}
	if s.deps.AppID != nil {
		resp.AppID = s.deps.AppID()
	}
	if s.deps.Transport != nil {
		resp.PendingCalls = s.deps.Transport.Pending()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *httpServer) recentJournal(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	limit := defaultJournalLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxJournalLimit {
		limit = maxJournalLimit
	}
	entries, err := s.deps.Journal.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("read journal: %v", err))
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type scriptPayload struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

func (s *httpServer) runScript(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scripts == nil {
		writeError(w, http.StatusNotFound, "script runtime disabled")
		return
	}
	var payload scriptPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(payload.Source) == "" {
		writeError(w, http.StatusBadRequest, "source required")
		return
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		name = "control.js"
	}
	if err := s.deps.Scripts.RunScript(name, payload.Source); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "name": name})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	defer func() { _ = body.Close() }()
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body required")
		}
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": message})
}

func withCORS(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
